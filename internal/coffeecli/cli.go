// cli.go holds the coffeehouse CLI entrypoint (Main), default constants, and the command tree.
package coffeecli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/libtracker"
	"github.com/spf13/cobra"
)

const defaultPort = "8088"

// Main runs the coffeehouse CLI.
func Main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coffeehouse",
	Short: "Multi-agent chat: a table of LLM agents you talk to from the terminal or browser.",
	Long: `Coffeehouse hosts a group chat between you and a roster of LLM agents.
Each agent has a persona and a model; group messages go to everyone,
private messages stay between you and one agent. Agents can also chat
among themselves in rounds until you stop them.

  Quickstart:
    coffeehouse init              # scaffold .coffeehouse/ with a config
    coffeehouse serve             # start the server with your roster
    coffeehouse send hi everyone  # say something to the table
    coffeehouse autochat start    # let the agents talk among themselves

  LLM providers (edit .coffeehouse/config.yaml after 'coffeehouse init'):
    Local (Ollama):  ollama serve && ollama pull qwen2.5:7b
    OpenAI/xAI:      set OPENAI_API_KEY / XAI_API_KEY per agent
    Gemini:          set GEMINI_API_KEY per agent
    Anthropic:       set ANTHROPIC_API_KEY per agent`,
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .coffeehouse/ (config with an example roster).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		RunInit(force)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coffeehouse server with the configured roster.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, configPath, err := loadLocalConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("port"); v != "" {
			cfg.Port = v
		}
		if v, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Addr = v
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runServe(ctx, cfg, configPath)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send a message and print the replies.",
	Long: `Send a message to the table. By default it goes to everyone; use
--to <agent-id> for a private word with one agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		recipient, _ := cmd.Flags().GetString("to")
		resp, err := client.send(cmd.Context(), recipient, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printReplies(resp.Replies)
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Print the messages of a bucket (default: the current mode's).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		bucket, _ := cmd.Flags().GetString("bucket")
		msgs, err := client.messages(cmd.Context(), bucket)
		if err != nil {
			return err
		}
		printMessages(msgs)
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the agent roster.",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents in speaking order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		agents, err := client.agents(cmd.Context())
		if err != nil {
			return err
		}
		printAgents(agents)
		return nil
	},
}

var agentsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new agent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		provider, _ := flags.GetString("provider")
		model, _ := flags.GetString("model")
		persona, _ := flags.GetString("persona")
		baseURL, _ := flags.GetString("base-url")
		apiKeyEnv, _ := flags.GetString("api-key-env")
		position, _ := flags.GetInt("position")

		created, err := client.addAgent(cmd.Context(), agentservice.Agent{
			Name:      args[0],
			Persona:   persona,
			Provider:  provider,
			Model:     model,
			BaseURL:   baseURL,
			APIKeyEnv: apiKeyEnv,
			Position:  position,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (%s)\n", created.Name, created.ID)
		return nil
	},
}

var agentsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove an agent from the roster.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := client.removeAgent(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[0])
		return nil
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode [group|<agent-id>]",
	Short: "Show or switch the active conversation mode.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			if err := client.switchMode(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("mode: %s\n", args[0])
			return nil
		}
		mode, err := client.mode(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("mode: %s\n", mode)
		return nil
	},
}

var autoChatCmd = &cobra.Command{
	Use:   "autochat",
	Short: "Control the agents-only conversation loop.",
}

var autoChatStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agents-only loop.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		intervalMS, _ := cmd.Flags().GetInt("interval-ms")
		rounds, _ := cmd.Flags().GetInt("rounds")
		status, err := client.startAutoChat(cmd.Context(), intervalMS, rounds)
		if err != nil {
			return err
		}
		printAutoChatStatus(status)
		return nil
	},
}

var autoChatStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the agents-only loop.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := client.stopAutoChat(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("autochat stopped")
		return nil
	},
}

var autoChatStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the agents-only loop is running.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		status, err := client.autoChatStatus(cmd.Context())
		if err != nil {
			return err
		}
		printAutoChatStatus(status)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the live event stream (messages, agent errors, autochat).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return client.watch(ctx, printEvent)
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Server base URL (default: config server_url, then http://127.0.0.1:"+defaultPort+")")

	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files")
	serveCmd.Flags().String("port", "", "Port to listen on")
	serveCmd.Flags().String("addr", "", "Address to bind")

	sendCmd.Flags().String("to", conversationstore.RecipientEveryone, "Recipient: 'everyone', an agent ID, or '' to follow the current mode")
	messagesCmd.Flags().String("bucket", "", "Bucket to read ('group' or an agent ID)")

	agentsAddCmd.Flags().String("provider", "ollama", "LLM provider: ollama, openai, xai, gemini, anthropic")
	agentsAddCmd.Flags().String("model", "", "Model name")
	agentsAddCmd.Flags().String("persona", "", "System prompt for the agent")
	agentsAddCmd.Flags().String("base-url", "", "Provider base URL override")
	agentsAddCmd.Flags().String("api-key-env", "", "Environment variable holding the provider API key")
	agentsAddCmd.Flags().Int("position", 0, "Speaking-order position (lower speaks first)")

	autoChatStartCmd.Flags().Int("interval-ms", 2000, "Delay between rounds in milliseconds")
	autoChatStartCmd.Flags().Int("rounds", 0, "Stop after this many rounds (0 = until stopped)")

	agentsCmd.AddCommand(agentsListCmd, agentsAddCmd, agentsRmCmd)
	autoChatCmd.AddCommand(autoChatStartCmd, autoChatStopCmd, autoChatStatusCmd)
	rootCmd.AddCommand(initCmd, serveCmd, sendCmd, messagesCmd, agentsCmd, modeCmd, autoChatCmd, watchCmd)
}

func clientFromFlags(cmd *cobra.Command) (*apiClient, error) {
	cfg, _, err := loadLocalConfig()
	if err != nil {
		return nil, err
	}
	server, _ := cmd.Root().PersistentFlags().GetString("server")
	return newAPIClient(cfg.serverURLOr(server)), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(libtracker.WithNewRequestID(context.Background()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
