// output.go holds CLI output helpers.
package coffeecli

import (
	"encoding/json"
	"fmt"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/roundservice"
)

func printMessages(msgs []conversationstore.Message) {
	for _, m := range msgs {
		fmt.Printf("%s  %s -> %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.Sender, m.Recipient, m.Content)
	}
}

func printReplies(replies []roundservice.Reply) {
	for _, r := range replies {
		if r.Error != "" {
			fmt.Printf("%s: (error) %s\n", r.AgentName, r.Error)
			continue
		}
		if r.Message != nil {
			fmt.Printf("%s: %s\n", r.AgentName, r.Message.Content)
		}
	}
}

func printAgents(agents []agentservice.Agent) {
	if len(agents) == 0 {
		fmt.Println("no agents registered")
		return
	}
	for _, a := range agents {
		fmt.Printf("%-36s  %-16s  %s/%s\n", a.ID, a.Name, a.Provider, a.Model)
	}
}

func printAutoChatStatus(status roundservice.Status) {
	state := "stopped"
	if status.Running {
		state = "running"
	}
	if status.RoundLimit > 0 {
		fmt.Printf("autochat %s (round %d of %d, interval %s)\n", state, status.RoundsDone, status.RoundLimit, status.Interval)
		return
	}
	fmt.Printf("autochat %s (rounds done: %d, interval %s)\n", state, status.RoundsDone, status.Interval)
}

// printEvent renders one SSE frame from the server's event stream.
func printEvent(event, data string) {
	switch event {
	case conversationstore.SubjectMessageAdded:
		var ev conversationstore.MessageAddedEvent
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			fmt.Printf("[%s] %s: %s\n", ev.Bucket, ev.Message.Sender, ev.Message.Content)
			return
		}
	case roundservice.SubjectAgentError:
		var ev roundservice.AgentErrorEvent
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			fmt.Printf("[error] agent %s: %s\n", ev.AgentID, ev.Error)
			return
		}
	case roundservice.SubjectAutoChatDone:
		var ev roundservice.AutoChatDoneEvent
		if err := json.Unmarshal([]byte(data), &ev); err == nil {
			fmt.Printf("[autochat] finished after %d rounds\n", ev.RoundsDone)
			return
		}
	}
	fmt.Printf("[%s] %s\n", event, data)
}
