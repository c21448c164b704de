// init.go implements the coffeehouse init subcommand (scaffold .coffeehouse/).
package coffeecli

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed config.yaml
var initConfig string

// RunInit scaffolds .coffeehouse/ (config). If force is true, overwrites existing files.
func RunInit(force bool) {
	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("Cannot get current directory", "error", err)
		os.Exit(1)
	}
	coffeehouseDir := filepath.Join(cwd, ".coffeehouse")
	if err := os.MkdirAll(coffeehouseDir, 0750); err != nil {
		slog.Error("Failed to create .coffeehouse directory", "error", err)
		os.Exit(1)
	}
	configPath := filepath.Join(coffeehouseDir, "config.yaml")
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("  %s already exists (use --force to overwrite)\n", configPath)
			return
		}
	}
	if err := os.WriteFile(configPath, []byte(initConfig), 0644); err != nil {
		slog.Error("Failed to write file", "path", configPath, "error", err)
		os.Exit(1)
	}
	fmt.Printf("  Created %s\n", configPath)
	fmt.Println("Done. Edit .coffeehouse/config.yaml to add your agents, then run:")
	fmt.Println("  coffeehouse serve")
	fmt.Println("  coffeehouse send hi everyone")
	fmt.Println("To use OpenAI, xAI, Gemini, or Anthropic agents, set the provider and api_key_from_env per agent.")
}
