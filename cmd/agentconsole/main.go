// Command agentconsole talks to a streaming agent endpoint from the terminal.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bazelment/agentconsole/config"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentconsole",
	Short: "Streaming agent console",
	Long: `agentconsole sends prompts to an agent endpoint, renders the streamed
reasoning, plan steps, tool executions and reply, and handles approval
requests interactively.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "agentconsole.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment overlay.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath, envFile)
}

// newLogger creates a structured logger with the configured verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
