package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "llm-proxifier",
	Short: "llm-proxifier - on-demand lifecycle manager for local LLM servers",
	Long: `llm-proxifier is an OpenAI-compatible HTTP gateway in front of a set of
locally-spawnable large-language-model server processes.

It starts each configured model's process on demand, queues requests while a
model is starting, forwards chat and completion requests (including
streaming) once the backend is ready, and stops idle processes so host
memory and GPU are not held by models nobody is using.

For more information, visit: https://github.com/fluffypony/llm-proxifier`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
