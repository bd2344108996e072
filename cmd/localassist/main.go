// Package main is the localassist command: the HTTP service and its terminal tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"localassist/pkg/version"
)

func main() {
	// A missing .env is normal; the environment may already be set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "localassist",
		Short: "Local AI assistant with answer verification",
		Long: "localassist answers questions with a local Ollama model, has a second model review the answer,\n" +
			"and stores the role prompts it uses in SQLite so they can be edited and switched at runtime.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("localassist {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"JSON config file (created with defaults if missing; empty = defaults and environment only)")

	cmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newPromptsCmd(opts),
	)
	return cmd
}
