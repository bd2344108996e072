package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"localassist/pkg/correction"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question in the terminal",
		Long:  "Run the reasoner, verifier and correction loop once and print the final answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("ask: question cannot be empty")
			}

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.loop.Run(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if verbose {
				writeRunSummary(cmd.ErrOrStderr(), a.loop.Policy(), result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print loop states and verifier verdicts to stderr")
	return cmd
}

func writeRunSummary(w io.Writer, policy correction.Policy, result *correction.Result) {
	fmt.Fprintf(w, "policy: max corrections %d, early exit %t\n", policy.MaxCorrections, policy.EarlyExitOnSuccess)
	states := make([]string, len(result.States))
	for i, state := range result.States {
		states[i] = string(state)
	}
	fmt.Fprintf(w, "states: %s\n", strings.Join(states, " → "))
	fmt.Fprintf(w, "verifier calls: %d, corrections: %d\n", result.VerifierCalls, result.Corrections)
	for i, verdict := range result.Verdicts {
		status := "invalid"
		if verdict.Valid {
			status = fmt.Sprintf("ok=%t", verdict.OK)
		}
		fmt.Fprintf(w, "verdict %d: %s, feedback: %s\n", i+1, status, verdict.Feedback())
	}
}
