package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"localassist/pkg/persistence"
	"localassist/pkg/prompts"
)

const previewLength = 48

func newPromptsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage stored role prompts",
	}
	cmd.AddCommand(
		newPromptsListCmd(opts),
		newPromptsActivateCmd(opts),
		newPromptsSeedCmd(opts),
	)
	return cmd
}

func newPromptsListCmd(opts *rootOptions) *cobra.Command {
	var listOpts persistence.ListPromptsOpts
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			normalized := listOpts.Normalize()
			items, total, err := a.store.List(cmd.Context(), normalized)
			if err != nil {
				return fmt.Errorf("prompts list: %w", err)
			}
			writePromptTable(cmd.OutOrStdout(), items)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d prompts (page %d, page size %d)\n",
				len(items), total, normalized.Page, normalized.PageSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&listOpts.Type, "type", "t", "", `Only this role type ("all" for every type)`)
	cmd.Flags().StringVar(&listOpts.Tags, "tags", "", "Only prompts whose tags contain this text")
	cmd.Flags().IntVar(&listOpts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&listOpts.PageSize, "page-size", persistence.DefaultPageSize, "Prompts per page")
	return cmd
}

func newPromptsActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a prompt the active one for its role type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("prompts activate: invalid id %q: %w", args[0], err)
			}

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			prompt, err := a.store.Activate(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("prompts activate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Prompt '%s' activated for type '%s'\n", prompt.Title, prompt.Type)
			return nil
		},
	}
}

func newPromptsSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Add prompts from a YAML seed file, or the built-in defaults",
		Long: "Insert each seed entry unless a prompt with the same title and type exists.\n" +
			"Entries marked active only become active when their type has no active prompt yet.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := prompts.DefaultSeed()
			source := "built-in defaults"
			if len(args) == 1 {
				loaded, err := prompts.LoadSeedFile(args[0])
				if err != nil {
					return err //nolint:wrapcheck // already names the file
				}
				seed, source = loaded, args[0]
			}

			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			created, err := seed.Apply(cmd.Context(), a.store)
			if err != nil {
				return fmt.Errorf("prompts seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d prompts from %s\n", created, source)
			return nil
		},
	}
}

func writePromptTable(w io.Writer, items []persistence.Prompt) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tACTIVE\tTITLE\tTAGS\tCONTENT")
	for i := range items {
		p := &items[i]
		active := ""
		if p.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Type, active, p.Title, strings.Join(p.TagList(), ","), preview(p.Content))
	}
	_ = tw.Flush()
}

// preview flattens content to one line of at most previewLength runes.
func preview(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) <= previewLength {
		return flat
	}
	return string(runes[:previewLength-1]) + "…"
}
