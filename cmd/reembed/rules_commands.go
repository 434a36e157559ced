package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reembed/internal/delivery"
	"reembed/internal/rules"
)

func newRulesCommand(ctx *commandContext) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit link rules",
	}

	rulesCmd.AddCommand(newRulesShowCommand(ctx))
	rulesCmd.AddCommand(newRulesDumpCommand(ctx))
	rulesCmd.AddCommand(newRulesEditCommand(ctx))
	rulesCmd.AddCommand(newRulesTestCommand(ctx))

	return rulesCmd
}

func (c *commandContext) withRules(fn func(*rules.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := rules.Open(cfg.Paths.RulesPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newRulesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List link rules as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRules(func(store *rules.Store) error {
				compiled := store.Read()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rules file: %s\n", store.Path())

				rows := make([][]string, 0, len(compiled.Rules()))
				for _, rule := range compiled.Rules() {
					rows = append(rows, []string{
						strconv.Itoa(rule.Index + 1),
						rule.Pattern,
						dashIfEmpty(rule.Fixup),
						dashIfEmpty(rule.NoVideo),
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No link rules configured")
				} else {
					fmt.Fprintln(out, renderTable(
						[]string{"#", "Pattern", "Fixup", "No video"},
						rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
					))
				}

				if admin, ok := compiled.Admin(); ok {
					fmt.Fprintf(out, "Admin guild %s: logs to %s, edits from %s\n",
						admin.GuildID, dashIfEmpty(admin.LogChannelID.String()), dashIfEmpty(admin.ConfigChannelID.String()))
				} else {
					fmt.Fprintln(out, "No admin guild configured")
				}
				return nil
			})
		},
	}
}

func newRulesDumpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the rules document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRules(func(store *rules.Store) error {
				text, err := store.Dump()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func newRulesEditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <file|->",
		Short: "Replace the rules document",
		Long: "Replace the rules document with the contents of a file, or stdin when the argument is '-'.\n" +
			"The document is validated before anything is written. A running daemon picks the change up\n" +
			"at its next start; post in the admin config channel to edit live.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return ctx.withRules(func(store *rules.Store) error {
				if err := store.Edit(delivery.StripCodeFence(raw)); err != nil {
					return fmt.Errorf("rules rejected: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rules updated (%d rules)\n", len(store.Read().Rules()))
				return nil
			})
		},
	}
}

func newRulesTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test <message>",
		Short: "Show how a chat message would be handled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return ctx.withRules(func(store *rules.Store) error {
				compiled := store.Read()
				out := cmd.OutOrStdout()

				matches := compiled.FindAll(message)
				for _, m := range matches {
					fmt.Fprintf(out, "rule %d matched %s\n", m.Rule.Index+1, m.URL)
					if fixed := m.FixupURL(); fixed != "" {
						fmt.Fprintf(out, "  fixup:    %s\n", fixed)
					}
					if noVideo := m.NoVideoURL(); noVideo != "" {
						fmt.Fprintf(out, "  no_video: %s\n", noVideo)
					}
				}

				if match, ok := delivery.FindLink(compiled, message); ok {
					fmt.Fprintf(out, "Would acquire %s\n", match.URL)
				} else {
					fmt.Fprintf(out, "Ignored (%d matching links)\n", len(matches))
				}
				return nil
			})
		},
	}
}

func readInput(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", arg, err)
	}
	return string(data), nil
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
