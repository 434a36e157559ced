package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reembed/internal/deps"
	"reembed/internal/rules"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external dependencies and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			statuses := deps.CheckBinaries(deps.Requirements(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, cfg.Tools.Node))
			rows := make([][]string, 0, len(statuses)+1)
			for _, s := range statuses {
				rows = append(rows, []string{s.Name, s.Command, yesNo(s.Available), yesNo(s.Optional), dashIfEmpty(s.Detail)})
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}
			if manager, err := newToolManager(cfg, false, logger); err == nil {
				var path string
				if exe, err := manager.Installed(); err == nil {
					path = exe.Path
				}
				s := deps.CheckInstalled("yt-dlp", path, "Extracts media from links")
				rows = append(rows, []string{s.Name, dashIfEmpty(s.Command), yesNo(s.Available), "no", dashIfEmpty(s.Detail)})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Available", "Optional", "Detail"}, rows, nil))

			var failed bool
			for _, s := range statuses {
				if !s.Available && !s.Optional {
					failed = true
				}
			}

			fmt.Fprintln(out)
			if len(cfg.DiscordTokens()) == 0 {
				fmt.Fprintln(out, renderStatusLine("Bot token", statusError, "not configured", colorize))
				failed = true
			} else {
				fmt.Fprintln(out, renderStatusLine("Bot token", statusOK, fmt.Sprintf("%d configured", len(cfg.DiscordTokens())), colorize))
			}
			if store, err := rules.Open(cfg.Paths.RulesPath); err != nil {
				fmt.Fprintln(out, renderStatusLine("Link rules", statusError, err.Error(), colorize))
				failed = true
			} else {
				count := len(store.Read().Rules())
				kind := statusOK
				if count == 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Link rules", kind, fmt.Sprintf("%d in %s", count, store.Path()), colorize))
				_ = store.Close()
			}

			if failed {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
}
