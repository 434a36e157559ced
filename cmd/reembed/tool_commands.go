package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reembed/internal/deps"
)

func newToolCommand(ctx *commandContext) *cobra.Command {
	toolCmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage the self-updating extraction tool",
	}
	toolCmd.AddCommand(newToolStatusCommand(ctx))
	toolCmd.AddCommand(newToolUpdateCommand(ctx))
	return toolCmd
}

func newToolStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cached build and the newest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}
			manager, err := newToolManager(cfg, false, logger)
			if err != nil {
				return err
			}
			asset, err := ytdlpAsset(cfg)
			if err != nil {
				return err
			}

			installedTag, installedPath := "-", "-"
			if exe, err := manager.Installed(); err == nil {
				installedTag, installedPath = exe.Tag, exe.Path
			}
			latest := "not checked"
			if !offline {
				client, err := newReleaseFeed(cfg, asset)
				if err != nil {
					return err
				}
				if release, err := client.Latest(cmd.Context()); err != nil {
					latest = "unavailable: " + err.Error()
				} else {
					latest = release.Tag
				}
			}

			rows := [][]string{
				{"Repository", cfg.Tools.YtDlpRepo},
				{"Asset", asset},
				{"Cache dir", cfg.Paths.ToolDir},
				{"Installed", installedTag},
				{"Path", installedPath},
				{"Latest release", latest},
				{"Check interval", cfg.UpdateInterval().String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))

			status := deps.CheckInstalled("yt-dlp", installedPath, "")
			if installedPath != "-" && !status.Available {
				fmt.Fprintln(cmd.OutOrStdout(), renderStatusLine("yt-dlp", statusWarn, status.Detail, shouldColorize(cmd.OutOrStdout())))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the release feed query")
	return cmd
}

func newToolUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Install the newest release now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cliLogger(cfg)
			if err != nil {
				return err
			}
			manager, err := newToolManager(cfg, false, logger)
			if err != nil {
				return err
			}
			result, err := manager.RefreshIfNewer(cmd.Context())
			if err != nil {
				return fmt.Errorf("update extraction tool: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", titleCase(result.Status.String()), result.Current.Tag)
			fmt.Fprintf(out, "Path: %s\n", result.Current.Path)
			fmt.Fprintf(out, "Downloaded: %s\n", yesNo(result.Downloaded))
			return nil
		},
	}
}
