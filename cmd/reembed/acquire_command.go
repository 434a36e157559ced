package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reembed/internal/fileutil"
	"reembed/internal/logging"
)

func newAcquireCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "acquire <url>",
		Short: "Download and normalize one link without the chat bot",
		Args:  cobra.ExactArgs(1),
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
			if _, err := manager.Start(cmd.Context()); err != nil {
				return fmt.Errorf("install extraction tool: %w", err)
			}
			pipeline, err := newPipeline(cfg, manager, nil, logger)
			if err != nil {
				return err
			}

			media, err := pipeline.Acquire(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			defer media.Close()
			size, _ := media.Size()

			target := strings.TrimSpace(output)
			if target == "" {
				target = filepath.Base(media.Path)
			}
			if err := fileutil.MoveFile(media.Path, target); err != nil {
				return fmt.Errorf("move result: %w", err)
			}
			logger.Debug("acquisition saved", logging.String("path", target))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved %s (%s)\n", target, formatBytes(size))
			if media.SourceURL != "" {
				fmt.Fprintf(out, "Source: %s\n", media.SourceURL)
			}
			if size >= cfg.SizeLimitBytes() {
				fmt.Fprintln(out, "Result exceeds the upload limit; the bot would post a link instead")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: scratch file name in the current directory)")
	return cmd
}
