package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"reembed/internal/config"
	"reembed/internal/deps"
	"reembed/internal/discordbot"
	"reembed/internal/janitor"
	"reembed/internal/logging"
	"reembed/internal/rules"
	"reembed/internal/toolmgr"
)

type runOverrides struct {
	rulesPath string
	token     string
	tokenPath string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var overrides runOverrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the chat bot daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := overrides.apply(cfg); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&overrides.rulesPath, "rules-path", "", "Link rules file (overrides paths.rules_path)")
	cmd.Flags().StringVar(&overrides.token, "discord-bot-token", "", "Bot token; separate several with ';'")
	cmd.Flags().StringVar(&overrides.tokenPath, "discord-bot-token-path", "", "File holding the bot token")
	return cmd
}

// apply layers command-line values over the loaded config. An explicit token
// beats a token file, which beats whatever the config resolved.
func (o runOverrides) apply(cfg *config.Config) error {
	if path := strings.TrimSpace(o.rulesPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("resolve rules path: %w", err)
		}
		cfg.Paths.RulesPath = expanded
	}
	if token := strings.TrimSpace(o.token); token != "" {
		cfg.Discord.Token = token
		return nil
	}
	if path := strings.TrimSpace(o.tokenPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("resolve token path: %w", err)
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			return fmt.Errorf("read token file: %w", err)
		}
		cfg.Discord.TokenPath = expanded
		cfg.Discord.Token = strings.TrimSpace(string(data))
	}
	return nil
}

func runDaemon(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tokens := cfg.DiscordTokens()
	if len(tokens) == 0 {
		return errors.New("no bot token configured; set DISCORD_BOT_TOKEN, discord.token, or discord.token_path")
	}

	base, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger, remote := logging.WithRemote(base)

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another reembed instance holds %s", cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	logMissingDependencies(logger, cfg)

	sweeper, err := janitor.New(janitor.Options{
		ScratchDir:   cfg.Paths.ScratchDir,
		MaxAge:       cfg.JanitorMaxAge(),
		LogDir:       cfg.Paths.LogDir,
		LogRetention: logRetention(cfg),
		Schedule:     cfg.Janitor.Schedule,
	}, logger)
	if err != nil {
		return err
	}
	if err := sweeper.WipeScratch(); err != nil {
		return fmt.Errorf("wipe scratch: %w", err)
	}
	if err := sweeper.Start(signalCtx); err != nil {
		return err
	}
	defer sweeper.Stop()

	store, err := rules.Open(cfg.Paths.RulesPath)
	if err != nil {
		return fmt.Errorf("open link rules: %w", err)
	}
	defer store.Close()
	logger.Info("link rules loaded",
		logging.String("path", store.Path()),
		logging.Int("rules", len(store.Read().Rules())),
	)

	manager, err := newToolManager(cfg, true, logger)
	if err != nil {
		return err
	}
	installed, err := manager.Start(signalCtx)
	if err != nil {
		return fmt.Errorf("install extraction tool: %w", err)
	}
	logger.Info("extraction tool ready",
		logging.String("tag", installed.Current.Tag),
		logging.String("path", installed.Current.Path),
		logging.String("status", installed.Status.String()),
	)

	scheduler := toolmgr.NewScheduler(signalCtx, manager, cfg.UpdateInterval(), logger,
		toolmgr.WithRefreshTimeout(cfg.ReleaseTimeout()+cfg.DownloadTimeout()),
	)
	defer scheduler.Wait()

	pipeline, err := newPipeline(cfg, manager, scheduler, logger)
	if err != nil {
		return err
	}

	bot, err := discordbot.New(discordbot.Options{
		Tokens:    tokens,
		SizeLimit: cfg.SizeLimitBytes(),
		Remote:    remote,
	}, pipeline, store, logger)
	if err != nil {
		return err
	}
	if err := bot.Start(signalCtx); err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			logger.Warn("discord shutdown", logging.Error(err))
		}
	}()

	logger.Info("reembed daemon started", logging.Int("sessions", len(tokens)))
	<-signalCtx.Done()
	logger.Info("reembed daemon shutting down")
	return nil
}

func logRetention(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
}

func logMissingDependencies(logger *slog.Logger, cfg *config.Config) {
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, cfg.Tools.Node)) {
		if status.Available {
			continue
		}
		impact := "acquisitions deliver unprocessed files"
		if status.Optional {
			impact = "photo slideshow posts cannot be rendered"
		}
		logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldImpact, impact),
			logging.String(logging.FieldErrorHint, "install it or set the path under [tools]"),
		)
	}
}
