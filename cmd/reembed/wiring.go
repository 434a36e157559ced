package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"reembed/internal/acquire"
	"reembed/internal/config"
	"reembed/internal/logging"
	"reembed/internal/media/ffprobe"
	"reembed/internal/services/ffmpeg"
	"reembed/internal/services/github"
	"reembed/internal/services/tiktok"
	"reembed/internal/services/ytdlp"
	"reembed/internal/toolexec"
	"reembed/internal/toolmgr"
)

const toolPrefix = "yt_dlp"

// cliLogger writes console records to stderr so command output on stdout
// stays clean.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	level := "info"
	if cfg != nil {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:   level,
		Format:  "console",
		Outputs: []string{"stderr"},
	})
}

func ytdlpAsset(cfg *config.Config) (string, error) {
	if cfg.Tools.YtDlpAsset != "" {
		return cfg.Tools.YtDlpAsset, nil
	}
	return ytdlp.CurrentAssetName()
}

func newReleaseFeed(cfg *config.Config, asset string) (github.Feed, error) {
	client, err := github.NewClient(cfg.ReleaseTimeout())
	if err != nil {
		return github.Feed{}, fmt.Errorf("release client: %w", err)
	}
	return github.Feed{Client: client, Repo: cfg.Tools.YtDlpRepo, Asset: asset}, nil
}

// newToolManager builds the yt-dlp manager. Only the daemon prunes the cache;
// CLI commands may run beside it and must not remove the build it serves.
func newToolManager(cfg *config.Config, prune bool, logger *slog.Logger) (*toolmgr.Manager, error) {
	asset, err := ytdlpAsset(cfg)
	if err != nil {
		return nil, err
	}
	feed, err := newReleaseFeed(cfg, asset)
	if err != nil {
		return nil, err
	}
	return toolmgr.NewManager(toolmgr.Options{
		Dir:        cfg.Paths.ToolDir,
		Prefix:     toolPrefix,
		Ext:        filepath.Ext(asset),
		Source:     feed,
		HTTPClient: &http.Client{Timeout: cfg.DownloadTimeout()},
		Logger:     logger,
		Prune:      prune,
	})
}

// newPipeline assembles the acquisition pipeline. refresh may be nil for
// one-shot commands.
func newPipeline(cfg *config.Config, tool acquire.ExecutablePath, refresh acquire.RefreshTrigger, logger *slog.Logger) (*acquire.Pipeline, error) {
	runner := toolexec.NewRunner()

	policy := ffprobe.DefaultPolicy()
	policy.SizeLimit = cfg.SizeLimitBytes()
	audioBps := int64(cfg.Acquire.AudioBitrateKbps) * 1000

	signer := tiktok.NodeSigner{Runner: runner, Binary: cfg.Tools.Node, UserAgent: cfg.Slideshow.UserAgent}
	client, err := tiktok.NewClient(signer, cfg.Slideshow.UserAgent, cfg.Slideshow.Locale, cfg.SlideshowTimeout())
	if err != nil {
		return nil, err
	}
	frame := time.Duration(cfg.Slideshow.FrameSeconds * float64(time.Second))

	return acquire.New(acquire.Deps{
		Runner:     runner,
		Tool:       tool,
		Refresh:    refresh,
		Resolver:   acquire.NewResolver(cfg.ResolveTimeout(), cfg.Slideshow.UserAgent, logger),
		Prober:     ffprobe.NewProber(runner, cfg.Tools.FFprobe, policy),
		Transcoder: ffmpeg.NewTranscoder(runner, cfg.Tools.FFmpeg, audioBps, cfg.Acquire.CRF, logger),
		Slideshow:  tiktok.NewExtractor(client, runner, cfg.Tools.FFmpeg, frame, logger),
	}, acquire.Options{
		ScratchDir:    cfg.Paths.ScratchDir,
		MaxAttempts:   cfg.Acquire.MaxAttempts,
		RetryInterval: cfg.RetryInterval(),
		TargetBytes:   cfg.TargetSizeBytes(),
		AudioBps:      audioBps,
		FloorBps:      int64(cfg.Acquire.MinVideoBitrateKbps) * 1000,
	}, logger)
}
