package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reembed/internal/logging"
	"reembed/internal/media/ffprobe"
	"reembed/internal/services"
	"reembed/internal/services/ffmpeg"
	"reembed/internal/services/tiktok"
	"reembed/internal/services/ytdlp"
	"reembed/internal/toolexec"
)

// ExecutablePath reports the extractor binary to run.
type ExecutablePath interface {
	Path() string
}

// RefreshTrigger is poked on every acquisition.
type RefreshTrigger interface {
	MaybeRefresh() bool
}

// Prober classifies a downloaded file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Classification, error)
}

// Transcoder re-encodes a file; videoBps of zero selects constant quality.
type Transcoder interface {
	Transcode(ctx context.Context, input string, videoBps int64) (string, error)
}

// SlideshowExtractor renders a photo post to outPath.
type SlideshowExtractor interface {
	Extract(ctx context.Context, postID, outPath string) (string, error)
}

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Runner     toolexec.Runner
	Tool       ExecutablePath
	Refresh    RefreshTrigger
	Resolver   *Resolver
	Prober     Prober
	Transcoder Transcoder
	Slideshow  SlideshowExtractor
}

// Options tune retries and the transcode budget.
type Options struct {
	ScratchDir    string
	MaxAttempts   int
	RetryInterval time.Duration
	TargetBytes   int64
	AudioBps      int64
	FloorBps      int64
}

// Pipeline turns a shared link into a delivery-ready file.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New validates deps and creates the scratch directory.
func New(deps Deps, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if deps.Runner == nil || deps.Tool == nil || deps.Prober == nil || deps.Transcoder == nil {
		return nil, errors.New("acquire: runner, tool, prober, and transcoder are required")
	}
	if strings.TrimSpace(opts.ScratchDir) == "" {
		return nil, errors.New("acquire: scratch directory required")
	}
	if err := os.MkdirAll(opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if deps.Resolver == nil {
		deps.Resolver = NewResolver(0, "", logger)
	}
	return &Pipeline{deps: deps, opts: opts, logger: logging.NewComponentLogger(logger, "acquire")}, nil
}

// Acquire downloads rawURL and normalizes the result. The caller owns the
// returned Media and must Close it.
func (p *Pipeline) Acquire(ctx context.Context, rawURL string) (*Media, error) {
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	ctx = services.WithSourceURL(ctx, rawURL)
	logger := logging.WithContext(ctx, p.logger)

	if p.deps.Refresh != nil {
		p.deps.Refresh.MaybeRefresh()
	}

	resolved := p.deps.Resolver.Resolve(ctx, rawURL)
	if postID, ok := tiktok.PhotoID(resolved.URL); ok && p.deps.Slideshow != nil {
		logger.Info("rendering slideshow post", logging.String("post_id", postID))
		out := p.scratchPath()
		path, err := p.deps.Slideshow.Extract(ctx, postID, out)
		if err != nil {
			os.Remove(out)
			return nil, fmt.Errorf("slideshow %s: %w", postID, err)
		}
		return &Media{Path: path}, nil
	}

	path, info, err := p.extract(ctx, logger, resolved.URL)
	if err != nil {
		return nil, err
	}
	final := p.normalize(ctx, logger, path)
	logger.Info("acquisition complete",
		logging.String("path", final),
		logging.String("extractor", info.Summary()),
		logging.Bool("transcoded", final != path),
	)
	return &Media{Path: final, SourceURL: info.SourceURL()}, nil
}

func (p *Pipeline) scratchPath() string {
	return filepath.Join(p.opts.ScratchDir, uuid.NewString()+".mp4")
}

func (p *Pipeline) extract(ctx context.Context, logger *slog.Logger, url string) (string, ytdlp.Info, error) {
	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		out := p.scratchPath()
		info, err := ytdlp.Download(ctx, p.deps.Runner, p.deps.Tool.Path(), url, out)
		if err == nil {
			return out, info, nil
		}
		removeOutputs(out)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logger.Warn("extraction attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", p.opts.MaxAttempts),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldEventType, "extract_attempt_failed"),
		)
		if attempt == p.opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.opts.RetryInterval); err != nil {
			lastErr = err
			break
		}
	}
	return "", ytdlp.Info{}, fmt.Errorf("extract %s: %w", url, lastErr)
}

// normalize returns the path to deliver. Probe and transcode failures fall
// back to the original file.
func (p *Pipeline) normalize(ctx context.Context, logger *slog.Logger, path string) string {
	class, err := p.deps.Prober.Probe(ctx, path)
	if err != nil {
		logging.WarnWithContext(logger, "probe failed; delivering original", "probe_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "check the ffprobe binary"),
			logging.String(logging.FieldImpact, "file delivered without normalization"),
		)
		return path
	}
	if !class.Corrupt && class.Compatible {
		return path
	}

	var videoBps int64
	if !class.Corrupt && class.HasDuration {
		videoBps, err = ffmpeg.PlanVideoBitrate(class.Duration, p.opts.TargetBytes, p.opts.AudioBps, p.opts.FloorBps)
		if err != nil {
			logger.Info("skipping transcode",
				logging.String("path", path),
				logging.Duration("duration", class.Duration),
				logging.Error(err),
				logging.String(logging.FieldEventType, "transcode_skipped"),
			)
			return path
		}
	}
	logger.Info("transcoding media",
		logging.String("kind", class.Kind().String()),
		logging.Int64("video_bps", videoBps),
	)
	out, err := p.deps.Transcoder.Transcode(ctx, path, videoBps)
	if err != nil {
		logging.WarnWithContext(logger, "transcode failed; delivering original", "transcode_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldErrorHint, "inspect the ffmpeg stderr in the error"),
			logging.String(logging.FieldImpact, "delivery may be rejected as too large"),
		)
		return path
	}
	return out
}

// removeOutputs deletes out and any fragments yt-dlp left next to it.
func removeOutputs(out string) {
	stem := strings.TrimSuffix(out, filepath.Ext(out))
	matches, _ := filepath.Glob(stem + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
