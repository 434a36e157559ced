package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"reembed/internal/logging"
	"reembed/internal/services"
	"reembed/internal/toolexec"
)

// ErrBitrateTooLow reports that the size budget leaves less video bitrate
// than the configured floor. Callers deliver the original file instead.
var ErrBitrateTooLow = fmt.Errorf("%w: video bitrate below floor", services.ErrIntegrity)

// PlanVideoBitrate returns the average video bitrate in bits per second that
// fits targetBytes over duration after reserving audioBps for audio.
func PlanVideoBitrate(duration time.Duration, targetBytes, audioBps, floorBps int64) (int64, error) {
	seconds := duration.Seconds()
	if seconds <= 0 {
		return 0, services.Wrap(services.ErrValidation, "ffmpeg", "plan bitrate", "duration must be positive", nil)
	}
	bps := int64(float64(targetBytes)*8/seconds) - audioBps
	if bps < floorBps {
		return bps, fmt.Errorf("%w: %d bps available, floor %d bps", ErrBitrateTooLow, bps, floorBps)
	}
	return bps, nil
}

// Transcoder re-encodes media to h264/aac mp4.
type Transcoder struct {
	Runner   toolexec.Runner
	Binary   string
	AudioBps int64
	CRF      int
	Logger   *slog.Logger
}

// NewTranscoder returns a Transcoder with a 128 kbps audio track and CRF 23
// unless overridden.
func NewTranscoder(runner toolexec.Runner, binary string, audioBps int64, crf int, logger *slog.Logger) *Transcoder {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if audioBps <= 0 {
		audioBps = 128_000
	}
	if crf <= 0 {
		crf = 23
	}
	return &Transcoder{
		Runner:   runner,
		Binary:   binary,
		AudioBps: audioBps,
		CRF:      crf,
		Logger:   logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

// OutputPath is where the re-encoded copy of input is written.
func OutputPath(input string) string {
	dir := filepath.Dir(input)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, stem+"_reencoded.mp4")
}

// Args builds the encode command line. A positive videoBps selects bitrate
// mode; zero selects constant quality.
func (t *Transcoder) Args(input, output string, videoBps int64) []string {
	args := []string{"-y", "-i", input, "-c:v", "libx264", "-preset", "veryfast"}
	if videoBps > 0 {
		rate := strconv.FormatInt(videoBps, 10)
		args = append(args,
			"-b:v", rate,
			"-maxrate", rate,
			"-bufsize", strconv.FormatInt(2*videoBps, 10),
		)
	} else {
		args = append(args, "-crf", strconv.Itoa(t.CRF))
	}
	return append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", t.AudioBps/1000),
		"-movflags", "+faststart",
		output,
	)
}

// Transcode re-encodes input and returns the new path. On success the
// original is removed; a failed removal is only logged.
func (t *Transcoder) Transcode(ctx context.Context, input string, videoBps int64) (string, error) {
	output := OutputPath(input)
	cmd := toolexec.Command{Binary: t.Binary, Args: t.Args(input, output, videoBps)}
	mode := "crf"
	if videoBps > 0 {
		mode = "bitrate"
	}
	t.Logger.Debug("transcoding media",
		logging.String("input", input),
		logging.String("mode", mode),
		logging.Int64("video_bps", videoBps),
	)

	res, err := t.Runner.Run(ctx, cmd)
	if err != nil {
		os.Remove(output)
		return "", err
	}
	if !res.Success() {
		os.Remove(output)
		return "", toolexec.NewProcessError(cmd, res)
	}
	if info, statErr := os.Stat(output); statErr != nil || !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrIntegrity, "ffmpeg", "transcode", "output not created", statErr)
	}
	if err := os.Remove(input); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(t.Logger, "failed to remove original after transcode", "transcode_cleanup_failed",
			logging.String("path", input),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the janitor removes stale scratch files"),
			logging.String(logging.FieldImpact, "scratch space held until the next sweep"),
		)
	}
	return output, nil
}
