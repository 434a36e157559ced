package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reembed/internal/logging"
	"reembed/internal/services"
	"reembed/internal/toolexec"
)

var (
	// ErrNoImagesFound reports a post with no usable slides.
	ErrNoImagesFound = fmt.Errorf("%w: no images found", services.ErrValidation)
	// ErrOutputNotCreated reports a clean ffmpeg exit with no output file.
	ErrOutputNotCreated = fmt.Errorf("%w: slideshow output not created", services.ErrIntegrity)
)

// FallbackWidth and FallbackHeight size the canvas when no slide reports
// its dimensions.
const (
	FallbackWidth  = 1080
	FallbackHeight = 1920
)

var photoURLPattern = regexp.MustCompile(`https?://www\.tiktok\.com/@[\w.-]+/photo/(\d+)`)

// PhotoID extracts the post id from a photo post URL.
func PhotoID(rawURL string) (string, bool) {
	m := photoURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Fetcher retrieves a post's slides and soundtrack.
type Fetcher interface {
	Fetch(ctx context.Context, postID string) (Post, error)
}

// Extractor renders photo posts to mp4.
type Extractor struct {
	Fetcher       Fetcher
	Runner        toolexec.Runner
	FFmpeg        string
	FrameDuration time.Duration
	Logger        *slog.Logger
}

// NewExtractor wires an Extractor. A zero frame duration means two seconds.
func NewExtractor(fetcher Fetcher, runner toolexec.Runner, ffmpegBinary string, frame time.Duration, logger *slog.Logger) *Extractor {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if frame <= 0 {
		frame = 2 * time.Second
	}
	return &Extractor{
		Fetcher:       fetcher,
		Runner:        runner,
		FFmpeg:        ffmpegBinary,
		FrameDuration: frame,
		Logger:        logging.NewComponentLogger(logger, "slideshow"),
	}
}

// Extract fetches postID and writes the rendered video to outPath.
func (e *Extractor) Extract(ctx context.Context, postID, outPath string) (string, error) {
	post, err := e.Fetcher.Fetch(ctx, postID)
	if err != nil {
		return "", err
	}
	return e.Render(ctx, post, outPath)
}

// Render synthesizes the slideshow for post.
func (e *Extractor) Render(ctx context.Context, post Post, outPath string) (string, error) {
	if len(post.Images) == 0 {
		return "", ErrNoImagesFound
	}
	width, height := Canvas(post.Images)
	cmd := toolexec.Command{
		Binary: e.FFmpeg,
		Args:   Args(width, height, post.AudioURL, outPath),
		Stdin:  strings.NewReader(ConcatScript(post.Images, e.FrameDuration)),
	}
	e.Logger.Debug("rendering slideshow",
		logging.Int("images", len(post.Images)),
		logging.Bool("audio", post.AudioURL != ""),
		logging.String("canvas", fmt.Sprintf("%dx%d", width, height)),
	)
	res, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", toolexec.NewProcessError(cmd, res)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutputNotCreated, outPath)
	}
	return outPath, nil
}

// Canvas is the smallest even frame that holds every slide unscaled. Slides
// are letterboxed into it, never stretched.
func Canvas(images []Image) (int, int) {
	width, height := 0, 0
	for _, img := range images {
		width = max(width, img.Width)
		height = max(height, img.Height)
	}
	if width <= 0 || height <= 0 {
		return FallbackWidth, FallbackHeight
	}
	return width + width%2, height + height%2
}

// ConcatScript is the concat demuxer input. The last slide is listed again
// with zero duration so the demuxer does not cut it short.
func ConcatScript(images []Image, frame time.Duration) string {
	if len(images) == 0 {
		return ""
	}
	seconds := strconv.FormatFloat(frame.Seconds(), 'f', -1, 64)
	var b strings.Builder
	for _, img := range images {
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", escapeQuote(img.URL), seconds)
	}
	fmt.Fprintf(&b, "file '%s'\nduration 0\n", escapeQuote(images[len(images)-1].URL))
	return b.String()
}

func escapeQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// Args is the ffmpeg command line rendering the concat script on stdin to
// out, muxing audioURL padded to the video length when present.
func Args(width, height int, audioURL, out string) []string {
	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-protocol_whitelist", "file,http,tcp,https,tls,fd",
		"-i", "-",
	}
	if audioURL != "" {
		args = append(args, "-i", audioURL)
	}
	size := fmt.Sprintf("%d:%d", width, height)
	args = append(args, "-vf",
		"scale="+size+":force_original_aspect_ratio=decrease:eval=frame,pad="+size+":-1:-1:eval=frame,setsar=1,format=yuv420p")
	if audioURL != "" {
		args = append(args,
			"-filter_complex", "[1:a]apad[a]",
			"-map", "0:v",
			"-map", "[a]",
			"-shortest",
		)
	}
	return append(args,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", out,
	)
}
