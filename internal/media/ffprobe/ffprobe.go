package ffprobe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reembed/internal/toolexec"
)

// Result is the parsed ffprobe JSON for the entries Args requests.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one elementary stream of the container.
type Stream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
}

// Format holds container-level entries.
type Format struct {
	Duration string `json:"duration"`
}

// Args is the inspection command line for path: codec type and name per
// stream plus the container duration, as JSON.
func Args(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
}

// Parse decodes ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Duration returns the container duration. ok is false when ffprobe
// reported none; anything else that is not a non-negative number is an error.
func (r Result) Duration() (d time.Duration, ok bool, err error) {
	raw := strings.TrimSpace(r.Format.Duration)
	if raw == "" {
		return 0, false, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, false, fmt.Errorf("invalid duration %q", r.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), true, nil
}

func command(binary, path string) (toolexec.Command, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return toolexec.Command{}, errors.New("ffprobe inspect: empty path")
	}
	return toolexec.Command{Binary: binary, Args: Args(path)}, nil
}
