// Package ytdlp builds yt-dlp invocations and reads its JSON info dump.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"reembed/internal/services"
	"reembed/internal/toolexec"
)

// Repo is the upstream release repository of the extraction tool.
const Repo = "yt-dlp/yt-dlp"

// FormatSelector prefers small pre-split streams, then any single file, then
// whatever the site offers.
const FormatSelector = "bestvideo[filesize<30MB]+bestaudio[filesize<10mb]/best/bestvideo+bestaudio"

// AssetName returns the release asset built for goos/goarch.
func AssetName(goos, goarch string) (string, error) {
	switch goos {
	case "linux":
		switch goarch {
		case "amd64":
			return "yt-dlp_linux", nil
		case "arm64":
			return "yt-dlp_linux_aarch64", nil
		case "arm":
			return "yt-dlp_linux_armv7l", nil
		}
	case "darwin":
		return "yt-dlp_macos", nil
	case "windows":
		switch goarch {
		case "amd64":
			return "yt-dlp.exe", nil
		case "386":
			return "yt-dlp_x86.exe", nil
		case "arm64":
			return "yt-dlp_arm64.exe", nil
		}
	}
	return "", fmt.Errorf("no yt-dlp build published for %s/%s", goos, goarch)
}

// CurrentAssetName is AssetName for the running platform.
func CurrentAssetName() (string, error) {
	return AssetName(runtime.GOOS, runtime.GOARCH)
}

// Args returns the argument list that downloads url into output and prints the
// info dump on stdout.
func Args(url, output string) []string {
	return []string{
		"-f", FormatSelector,
		"-S", "vcodec:h264",
		"--merge-output-format", "mp4",
		"--ignore-config",
		"--no-playlist",
		"--no-warnings",
		"--no-mtime",
		"--dump-json",
		"--no-simulate",
		"-o", output,
		url,
	}
}

// Info is the part of the info dump the pipeline needs.
type Info struct {
	ID               string            `json:"id"`
	WebpageURL       string            `json:"webpage_url"`
	URL              string            `json:"url"`
	Extractor        string            `json:"extractor_key"`
	Duration         float64           `json:"duration"`
	RequestedFormats []RequestedFormat `json:"requested_formats"`
}

// RequestedFormat is one stream of a merged download.
type RequestedFormat struct {
	URL    string `json:"url"`
	VCodec string `json:"vcodec"`
	ACodec string `json:"acodec"`
}

// SourceURL is the direct media link: the top-level url for single-file
// formats, otherwise the first requested format carrying video.
func (i Info) SourceURL() string {
	if i.URL != "" {
		return i.URL
	}
	for _, f := range i.RequestedFormats {
		if f.URL != "" && f.VCodec != "" && f.VCodec != "none" {
			return f.URL
		}
	}
	return ""
}

// ParseInfo reads the last JSON object line from stdout.
func ParseInfo(stdout []byte) (Info, error) {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info Info
		if err := json.Unmarshal(line, &info); err != nil {
			return Info{}, services.Wrap(services.ErrExternalTool, "ytdlp", "parse info", "", err)
		}
		return info, nil
	}
	return Info{}, services.Wrap(services.ErrExternalTool, "ytdlp", "parse info", "no JSON info in output", nil)
}

// Download runs binary against url, writing to output. It fails when the tool
// exits non-zero or leaves no file behind. A missing info dump is not fatal.
func Download(ctx context.Context, runner toolexec.Runner, binary, url, output string) (Info, error) {
	cmd := toolexec.Command{Binary: binary, Args: Args(url, output)}
	result, err := runner.Run(ctx, cmd)
	if err != nil {
		return Info{}, err
	}
	if !result.Success() {
		return Info{}, toolexec.NewProcessError(cmd, result)
	}
	info, parseErr := ParseInfo(result.Stdout)
	if _, err := os.Stat(output); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, services.Wrap(services.ErrIntegrity, "ytdlp", "download", "output missing: "+output, nil)
		}
		return Info{}, fmt.Errorf("stat output: %w", err)
	}
	if parseErr != nil {
		return Info{}, nil
	}
	return info, nil
}

// Summary is a short description of info for logs.
func (i Info) Summary() string {
	parts := []string{}
	if i.Extractor != "" {
		parts = append(parts, i.Extractor)
	}
	if i.ID != "" {
		parts = append(parts, i.ID)
	}
	return strings.Join(parts, ":")
}
