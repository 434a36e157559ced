package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"reembed/internal/services"
	"reembed/internal/toolexec"
)

func TestAssetName(t *testing.T) {
	cases := map[[2]string]string{
		{"linux", "amd64"}:   "yt-dlp_linux",
		{"linux", "arm64"}:   "yt-dlp_linux_aarch64",
		{"darwin", "arm64"}:  "yt-dlp_macos",
		{"windows", "amd64"}: "yt-dlp.exe",
	}
	for platform, want := range cases {
		got, err := AssetName(platform[0], platform[1])
		if err != nil || got != want {
			t.Fatalf("AssetName(%v) = %q, %v; want %q", platform, got, err, want)
		}
	}
	if _, err := AssetName("plan9", "amd64"); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}

func TestArgsEndWithOutputAndURL(t *testing.T) {
	args := Args("https://example.com/v", "/tmp/x.mp4")
	n := len(args)
	if args[n-1] != "https://example.com/v" || args[n-2] != "/tmp/x.mp4" || args[n-3] != "-o" {
		t.Fatalf("unexpected tail: %v", args[n-3:])
	}
	for _, flag := range []string{"--no-playlist", "--dump-json", "--no-simulate", "--ignore-config", "--no-mtime"} {
		if !slices.Contains(args, flag) {
			t.Fatalf("missing %s in %v", flag, args)
		}
	}
}

func TestParseInfoSourceURL(t *testing.T) {
	stdout := []byte("[debug] noise\n{\"id\":\"1\",\"extractor_key\":\"Twitter\",\"requested_formats\":[{\"url\":\"https://a/audio\",\"vcodec\":\"none\"},{\"url\":\"https://a/video\",\"vcodec\":\"avc1\"}]}\n")
	info, err := ParseInfo(stdout)
	if err != nil {
		t.Fatalf("ParseInfo: %v", err)
	}
	if info.SourceURL() != "https://a/video" {
		t.Fatalf("unexpected source url %q", info.SourceURL())
	}
	if info.Summary() != "Twitter:1" {
		t.Fatalf("unexpected summary %q", info.Summary())
	}

	single, err := ParseInfo([]byte(`{"url":"https://a/single.mp4"}`))
	if err != nil || single.SourceURL() != "https://a/single.mp4" {
		t.Fatalf("unexpected single-file info %+v, %v", single, err)
	}
	if _, err := ParseInfo([]byte("nothing here")); err == nil {
		t.Fatal("expected error without JSON")
	}
}

func TestDownloadFailures(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.mp4")
	failing := toolexec.RunnerFunc(func(context.Context, toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{ExitCode: 1, Stderr: []byte("ERROR: Unsupported URL")}, nil
	})
	_, err := Download(context.Background(), failing, "yt-dlp", "https://x", out)
	var procErr *toolexec.ProcessError
	if !errors.As(err, &procErr) || procErr.ExitCode != 1 {
		t.Fatalf("expected process error, got %v", err)
	}

	noOutput := toolexec.RunnerFunc(func(context.Context, toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{Stdout: []byte(`{"id":"1"}`)}, nil
	})
	if _, err := Download(context.Background(), noOutput, "yt-dlp", "https://x", out); !errors.Is(err, services.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestDownloadSuccess(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.mp4")
	runner := toolexec.RunnerFunc(func(_ context.Context, cmd toolexec.Command) (toolexec.Result, error) {
		target := cmd.Args[len(cmd.Args)-2]
		if err := os.WriteFile(target, []byte("video"), 0o644); err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{Stdout: []byte(`{"id":"9","url":"https://cdn/x.mp4"}`)}, nil
	})
	info, err := Download(context.Background(), runner, "yt-dlp", "https://x", out)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if info.SourceURL() != "https://cdn/x.mp4" {
		t.Fatalf("unexpected source url %q", info.SourceURL())
	}
}
