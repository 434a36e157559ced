package ffprobe

import (
	"strings"
	"testing"
	"time"
)

func TestParseDownloadOutput(t *testing.T) {
	out := `{
  "programs": [],
  "streams": [
    {"codec_name": "h264", "codec_type": "video"},
    {"codec_name": "aac", "codec_type": "audio"}
  ],
  "format": {"duration": "12.480000"}
}`
	result, err := Parse([]byte(out))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(result.Streams))
	}
	if result.Streams[0].CodecType != "video" || result.Streams[0].CodecName != "h264" {
		t.Fatalf("unexpected first stream: %+v", result.Streams[0])
	}
	if result.Streams[1].CodecType != "audio" || result.Streams[1].CodecName != "aac" {
		t.Fatalf("unexpected second stream: %+v", result.Streams[1])
	}
	d, ok, err := result.Duration()
	if err != nil || !ok {
		t.Fatalf("Duration: %v ok=%v", err, ok)
	}
	if d != 12480*time.Millisecond {
		t.Fatalf("unexpected duration: %v", d)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("[mov,mp4] moov atom not found")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDurationMissingOrInvalid(t *testing.T) {
	cases := []struct {
		raw     string
		ok      bool
		wantErr bool
	}{
		{"", false, false},
		{"  ", false, false},
		{"N/A", false, true},
		{"-1", false, true},
		{"nan", false, true},
		{"0", true, false},
	}
	for _, tc := range cases {
		_, ok, err := Result{Format: Format{Duration: tc.raw}}.Duration()
		if ok != tc.ok || (err != nil) != tc.wantErr {
			t.Fatalf("duration %q: ok=%v err=%v", tc.raw, ok, err)
		}
	}
}

func TestCommandArgs(t *testing.T) {
	cmd, err := command("", "/tmp/clip.mp4")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if cmd.Binary != "ffprobe" {
		t.Fatalf("expected default binary, got %q", cmd.Binary)
	}
	if last := cmd.Args[len(cmd.Args)-1]; last != "/tmp/clip.mp4" {
		t.Fatalf("path must be last, got %q", last)
	}
	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-of json", "stream=codec_type,codec_name", "format=duration"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if _, err := command("ffprobe", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
