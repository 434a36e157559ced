package ffprobe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"reembed/internal/services"
	"reembed/internal/toolexec"
)

// CorruptionMarker is the diagnostic ffprobe prints for damaged packets.
const CorruptionMarker = "Packet corrupt"

// Kind is the outcome bucket of a probe.
type Kind int

const (
	Probed Kind = iota
	Corrupt
)

func (k Kind) String() string {
	if k == Corrupt {
		return "corrupt"
	}
	return "probed"
}

// Classification is the result of probing a downloaded file. Compatible and
// Duration are meaningful only when Corrupt is false.
type Classification struct {
	Corrupt     bool
	Compatible  bool
	Duration    time.Duration
	HasDuration bool
}

// Kind reports Corrupt or Probed.
func (c Classification) Kind() Kind {
	if c.Corrupt {
		return Corrupt
	}
	return Probed
}

// Policy is the delivery contract a file must satisfy to skip transcoding.
type Policy struct {
	// SizeLimit is exclusive: a file of exactly SizeLimit bytes is too large.
	SizeLimit   int64
	VideoCodecs []string
	AudioCodecs []string
}

// DefaultPolicy accepts h264 video with aac audio below 10 MiB.
func DefaultPolicy() Policy {
	return Policy{
		SizeLimit:   10 * 1024 * 1024,
		VideoCodecs: []string{"h264"},
		AudioCodecs: []string{"aac"},
	}
}

// Compatible reports whether a file of size bytes with the given streams
// can be delivered as-is.
func (p Policy) Compatible(size int64, streams []Stream) bool {
	if size >= p.SizeLimit {
		return false
	}
	video := false
	for _, s := range streams {
		switch s.CodecType {
		case "video":
			if !contains(p.VideoCodecs, s.CodecName) {
				return false
			}
			video = true
		case "audio":
			if !contains(p.AudioCodecs, s.CodecName) {
				return false
			}
		default:
			return false
		}
	}
	return video
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Prober classifies downloaded media.
type Prober struct {
	Runner toolexec.Runner
	Binary string
	Policy Policy
}

// NewProber builds a Prober over runner.
func NewProber(runner toolexec.Runner, binary string, policy Policy) *Prober {
	return &Prober{Runner: runner, Binary: binary, Policy: policy}
}

// Probe inspects path. Output containing the corruption marker classifies the
// file as corrupt whatever the exit status; otherwise a failed run is a
// *toolexec.ProcessError.
func (p *Prober) Probe(ctx context.Context, path string) (Classification, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Classification{}, fmt.Errorf("ffprobe: stat %s: %w", path, err)
	}
	cmd, err := command(p.Binary, path)
	if err != nil {
		return Classification{}, err
	}
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return Classification{}, err
	}
	if res.Contains(CorruptionMarker) {
		return Classification{Corrupt: true}, nil
	}
	if !res.Success() {
		return Classification{}, toolexec.NewProcessError(cmd, res)
	}

	parsed, err := Parse(res.Stdout)
	if err != nil {
		return Classification{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "unexpected output", err)
	}
	duration, ok, err := parsed.Duration()
	if err != nil {
		return Classification{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "unexpected output", err)
	}
	return Classification{
		Compatible:  p.Policy.Compatible(info.Size(), parsed.Streams),
		Duration:    duration,
		HasDuration: ok,
	}, nil
}
