package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ScratchDir string `toml:"scratch_dir"`
	ToolDir    string `toml:"tool_dir"`
	RulesPath  string `toml:"rules_path"`
	LogDir     string `toml:"log_dir"`
}

// Tools configures the external binaries and the managed extraction tool.
type Tools struct {
	FFmpeg                 string `toml:"ffmpeg"`
	FFprobe                string `toml:"ffprobe"`
	Node                   string `toml:"node"`
	YtDlpRepo              string `toml:"ytdlp_repo"`
	YtDlpAsset             string `toml:"ytdlp_asset"`
	UpdateIntervalMinutes  int    `toml:"update_interval_minutes"`
	ReleaseTimeoutSeconds  int    `toml:"release_timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Acquire controls extraction retries and the delivery size/codec contract.
type Acquire struct {
	MaxAttempts           int     `toml:"max_attempts"`
	RetryIntervalSeconds  int     `toml:"retry_interval_seconds"`
	SizeLimitMiB          float64 `toml:"size_limit_mib"`
	TargetSizeMiB         float64 `toml:"target_size_mib"`
	AudioBitrateKbps      int     `toml:"audio_bitrate_kbps"`
	MinVideoBitrateKbps   int     `toml:"min_video_bitrate_kbps"`
	CRF                   int     `toml:"crf"`
	ResolveTimeoutSeconds int     `toml:"resolve_timeout_seconds"`
}

// Slideshow configures image-post synthesis.
type Slideshow struct {
	FrameSeconds          float64 `toml:"frame_seconds"`
	Locale                string  `toml:"locale"`
	UserAgent             string  `toml:"user_agent"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
}

// Discord holds bot credentials. Token may carry several tokens separated by
// newlines or semicolons; each starts its own session.
type Discord struct {
	Token     string `toml:"token"`
	TokenPath string `toml:"token_path"`
}

// Janitor configures the periodic scratch sweep.
type Janitor struct {
	Schedule      string `toml:"schedule"`
	MaxAgeMinutes int    `toml:"max_age_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reembed.
//
// Configuration sections by subsystem:
//   - Paths: scratch, managed tool, rules and log locations
//   - Tools: external binaries and the self-updating extraction tool
//   - Acquire: retry policy plus the delivery size/codec budget
//   - Slideshow: image-post synthesis
//   - Discord: bot credentials
//   - Janitor: scratch sweep schedule
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Tools     Tools     `toml:"tools"`
	Acquire   Acquire   `toml:"acquire"`
	Slideshow Slideshow `toml:"slideshow"`
	Discord   Discord   `toml:"discord"`
	Janitor   Janitor   `toml:"janitor"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reembed.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ScratchDir, c.Paths.ToolDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.RulesPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(c.Paths.ScratchDir), "reembed.lock")
}

// DiscordTokens returns every configured bot token. The token value may hold
// several tokens separated by newlines or semicolons; blank entries are dropped.
func (c *Config) DiscordTokens() []string {
	return SplitTokens(c.Discord.Token)
}

// SplitTokens splits a token list on newlines and semicolons.
func SplitTokens(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if token := strings.TrimSpace(field); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// UpdateInterval returns how often the managed extraction tool is checked for updates.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Tools.UpdateIntervalMinutes) * time.Minute
}

// ReleaseTimeout bounds a single release feed request.
func (c *Config) ReleaseTimeout() time.Duration {
	return time.Duration(c.Tools.ReleaseTimeoutSeconds) * time.Second
}

// DownloadTimeout bounds a single managed executable download.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Tools.DownloadTimeoutSeconds) * time.Second
}

// RetryInterval is the pause between extraction attempts.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Acquire.RetryIntervalSeconds) * time.Second
}

// ResolveTimeout bounds redirect resolution.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Acquire.ResolveTimeoutSeconds) * time.Second
}

// SizeLimitBytes is the delivery platform upload limit.
func (c *Config) SizeLimitBytes() int64 {
	return mibToBytes(c.Acquire.SizeLimitMiB)
}

// TargetSizeBytes is the transcode size budget.
func (c *Config) TargetSizeBytes() int64 {
	return mibToBytes(c.Acquire.TargetSizeMiB)
}

// SlideshowTimeout bounds the item-detail API request.
func (c *Config) SlideshowTimeout() time.Duration {
	return time.Duration(c.Slideshow.RequestTimeoutSeconds) * time.Second
}

// JanitorMaxAge is the age after which scratch files are considered leaked.
func (c *Config) JanitorMaxAge() time.Duration {
	return time.Duration(c.Janitor.MaxAgeMinutes) * time.Minute
}

func mibToBytes(mib float64) int64 {
	return int64(mib * 1024 * 1024)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
