package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeAcquire()
	c.normalizeSlideshow()
	if err := c.normalizeDiscord(); err != nil {
		return err
	}
	c.normalizeJanitor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ToolDir) == "" {
		c.Paths.ToolDir = defaultToolDir
	}
	if c.Paths.ToolDir, err = expandPath(c.Paths.ToolDir); err != nil {
		return fmt.Errorf("paths.tool_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RulesPath) == "" {
		c.Paths.RulesPath = defaultRulesPath
	}
	if c.Paths.RulesPath, err = expandPath(c.Paths.RulesPath); err != nil {
		return fmt.Errorf("paths.rules_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpeg
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobe
	}
	c.Tools.Node = strings.TrimSpace(c.Tools.Node)
	if c.Tools.Node == "" {
		c.Tools.Node = defaultNode
	}
	c.Tools.YtDlpRepo = strings.Trim(strings.TrimSpace(c.Tools.YtDlpRepo), "/")
	if c.Tools.YtDlpRepo == "" {
		c.Tools.YtDlpRepo = defaultYtDlpRepo
	}
	c.Tools.YtDlpAsset = strings.TrimSpace(c.Tools.YtDlpAsset)
	if c.Tools.UpdateIntervalMinutes == 0 {
		c.Tools.UpdateIntervalMinutes = defaultUpdateIntervalMinutes
	}
	if c.Tools.ReleaseTimeoutSeconds == 0 {
		c.Tools.ReleaseTimeoutSeconds = defaultReleaseTimeoutSeconds
	}
	if c.Tools.DownloadTimeoutSeconds == 0 {
		c.Tools.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
}

func (c *Config) normalizeAcquire() {
	if c.Acquire.MaxAttempts == 0 {
		c.Acquire.MaxAttempts = defaultMaxAttempts
	}
	if c.Acquire.SizeLimitMiB == 0 {
		c.Acquire.SizeLimitMiB = defaultSizeLimitMiB
	}
	if c.Acquire.TargetSizeMiB == 0 {
		c.Acquire.TargetSizeMiB = defaultTargetSizeMiB
	}
	if c.Acquire.AudioBitrateKbps == 0 {
		c.Acquire.AudioBitrateKbps = defaultAudioBitrateKbps
	}
	if c.Acquire.MinVideoBitrateKbps == 0 {
		c.Acquire.MinVideoBitrateKbps = defaultMinVideoBitrateKbps
	}
	if c.Acquire.CRF == 0 {
		c.Acquire.CRF = defaultCRF
	}
	if c.Acquire.ResolveTimeoutSeconds == 0 {
		c.Acquire.ResolveTimeoutSeconds = defaultResolveTimeoutSeconds
	}
}

func (c *Config) normalizeSlideshow() {
	if c.Slideshow.FrameSeconds == 0 {
		c.Slideshow.FrameSeconds = defaultFrameSeconds
	}
	c.Slideshow.Locale = strings.TrimSpace(c.Slideshow.Locale)
	if c.Slideshow.Locale == "" {
		c.Slideshow.Locale = defaultSlideshowLocale
	}
	c.Slideshow.UserAgent = strings.TrimSpace(c.Slideshow.UserAgent)
	if c.Slideshow.UserAgent == "" {
		c.Slideshow.UserAgent = DefaultUserAgent
	}
	if c.Slideshow.RequestTimeoutSeconds == 0 {
		c.Slideshow.RequestTimeoutSeconds = defaultSlideshowTimeout
	}
}

// normalizeDiscord resolves the bot token: DISCORD_BOT_TOKEN wins, then the
// inline value, then the token file.
func (c *Config) normalizeDiscord() error {
	if value, ok := os.LookupEnv("DISCORD_BOT_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Discord.Token = value
	}
	c.Discord.Token = strings.TrimSpace(c.Discord.Token)
	if c.Discord.Token != "" || strings.TrimSpace(c.Discord.TokenPath) == "" {
		return nil
	}
	path, err := expandPath(strings.TrimSpace(c.Discord.TokenPath))
	if err != nil {
		return fmt.Errorf("discord.token_path: %w", err)
	}
	c.Discord.TokenPath = path
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("discord.token_path: read %s: %w", path, err)
	}
	c.Discord.Token = strings.TrimSpace(string(data))
	return nil
}

func (c *Config) normalizeJanitor() {
	c.Janitor.Schedule = strings.TrimSpace(c.Janitor.Schedule)
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = defaultJanitorSchedule
	}
	if c.Janitor.MaxAgeMinutes == 0 {
		c.Janitor.MaxAgeMinutes = defaultJanitorMaxAgeMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
