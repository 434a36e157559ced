package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateAcquire(); err != nil {
		return err
	}
	if err := c.validateSlideshow(); err != nil {
		return err
	}
	if err := c.validateJanitor(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTools() error {
	if strings.Count(c.Tools.YtDlpRepo, "/") != 1 {
		return fmt.Errorf("tools.ytdlp_repo must be owner/name, got %q", c.Tools.YtDlpRepo)
	}
	if c.Tools.UpdateIntervalMinutes < 0 {
		return errors.New("tools.update_interval_minutes must be positive")
	}
	if c.Tools.ReleaseTimeoutSeconds < 0 {
		return errors.New("tools.release_timeout_seconds must be positive")
	}
	if c.Tools.DownloadTimeoutSeconds < 0 {
		return errors.New("tools.download_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAcquire() error {
	if c.Acquire.MaxAttempts < 1 {
		return errors.New("acquire.max_attempts must be at least 1")
	}
	if c.Acquire.RetryIntervalSeconds < 0 {
		return errors.New("acquire.retry_interval_seconds must be zero or positive")
	}
	if c.Acquire.SizeLimitMiB <= 0 {
		return errors.New("acquire.size_limit_mib must be positive")
	}
	if c.Acquire.TargetSizeMiB <= 0 || c.Acquire.TargetSizeMiB > c.Acquire.SizeLimitMiB {
		return errors.New("acquire.target_size_mib must be positive and no larger than acquire.size_limit_mib")
	}
	if c.Acquire.AudioBitrateKbps < 0 {
		return errors.New("acquire.audio_bitrate_kbps must be positive")
	}
	if c.Acquire.MinVideoBitrateKbps < 0 {
		return errors.New("acquire.min_video_bitrate_kbps must be positive")
	}
	if c.Acquire.CRF < 0 || c.Acquire.CRF > 51 {
		return errors.New("acquire.crf must be between 0 and 51")
	}
	if c.Acquire.ResolveTimeoutSeconds < 0 {
		return errors.New("acquire.resolve_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSlideshow() error {
	if c.Slideshow.FrameSeconds <= 0 {
		return errors.New("slideshow.frame_seconds must be positive")
	}
	if c.Slideshow.RequestTimeoutSeconds < 0 {
		return errors.New("slideshow.request_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateJanitor() error {
	if _, err := cron.ParseStandard(c.Janitor.Schedule); err != nil {
		return fmt.Errorf("janitor.schedule is invalid: %w", err)
	}
	if c.Janitor.MaxAgeMinutes < 0 {
		return errors.New("janitor.max_age_minutes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of auto, console, json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
