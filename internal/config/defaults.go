package config

const (
	defaultConfigPath             = "~/.config/reembed/config.toml"
	defaultScratchDir             = "~/.local/share/reembed/scratch"
	defaultToolDir                = "~/.local/share/reembed/tools"
	defaultRulesPath              = "config.json"
	defaultLogDir                 = "~/.local/share/reembed/logs"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultFFmpeg                 = "ffmpeg"
	defaultFFprobe                = "ffprobe"
	defaultNode                   = "node"
	defaultYtDlpRepo              = "yt-dlp/yt-dlp"
	defaultUpdateIntervalMinutes  = 60
	defaultReleaseTimeoutSeconds  = 7
	defaultDownloadTimeoutSeconds = 300
	defaultMaxAttempts            = 3
	defaultRetryIntervalSeconds   = 2
	defaultSizeLimitMiB           = 10
	defaultTargetSizeMiB          = 9.5
	defaultAudioBitrateKbps       = 128
	defaultMinVideoBitrateKbps    = 100
	defaultCRF                    = 23
	defaultResolveTimeoutSeconds  = 10
	defaultFrameSeconds           = 2
	defaultSlideshowLocale        = "en-GB"
	defaultSlideshowTimeout       = 15
	defaultJanitorSchedule        = "@every 15m"
	defaultJanitorMaxAgeMinutes   = 60

	// DefaultUserAgent is the browser signature presented to the slideshow API
	// and passed to the request signer.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir: defaultScratchDir,
			ToolDir:    defaultToolDir,
			RulesPath:  defaultRulesPath,
			LogDir:     defaultLogDir,
		},
		Tools: Tools{
			FFmpeg:                 defaultFFmpeg,
			FFprobe:                defaultFFprobe,
			Node:                   defaultNode,
			YtDlpRepo:              defaultYtDlpRepo,
			UpdateIntervalMinutes:  defaultUpdateIntervalMinutes,
			ReleaseTimeoutSeconds:  defaultReleaseTimeoutSeconds,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Acquire: Acquire{
			MaxAttempts:           defaultMaxAttempts,
			RetryIntervalSeconds:  defaultRetryIntervalSeconds,
			SizeLimitMiB:          defaultSizeLimitMiB,
			TargetSizeMiB:         defaultTargetSizeMiB,
			AudioBitrateKbps:      defaultAudioBitrateKbps,
			MinVideoBitrateKbps:   defaultMinVideoBitrateKbps,
			CRF:                   defaultCRF,
			ResolveTimeoutSeconds: defaultResolveTimeoutSeconds,
		},
		Slideshow: Slideshow{
			FrameSeconds:          defaultFrameSeconds,
			Locale:                defaultSlideshowLocale,
			UserAgent:             DefaultUserAgent,
			RequestTimeoutSeconds: defaultSlideshowTimeout,
		},
		Janitor: Janitor{
			Schedule:      defaultJanitorSchedule,
			MaxAgeMinutes: defaultJanitorMaxAgeMinutes,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
