package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reembed/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DISCORD_BOT_TOKEN", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantScratch := filepath.Join(tempHome, ".local", "share", "reembed", "scratch")
	if cfg.Paths.ScratchDir != wantScratch {
		t.Fatalf("unexpected scratch dir: got %q want %q", cfg.Paths.ScratchDir, wantScratch)
	}
	if !filepath.IsAbs(cfg.Paths.RulesPath) {
		t.Fatalf("expected absolute rules path, got %q", cfg.Paths.RulesPath)
	}
	if cfg.Tools.YtDlpRepo != "yt-dlp/yt-dlp" {
		t.Fatalf("unexpected repo: %q", cfg.Tools.YtDlpRepo)
	}
	if cfg.SizeLimitBytes() != 10*1024*1024 {
		t.Fatalf("unexpected size limit: %d", cfg.SizeLimitBytes())
	}
	if cfg.UpdateInterval().Hours() != 1 {
		t.Fatalf("unexpected update interval: %s", cfg.UpdateInterval())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DISCORD_BOT_TOKEN", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
scratch_dir = "~/scratch"

[acquire]
max_attempts = 5
size_limit_mib = 25
target_size_mib = 24

[discord]
token = "a;b"

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %s, got %s exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.ScratchDir != filepath.Join(tempHome, "scratch") {
		t.Fatalf("unexpected scratch dir: %q", cfg.Paths.ScratchDir)
	}
	if cfg.Acquire.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts: %d", cfg.Acquire.MaxAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
	tokens := cfg.DiscordTokens()
	if len(tokens) != 2 || tokens[0] != "a" || tokens[1] != "b" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}

func TestDiscordTokenPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[discord]\ntoken_path = \""+tokenFile+"\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DISCORD_BOT_TOKEN", "")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-file" {
		t.Fatalf("expected token from file, got %q", cfg.Discord.Token)
	}

	t.Setenv("DISCORD_BOT_TOKEN", "from-env")
	cfg, _, _, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Fatalf("expected env token, got %q", cfg.Discord.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"acquire.max_attempts":    func(c *config.Config) { c.Acquire.MaxAttempts = 0 },
		"acquire.target_size_mib": func(c *config.Config) { c.Acquire.TargetSizeMiB = 50 },
		"acquire.crf":             func(c *config.Config) { c.Acquire.CRF = 70 },
		"tools.ytdlp_repo":        func(c *config.Config) { c.Tools.YtDlpRepo = "yt-dlp" },
		"janitor.schedule":        func(c *config.Config) { c.Janitor.Schedule = "whenever" },
		"logging.format":          func(c *config.Config) { c.Logging.Format = "xml" },
		"slideshow.frame_seconds": func(c *config.Config) { c.Slideshow.FrameSeconds = -1 },
	}
	for key, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", key)
		}
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("%s: error %q does not name the key", key, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestSplitTokens(t *testing.T) {
	got := config.SplitTokens(" one \n\ntwo;three;\r\n")
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
