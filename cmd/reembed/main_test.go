package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reembed/internal/config"
)

const sampleRules = `{
  // comments are allowed
  "link_regexes": [
    {"regex": "https?://(?:www\\.)?x\\.com/($URLCHAR+)", "fixup": "https://fxtwitter.com/$1"},
    {"regex": "https?://clips\\.example/$URLCHAR+"},
  ],
  "admin_guild": {"guild_id": 10, "log_channel_id": "11", "config_channel_id": "12"}
}`

type cliTestEnv struct {
	dir        string
	configPath string
	rulesPath  string
}

func setupCLITestEnv(t *testing.T) cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_BOT_TOKEN", "")

	dir := t.TempDir()
	env := cliTestEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.toml"),
		rulesPath:  filepath.Join(dir, "rules.json"),
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nscratch_dir = %q\ntool_dir = %q\nrules_path = %q\nlog_dir = %q\n\n[tools]\nytdlp_asset = \"yt-dlp_linux\"\n",
		filepath.Join(env.dir, "scratch"),
		filepath.Join(env.dir, "tools"),
		env.rulesPath,
		filepath.Join(env.dir, "logs"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Bot tokens: 0")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestRulesEditShowDumpAndTest(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"rules", "edit", "-"}, env.configPath, "```json\n"+sampleRules+"\n```")
	if err != nil {
		t.Fatalf("rules edit: %v", err)
	}
	requireContains(t, out, "Rules updated (2 rules)")

	out, _, err = runCLI(t, []string{"rules", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("rules show: %v", err)
	}
	requireContains(t, out, "https://fxtwitter.com/$1")
	requireContains(t, out, "Admin guild 10")

	out, _, err = runCLI(t, []string{"rules", "dump"}, env.configPath, "")
	if err != nil {
		t.Fatalf("rules dump: %v", err)
	}
	requireContains(t, out, `"guild_id": "10"`)
	if strings.Contains(out, "//") {
		t.Fatalf("dump should be canonical JSON, got %s", out)
	}

	out, _, err = runCLI(t, []string{"rules", "test", "look", "https://x.com/user/status/7"}, env.configPath, "")
	if err != nil {
		t.Fatalf("rules test: %v", err)
	}
	requireContains(t, out, "fixup:    https://fxtwitter.com/user/status/7")
	requireContains(t, out, "Would acquire https://x.com/user/status/7")

	out, _, err = runCLI(t, []string{"rules", "test", "https://x.com/a/status/1 https://clips.example/b"}, env.configPath, "")
	if err != nil {
		t.Fatalf("rules test: %v", err)
	}
	requireContains(t, out, "Ignored (2 matching links)")
}

func TestRulesEditRejectsInvalidDocument(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"rules", "edit", "-"}, env.configPath, sampleRules); err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	bad := filepath.Join(env.dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"link_regexes": [{"regex": "(unclosed"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"rules", "edit", bad}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "rules rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}

	out, _, err := runCLI(t, []string{"rules", "dump"}, env.configPath, "")
	if err != nil {
		t.Fatalf("rules dump: %v", err)
	}
	requireContains(t, out, "fxtwitter")
}

func TestRunRequiresToken(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"run"}, env.configPath, "")
	if err == nil || !strings.Contains(err.Error(), "no bot token") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestRunOverridesPrecedence(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenFile, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Discord.Token = "from-config"
	if err := (runOverrides{tokenPath: tokenFile, rulesPath: filepath.Join(dir, "r.json")}).apply(&cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Discord.Token != "from-file" {
		t.Fatalf("token file flag should beat config, got %q", cfg.Discord.Token)
	}
	if cfg.Paths.RulesPath != filepath.Join(dir, "r.json") {
		t.Fatalf("unexpected rules path %q", cfg.Paths.RulesPath)
	}

	if err := (runOverrides{token: "a;b", tokenPath: tokenFile}).apply(&cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := cfg.DiscordTokens(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("token flag should win, got %v", got)
	}

	if err := (runOverrides{tokenPath: filepath.Join(dir, "missing")}).apply(&cfg); err == nil {
		t.Fatal("expected error for unreadable token file")
	}
}

func TestFormattingHelpers(t *testing.T) {
	cases := map[int64]string{
		512:              "512 B",
		1536:             "1.5 KiB",
		10 * 1024 * 1024: "10.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
	if got := titleCase("already_current"); got != "Already Current" {
		t.Fatalf("titleCase = %q", got)
	}
	if line := renderStatusLine("Bot token", statusOK, "1 configured", false); !strings.Contains(line, "[OK] 1 configured") {
		t.Fatalf("unexpected status line %q", line)
	}
}
