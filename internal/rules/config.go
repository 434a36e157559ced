package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"reembed/internal/services"
)

// URLCharMacro is replaced inside rule patterns with a character class matching
// any character allowed in a URL.
const URLCharMacro = "$URLCHAR"

const urlCharClass = `[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]`

// Config is the on-disk rule document.
type Config struct {
	LinkRules []LinkRule    `json:"link_regexes"`
	Admin     *AdminChannel `json:"admin_guild"`
}

// LinkRule matches shared links. Fixup and NoVideo are optional rewrite
// templates expanded against the match ($1, ${name}).
type LinkRule struct {
	Pattern string  `json:"regex"`
	Fixup   *string `json:"fixup,omitempty"`
	NoVideo *string `json:"no_video,omitempty"`
}

// AdminChannel routes remote logs and accepts config edits.
type AdminChannel struct {
	GuildID         Snowflake `json:"guild_id"`
	LogChannelID    Snowflake `json:"log_channel_id"`
	ConfigChannelID Snowflake `json:"config_channel_id"`
}

// Snowflake is a chat platform identifier. It decodes from a JSON string or
// number and always encodes as a string.
type Snowflake string

// UnmarshalJSON accepts "123" and 123.
func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snowflake(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("snowflake must be a string or integer: %w", err)
	}
	if _, err := strconv.ParseUint(num.String(), 10, 64); err != nil {
		return fmt.Errorf("snowflake %s is not an unsigned integer", num)
	}
	*s = Snowflake(num.String())
	return nil
}

func (s Snowflake) String() string { return string(s) }

// DefaultConfig is used when the backing file is missing or empty.
func DefaultConfig() Config {
	return Config{LinkRules: []LinkRule{}}
}

// Parse decodes rule text. Comments and trailing commas are tolerated.
func Parse(raw string) (Config, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Config{}, services.Wrap(services.ErrValidation, "rules", "parse", "empty document", nil)
	}
	var cfg Config
	if err := json.Unmarshal(jsonc.ToJSON([]byte(trimmed)), &cfg); err != nil {
		return Config{}, services.Wrap(services.ErrValidation, "rules", "parse", "", err)
	}
	if cfg.LinkRules == nil {
		cfg.LinkRules = []LinkRule{}
	}
	return cfg, nil
}

// Marshal renders cfg in the pretty-printed form written to disk.
func Marshal(cfg Config) ([]byte, error) {
	if cfg.LinkRules == nil {
		cfg.LinkRules = []LinkRule{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Compiled is an immutable, pre-compiled view of a Config.
type Compiled struct {
	source Config
	rules  []CompiledRule
}

// CompiledRule pairs a rule with its matcher.
type CompiledRule struct {
	Index   int
	Pattern string
	Regexp  *regexp.Regexp
	Fixup   string
	NoVideo string
}

// Compile validates every pattern and builds the matcher view.
func Compile(cfg Config) (*Compiled, error) {
	compiled := &Compiled{source: cloneConfig(cfg), rules: make([]CompiledRule, 0, len(cfg.LinkRules))}
	for i, rule := range cfg.LinkRules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, services.Wrap(services.ErrValidation, "rules", "compile", fmt.Sprintf("rule %d has an empty regex", i), nil)
		}
		re, err := CompilePattern(rule.Pattern)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "rules", "compile", fmt.Sprintf("rule %d", i), err)
		}
		compiled.rules = append(compiled.rules, CompiledRule{
			Index:   i,
			Pattern: rule.Pattern,
			Regexp:  re,
			Fixup:   deref(rule.Fixup),
			NoVideo: deref(rule.NoVideo),
		})
	}
	return compiled, nil
}

// CompilePattern expands the URL character macro and compiles the pattern
// case-insensitively.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	expanded := strings.ReplaceAll(pattern, URLCharMacro, urlCharClass)
	return regexp.Compile("(?i)" + expanded)
}

// Rules returns the compiled rules in document order.
func (c *Compiled) Rules() []CompiledRule {
	if c == nil {
		return nil
	}
	return c.rules
}

// Admin returns the admin routing, if configured.
func (c *Compiled) Admin() (AdminChannel, bool) {
	if c == nil || c.source.Admin == nil {
		return AdminChannel{}, false
	}
	return *c.source.Admin, true
}

// Config returns a copy of the document this view was compiled from.
func (c *Compiled) Config() Config {
	if c == nil {
		return DefaultConfig()
	}
	return cloneConfig(c.source)
}

func cloneConfig(cfg Config) Config {
	out := Config{LinkRules: make([]LinkRule, len(cfg.LinkRules))}
	for i, rule := range cfg.LinkRules {
		out.LinkRules[i] = LinkRule{Pattern: rule.Pattern, Fixup: cloneString(rule.Fixup), NoVideo: cloneString(rule.NoVideo)}
	}
	if cfg.Admin != nil {
		admin := *cfg.Admin
		out.Admin = &admin
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
