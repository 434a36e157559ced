package delivery

import (
	"strings"

	"reembed/internal/rules"
)

// TooLargePrefix heads the plain-link reply sent when an upload is rejected
// for size.
const TooLargePrefix = "-# File was too large to upload\n"

// ignoredPrefixes mark messages addressed to other bots.
var ignoredPrefixes = []string{".dl "}

// FindLink returns the one rule hit in content. Messages with no hit or with
// several are left alone, as are commands for other bots.
func FindLink(compiled *rules.Compiled, content string) (rules.Match, bool) {
	if compiled == nil {
		return rules.Match{}, false
	}
	trimmed := strings.TrimSpace(content)
	for _, prefix := range ignoredPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return rules.Match{}, false
		}
	}
	matches := compiled.FindAll(content)
	if len(matches) != 1 {
		return rules.Match{}, false
	}
	return matches[0], true
}

// FallbackURL is the link to post instead of an oversized upload: the rule's
// fixup rewrite, else the extractor's direct source URL.
func FallbackURL(match rules.Match, sourceURL string) string {
	if fixed := match.FixupURL(); fixed != "" {
		return fixed
	}
	return strings.TrimSpace(sourceURL)
}

// Fallback is the full too-large reply, or false when there is no link to
// offer.
func Fallback(match rules.Match, sourceURL string) (string, bool) {
	link := FallbackURL(match, sourceURL)
	if link == "" {
		return "", false
	}
	return TooLargePrefix + link, true
}

// NoVideoText is the rule's rewrite for links that yielded no media.
func NoVideoText(match rules.Match) (string, bool) {
	text := match.NoVideoURL()
	return text, text != ""
}

// TooLarge reports whether a file of size bytes would exceed limit.
func TooLarge(size, limit int64) bool {
	return limit > 0 && size >= limit
}

// StripCodeFence unwraps a config document pasted as a ```json block.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	for _, open := range []string{"```json\n", "```\n"} {
		if rest, ok := strings.CutPrefix(text, open); ok {
			if inner, ok := strings.CutSuffix(rest, "\n```"); ok {
				return inner
			}
		}
	}
	return text
}

// IsAdminConfigMessage reports whether a message in guildID/channelID is a
// config edit.
func IsAdminConfigMessage(compiled *rules.Compiled, guildID, channelID string) bool {
	if compiled == nil {
		return false
	}
	admin, ok := compiled.Admin()
	if !ok || guildID == "" {
		return false
	}
	return guildID == admin.GuildID.String() && channelID == admin.ConfigChannelID.String()
}

// EditErrorText is the reply to a rejected config edit.
func EditErrorText(err error) string {
	return "ERROR: " + err.Error()
}
