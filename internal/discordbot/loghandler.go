package discordbot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"reembed/internal/logging"
)

const (
	colorInfo  = 0x1F8B4C
	colorWarn  = 0xC27C0E
	colorError = 0x992D22
	// embed descriptions are capped at 4096 characters.
	maxDescription = 4000
)

type messageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// LogHandler posts log records as embeds to a channel. Sends are
// asynchronous so logging never waits on the gateway.
type LogHandler struct {
	sender    messageSender
	channelID string
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	send      func(func())
}

// NewLogHandler returns a handler posting records at or above level.
func NewLogHandler(sender messageSender, channelID string, level slog.Leveler) *LogHandler {
	return &LogHandler{
		sender:    sender,
		channelID: channelID,
		level:     level,
		send:      func(fn func()) { go fn() },
	}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LogHandler) Handle(_ context.Context, record slog.Record) error {
	embed := h.Embed(record)
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	h.send(func() {
		if _, err := h.sender.ChannelMessageSendComplex(h.channelID, msg); err != nil {
			fmt.Fprintf(os.Stderr, "discord log sink: %v\n", err)
		}
	})
	return nil
}

// Embed renders record: the component as title, message and attributes in
// a code block, colored by level.
func (h *LogHandler) Embed(record slog.Record) *discordgo.MessageEmbed {
	var title string
	var lines []string
	add := func(prefix string, a slog.Attr) {
		if a.Key == logging.FieldComponent {
			title = a.Value.String()
			return
		}
		lines = append(lines, prefix+a.Key+"="+a.Value.String())
	}
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		add("", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		add(prefix, a)
		return true
	})

	body := record.Message
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}
	if len(body) > maxDescription {
		body = body[:maxDescription] + "…"
	}
	stamp := record.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: "```\n" + body + "\n```",
		Color:       levelColor(record.Level),
		Timestamp:   stamp.UTC().Format(time.RFC3339),
	}
}

func levelColor(level slog.Level) int {
	switch {
	case level >= slog.LevelError:
		return colorError
	case level >= slog.LevelWarn:
		return colorWarn
	default:
		return colorInfo
	}
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
