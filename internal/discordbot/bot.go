package discordbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"reembed/internal/acquire"
	"reembed/internal/delivery"
	"reembed/internal/logging"
	"reembed/internal/rules"
	"reembed/internal/services"
)

const (
	reactFailed   = "❌"
	reactOK       = "✅"
	reactTooLarge = "🫃"
)

// Acquirer downloads and normalizes a link.
type Acquirer interface {
	Acquire(ctx context.Context, rawURL string) (*acquire.Media, error)
}

// RuleStore serves link rules and accepts admin edits.
type RuleStore interface {
	Read() *rules.Compiled
	Edit(raw string) error
}

// chat is the slice of *discordgo.Session message handling uses.
type chat interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Options configure a Bot.
type Options struct {
	Tokens []string
	// SizeLimit skips uploads the platform would reject; zero disables the check.
	SizeLimit int64
	// Remote, when set, is attached to the admin log channel on first Ready.
	Remote *logging.Remote
	// EmbedWait bounds the wait for a link preview to copy onto the reply.
	// Zero means two seconds.
	EmbedWait time.Duration
}

// Bot runs one gateway session per token over a shared pipeline and store.
type Bot struct {
	opts     Options
	acquirer Acquirer
	store    RuleStore
	logger   *slog.Logger

	embeds    *embedWatch
	embedWait time.Duration

	ctx      context.Context
	sessions []*discordgo.Session
	wg       sync.WaitGroup
}

// New validates opts without connecting.
func New(opts Options, acquirer Acquirer, store RuleStore, logger *slog.Logger) (*Bot, error) {
	if len(opts.Tokens) == 0 {
		return nil, errors.New("discordbot: at least one bot token is required")
	}
	if acquirer == nil || store == nil {
		return nil, errors.New("discordbot: acquirer and rule store are required")
	}
	embedWait := opts.EmbedWait
	if embedWait <= 0 {
		embedWait = defaultEmbedWait
	}
	return &Bot{
		opts:      opts,
		acquirer:  acquirer,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "discord"),
		embeds:    newEmbedWatch(),
		embedWait: embedWait,
		ctx:       context.Background(),
	}, nil
}

// Start opens every session. Acquisitions started by events run under ctx.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx
	for i, token := range b.opts.Tokens {
		session, err := discordgo.New("Bot " + strings.TrimSpace(token))
		if err != nil {
			b.Close()
			return fmt.Errorf("discordbot: session %d: %w", i+1, err)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		session.AddHandler(b.onReady)
		session.AddHandler(b.onMessageCreate)
		session.AddHandler(b.onMessageUpdate)
		session.AddHandler(b.onInteractionCreate)
		if err := session.Open(); err != nil {
			b.Close()
			return fmt.Errorf("discordbot: open session %d: %w", i+1, err)
		}
		b.sessions = append(b.sessions, session)
	}
	return nil
}

// Close disconnects every session and waits for in-flight deliveries.
func (b *Bot) Close() error {
	var errs []error
	for _, s := range b.sessions {
		errs = append(errs, s.Close())
	}
	b.sessions = nil
	b.wg.Wait()
	return errors.Join(errs...)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord session ready",
		logging.String("user", r.User.Username),
		logging.Int("guilds", len(r.Guilds)),
		logging.String("invite", "https://discord.com/oauth2/authorize?client_id="+r.User.ID+"&permissions=274877966400&integration_type=0&scope=bot"),
	)
	if err := registerCommands(s, r.User.ID); err != nil {
		logging.WarnWithContext(b.logger, "failed to register slash commands", "command_register_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the application's command scope"),
			logging.String(logging.FieldImpact, "/download is unavailable"),
		)
	}
	b.attachRemote(s)
}

func (b *Bot) attachRemote(s *discordgo.Session) {
	if b.opts.Remote == nil || b.opts.Remote.Attached() {
		return
	}
	admin, ok := b.store.Read().Admin()
	if !ok || admin.LogChannelID == "" {
		return
	}
	handler := NewLogHandler(s, admin.LogChannelID.String(), slog.LevelInfo)
	if err := b.opts.Remote.Attach(handler); err == nil {
		b.logger.Info("connected to discord logging channel", logging.String("channel_id", admin.LogChannelID.String()))
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State != nil && s.State.User != nil && m.Author != nil && m.Author.ID == s.State.User.ID {
		return
	}
	b.wg.Add(1)
	defer b.wg.Done()
	b.handleMessage(s, m.Message)
}

func (b *Bot) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	b.embeds.publish(m.Message)
}

func (b *Bot) handleMessage(c chat, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	compiled := b.store.Read()
	if delivery.IsAdminConfigMessage(compiled, m.GuildID, m.ChannelID) {
		b.applyEdit(c, m)
		return
	}
	match, ok := delivery.FindLink(compiled, m.Content)
	if !ok {
		return
	}

	ctx := services.WithRequestID(b.ctx, uuid.NewString())
	logger := logging.WithContext(services.WithSourceURL(ctx, match.URL), b.logger)
	waitEmbed, releaseEmbed := b.awaitEmbed(ctx, m)
	defer releaseEmbed()
	_ = c.ChannelTyping(m.ChannelID)

	media, err := b.acquirer.Acquire(ctx, match.URL)
	if err != nil {
		logging.ErrorWithContext(logger, "acquisition failed", "acquire_failed",
			logging.Error(err),
			logging.ErrorKind(err),
		)
		if text, ok := delivery.NoVideoText(match); ok {
			if _, err := c.ChannelMessageSendComplex(m.ChannelID, replyText(m, text)); err == nil {
				return
			}
		}
		_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactFailed)
		return
	}
	defer media.Close()
	b.deliver(logger, c, m, match, media, waitEmbed())
}

func (b *Bot) deliver(logger *slog.Logger, c chat, m *discordgo.Message, match rules.Match, media *acquire.Media, preview *discordgo.MessageEmbed) {
	if size, err := media.Size(); err == nil && delivery.TooLarge(size, b.opts.SizeLimit) {
		logger.Info("media exceeds upload limit; posting link", logging.Int64("bytes", size))
		b.sendFallback(logger, c, m, match, media)
		return
	}
	file, err := os.Open(media.Path)
	if err != nil {
		logger.Error("open media failed", logging.Error(err))
		_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactFailed)
		return
	}
	defer file.Close()

	reply := &discordgo.MessageSend{
		Files:           []*discordgo.File{{Name: filepath.Base(media.Path), ContentType: "video/mp4", Reader: file}},
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if embed := replyEmbed(preview); embed != nil {
		reply.Embeds = []*discordgo.MessageEmbed{embed}
	}
	_, err = c.ChannelMessageSendComplex(m.ChannelID, reply)
	if err == nil {
		if preview != nil {
			b.suppressEmbeds(logger, c, m)
		}
		return
	}
	if IsTooLarge(err) {
		b.sendFallback(logger, c, m, match, media)
		return
	}
	logger.Error("upload failed", logging.Error(err), logging.String(logging.FieldEventType, "upload_failed"))
	_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactFailed)
}

func (b *Bot) sendFallback(logger *slog.Logger, c chat, m *discordgo.Message, match rules.Match, media *acquire.Media) {
	text, ok := delivery.Fallback(match, media.SourceURL)
	if !ok {
		logger.Error("media too large and no fallback link", logging.String(logging.FieldEventType, "fallback_missing"))
		_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactTooLarge)
		return
	}
	if _, err := c.ChannelMessageSendComplex(m.ChannelID, replyText(m, text)); err != nil {
		logger.Error("fallback message failed", logging.Error(err))
		_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactFailed)
	}
}

// suppressEmbeds hides the original message's preview once the reply carries
// it. Without permission to edit the message this only logs.
func (b *Bot) suppressEmbeds(logger *slog.Logger, c chat, m *discordgo.Message) {
	_, err := c.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:      m.ID,
		Channel: m.ChannelID,
		Flags:   discordgo.MessageFlagsSuppressEmbeds,
	})
	if err != nil {
		logger.Debug("suppress embeds failed", logging.Error(err))
	}
}

func (b *Bot) applyEdit(c chat, m *discordgo.Message) {
	if err := b.store.Edit(delivery.StripCodeFence(m.Content)); err != nil {
		b.logger.Info("config edit rejected", logging.Error(err))
		_, _ = c.ChannelMessageSendReply(m.ChannelID, delivery.EditErrorText(err), m.Reference())
		return
	}
	b.logger.Info("config edited", logging.String("author", m.Author.Username))
	_ = c.MessageReactionAdd(m.ChannelID, m.ID, reactOK)
}

func replyText(m *discordgo.Message, text string) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         text,
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
}

// IsTooLarge reports whether err is the platform rejecting an upload for size.
func IsTooLarge(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "Request entity too large")
}
