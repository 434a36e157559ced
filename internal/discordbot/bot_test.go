package discordbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"reembed/internal/acquire"
	"reembed/internal/rules"
	"reembed/internal/testsupport"
)

const testRules = `{
  "link_regexes": [
    {"regex": "https?://(?:www\\.)?x\\.com/($URLCHAR+)", "fixup": "https://fxtwitter.com/$1", "no_video": "https://vxtwitter.com/$1"},
    {"regex": "https?://clips\\.example/$URLCHAR+"}
  ],
  "admin_guild": {"guild_id": "1", "log_channel_id": "2", "config_channel_id": "3"}
}`

type fakeChat struct {
	mu        sync.Mutex
	sent      []*discordgo.MessageSend
	uploads   []string
	replies   []string
	reactions []string
	edits     []*discordgo.MessageEdit
	sendErr   error
}

func (f *fakeChat) ChannelTyping(string, ...discordgo.RequestOption) error { return nil }

func (f *fakeChat) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data.Files) > 0 {
		body, _ := io.ReadAll(data.Files[0].Reader)
		f.uploads = append(f.uploads, string(body))
		if f.sendErr != nil {
			return nil, f.sendErr
		}
	}
	f.sent = append(f.sent, data)
	return &discordgo.Message{}, nil
}

func (f *fakeChat) ChannelMessageSendReply(_ string, content string, _ *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	return &discordgo.Message{}, nil
}

func (f *fakeChat) MessageReactionAdd(_, _, emoji string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakeChat) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{}, nil
}

type fakeAcquirer struct {
	dir       string
	body      string
	sourceURL string
	err       error
	urls      []string
	last      *acquire.Media
	// during runs inside Acquire, while the reply is being prepared.
	during func()
}

func (f *fakeAcquirer) Acquire(_ context.Context, rawURL string) (*acquire.Media, error) {
	f.urls = append(f.urls, rawURL)
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, "clip.mp4")
	if err := os.WriteFile(path, []byte(f.body), 0o644); err != nil {
		return nil, err
	}
	f.last = &acquire.Media{Path: path, SourceURL: f.sourceURL}
	return f.last, nil
}

func newTestBot(t *testing.T, acq Acquirer, sizeLimit int64) (*Bot, *rules.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRules(t, cfg, testRules)
	bot, err := New(Options{Tokens: cfg.DiscordTokens(), SizeLimit: sizeLimit, EmbedWait: 20 * time.Millisecond}, acq, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bot, store
}

func userMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "someone"},
	}
}

func TestHandleMessageUploadsAndCleansUp(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video"}
	bot, _ := newTestBot(t, acq, 1024)
	chat := &fakeChat{}

	bot.handleMessage(chat, userMessage("check https://x.com/user/status/1"))

	if len(acq.urls) != 1 || acq.urls[0] != "https://x.com/user/status/1" {
		t.Fatalf("unexpected acquisitions %v", acq.urls)
	}
	if len(chat.uploads) != 1 || chat.uploads[0] != "video" {
		t.Fatalf("expected one upload, got %v", chat.uploads)
	}
	if ref := chat.sent[0].Reference; ref == nil || ref.MessageID != "m1" {
		t.Fatalf("upload should reply to the message, got %+v", ref)
	}
	if _, err := os.Stat(acq.last.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("media should be deleted after delivery, stat err = %v", err)
	}
	if len(chat.sent[0].Embeds) != 0 || len(chat.edits) != 0 {
		t.Fatalf("no preview means no embed copy, got %+v edits %+v", chat.sent[0].Embeds, chat.edits)
	}
}

func linkPreview() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Type:        discordgo.EmbedTypeVideo,
		URL:         "https://x.com/user/status/1",
		Title:       "someone on X",
		Description: "look at this",
		Image:       &discordgo.MessageEmbedImage{URL: "https://pbs.example/img.jpg"},
		Video:       &discordgo.MessageEmbedVideo{URL: "https://video.example/v.mp4"},
		Thumbnail:   &discordgo.MessageEmbedThumbnail{URL: "https://pbs.example/thumb.jpg"},
		Provider:    &discordgo.MessageEmbedProvider{Name: "X"},
	}
}

func assertCopiedPreview(t *testing.T, chat *fakeChat) {
	t.Helper()
	if len(chat.sent) != 1 || len(chat.sent[0].Embeds) != 1 {
		t.Fatalf("expected upload with one embed, got %+v", chat.sent)
	}
	embed := chat.sent[0].Embeds[0]
	if embed.Title != "someone on X" || embed.Description != "look at this" || embed.Type != discordgo.EmbedTypeRich {
		t.Fatalf("preview text not kept: %+v", embed)
	}
	if embed.Image != nil || embed.Video != nil || embed.Thumbnail != nil || embed.Provider != nil {
		t.Fatalf("preview media should be stripped: %+v", embed)
	}
	if len(chat.edits) != 1 {
		t.Fatalf("expected original embeds suppressed, got %+v", chat.edits)
	}
	edit := chat.edits[0]
	if edit.ID != "m1" || edit.Channel != "c1" || edit.Flags&discordgo.MessageFlagsSuppressEmbeds == 0 {
		t.Fatalf("unexpected suppress edit %+v", edit)
	}
}

func TestHandleMessageCopiesExistingPreview(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video"}
	bot, _ := newTestBot(t, acq, 1024)
	chat := &fakeChat{}

	msg := userMessage("https://x.com/user/status/1")
	original := linkPreview()
	msg.Embeds = []*discordgo.MessageEmbed{original}
	bot.handleMessage(chat, msg)

	assertCopiedPreview(t, chat)
	if original.Image == nil {
		t.Fatal("the source message's embed must not be modified")
	}
}

func TestHandleMessageWaitsForPreviewUpdate(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video"}
	bot, _ := newTestBot(t, acq, 1024)
	bot.embedWait = 5 * time.Second
	acq.during = func() {
		bot.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "other", Embeds: []*discordgo.MessageEmbed{{Title: "wrong"}}}})
		bot.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "m1", Embeds: []*discordgo.MessageEmbed{linkPreview()}}})
	}
	chat := &fakeChat{}

	start := time.Now()
	bot.handleMessage(chat, userMessage("https://x.com/user/status/1"))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("preview update should end the wait early, took %s", elapsed)
	}
	assertCopiedPreview(t, chat)
}

func TestHandleMessagePreviewWaitTimesOut(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video"}
	bot, _ := newTestBot(t, acq, 1024)
	acq.during = func() {
		// An update without an embeds list does not resolve the wait.
		bot.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "m1", Content: "edited"}})
	}
	chat := &fakeChat{}

	bot.handleMessage(chat, userMessage("https://x.com/user/status/1"))

	if len(chat.sent) != 1 || len(chat.sent[0].Embeds) != 0 || len(chat.edits) != 0 {
		t.Fatalf("expected plain upload, got %+v edits %+v", chat.sent, chat.edits)
	}
	if len(bot.embeds.waiters) != 0 {
		t.Fatalf("waiter leaked: %v", bot.embeds.waiters)
	}
}

func TestHandleMessageIgnoresBotsAndAmbiguousMessages(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir()}
	bot, _ := newTestBot(t, acq, 0)
	chat := &fakeChat{}

	botMsg := userMessage("https://x.com/a/status/1")
	botMsg.Author.Bot = true
	bot.handleMessage(chat, botMsg)
	bot.handleMessage(chat, userMessage("https://x.com/a/status/1 https://clips.example/b"))
	bot.handleMessage(chat, userMessage("nothing to see"))

	if len(acq.urls) != 0 {
		t.Fatalf("expected no acquisitions, got %v", acq.urls)
	}
}

func TestHandleMessageTooLargeFallsBackToFixup(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video", sourceURL: "https://video.twimg.com/raw.mp4"}
	bot, _ := newTestBot(t, acq, 0)
	chat := &fakeChat{sendErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusRequestEntityTooLarge, Status: "413 Payload Too Large"}}}

	bot.handleMessage(chat, userMessage("https://x.com/user/status/9"))

	if len(chat.sent) != 1 || chat.sent[0].Content != "-# File was too large to upload\nhttps://fxtwitter.com/user/status/9" {
		t.Fatalf("unexpected fallback messages %+v", chat.sent)
	}
	if len(chat.reactions) != 0 {
		t.Fatalf("unexpected reactions %v", chat.reactions)
	}
}

func TestHandleMessageTooLargeWithoutLinkReacts(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: "video"}
	bot, _ := newTestBot(t, acq, 0)
	chat := &fakeChat{sendErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusRequestEntityTooLarge}}}

	bot.handleMessage(chat, userMessage("https://clips.example/abc"))

	if len(chat.sent) != 0 {
		t.Fatalf("nothing to post without a link, got %+v", chat.sent)
	}
	if len(chat.reactions) != 1 || chat.reactions[0] != reactTooLarge {
		t.Fatalf("expected too-large reaction, got %v", chat.reactions)
	}
}

func TestHandleMessagePrecheckSkipsUpload(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), body: strings.Repeat("x", 64), sourceURL: "https://cdn.example/raw.mp4"}
	bot, _ := newTestBot(t, acq, 32)
	chat := &fakeChat{}

	bot.handleMessage(chat, userMessage("https://clips.example/abc"))

	if len(chat.uploads) != 0 {
		t.Fatal("oversized media must not be uploaded")
	}
	if len(chat.sent) != 1 || !strings.HasSuffix(chat.sent[0].Content, "\nhttps://cdn.example/raw.mp4") {
		t.Fatalf("expected source URL fallback, got %+v", chat.sent)
	}
}

func TestHandleMessageFailure(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir(), err: errors.New("yt-dlp exploded")}
	bot, _ := newTestBot(t, acq, 0)

	withRewrite := &fakeChat{}
	bot.handleMessage(withRewrite, userMessage("https://x.com/user/status/5"))
	if len(withRewrite.sent) != 1 || withRewrite.sent[0].Content != "https://vxtwitter.com/user/status/5" {
		t.Fatalf("expected no_video rewrite, got %+v", withRewrite.sent)
	}

	plain := &fakeChat{}
	bot.handleMessage(plain, userMessage("https://clips.example/abc"))
	if len(plain.reactions) != 1 || plain.reactions[0] != reactFailed {
		t.Fatalf("expected failure reaction, got %v", plain.reactions)
	}
}

func TestAdminConfigEdit(t *testing.T) {
	acq := &fakeAcquirer{dir: t.TempDir()}
	bot, store := newTestBot(t, acq, 0)
	chat := &fakeChat{}

	edit := userMessage("```json\n{\"link_regexes\": [{\"regex\": \"https://new\\\\.example/.+\"}], \"admin_guild\": {\"guild_id\": \"1\", \"log_channel_id\": \"2\", \"config_channel_id\": \"3\"}}\n```")
	edit.GuildID, edit.ChannelID = "1", "3"
	bot.handleMessage(chat, edit)
	if len(chat.reactions) != 1 || chat.reactions[0] != reactOK {
		t.Fatalf("expected ok reaction, got %v (replies %v)", chat.reactions, chat.replies)
	}
	if got := len(store.Read().Rules()); got != 1 {
		t.Fatalf("expected edited rules, got %d", got)
	}

	bad := userMessage(`{"link_regexes": [{"regex": "("}]}`)
	bad.GuildID, bad.ChannelID = "1", "3"
	bot.handleMessage(chat, bad)
	if len(chat.replies) != 1 || !strings.HasPrefix(chat.replies[0], "ERROR: ") {
		t.Fatalf("expected error reply, got %v", chat.replies)
	}
	if got := len(store.Read().Rules()); got != 1 {
		t.Fatalf("rejected edit changed the rules: %d", got)
	}
	if len(acq.urls) != 0 {
		t.Fatal("config edits must not trigger acquisitions")
	}
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []*discordgo.MessageSend
}

func (r *recordingSender) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, data)
	return &discordgo.Message{}, nil
}

func TestLogHandlerEmbeds(t *testing.T) {
	sender := &recordingSender{}
	h := NewLogHandler(sender, "2", slog.LevelInfo)
	h.send = func(fn func()) { fn() }
	logger := slog.New(h).With("component", "acquire")

	logger.Debug("hidden")
	logger.Warn("extraction attempt failed", "attempt", 2)

	if len(sender.msgs) != 1 {
		t.Fatalf("expected one embed, got %d", len(sender.msgs))
	}
	embed := sender.msgs[0].Embeds[0]
	if embed.Title != "acquire" || embed.Color != colorWarn {
		t.Fatalf("unexpected embed %+v", embed)
	}
	if !strings.Contains(embed.Description, "extraction attempt failed\nattempt=2") {
		t.Fatalf("unexpected description %q", embed.Description)
	}
	if _, err := time.Parse(time.RFC3339, embed.Timestamp); err != nil {
		t.Fatalf("bad timestamp %q", embed.Timestamp)
	}
}

func TestIsTooLarge(t *testing.T) {
	if !IsTooLarge(errors.New("HTTP 413, Request entity too large")) {
		t.Fatal("expected text match")
	}
	if IsTooLarge(errors.New("HTTP 500")) || IsTooLarge(nil) {
		t.Fatal("unexpected match")
	}
}
