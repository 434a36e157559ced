package discordbot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// defaultEmbedWait bounds how long a reply waits for the platform to unfurl
// the shared link.
const defaultEmbedWait = 2 * time.Second

// embedWatch hands MessageUpdate embeds to the reply waiting on that message.
type embedWatch struct {
	mu      sync.Mutex
	waiters map[string]chan *discordgo.MessageEmbed
}

func newEmbedWatch() *embedWatch {
	return &embedWatch{waiters: make(map[string]chan *discordgo.MessageEmbed)}
}

func (w *embedWatch) watch(messageID string) (<-chan *discordgo.MessageEmbed, func()) {
	ch := make(chan *discordgo.MessageEmbed, 1)
	w.mu.Lock()
	w.waiters[messageID] = ch
	w.mu.Unlock()
	return ch, func() {
		w.mu.Lock()
		if w.waiters[messageID] == ch {
			delete(w.waiters, messageID)
		}
		w.mu.Unlock()
	}
}

// publish resolves the wait for m. Updates that do not carry an embeds list
// are ignored; a list with anything but exactly one embed resolves to none.
func (w *embedWatch) publish(m *discordgo.Message) {
	if m == nil || m.Embeds == nil {
		return
	}
	w.mu.Lock()
	ch, ok := w.waiters[m.ID]
	if ok {
		delete(w.waiters, m.ID)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	var embed *discordgo.MessageEmbed
	if len(m.Embeds) == 1 {
		embed = m.Embeds[0]
	}
	ch <- embed
}

// awaitEmbed starts watching for m's link preview. wait returns it once the
// platform attaches one or the wait window, counted from now, runs out.
// release must be called when the reply no longer needs it.
func (b *Bot) awaitEmbed(ctx context.Context, m *discordgo.Message) (wait func() *discordgo.MessageEmbed, release func()) {
	switch len(m.Embeds) {
	case 0:
	case 1:
		embed := m.Embeds[0]
		return func() *discordgo.MessageEmbed { return embed }, func() {}
	default:
		return func() *discordgo.MessageEmbed { return nil }, func() {}
	}

	ch, release := b.embeds.watch(m.ID)
	deadline := time.Now().Add(b.embedWait)
	var once sync.Once
	var got *discordgo.MessageEmbed
	wait = func() *discordgo.MessageEmbed {
		once.Do(func() {
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			select {
			case got = <-ch:
			case <-timer.C:
			case <-ctx.Done():
			}
		})
		return got
	}
	return wait, release
}

// replyEmbed is the link preview reposted under the upload, stripped of the
// media parts the uploaded file replaces.
func replyEmbed(src *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	if src == nil {
		return nil
	}
	embed := *src
	embed.Type = discordgo.EmbedTypeRich
	embed.Image = nil
	embed.Video = nil
	embed.Thumbnail = nil
	embed.Provider = nil
	return &embed
}
