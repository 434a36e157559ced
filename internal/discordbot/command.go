package discordbot

import (
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"reembed/internal/delivery"
	"reembed/internal/logging"
	"reembed/internal/services"
)

const downloadCommand = "download"

func registerCommands(s *discordgo.Session, appID string) error {
	perms := int64(discordgo.PermissionSendMessages)
	_, err := s.ApplicationCommandCreate(appID, "", &discordgo.ApplicationCommand{
		Name:                     downloadCommand,
		Description:              "Download a video from a website using yt-dlp and embed it in the channel",
		Type:                     discordgo.ChatApplicationCommand,
		DefaultMemberPermissions: &perms,
		IntegrationTypes: &[]discordgo.ApplicationIntegrationType{
			discordgo.ApplicationIntegrationGuildInstall,
			discordgo.ApplicationIntegrationUserInstall,
		},
		Contexts: &[]discordgo.InteractionContextType{
			discordgo.InteractionContextGuild,
			discordgo.InteractionContextBotDM,
			discordgo.InteractionContextPrivateChannel,
		},
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "url",
			Description: "URL of the video",
			Required:    true,
		}},
	})
	return err
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.ApplicationCommandData().Name != downloadCommand {
		return
	}
	b.wg.Add(1)
	defer b.wg.Done()

	var rawURL string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "url" && opt.Type == discordgo.ApplicationCommandOptionString {
			rawURL = opt.StringValue()
		}
	}
	if rawURL == "" {
		_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: "URL is required", Flags: discordgo.MessageFlagsEphemeral},
		})
		return
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		b.logger.Warn("defer interaction failed", logging.Error(err))
		return
	}

	ctx := services.WithRequestID(b.ctx, uuid.NewString())
	logger := logging.WithContext(services.WithSourceURL(ctx, rawURL), b.logger)
	media, err := b.acquirer.Acquire(ctx, rawURL)
	if err != nil {
		logger.Error("slash command acquisition failed", logging.Error(err), logging.ErrorKind(err))
		_, _ = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
			Content: "Failed to download a video from this URL!",
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		return
	}
	defer media.Close()

	file, err := os.Open(media.Path)
	if err != nil {
		logger.Error("open media failed", logging.Error(err))
		return
	}
	defer file.Close()
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Files: []*discordgo.File{{Name: filepath.Base(media.Path), ContentType: "video/mp4", Reader: file}},
	})
	if err == nil {
		return
	}
	if IsTooLarge(err) {
		match, _ := delivery.FindLink(b.store.Read(), rawURL)
		if text, ok := delivery.Fallback(match, media.SourceURL); ok {
			_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: text})
		}
	}
	if err != nil {
		logger.Error("slash command upload failed", logging.Error(err))
	}
}
