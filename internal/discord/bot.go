package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/1mb-dev/listenlog/internal/logging"
)

const replyTimeout = 30 * time.Second

// Bot is a Discord gateway session answering the stats commands.
type Bot struct {
	session *discordgo.Session
	guildID string
	replies *Replies
	logger  *slog.Logger
}

// New creates a bot for token. Commands are registered in guildID, or
// globally when guildID is empty.
func New(token, guildID string, replies *Replies, logger *slog.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{session: s, guildID: guildID, replies: replies, logger: logger}
	s.AddHandler(b.onInteraction)
	return b, nil
}

// Run opens the gateway, registers commands and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	defer func() { _ = b.session.Close() }()

	appID := b.session.State.User.ID
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, Commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info("discord bot ready", "user", b.session.State.User.Username, "commands", len(Commands))

	<-ctx.Done()
	b.logger.Info("discord bot stopping")
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name

	// Acknowledge first; lookups can outlast the 3s interaction deadline
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Error("deferring interaction failed", "command", name, logging.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	edit := &discordgo.WebhookEdit{}
	embed, err := b.replies.Build(ctx, name)
	if err != nil {
		b.logger.Error("command failed", "command", name, logging.Err(err))
		msg := "Something went wrong. Please try again later."
		edit.Content = &msg
	} else {
		edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		b.logger.Error("sending reply failed", "command", name, logging.Err(err))
	}
}
