// Package discord connects the bot to a Discord guild. Prompts are plain
// text: the bot lists numbered options or asks one form field at a time and
// reads the owner's next message in the channel.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/example/railbot/internal/bot"
	"github.com/example/railbot/internal/conversation"
	"go.uber.org/zap"
)

type Config struct {
	Token         string
	MainChannelID string
	// CategoryID is where booking and private channels are created.
	CategoryID string
}

// Gateway implements conversation.ChannelFactory on top of a discordgo
// session and routes incoming messages to commands, prompts and
// conversations.
type Gateway struct {
	cfg Config
	s   *discordgo.Session
	log *zap.Logger

	guildID string
	botID   string

	commands *bot.Service
	convs    *conversation.Manager

	inbox *inbox
}

func New(cfg Config, log *zap.Logger) (*Gateway, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return &Gateway{cfg: cfg, s: s, log: log.Named("discord"), inbox: newInbox()}, nil
}

// Serve connects and handles messages until ctx is done.
func (g *Gateway) Serve(ctx context.Context, commands *bot.Service, convs *conversation.Manager) error {
	g.commands, g.convs = commands, convs

	category, err := g.s.Channel(g.cfg.CategoryID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("look up category %s: %w", g.cfg.CategoryID, err)
	}
	g.guildID = category.GuildID

	remove := g.s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		g.onMessage(ctx, m)
	})
	defer remove()

	if err := g.s.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	g.botID = g.s.State.User.ID
	g.log.Info("connected", zap.String("guild_id", g.guildID), zap.String("bot_id", g.botID))

	<-ctx.Done()
	g.log.Info("disconnecting")
	return g.s.Close()
}

func (g *Gateway) onMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.ChannelID == g.cfg.MainChannelID {
		cmd, ok := bot.Parse(m.Content)
		if !ok {
			return
		}
		go g.commands.Handle(ctx, bot.Invocation{
			UserID: m.Author.ID,
			Admin:  g.isAdmin(m.Author.ID, m.ChannelID),
			Reply:  g.channel(m.ChannelID, m.Author.ID),
			Cmd:    cmd,
		})
		return
	}

	if conversation.IsCancelWord(m.Content) {
		g.convs.HandleMessage(m.ChannelID, m.Content)
		return
	}
	delivered := g.inbox.deliver(m.ChannelID, m.Author.ID, reply{messageID: m.ID, content: m.Content})
	if !g.convs.HandleMessage(m.ChannelID, m.Content) || delivered {
		return
	}
	if _, err := g.s.ChannelMessageSend(m.ChannelID, notWaiting, discordgo.WithContext(ctx)); err != nil {
		g.log.Warn("send reply", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}

func (g *Gateway) isAdmin(userID, channelID string) bool {
	perms, err := g.s.UserChannelPermissions(userID, channelID)
	if err != nil {
		g.log.Warn("read permissions", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// await returns the owner's next message from w.
func (g *Gateway) await(ctx context.Context, w *waiter) (reply, error) {
	select {
	case r := <-w.ch:
		return r, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return reply{}, conversation.ErrPromptTimeout
		}
		return reply{}, ctx.Err()
	}
}

// Open creates a text channel under the category that only ownerID and the
// bot can see.
func (g *Gateway) Open(ctx context.Context, ownerID, name string) (conversation.Channel, error) {
	ch, err := g.s.GuildChannelCreateComplex(g.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             g.cfg.CategoryID,
		PermissionOverwrites: overwrites(g.guildID, ownerID, g.botID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	g.log.Info("channel created", zap.String("channel_id", ch.ID), zap.String("owner_id", ownerID))
	return g.channel(ch.ID, ownerID), nil
}

func (g *Gateway) Delete(ctx context.Context, channelID string) error {
	if _, err := g.s.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		return mapError(err)
	}
	g.log.Info("channel deleted", zap.String("channel_id", channelID))
	return nil
}

const visible = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory

func overwrites(guildID, ownerID, botID string) []*discordgo.PermissionOverwrite {
	return []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild's id.
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: ownerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: visible},
		{ID: botID, Type: discordgo.PermissionOverwriteTypeMember, Allow: visible | discordgo.PermissionManageMessages},
	}
}

// mapError turns a 403 into conversation.ErrPermission.
func mapError(err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", conversation.ErrPermission, err)
	}
	return err
}
