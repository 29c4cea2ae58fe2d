package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/example/railbot/internal/conversation"
	"go.uber.org/zap"
)

type textChannel struct {
	g       *Gateway
	id      string
	ownerID string

	mu     sync.Mutex
	status map[string]string
}

func (g *Gateway) channel(id, ownerID string) *textChannel {
	return &textChannel{g: g, id: id, ownerID: ownerID, status: make(map[string]string)}
}

func (c *textChannel) ID() string { return c.id }

func (c *textChannel) Send(ctx context.Context, m conversation.Message) error {
	_, err := c.g.s.ChannelMessageSendEmbed(c.id, embed(m), discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *textChannel) UpdateStatus(ctx context.Context, key string, m conversation.Message) error {
	c.mu.Lock()
	msgID, ok := c.status[key]
	c.mu.Unlock()
	if ok {
		_, err := c.g.s.ChannelMessageEditEmbed(c.id, msgID, embed(m), discordgo.WithContext(ctx))
		return mapError(err)
	}
	msg, err := c.g.s.ChannelMessageSendEmbed(c.id, embed(m), discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	c.mu.Lock()
	c.status[key] = msg.ID
	c.mu.Unlock()
	return nil
}

func (c *textChannel) warn(ctx context.Context, text string) error {
	return c.Send(ctx, conversation.Message{Text: text, Tone: conversation.ToneWarning})
}

func (c *textChannel) Select(ctx context.Context, p conversation.SelectPrompt) ([]string, error) {
	opts := flatten(p)
	w := c.g.inbox.listen(c.id, c.ownerID)
	defer c.g.inbox.stop(c.id, w)
	if _, err := c.g.s.ChannelMessageSendEmbed(c.id, selectEmbed(p, opts), discordgo.WithContext(ctx)); err != nil {
		return nil, mapError(err)
	}
	for {
		r, err := c.g.await(ctx, w)
		if err != nil {
			return nil, err
		}
		idx, err := parseChoice(r.content, len(opts), p.MaxValues)
		if err != nil {
			if err := c.warn(ctx, err.Error()+"."); err != nil {
				return nil, err
			}
			continue
		}
		vals := make([]string, len(idx))
		for i, j := range idx {
			vals[i] = opts[j].Value
		}
		return vals, nil
	}
}

func (c *textChannel) Form(ctx context.Context, p conversation.FormPrompt) (map[string]string, error) {
	if p.Title != "" {
		if err := c.Send(ctx, conversation.Message{Title: p.Title}); err != nil {
			return nil, err
		}
	}
	w := c.g.inbox.listen(c.id, c.ownerID)
	defer c.g.inbox.stop(c.id, w)
	out := make(map[string]string, len(p.Fields))
	for _, f := range p.Fields {
		if _, err := c.g.s.ChannelMessageSend(c.id, fieldPrompt(f), discordgo.WithContext(ctx)); err != nil {
			return nil, mapError(err)
		}
		for {
			r, err := c.g.await(ctx, w)
			if err != nil {
				return nil, err
			}
			if f.Secret {
				if err := c.g.s.ChannelMessageDelete(c.id, r.messageID, discordgo.WithContext(ctx)); err != nil {
					c.g.log.Warn("delete secret reply", zap.String("channel_id", c.id), zap.Error(err))
				}
			}
			v, err := fieldValue(f, r.content)
			if err != nil {
				if err := c.warn(ctx, err.Error()+"."); err != nil {
					return nil, err
				}
				continue
			}
			out[f.Key] = v
			break
		}
	}
	return out, nil
}

func (c *textChannel) Close(ctx context.Context, reason string) error {
	c.g.log.Info("closing channel", zap.String("channel_id", c.id), zap.String("reason", reason))
	return c.g.Delete(ctx, c.id)
}
