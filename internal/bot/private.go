package bot

import (
	"context"
	"fmt"

	"github.com/example/railbot/internal/conversation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// private runs fn in a short-lived channel only the invoking user can see,
// then deletes the channel.
func (s *Service) private(ctx context.Context, inv Invocation, name string, fn func(ctx context.Context, ch conversation.Channel) error) error {
	ch, err := s.d.Channels.Open(ctx, inv.UserID, name+"-"+uuid.NewString()[:8])
	if err != nil {
		return fmt.Errorf("open private channel: %w", err)
	}
	log := s.log.With(zap.String("channel_id", ch.ID()), zap.String("user_id", inv.UserID))
	defer func() {
		if err := ch.Close(context.WithoutCancel(ctx), name+" finished"); err != nil {
			log.Warn("delete private channel", zap.Error(err))
		}
	}()
	if err := inv.Reply.Send(ctx, conversation.Text(fmt.Sprintf("<@%s> please continue in %s", inv.UserID, Mention(ch.ID())))); err != nil {
		log.Warn("reply", zap.Error(err))
	}
	return fn(ctx, ch)
}

func (s *Service) form(ctx context.Context, ch conversation.Channel, p conversation.FormPrompt) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d.PromptTimeout)
	defer cancel()
	return ch.Form(ctx, p)
}

func (s *Service) selectOne(ctx context.Context, ch conversation.Channel, p conversation.SelectPrompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d.PromptTimeout)
	defer cancel()
	vals, err := ch.Select(ctx, p)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", userError("Nothing was chosen.")
	}
	return vals[0], nil
}
