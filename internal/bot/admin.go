package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/railbot/internal/conversation"
	"go.uber.org/zap"
)

const releasedByAdmin = "released by an administrator"

func (s *Service) admin(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	if !inv.Admin {
		return nil, userError("Only server administrators can use `!admin`.")
	}
	switch inv.Cmd.Arg(0) {
	case "slots":
		return s.slotStatus(), nil
	case "release":
		ch, ok := ChannelRef(argAt(inv.Cmd, 1))
		if !ok {
			return nil, userError("Usage: `!admin release #channel`.")
		}
		return s.ReleaseChannel(ctx, ch)
	case "release-all":
		slotsFreed, convs := s.ReleaseAll()
		return text(fmt.Sprintf("Released %d slot(s) and stopped %d conversation(s).", slotsFreed, convs)), nil
	case "delete":
		ch, ok := ChannelRef(argAt(inv.Cmd, 1))
		if !ok {
			return nil, userError("Usage: `!admin delete #channel`.")
		}
		if _, err := s.ReleaseChannel(ctx, ch); err != nil {
			return nil, err
		}
		if err := s.d.Channels.Delete(ctx, ch); err != nil {
			if errors.Is(err, conversation.ErrPermission) {
				return nil, userError("The booking was released, but I don't have permission to delete %s.", Mention(ch))
			}
			return nil, fmt.Errorf("delete channel: %w", err)
		}
		return text("Released and deleted the booking channel."), nil
	}
	return nil, userError("Usage: `!admin slots`, `!admin release #channel`, `!admin release-all` or `!admin delete #channel`.")
}

func argAt(c Command, i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// ReleaseChannel frees everything a booking channel holds: its conversation,
// any slot left behind and the session rows still marked active.
func (s *Service) ReleaseChannel(ctx context.Context, channelID string) (*conversation.Message, error) {
	freed := s.d.Slots.ForceReleaseByChannel(channelID)
	stopped := s.d.Conversations.Release(channelID, releasedByAdmin)
	n, err := s.d.Sessions.CancelByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("cancel sessions: %w", err)
	}
	s.log.Info("channel released",
		zap.String("channel_id", channelID),
		zap.Bool("conversation", stopped),
		zap.Bool("slot", freed),
		zap.Int64("sessions", n),
	)
	if !stopped && !freed && n == 0 {
		return text(fmt.Sprintf("Nothing was running in %s.", Mention(channelID))), nil
	}
	return text(fmt.Sprintf("Released %s.", Mention(channelID))), nil
}

// ReleaseAll empties the slot table and stops every conversation.
func (s *Service) ReleaseAll() (slotsFreed, conversations int) {
	slotsFreed = s.d.Slots.ForceReleaseAll()
	conversations = s.d.Conversations.ReleaseAll(releasedByAdmin)
	s.log.Info("all slots released", zap.Int("slots", slotsFreed), zap.Int("conversations", conversations))
	return slotsFreed, conversations
}
