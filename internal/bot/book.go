package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) book(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	p, err := rail.ParseProvider(inv.Cmd.Arg(0))
	if err != nil {
		return nil, userError("Usage: `!book srt` or `!book ktx`.")
	}
	c, err := s.StartBooking(ctx, inv.UserID, p)
	if err != nil {
		return nil, err
	}
	return text(fmt.Sprintf("Your %s booking channel is ready: %s", p, Mention(c.ChannelID()))), nil
}

// StartBooking admits a new booking for ownerID. The checks run cheapest
// first; the slot is claimed last and its failure removes the channel again.
func (s *Service) StartBooking(ctx context.Context, ownerID string, p rail.Provider) (*conversation.Conversation, error) {
	log := s.log.With(zap.String("owner_id", ownerID), zap.String("provider", string(p)))
	if s.d.Slots.Full() {
		return nil, ErrAdmissionDenied
	}

	u, err := s.d.Users.Get(ctx, ownerID)
	if db.IsNotFound(err) {
		return nil, userError("Store your %s login first with `!profile set %s`.", p, strings.ToLower(string(p)))
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.HasCredentials(p) {
		return nil, userError("Store your %s login first with `!profile set %s`.", p, strings.ToLower(string(p)))
	}
	user, pass, err := s.d.Users.Credentials(ctx, ownerID, p)
	if errors.Is(err, internaltypes.ErrNoCredentials) {
		return nil, userError("Store your %s login first with `!profile set %s`.", p, strings.ToLower(string(p)))
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	client, err := s.d.Engine.Login(ctx, p, user, pass)
	if errors.Is(err, rail.ErrAuth) {
		return nil, userError("%s login failed. Check your id and password with `!profile set %s`.", p, strings.ToLower(string(p)))
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	ch, err := s.d.Channels.Open(ctx, ownerID, channelName(p))
	if err != nil {
		return nil, fmt.Errorf("open booking channel: %w", err)
	}
	id, err := s.d.Sessions.Create(ctx, u.ID, ch.ID(), p, booking.Outbound)
	if err != nil {
		s.deleteChannel(ch.ID(), log)
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess := booking.NewSession(id, u.ID, ownerID, ch.ID(), p, client)
	if !s.d.Slots.Acquire(id, ownerID, ch.ID(), p) {
		if err := s.d.Sessions.SetStatus(context.WithoutCancel(ctx), id, booking.StatusError); err != nil {
			log.Warn("mark session failed", zap.Int64("session_id", id), zap.Error(err))
		}
		s.deleteChannel(ch.ID(), log)
		return nil, ErrAdmissionDenied
	}

	log.Info("booking started", zap.Int64("session_id", id), zap.String("channel_id", ch.ID()))
	return s.d.Conversations.Start(ch, sess), nil
}

func (s *Service) deleteChannel(channelID string, log *zap.Logger) {
	if err := s.d.Channels.Delete(context.Background(), channelID); err != nil {
		log.Warn("delete channel", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func channelName(p rail.Provider) string {
	return fmt.Sprintf("%s-booking-%s", strings.ToLower(string(p)), uuid.NewString()[:8])
}

func (s *Service) myBookings(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	recs, err := s.d.Sessions.ActiveByUser(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		return text("You have no active bookings."), nil
	}
	m := &conversation.Message{Title: "Your active bookings"}
	for _, r := range recs {
		route := "route not chosen yet"
		if r.Departure != "" {
			route = fmt.Sprintf("%s → %s, %s", r.Departure, r.Arrival, conversation.FormatDate(r.Date))
		}
		m.Fields = append(m.Fields, conversation.Field{
			Name:  fmt.Sprintf("#%d %s %s", r.ID, r.Provider, r.Leg),
			Value: fmt.Sprintf("%s\nStatus: %s | Attempts: %d | %s", route, r.Status, r.Attempts, Mention(r.ChannelID)),
		})
	}
	return m, nil
}
