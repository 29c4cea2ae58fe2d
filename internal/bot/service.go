// Package bot implements the chat commands: starting a booking, the user's
// profile, card and favorite routes, and the admin release commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/slots"
	"github.com/example/railbot/internal/store"
	"go.uber.org/zap"
)

type UserStore interface {
	Get(ctx context.Context, discordID string) (store.User, error)
	Ensure(ctx context.Context, discordID string) (store.User, error)
	Delete(ctx context.Context, discordID string) (bool, error)
	SetCredentials(ctx context.Context, discordID string, p rail.Provider, user, pass string) error
	Credentials(ctx context.Context, discordID string, p rail.Provider) (string, string, error)
	SetCard(ctx context.Context, discordID string, c rail.Card) error
}

type SessionStore interface {
	Create(ctx context.Context, userID int64, channelID string, p rail.Provider, leg booking.Leg) (int64, error)
	SetStatus(ctx context.Context, id int64, st booking.Status) error
	ActiveByUser(ctx context.Context, discordID string) ([]store.SessionRecord, error)
	CancelByChannel(ctx context.Context, channelID string) (int64, error)
}

type FavoriteStore interface {
	Add(ctx context.Context, userID int64, dep, arr string) (store.Favorite, error)
	List(ctx context.Context, userID int64) ([]store.Favorite, error)
	Remove(ctx context.Context, userID, id int64) (bool, error)
}

// Replier is where command results go, normally the main channel.
type Replier interface {
	Send(ctx context.Context, m conversation.Message) error
}

type Deps struct {
	Users         UserStore
	Sessions      SessionStore
	Favorites     FavoriteStore
	Engine        *booking.Engine
	Slots         *slots.Manager
	Conversations *conversation.Manager
	Channels      conversation.ChannelFactory
	Logger        *zap.Logger
	// PromptTimeout bounds each answer in the private profile, card and
	// favorite channels.
	PromptTimeout time.Duration
}

type Service struct {
	d   Deps
	log *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.PromptTimeout <= 0 {
		d.PromptTimeout = 5 * time.Minute
	}
	return &Service{d: d, log: d.Logger.Named("bot")}
}

// Invocation is one command typed by a user.
type Invocation struct {
	UserID string
	// Admin is true when the user may run the admin commands.
	Admin bool
	Reply Replier
	Cmd   Command
}

// Handle runs a command and reports the result through inv.Reply. Commands
// that open a private channel block until the user is done there.
func (s *Service) Handle(ctx context.Context, inv Invocation) {
	log := s.log.With(zap.String("command", inv.Cmd.Name), zap.String("user_id", inv.UserID))
	msg, err := s.dispatch(ctx, inv)
	if err != nil {
		msg = s.errorMessage(err, log)
	}
	if msg == nil {
		return
	}
	if err := inv.Reply.Send(ctx, *msg); err != nil {
		log.Warn("reply", zap.Error(err))
	}
}

func (s *Service) dispatch(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	switch inv.Cmd.Name {
	case "book":
		return s.book(ctx, inv)
	case "mybookings":
		return s.myBookings(ctx, inv)
	case "slots":
		return s.slotStatus(), nil
	case "profile":
		return s.profile(ctx, inv)
	case "card":
		return s.card(ctx, inv)
	case "fav":
		return s.favorites(ctx, inv)
	case "admin":
		return s.admin(ctx, inv)
	case "help":
		return text(usage), nil
	}
	return nil, userError("Unknown command `%s%s`. Type `!help` for the list.", Prefix, inv.Cmd.Name)
}

func (s *Service) errorMessage(err error, log *zap.Logger) *conversation.Message {
	var (
		ue *UserError
		ve *booking.ValidationError
	)
	switch {
	case errors.As(err, &ue):
		return warning(ue.Msg)
	case errors.As(err, &ve):
		return warning(ve.Msg)
	case errors.Is(err, ErrAdmissionDenied):
		return warning(fmt.Sprintf("All %d booking slots are in use. Please try again later.", s.d.Slots.Capacity()))
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, conversation.ErrPromptTimeout), errors.Is(err, context.DeadlineExceeded):
		return warning("No answer in time.")
	}
	log.Error("command failed", zap.Error(err))
	m := conversation.ErrorMessage("Something went wrong. Please try again later.")
	return &m
}

func text(s string) *conversation.Message {
	m := conversation.Text(s)
	return &m
}

func warning(s string) *conversation.Message {
	return &conversation.Message{Text: s, Tone: conversation.ToneWarning}
}

func (s *Service) slotStatus() *conversation.Message {
	list := s.d.Slots.List()
	m := &conversation.Message{
		Title: "Booking slots",
		Text:  fmt.Sprintf("%d of %d in use", len(list), s.d.Slots.Capacity()),
	}
	for _, in := range list {
		m.Fields = append(m.Fields, conversation.Field{
			Name:   fmt.Sprintf("Session %d (%s)", in.SessionID, in.Provider),
			Value:  fmt.Sprintf("<@%s> in %s", in.OwnerID, Mention(in.ChannelID)),
			Inline: true,
		})
	}
	return m
}
