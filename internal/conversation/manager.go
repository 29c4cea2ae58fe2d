// Package conversation drives the step-by-step booking dialog in a dedicated
// channel and runs the polling legs once the user confirms.
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/events"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/slots"
	"github.com/example/railbot/internal/store"
	"go.uber.org/zap"
)

// CancelWord typed in a booking channel cancels the booking at any step.
const CancelWord = "cancel"

type SessionStore interface {
	booking.SessionStore
	Create(ctx context.Context, userID int64, channelID string, p rail.Provider, leg booking.Leg) (int64, error)
}

type ProfileStore interface {
	Credentials(ctx context.Context, discordID string, p rail.Provider) (string, string, error)
	Card(ctx context.Context, discordID string) (rail.Card, error)
}

type FavoriteStore interface {
	List(ctx context.Context, userID int64) ([]store.Favorite, error)
}

type Timeouts struct {
	// Idle cancels a conversation nobody answers.
	Idle time.Duration
	// Finished and Aborted are the pauses before the channel is deleted.
	Finished time.Duration
	Aborted  time.Duration
}

type Deps struct {
	Engine    *booking.Engine
	Slots     *slots.Manager
	Registry  *Registry
	Sessions  SessionStore
	Profiles  ProfileStore
	Favorites FavoriteStore
	Events    events.Publisher
	Logger    *zap.Logger
	Timeouts  Timeouts
	Now       func() time.Time
}

type Manager struct {
	d Deps
}

func NewManager(d Deps) *Manager {
	if d.Registry == nil {
		d.Registry = NewRegistry()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Timeouts.Idle <= 0 {
		d.Timeouts.Idle = 5 * time.Minute
	}
	d.Logger = d.Logger.Named("conversation")
	return &Manager{d: d}
}

func (m *Manager) Registry() *Registry { return m.d.Registry }

// Start registers a conversation for s on ch and runs it in the background.
// The slot for s must already be held; the conversation releases it.
func (m *Manager) Start(ch Channel, s *booking.Session) *Conversation {
	c := newConversation(m, ch, s)
	if !m.d.Registry.Insert(ch.ID(), c) {
		c.log.Warn("channel already has a conversation")
	}
	go c.run()
	return c
}

// HandleMessage routes a plain message posted in a booking channel. It
// reports whether a conversation owns the channel.
func (m *Manager) HandleMessage(channelID, text string) bool {
	c, ok := m.d.Registry.Lookup(channelID)
	if !ok {
		return false
	}
	c.HandleMessage(text)
	return true
}

// Release stops the conversation on a channel without deleting the channel.
func (m *Manager) Release(channelID, reason string) bool {
	c, ok := m.d.Registry.Lookup(channelID)
	if !ok {
		return false
	}
	c.Abandon(reason)
	return true
}

// ReleaseAll stops every conversation and returns how many there were.
func (m *Manager) ReleaseAll(reason string) int {
	convs := m.d.Registry.Clear()
	for _, c := range convs {
		c.Abandon(reason)
	}
	return len(convs)
}

// IsCancelWord reports whether text asks to stop the booking.
func IsCancelWord(text string) bool {
	t := strings.TrimSpace(text)
	return strings.EqualFold(t, CancelWord) || t == "종료"
}
