package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conversation owns one booking channel: its outbound session, the
// optional return session, and the slots both hold.
type Conversation struct {
	id  string
	d   *Deps
	ch  Channel
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbound *booking.Session

	mu       sync.Mutex
	inbound  *booking.Session
	slotIDs  []int64
	idle     *time.Timer
	running  bool
	target   int
	finished int

	ended    atomic.Bool
	teardown sync.Once
	done     chan struct{}
}

func newConversation(m *Manager, ch Channel, s *booking.Session) *Conversation {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Conversation{
		id:       id,
		d:        &m.d,
		ch:       ch,
		ctx:      ctx,
		cancel:   cancel,
		outbound: s,
		slotIDs:  []int64{s.ID},
		target:   1,
		done:     make(chan struct{}),
		log: m.d.Logger.With(
			zap.String("conversation_id", id),
			zap.String("channel_id", ch.ID()),
			zap.Int64("session_id", s.ID),
			zap.String("provider", string(s.Provider)),
		),
	}
	c.idle = time.AfterFunc(m.d.Timeouts.Idle, c.expire)
	return c
}

func (c *Conversation) ID() string        { return c.id }
func (c *Conversation) ChannelID() string { return c.ch.ID() }

// Done is closed once the channel has been torn down.
func (c *Conversation) Done() <-chan struct{} { return c.done }

// Sessions returns the outbound session and, for a round trip, the return one.
func (c *Conversation) Sessions() []*booking.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbound != nil {
		return []*booking.Session{c.outbound, c.inbound}
	}
	return []*booking.Session{c.outbound}
}

// HandleMessage reacts to free text in the channel. The cancel word stops
// the booking; anything else counts as activity.
func (c *Conversation) HandleMessage(text string) {
	if IsCancelWord(text) {
		c.Cancel("Booking cancelled.")
		return
	}
	c.touch()
}

// touch restarts the inactivity timer until polling starts.
func (c *Conversation) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.ended.Load() {
		return
	}
	c.idle.Reset(c.d.Timeouts.Idle)
}

// notify sends outside the conversation context so messages still go out
// while tearing down.
func (c *Conversation) notify(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ch.Send(ctx, m); err != nil {
		c.log.Warn("send message", zap.Error(err))
	}
}

func (c *Conversation) setStatus(s *booking.Session, st booking.Status) {
	if !s.Transition(st) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.d.Sessions.SetStatus(ctx, s.ID, st); err != nil {
		c.log.Warn("persist status", zap.Int64("session_id", s.ID), zap.String("status", string(st)), zap.Error(err))
	}
}

// Cancel stops the booking at the user's request.
func (c *Conversation) Cancel(reason string) {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.log.Info("conversation cancelled", zap.String("reason", reason))
	for _, s := range c.Sessions() {
		c.setStatus(s, booking.StatusCancelled)
	}
	c.cancel()
	c.notify(Text(reason))
	c.cleanup(c.d.Timeouts.Aborted, true)
}

// expire fires when the user stopped answering.
func (c *Conversation) expire() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running || !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.log.Info("conversation timed out")
	for _, s := range c.Sessions() {
		c.setStatus(s, booking.StatusTimeout)
	}
	c.cancel()
	c.notify(Text("No answer in time, the booking has been cancelled."))
	c.cleanup(c.d.Timeouts.Aborted, true)
}

// Abandon stops everything but leaves the channel in place. Used by the
// admin release commands.
func (c *Conversation) Abandon(reason string) {
	c.ended.Store(true)
	c.log.Info("conversation released", zap.String("reason", reason))
	for _, s := range c.Sessions() {
		c.setStatus(s, booking.StatusCancelled)
	}
	c.cleanup(0, false)
}

// fail ends the conversation after an error the user has already been told
// about.
func (c *Conversation) fail() {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	for _, s := range c.Sessions() {
		c.setStatus(s, booking.StatusError)
	}
	c.cleanup(c.d.Timeouts.Aborted, true)
}

// finish is called as each leg's loop ends. Teardown waits for the last.
func (c *Conversation) finish() {
	c.mu.Lock()
	c.finished++
	all := c.finished >= c.target
	c.mu.Unlock()
	if !all {
		return
	}
	c.ended.Store(true)
	c.cleanup(c.d.Timeouts.Finished, true)
}

// cleanup runs once: stop the timer, stop polling, give back the slots,
// leave the registry, then after delay delete the channel.
func (c *Conversation) cleanup(delay time.Duration, closeChannel bool) {
	c.teardown.Do(func() {
		c.mu.Lock()
		c.idle.Stop()
		ids := append([]int64(nil), c.slotIDs...)
		c.mu.Unlock()

		c.cancel()
		for _, id := range ids {
			c.d.Slots.Release(id)
		}
		c.d.Registry.Remove(c.ch.ID(), c)
		c.log.Info("conversation cleaned up", zap.Int("slots", len(ids)))

		if !closeChannel {
			close(c.done)
			return
		}
		go c.closeChannel(delay)
	})
}

func (c *Conversation) closeChannel(delay time.Duration) {
	defer close(c.done)
	if delay > 0 {
		c.notify(Text(fmt.Sprintf("This channel will be deleted in %d seconds.", int(delay/time.Second))))
		time.Sleep(delay)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := c.ch.Close(ctx, "booking session finished")
	switch {
	case err == nil:
	case errors.Is(err, ErrPermission):
		c.log.Warn("no permission to delete channel", zap.Error(err))
		c.notify(Text("I don't have permission to delete this channel. Please contact an administrator."))
	default:
		c.log.Warn("delete channel", zap.Error(err))
	}
}

func (c *Conversation) publish(s *booking.Session, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.d.Events.Publish(ctx, events.NewOutcome(s, reason)); err != nil {
		c.log.Warn("publish outcome", zap.Int64("session_id", s.ID), zap.Error(err))
	}
}
