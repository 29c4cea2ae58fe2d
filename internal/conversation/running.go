package conversation

import (
	"context"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/rail"
	"go.uber.org/zap"
)

// startLegs stops the idle timer and starts one polling loop per leg.
func (c *Conversation) startLegs() {
	legs := c.Sessions()
	c.mu.Lock()
	if c.ended.Load() {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.idle.Stop()
	c.target = len(legs)
	c.mu.Unlock()
	c.log.Info("polling started", zap.Int("legs", len(legs)))

	for _, s := range legs {
		ctx, cancel := context.WithCancel(c.ctx)
		c.updateStatus(s, SearchingMessage(s, 0, 0))
		events := c.d.Engine.Poll(ctx, s)
		go func(s *booking.Session) {
			defer cancel()
			c.follow(ctx, s, events)
		}(s)
	}
}

func (c *Conversation) follow(ctx context.Context, s *booking.Session, events <-chan booking.Event) {
	log := c.log.With(zap.Int64("leg_session_id", s.ID), zap.String("leg", string(s.Leg)))
	for ev := range events {
		switch ev.Kind {
		case booking.EventProgress:
			c.updateStatus(s, SearchingMessage(s, ev.Attempt, ev.Elapsed))
		case booking.EventReserved, booking.EventWaiting:
			c.updateStatus(s, SearchingMessage(s, ev.Attempt, ev.Elapsed))
			c.notify(SuccessMessage(s, ev.Reservation))
			if ev.Kind == booking.EventReserved && s.AutoPay {
				c.pay(ctx, s, ev.Reservation, log)
			}
		case booking.EventFailed:
			c.notify(ErrorMessage(ev.Reason))
		case booking.EventCancelled:
			log.Info("leg stopped", zap.String("reason", ev.Reason))
		}
		if ev.Terminal() {
			c.publish(s, ev.Reason)
			c.finish()
		}
	}
}

func (c *Conversation) pay(ctx context.Context, s *booking.Session, r rail.Reservation, log *zap.Logger) {
	card, err := c.d.Profiles.Card(ctx, s.OwnerID)
	if err != nil {
		log.Warn("load card for payment", zap.Error(err))
		c.notify(Message{Text: "Automatic payment skipped: no usable card on file. Please pay before the deadline.", Tone: ToneWarning})
		return
	}
	ok, err := c.d.Engine.PayWithCard(ctx, s, r, card)
	switch {
	case err != nil:
		log.Warn("card payment failed", zap.Error(err))
		c.notify(ErrorMessage("Payment failed: " + err.Error()))
	case !ok:
		c.notify(ErrorMessage("The card payment was declined. Please pay before the deadline."))
	default:
		c.setStatus(s, booking.StatusPaid)
		c.notify(Message{Text: "Card payment completed for reservation " + r.Number + ".", Tone: ToneSuccess})
	}
}

// updateStatus edits the leg's progress message in place.
func (c *Conversation) updateStatus(s *booking.Session, m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ch.UpdateStatus(ctx, string(s.Leg), m); err != nil {
		c.log.Warn("update status message", zap.Error(err))
	}
}
