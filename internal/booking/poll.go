package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/railbot/internal/rail"
	"go.uber.org/zap"
)

type EventKind int

const (
	EventProgress EventKind = iota
	EventReserved
	EventWaiting
	EventFailed
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventReserved:
		return "reserved"
	case EventWaiting:
		return "waiting"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is emitted by Poll. Every stream ends with exactly one terminal
// event (anything but EventProgress) and is then closed.
type Event struct {
	Kind        EventKind
	SessionID   int64
	Attempt     int
	Elapsed     time.Duration
	Reservation rail.Reservation
	Reason      string
	Err         error
}

func (ev Event) Terminal() bool { return ev.Kind != EventProgress }

type action int

const (
	retrySleep action = iota
	retryNow
	stopCancelled
	stopFailed
)

// Poll searches and tries to reserve until a selected train is booked, the
// provider reports a fatal error or ctx is cancelled. The caller must drain
// the returned channel until it is closed.
func (e *Engine) Poll(ctx context.Context, s *Session) <-chan Event {
	events := make(chan Event, 4)
	go func() {
		defer close(events)
		e.poll(ctx, s, events)
	}()
	return events
}

func (e *Engine) poll(ctx context.Context, s *Session, events chan<- Event) {
	log := e.log.With(
		zap.Int64("session_id", s.ID),
		zap.String("provider", string(s.Provider)),
		zap.String("leg", string(s.Leg)),
	)
	if s.Transition(StatusSearching) {
		e.persistStatus(ctx, s, log)
	} else if s.Status() != StatusSearching {
		events <- e.terminal(s, EventCancelled, 0, "session is no longer active", nil)
		return
	}

	start := e.now()
	log.Info("polling started", zap.String("date", s.Date), zap.Strings("times", s.Times), zap.Ints("trains", s.Selected))

	for s.Status() == StatusSearching {
		if ctx.Err() != nil {
			e.cancel(ctx, s, events, start, log)
			return
		}
		attempt := s.nextAttempt()
		if _, err := e.store.IncrementAttempt(context.WithoutCancel(ctx), s.ID); err != nil {
			log.Warn("persist attempt", zap.Error(err))
		}
		if attempt%e.every == 0 {
			ev := Event{Kind: EventProgress, SessionID: s.ID, Attempt: attempt, Elapsed: e.now().Sub(start)}
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		res, reserved, err := e.round(ctx, s)
		if reserved {
			e.succeed(ctx, s, res, events, start, log)
			return
		}
		if err != nil {
			act, reason := e.classify(ctx, s, err, log)
			switch act {
			case retryNow:
				continue
			case stopCancelled:
				e.cancel(ctx, s, events, start, log)
				return
			case stopFailed:
				e.fail(ctx, s, reason, err, events, start, log)
				return
			}
		}

		t := time.NewTimer(e.jitter())
		select {
		case <-ctx.Done():
			t.Stop()
			e.cancel(ctx, s, events, start, log)
			return
		case <-t.C:
		}
	}

	// The status was moved elsewhere, usually by a conversation timeout.
	log.Info("polling stopped", zap.String("status", string(s.Status())))
	events <- Event{Kind: EventCancelled, SessionID: s.ID, Attempt: s.Attempts(), Elapsed: e.now().Sub(start), Reason: string(s.Status())}
}

// round is one search followed by a reserve attempt on the first selected
// train that is available under the seat policy.
func (e *Engine) round(ctx context.Context, s *Session) (rail.Reservation, bool, error) {
	trains, err := e.SearchTrains(ctx, s)
	if err != nil {
		return rail.Reservation{}, false, err
	}
	for _, i := range s.Selected {
		if i < 0 || i >= len(trains) {
			continue
		}
		t := trains[i]
		if !SeatAvailable(t, s.Seat) {
			continue
		}
		res, err := e.Reserve(ctx, s, t)
		if err != nil {
			return rail.Reservation{}, false, err
		}
		return res, true, nil
	}
	return rail.Reservation{}, false, nil
}

func (e *Engine) classify(ctx context.Context, s *Session, err error, log *zap.Logger) (action, string) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return stopCancelled, ""
	}
	if re, ok := rail.AsError(err); ok {
		switch {
		case re.Kind == rail.KindBotDetected:
			log.Info("challenge detected, clearing", zap.String("message", re.Message))
			if c := s.Client(); c != nil {
				c.ClearChallenge()
			}
			return retryNow, ""
		case re.Kind == rail.KindSessionExpired:
			log.Info("provider session expired, logging in again")
			if lerr := e.relogin(ctx, s); lerr != nil {
				log.Warn("re-login failed", zap.Error(lerr))
				return stopFailed, "re-authentication failed"
			}
			return retrySleep, ""
		case re.Kind.Transient():
			log.Debug("not available yet", zap.Stringer("kind", re.Kind))
			return retrySleep, ""
		default:
			log.Warn("provider error", zap.String("message", re.Message))
			return stopFailed, "booking error: " + re.Message
		}
	}
	log.Warn("unexpected error, logging in again", zap.Error(err))
	if lerr := e.relogin(ctx, s); lerr != nil {
		if ctx.Err() != nil {
			return stopCancelled, ""
		}
		log.Warn("re-login failed", zap.Error(lerr))
		return stopFailed, "unexpected error: " + err.Error()
	}
	return retrySleep, ""
}

func (e *Engine) succeed(ctx context.Context, s *Session, res rail.Reservation, events chan<- Event, start time.Time, log *zap.Logger) {
	s.setReservationNumber(res.Number)
	if s.Transition(StatusReserved) {
		e.persistStatus(ctx, s, log)
	}
	num := res.Number
	if err := e.store.Update(context.WithoutCancel(ctx), s.ID, SessionUpdate{ReservationNumber: &num}); err != nil {
		log.Warn("persist reservation number", zap.Error(err))
	}
	log.Info("reserved",
		zap.String("reservation", res.Number),
		zap.String("train", res.TrainNo),
		zap.Bool("waiting", res.Waiting),
		zap.Int("attempts", s.Attempts()),
	)
	kind := EventReserved
	if res.Waiting {
		kind = EventWaiting
	}
	ev := e.terminal(s, kind, e.now().Sub(start), "", nil)
	ev.Reservation = res
	events <- ev
}

func (e *Engine) fail(ctx context.Context, s *Session, reason string, err error, events chan<- Event, start time.Time, log *zap.Logger) {
	if !s.Transition(StatusError) {
		events <- e.terminal(s, EventCancelled, e.now().Sub(start), string(s.Status()), nil)
		return
	}
	e.persistStatus(ctx, s, log)
	events <- e.terminal(s, EventFailed, e.now().Sub(start), reason, err)
}

func (e *Engine) cancel(ctx context.Context, s *Session, events chan<- Event, start time.Time, log *zap.Logger) {
	if s.Transition(StatusCancelled) {
		e.persistStatus(ctx, s, log)
	}
	log.Info("polling cancelled", zap.Int("attempts", s.Attempts()))
	events <- e.terminal(s, EventCancelled, e.now().Sub(start), "cancelled", nil)
}

func (e *Engine) terminal(s *Session, kind EventKind, elapsed time.Duration, reason string, err error) Event {
	return Event{Kind: kind, SessionID: s.ID, Attempt: s.Attempts(), Elapsed: elapsed, Reason: reason, Err: err}
}

func (e *Engine) persistStatus(ctx context.Context, s *Session, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.SetStatus(ctx, s.ID, s.Status()); err != nil {
		log.Warn("persist status", zap.Error(err))
	}
}
