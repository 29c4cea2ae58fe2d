// Package booking holds the booking session model and the engine that polls
// a rail provider until one of the chosen trains can be reserved.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/workerpool"
	"go.uber.org/zap"
)

// Authenticator opens a provider session. *rail.Registry implements it.
type Authenticator interface {
	Login(ctx context.Context, p rail.Provider, user, pass string) (rail.Client, error)
}

// CredentialSource looks up the stored provider login of a chat user.
type CredentialSource interface {
	Credentials(ctx context.Context, ownerID string, p rail.Provider) (user, pass string, err error)
}

// SessionStore persists what the polling loop learns.
type SessionStore interface {
	SetStatus(ctx context.Context, id int64, st Status) error
	IncrementAttempt(ctx context.Context, id int64) (int, error)
	Update(ctx context.Context, id int64, u SessionUpdate) error
}

type Config struct {
	Auth   Authenticator
	Pool   *workerpool.Pool
	Creds  CredentialSource
	Store  SessionStore
	Logger *zap.Logger

	// Jitter defaults to GammaJitter(4, 0.25, 500ms).
	Jitter Jitter
	Now    func() time.Time
	// ProgressEvery is how many attempts pass between progress events.
	ProgressEvery int
}

type Engine struct {
	auth   Authenticator
	pool   *workerpool.Pool
	creds  CredentialSource
	store  SessionStore
	log    *zap.Logger
	jitter Jitter
	now    func() time.Time
	every  int
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		auth:   cfg.Auth,
		pool:   cfg.Pool,
		creds:  cfg.Creds,
		store:  cfg.Store,
		log:    cfg.Logger,
		jitter: cfg.Jitter,
		now:    cfg.Now,
		every:  cfg.ProgressEvery,
	}
	if e.pool == nil {
		e.pool = workerpool.New(8, 0)
	}
	if e.store == nil {
		e.store = nopStore{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.jitter == nil {
		e.jitter = GammaJitter(4, 0.25, 500*time.Millisecond)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.every <= 0 {
		e.every = 10
	}
	return e
}

// Login authenticates against the provider. Rejected credentials wrap
// rail.ErrAuth.
func (e *Engine) Login(ctx context.Context, p rail.Provider, user, pass string) (rail.Client, error) {
	if e.auth == nil {
		return nil, fmt.Errorf("%w: %s", rail.ErrUnknownProvider, p)
	}
	return workerpool.Run(ctx, e.pool, p, func() (rail.Client, error) {
		return e.auth.Login(ctx, p, user, pass)
	})
}

// SearchTrains runs one search per selected time bucket and caches the
// merged, de-duplicated result on the session.
func (e *Engine) SearchTrains(ctx context.Context, s *Session) ([]rail.Train, error) {
	client := s.Client()
	if client == nil {
		return nil, fmt.Errorf("session %d has no provider client", s.ID)
	}
	times := s.Times
	if len(times) == 0 {
		times = []string{"000000"}
	}
	passengers := []rail.PassengerGroup{{Kind: rail.Adult, Count: s.Passengers.Total()}}

	batches := make([][]rail.Train, 0, len(times))
	for _, tm := range times {
		q := rail.SearchQuery{
			Dep:                s.Departure,
			Arr:                s.Arrival,
			Date:               s.Date,
			Time:               tm,
			Passengers:         passengers,
			IncludeUnavailable: true,
		}
		trains, err := workerpool.Run(ctx, e.pool, s.Provider, func() ([]rail.Train, error) {
			return client.Search(ctx, q)
		})
		if err != nil {
			return nil, err
		}
		batches = append(batches, trains)
	}
	merged := MergeTrains(batches...)
	s.setTrains(merged)
	return merged, nil
}

// Reserve books t. A sold-out train with an open standby list goes through
// the dedicated standby call on providers that have one.
func (e *Engine) Reserve(ctx context.Context, s *Session, t rail.Train) (rail.Reservation, error) {
	client := s.Client()
	passengers := s.Passengers.Groups()
	standby := s.Provider.Capabilities().DedicatedStandby && !t.SeatAvailable() && t.StandbyOpen
	return workerpool.Run(ctx, e.pool, s.Provider, func() (rail.Reservation, error) {
		if standby {
			r, err := client.ReserveStandby(ctx, t, passengers, s.Seat)
			if err != nil {
				return rail.Reservation{}, err
			}
			r.Waiting = true
			return r, nil
		}
		return client.Reserve(ctx, t, passengers, s.Seat)
	})
}

// PayWithCard pays for r in a single installment.
func (e *Engine) PayWithCard(ctx context.Context, s *Session, r rail.Reservation, card rail.Card) (bool, error) {
	client := s.Client()
	pay := rail.Payment{Card: card, Installments: 0, CardType: CardType(card.Birthday)}
	return workerpool.Run(ctx, e.pool, s.Provider, func() (bool, error) {
		return client.PayWithCard(ctx, r, pay)
	})
}

func (e *Engine) Reservations(ctx context.Context, s *Session) ([]rail.Reservation, error) {
	client := s.Client()
	return workerpool.Run(ctx, e.pool, s.Provider, func() ([]rail.Reservation, error) {
		return client.Reservations(ctx)
	})
}

func (e *Engine) CancelReservation(ctx context.Context, s *Session, r rail.Reservation) (bool, error) {
	client := s.Client()
	return workerpool.Run(ctx, e.pool, s.Provider, func() (bool, error) {
		return client.Cancel(ctx, r)
	})
}

// relogin replaces the session's client with a fresh login.
func (e *Engine) relogin(ctx context.Context, s *Session) error {
	if e.creds == nil {
		return fmt.Errorf("no credential source configured")
	}
	user, pass, err := e.creds.Credentials(ctx, s.OwnerID, s.Provider)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	c, err := e.Login(ctx, s.Provider, user, pass)
	if err != nil {
		return err
	}
	s.setClient(c)
	return nil
}

type nopStore struct{}

func (nopStore) SetStatus(context.Context, int64, Status) error { return nil }
func (nopStore) IncrementAttempt(context.Context, int64) (int, error) { return 0, nil }
func (nopStore) Update(context.Context, int64, SessionUpdate) error { return nil }
