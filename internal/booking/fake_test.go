package booking

import (
	"context"
	"errors"
	"sync"

	"github.com/example/railbot/internal/rail"
)

// fakeClient answers searches from a script, one entry per Search call. The
// last entry repeats once the script runs out.
type fakeClient struct {
	provider rail.Provider

	mu         sync.Mutex
	script     []searchResult
	searches   int
	reserves   int
	standbys   int
	cleared    int
	reserveErr error
	paid       []rail.Payment
}

type searchResult struct {
	trains []rail.Train
	err    error
}

func (f *fakeClient) Provider() rail.Provider { return f.provider }

func (f *fakeClient) Search(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.searches
	f.searches++
	if len(f.script) == 0 {
		return nil, nil
	}
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	r := f.script[i]
	return r.trains, r.err
}

func (f *fakeClient) Reserve(ctx context.Context, t rail.Train, p []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves++
	if f.reserveErr != nil {
		return rail.Reservation{}, f.reserveErr
	}
	return rail.Reservation{Number: "R-" + t.Number, Provider: f.provider, TrainNo: t.Number, DepTime: t.DepTime, TotalCost: 52900}, nil
}

func (f *fakeClient) ReserveStandby(ctx context.Context, t rail.Train, p []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.standbys++
	if f.reserveErr != nil {
		return rail.Reservation{}, f.reserveErr
	}
	return rail.Reservation{Number: "W-" + t.Number, Provider: f.provider, TrainNo: t.Number}, nil
}

func (f *fakeClient) PayWithCard(ctx context.Context, r rail.Reservation, p rail.Payment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, p)
	return true, nil
}

func (f *fakeClient) Cancel(ctx context.Context, r rail.Reservation) (bool, error) { return true, nil }

func (f *fakeClient) Reservations(ctx context.Context) ([]rail.Reservation, error) { return nil, nil }

func (f *fakeClient) ClearChallenge() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeClient) counts() (searches, reserves, standbys, cleared int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches, f.reserves, f.standbys, f.cleared
}

type fakeAuth struct {
	mu     sync.Mutex
	logins int
	client rail.Client
	err    error
}

func (a *fakeAuth) Login(ctx context.Context, p rail.Provider, user, pass string) (rail.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins++
	if a.err != nil {
		return nil, a.err
	}
	return a.client, nil
}

func (a *fakeAuth) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

type fakeCreds struct{ missing bool }

func (c fakeCreds) Credentials(ctx context.Context, owner string, p rail.Provider) (string, string, error) {
	if c.missing {
		return "", "", errors.New("no credentials stored")
	}
	return "user", "pass", nil
}

type memStore struct {
	mu       sync.Mutex
	statuses []Status
	attempts int
	updates  []SessionUpdate
}

func (m *memStore) SetStatus(ctx context.Context, id int64, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, st)
	return nil
}

func (m *memStore) IncrementAttempt(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	return m.attempts, nil
}

func (m *memStore) Update(ctx context.Context, id int64, u SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func (m *memStore) lastStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return ""
	}
	return m.statuses[len(m.statuses)-1]
}
