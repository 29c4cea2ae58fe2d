package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/events"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/slots"
	"github.com/example/railbot/internal/store"
)

type answer struct {
	values []string
	form   map[string]string
}

func pick(values ...string) answer { return answer{values: values} }

func form(kv ...string) answer {
	m := make(map[string]string)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return answer{form: m}
}

// fakeChannel answers prompts from a script. Once the script is used up a
// prompt blocks until its context ends, like a user who walked away.
type fakeChannel struct {
	id string

	mu       sync.Mutex
	answers  []answer
	sent     []Message
	prompts  []string
	statuses map[string]Message
	closes   int

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeChannel(id string, answers ...answer) *fakeChannel {
	return &fakeChannel{id: id, answers: answers, statuses: make(map[string]Message), closed: make(chan struct{})}
}

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(ctx context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeChannel) UpdateStatus(ctx context.Context, key string, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[key] = m
	return nil
}

func (f *fakeChannel) next(ctx context.Context, prompt string) (answer, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	if len(f.answers) > 0 {
		a := f.answers[0]
		f.answers = f.answers[1:]
		f.mu.Unlock()
		return a, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return answer{}, ctx.Err()
}

func (f *fakeChannel) Select(ctx context.Context, p SelectPrompt) ([]string, error) {
	a, err := f.next(ctx, p.Text)
	return a.values, err
}

func (f *fakeChannel) Form(ctx context.Context, p FormPrompt) (map[string]string, error) {
	a, err := f.next(ctx, p.Title)
	return a.form, err
}

func (f *fakeChannel) Close(ctx context.Context, reason string) error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// said reports whether any sent message contains substr.
func (f *fakeChannel) said(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sent {
		if strings.Contains(m.Title, substr) || strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func (f *fakeChannel) asked(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if p == text {
			n++
		}
	}
	return n
}

// fakeClient returns one train per searched time bucket. The train has
// seats unless soldOut is set. Searches after failAfter return err.
type fakeClient struct {
	provider  rail.Provider
	soldOut   atomic.Bool
	empty     bool
	failAfter int
	err       error

	mu       sync.Mutex
	searches int
	reserves int
	paid     []rail.Payment
}

func (f *fakeClient) Provider() rail.Provider { return f.provider }

func (f *fakeClient) Search(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error) {
	f.mu.Lock()
	f.searches++
	n := f.searches
	f.mu.Unlock()
	if f.err != nil && n > f.failAfter {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	return []rail.Train{{
		Provider:    f.provider,
		Name:        string(f.provider),
		Number:      "305",
		DepStation:  q.Dep,
		ArrStation:  q.Arr,
		DepDate:     q.Date,
		DepTime:     q.Time,
		ArrTime:     "235900",
		GeneralSeat: !f.soldOut.Load(),
	}}, nil
}

func (f *fakeClient) Reserve(ctx context.Context, t rail.Train, p []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	f.mu.Lock()
	f.reserves++
	f.mu.Unlock()
	return rail.Reservation{
		Number:     "R-" + t.DepStation,
		Provider:   f.provider,
		TrainName:  t.Name,
		TrainNo:    t.Number,
		DepStation: t.DepStation,
		ArrStation: t.ArrStation,
		DepDate:    t.DepDate,
		DepTime:    t.DepTime,
		ArrTime:    t.ArrTime,
		SeatCount:  1,
		TotalCost:  52900,
	}, nil
}

func (f *fakeClient) ReserveStandby(ctx context.Context, t rail.Train, p []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	return rail.Reservation{Number: "W-" + t.Number, Provider: f.provider, Waiting: true}, nil
}

func (f *fakeClient) PayWithCard(ctx context.Context, r rail.Reservation, p rail.Payment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, p)
	return true, nil
}

func (f *fakeClient) Cancel(ctx context.Context, r rail.Reservation) (bool, error) { return true, nil }

func (f *fakeClient) Reservations(ctx context.Context) ([]rail.Reservation, error) { return nil, nil }

func (f *fakeClient) ClearChallenge() {}

func (f *fakeClient) payments() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paid)
}

type fakeAuth struct {
	client rail.Client
	err    error
}

func (a *fakeAuth) Login(ctx context.Context, p rail.Provider, user, pass string) (rail.Client, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.client, nil
}

type fakeProfiles struct {
	noCreds bool
	card    *rail.Card
}

func (p fakeProfiles) Credentials(ctx context.Context, discordID string, pr rail.Provider) (string, string, error) {
	if p.noCreds {
		return "", "", internaltypes.ErrNoCredentials
	}
	return "user", "pass", nil
}

func (p fakeProfiles) Card(ctx context.Context, discordID string) (rail.Card, error) {
	if p.card == nil {
		return rail.Card{}, internaltypes.ErrNoCard
	}
	return *p.card, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	nextID   int64
	creates  int
	statuses map[int64][]booking.Status
	updates  map[int64][]booking.SessionUpdate
	// onCreate runs after a row is created, outside the lock.
	onCreate func(leg booking.Leg)
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		nextID:   100,
		statuses: make(map[int64][]booking.Status),
		updates:  make(map[int64][]booking.SessionUpdate),
	}
}

func (s *fakeSessions) Create(ctx context.Context, userID int64, channelID string, p rail.Provider, leg booking.Leg) (int64, error) {
	s.mu.Lock()
	s.nextID++
	s.creates++
	id, hook := s.nextID, s.onCreate
	s.mu.Unlock()
	if hook != nil {
		hook(leg)
	}
	return id, nil
}

func (s *fakeSessions) SetStatus(ctx context.Context, id int64, st booking.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = append(s.statuses[id], st)
	return nil
}

func (s *fakeSessions) IncrementAttempt(ctx context.Context, id int64) (int, error) { return 0, nil }

func (s *fakeSessions) Update(ctx context.Context, id int64, u booking.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = append(s.updates[id], u)
	return nil
}

func (s *fakeSessions) lastStatus(id int64) booking.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[id]
	if len(st) == 0 {
		return ""
	}
	return st[len(st)-1]
}

func (s *fakeSessions) paramUpdate(id int64) (booking.SessionUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.updates[id] {
		if u.Departure != nil {
			return u, true
		}
	}
	return booking.SessionUpdate{}, false
}

type fakeFavorites []store.Favorite

func (f fakeFavorites) List(ctx context.Context, userID int64) ([]store.Favorite, error) {
	return f, nil
}

type recorder struct {
	mu   sync.Mutex
	outs []events.Outcome
}

func (r *recorder) Publish(ctx context.Context, o events.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, o)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outs)
}

var testToday = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type harness struct {
	m        *Manager
	slots    *slots.Manager
	sessions *fakeSessions
	events   *recorder
}

type harnessOpts struct {
	auth      *fakeAuth
	profiles  fakeProfiles
	favorites FavoriteStore
	idle      time.Duration
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	if o.auth == nil {
		o.auth = &fakeAuth{client: &fakeClient{provider: rail.SRT}}
	}
	if o.idle == 0 {
		o.idle = time.Minute
	}
	h := &harness{
		slots:    slots.NewManager(4),
		sessions: newFakeSessions(),
		events:   &recorder{},
	}
	engine := booking.NewEngine(booking.Config{
		Auth:   o.auth,
		Creds:  o.profiles,
		Store:  h.sessions,
		Jitter: booking.FixedJitter(time.Millisecond),
	})
	h.m = NewManager(Deps{
		Engine:    engine,
		Slots:     h.slots,
		Sessions:  h.sessions,
		Profiles:  o.profiles,
		Favorites: o.favorites,
		Events:    h.events,
		Timeouts:  Timeouts{Idle: o.idle},
		Now:       func() time.Time { return testToday },
	})
	return h
}

// start creates the outbound session, claims its slot and runs the
// conversation on ch.
func (h *harness) start(t *testing.T, ch *fakeChannel, client rail.Client) (*Conversation, *booking.Session) {
	t.Helper()
	s := booking.NewSession(1, 10, "owner-1", ch.ID(), rail.SRT, client)
	if !h.slots.Acquire(s.ID, s.OwnerID, ch.ID(), s.Provider) {
		t.Fatalf("Acquire() = false")
	}
	return h.m.Start(ch, s), s
}

func waitDone(t *testing.T, c *Conversation) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("conversation did not finish")
	}
}
