package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/internaltypes"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/slots"
	"github.com/example/railbot/internal/store"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]store.User
	creds map[string][2]string
	cards map[string]rail.Card
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]store.User{}, creds: map[string][2]string{}, cards: map[string]rail.Card{}}
}

func (f *fakeUsers) Get(ctx context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.User{}, internaltypes.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Ensure(ctx context.Context, id string) (store.User, error) {
	f.mu.Lock()
	if _, ok := f.users[id]; !ok {
		f.users[id] = store.User{ID: int64(len(f.users) + 1), DiscordID: id}
	}
	f.mu.Unlock()
	return f.Get(ctx, id)
}

func (f *fakeUsers) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[id]
	delete(f.users, id)
	return ok, nil
}

func (f *fakeUsers) SetCredentials(ctx context.Context, id string, p rail.Provider, user, pass string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if p == rail.SRT {
		u.HasSRT = true
	} else {
		u.HasKTX = true
	}
	f.users[id] = u
	f.creds[id+"/"+string(p)] = [2]string{user, pass}
	return nil
}

func (f *fakeUsers) Credentials(ctx context.Context, id string, p rail.Provider) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id+"/"+string(p)]
	if !ok {
		return "", "", internaltypes.ErrNoCredentials
	}
	return c[0], c[1], nil
}

func (f *fakeUsers) SetCard(ctx context.Context, id string, c rail.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards[id] = c
	u := f.users[id]
	u.HasCard = true
	f.users[id] = u
	return nil
}

func (f *fakeUsers) Card(ctx context.Context, id string) (rail.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[id]
	if !ok {
		return rail.Card{}, internaltypes.ErrNoCard
	}
	return c, nil
}

type fakeSessions struct {
	mu        sync.Mutex
	next      int64
	statuses  map[int64]booking.Status
	cancelled []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{statuses: map[int64]booking.Status{}}
}

func (f *fakeSessions) Create(ctx context.Context, userID int64, channelID string, p rail.Provider, leg booking.Leg) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.statuses[f.next] = booking.StatusSetup
	return f.next, nil
}

func (f *fakeSessions) SetStatus(ctx context.Context, id int64, st booking.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = st
	return nil
}

func (f *fakeSessions) IncrementAttempt(ctx context.Context, id int64) (int, error) { return 0, nil }

func (f *fakeSessions) Update(ctx context.Context, id int64, u booking.SessionUpdate) error { return nil }

func (f *fakeSessions) ActiveByUser(ctx context.Context, discordID string) ([]store.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SessionRecord
	for id, st := range f.statuses {
		if st.Active() {
			out = append(out, store.SessionRecord{ID: id, DiscordID: discordID, Provider: rail.SRT, Leg: booking.Outbound, Status: st})
		}
	}
	return out, nil
}

func (f *fakeSessions) CancelByChannel(ctx context.Context, channelID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, channelID)
	return 1, nil
}

func (f *fakeSessions) status(id int64) booking.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

type fakeFavorites struct {
	mu   sync.Mutex
	favs []store.Favorite
}

func (f *fakeFavorites) Add(ctx context.Context, userID int64, dep, arr string) (store.Favorite, error) {
	if dep == arr {
		return store.Favorite{}, &booking.ValidationError{Field: "arrival", Msg: "departure and arrival are the same station"}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fav := store.Favorite{ID: int64(len(f.favs) + 1), UserID: userID, Departure: dep, Arrival: arr}
	f.favs = append(f.favs, fav)
	return fav, nil
}

func (f *fakeFavorites) List(ctx context.Context, userID int64) ([]store.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Favorite(nil), f.favs...), nil
}

func (f *fakeFavorites) Remove(ctx context.Context, userID, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fav := range f.favs {
		if fav.ID == id {
			f.favs = append(f.favs[:i], f.favs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// fakeChannel answers selects and forms from a script and otherwise blocks
// until the prompt's context ends.
type fakeChannel struct {
	id string

	mu      sync.Mutex
	selects [][]string
	forms   []map[string]string
	sent    []conversation.Message
	closed  bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ctx context.Context, m conversation.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeChannel) UpdateStatus(ctx context.Context, key string, m conversation.Message) error {
	return c.Send(ctx, m)
}

func (c *fakeChannel) Select(ctx context.Context, p conversation.SelectPrompt) ([]string, error) {
	c.mu.Lock()
	if len(c.selects) > 0 {
		v := c.selects[0]
		c.selects = c.selects[1:]
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeChannel) Form(ctx context.Context, p conversation.FormPrompt) (map[string]string, error) {
	c.mu.Lock()
	if len(c.forms) > 0 {
		v := c.forms[0]
		c.forms = c.forms[1:]
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeChannel) Close(ctx context.Context, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) lastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	m := c.sent[len(c.sent)-1]
	return m.Title + " " + m.Text
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeFactory hands out scripted channels in order, then empty ones.
type fakeFactory struct {
	mu      sync.Mutex
	script  []*fakeChannel
	opened  []*fakeChannel
	deleted []string
	onOpen  func()
	delErr  error
}

func (f *fakeFactory) Open(ctx context.Context, ownerID, name string) (conversation.Channel, error) {
	f.mu.Lock()
	var ch *fakeChannel
	if len(f.script) > 0 {
		ch = f.script[0]
		f.script = f.script[1:]
	} else {
		ch = &fakeChannel{}
	}
	ch.id = fmt.Sprintf("%d", 900+len(f.opened))
	f.opened = append(f.opened, ch)
	hook := f.onOpen
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ch, nil
}

func (f *fakeFactory) Delete(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return f.delErr
}

func (f *fakeFactory) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

type stubClient struct{ rail.Client }

type fakeAuth struct{ err error }

func (a fakeAuth) Login(ctx context.Context, p rail.Provider, user, pass string) (rail.Client, error) {
	if a.err != nil {
		return nil, a.err
	}
	return stubClient{}, nil
}

type env struct {
	svc       *Service
	users     *fakeUsers
	sessions  *fakeSessions
	favorites *fakeFavorites
	channels  *fakeFactory
	slots     *slots.Manager
	convs     *conversation.Manager
}

func newEnv(t *testing.T, capacity int, auth fakeAuth) *env {
	t.Helper()
	e := &env{
		users:     newFakeUsers(),
		sessions:  newFakeSessions(),
		favorites: &fakeFavorites{},
		channels:  &fakeFactory{},
		slots:     slots.NewManager(capacity),
	}
	engine := booking.NewEngine(booking.Config{Auth: auth, Store: e.sessions})
	e.convs = conversation.NewManager(conversation.Deps{
		Engine:   engine,
		Slots:    e.slots,
		Sessions: e.sessions,
		Profiles: e.users,
		Timeouts: conversation.Timeouts{Idle: time.Minute},
	})
	e.svc = NewService(Deps{
		Users:         e.users,
		Sessions:      e.sessions,
		Favorites:     e.favorites,
		Engine:        engine,
		Slots:         e.slots,
		Conversations: e.convs,
		Channels:      e.channels,
		PromptTimeout: time.Second,
	})
	return e
}

func (e *env) run(t *testing.T, userID, line string, admin bool) *fakeChannel {
	t.Helper()
	cmd, ok := Parse(line)
	if !ok {
		t.Fatalf("Parse(%q) = false", line)
	}
	reply := &fakeChannel{id: "main"}
	e.svc.Handle(context.Background(), Invocation{UserID: userID, Admin: admin, Reply: reply, Cmd: cmd})
	return reply
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
