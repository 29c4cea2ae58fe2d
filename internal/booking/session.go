package booking

import (
	"fmt"
	"strings"
	"sync"

	"github.com/example/railbot/internal/rail"
)

type Status string

const (
	StatusSetup     Status = "setup"
	StatusSearching Status = "searching"
	StatusReserved  Status = "reserved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

var transitions = map[Status][]Status{
	StatusSetup:     {StatusSearching, StatusCancelled, StatusTimeout, StatusError},
	StatusSearching: {StatusReserved, StatusCancelled, StatusTimeout, StatusError},
	StatusReserved:  {StatusPaid},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the polling loop is done with a session in s.
func (s Status) Terminal() bool {
	return s != StatusSetup && s != StatusSearching
}

// Active statuses are the ones a live conversation can own.
func (s Status) Active() bool {
	return s == StatusSetup || s == StatusSearching || s == StatusReserved
}

func ParseStatus(v string) (Status, error) {
	st := Status(v)
	if _, ok := transitions[st]; ok {
		return st, nil
	}
	switch st {
	case StatusPaid, StatusCancelled, StatusTimeout, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown session status %q", v)
}

type Leg string

const (
	Outbound Leg = "outbound"
	Return   Leg = "return"
)

const MaxPassengers = 9

type PassengerInfo struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Seniors  int `json:"seniors"`
}

func (p PassengerInfo) Total() int { return p.Adults + p.Children + p.Seniors }

func (p PassengerInfo) Validate() error {
	if p.Adults < 0 || p.Children < 0 || p.Seniors < 0 {
		return &ValidationError{Field: "passengers", Msg: "passenger counts cannot be negative"}
	}
	if t := p.Total(); t < 1 || t > MaxPassengers {
		return &ValidationError{Field: "passengers", Msg: fmt.Sprintf("total passengers must be between 1 and %d (got %d)", MaxPassengers, t)}
	}
	return nil
}

func (p PassengerInfo) Description() string {
	var parts []string
	add := func(n int, one, many string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+one)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, many))
		}
	}
	add(p.Adults, "adult", "adults")
	add(p.Children, "child", "children")
	add(p.Seniors, "senior", "seniors")
	if len(parts) == 0 {
		return "no passengers"
	}
	return strings.Join(parts, ", ")
}

// Groups is the passenger breakdown sent with a reservation. Empty groups
// are left out.
func (p PassengerInfo) Groups() []rail.PassengerGroup {
	var out []rail.PassengerGroup
	if p.Adults > 0 {
		out = append(out, rail.PassengerGroup{Kind: rail.Adult, Count: p.Adults})
	}
	if p.Children > 0 {
		out = append(out, rail.PassengerGroup{Kind: rail.Child, Count: p.Children})
	}
	if p.Seniors > 0 {
		out = append(out, rail.PassengerGroup{Kind: rail.Senior, Count: p.Seniors})
	}
	return out
}

// Session is one attempt to book one leg. Parameters are filled in by the
// conversation before polling starts; afterwards only the polling loop
// mutates it.
type Session struct {
	ID        int64
	UserID    int64
	OwnerID   string
	ChannelID string
	Provider  rail.Provider
	Leg       Leg

	Departure  string
	Arrival    string
	Date       string
	Times      []string
	Passengers PassengerInfo
	Seat       rail.SeatPolicy
	Selected   []int
	AutoPay    bool

	mu          sync.Mutex
	status      Status
	attempts    int
	reservation string
	client      rail.Client
	trains      []rail.Train
}

func NewSession(id, userID int64, ownerID, channelID string, p rail.Provider, c rail.Client) *Session {
	return &Session{
		ID:         id,
		UserID:     userID,
		OwnerID:    ownerID,
		ChannelID:  channelID,
		Provider:   p,
		Leg:        Outbound,
		Passengers: PassengerInfo{Adults: 1},
		Seat:       rail.GeneralFirst,
		status:     StatusSetup,
		client:     c,
	}
}

// ReturnLeg builds the session for the opposite direction. It shares the
// passenger, seat and payment choices but has its own id and client.
func (s *Session) ReturnLeg(id int64, c rail.Client) *Session {
	r := NewSession(id, s.UserID, s.OwnerID, s.ChannelID, s.Provider, c)
	r.Leg = Return
	r.Departure, r.Arrival = s.Arrival, s.Departure
	r.Passengers = s.Passengers
	r.Seat = s.Seat
	r.AutoPay = s.AutoPay
	return r
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transition moves the session forward. It reports false, leaving the status
// untouched, when the state machine does not allow the move.
func (s *Session) Transition(to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransition(to) {
		return false
	}
	s.status = to
	return true
}

func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) nextAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Session) ReservationNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservation
}

func (s *Session) setReservationNumber(n string) {
	s.mu.Lock()
	s.reservation = n
	s.mu.Unlock()
}

func (s *Session) Client() rail.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) setClient(c rail.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

// Trains is the result of the most recent search. Selected indexes into it.
func (s *Session) Trains() []rail.Train {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trains
}

func (s *Session) setTrains(ts []rail.Train) {
	s.mu.Lock()
	s.trains = ts
	s.mu.Unlock()
}

func (s *Session) TimeCSV() string { return strings.Join(s.Times, ",") }

// SelectedTrains resolves Selected against the cached search result,
// skipping indexes that fall outside it.
func (s *Session) SelectedTrains() []rail.Train {
	trains := s.Trains()
	var out []rail.Train
	for _, i := range s.Selected {
		if i >= 0 && i < len(trains) {
			out = append(out, trains[i])
		}
	}
	return out
}
