// Package rail defines the capability the booking core needs from a rail
// ticket provider. Implementations live in subpackages.
package rail

import (
	"context"
	"fmt"
	"strings"
)

type Provider string

const (
	SRT Provider = "SRT"
	KTX Provider = "KTX"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToUpper(strings.TrimSpace(s))) {
	case SRT:
		return SRT, nil
	case KTX:
		return KTX, nil
	}
	return "", fmt.Errorf("unknown provider %q (want SRT or KTX)", s)
}

// Capabilities describes how a provider differs from the others.
type Capabilities struct {
	// DedicatedStandby is true when a sold-out train must be booked through
	// ReserveStandby. Providers without it fold the waiting list into Reserve.
	DedicatedStandby bool
}

func (p Provider) Capabilities() Capabilities {
	return Capabilities{DedicatedStandby: p == SRT}
}

type SeatPolicy string

const (
	GeneralFirst SeatPolicy = "GENERAL_FIRST"
	GeneralOnly  SeatPolicy = "GENERAL_ONLY"
	SpecialFirst SeatPolicy = "SPECIAL_FIRST"
	SpecialOnly  SeatPolicy = "SPECIAL_ONLY"
)

var SeatPolicies = []SeatPolicy{GeneralFirst, GeneralOnly, SpecialFirst, SpecialOnly}

func (s SeatPolicy) Valid() bool {
	switch s {
	case GeneralFirst, GeneralOnly, SpecialFirst, SpecialOnly:
		return true
	}
	return false
}

type PassengerKind string

const (
	Adult  PassengerKind = "adult"
	Child  PassengerKind = "child"
	Senior PassengerKind = "senior"
)

type PassengerGroup struct {
	Kind  PassengerKind `json:"kind"`
	Count int           `json:"count"`
}

// Train is one search result. Times are HHMMSS, dates YYYYMMDD.
type Train struct {
	Provider   Provider `json:"provider"`
	Name       string   `json:"train_name"`
	Number     string   `json:"train_number"`
	DepStation string   `json:"dep_station"`
	ArrStation string   `json:"arr_station"`
	DepDate    string   `json:"dep_date"`
	DepTime    string   `json:"dep_time"`
	ArrTime    string   `json:"arr_time"`

	GeneralSeat bool `json:"general_seat"`
	SpecialSeat bool `json:"special_seat"`
	// StandbyOpen is the provider's standby or waiting-list opening.
	StandbyOpen bool `json:"standby_open"`

	GeneralState string `json:"general_state"`
	SpecialState string `json:"special_state"`

	// Ref is an opaque provider token identifying the train for reserve calls.
	Ref string `json:"ref"`
}

func (t Train) SeatAvailable() bool { return t.GeneralSeat || t.SpecialSeat }

// Key identifies a train across searches of different time buckets.
func (t Train) Key() string { return t.Number + "_" + t.DepTime }

type Reservation struct {
	Number     string   `json:"reservation_number"`
	Provider   Provider `json:"provider"`
	TrainName  string   `json:"train_name"`
	TrainNo    string   `json:"train_number"`
	DepStation string   `json:"dep_station"`
	ArrStation string   `json:"arr_station"`
	DepDate    string   `json:"dep_date"`
	DepTime    string   `json:"dep_time"`
	ArrTime    string   `json:"arr_time"`
	SeatCount  int      `json:"seat_count"`
	TotalCost  int      `json:"total_cost"`
	Waiting    bool     `json:"waiting"`
	Paid       bool     `json:"paid"`
	Deadline   string   `json:"payment_deadline"`
	Tickets    []string `json:"tickets"`
	Ref        string   `json:"ref"`
}

type Card struct {
	Number   string
	Password string
	Birthday string
	Expire   string
}

type Payment struct {
	Card
	Installments int
	// CardType is "J" for a personal card (6 digit birthday) and "S" for a
	// corporate one.
	CardType string
}

type SearchQuery struct {
	Dep, Arr   string
	Date, Time string
	Passengers []PassengerGroup
	// IncludeUnavailable keeps sold-out trains in the result.
	IncludeUnavailable bool
}

// Client is an authenticated provider session. Calls block on the network,
// and a Client must not be shared between concurrently running loops.
type Client interface {
	Provider() Provider
	Search(ctx context.Context, q SearchQuery) ([]Train, error)
	Reserve(ctx context.Context, t Train, passengers []PassengerGroup, seat SeatPolicy) (Reservation, error)
	ReserveStandby(ctx context.Context, t Train, passengers []PassengerGroup, seat SeatPolicy) (Reservation, error)
	PayWithCard(ctx context.Context, r Reservation, p Payment) (bool, error)
	Cancel(ctx context.Context, r Reservation) (bool, error)
	Reservations(ctx context.Context) ([]Reservation, error)
	// ClearChallenge drops any anti-bot challenge token held by the session.
	ClearChallenge()
}

// Dialer opens sessions against one provider.
type Dialer interface {
	Login(ctx context.Context, user, pass string) (Client, error)
}
