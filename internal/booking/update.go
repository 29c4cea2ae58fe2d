package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/railbot/internal/rail"
)

// ValidationError is a user input problem. The step that produced it is
// asked again.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SessionUpdate lists the session fields that may change after creation.
// Nil fields are left alone.
type SessionUpdate struct {
	Departure         *string
	Arrival           *string
	Date              *string
	Times             []string
	Passengers        *PassengerInfo
	Seat              *rail.SeatPolicy
	SelectedTrains    []int
	AutoPay           *bool
	ReservationNumber *string
}

func (u SessionUpdate) Empty() bool {
	return u.Departure == nil && u.Arrival == nil && u.Date == nil && u.Times == nil &&
		u.Passengers == nil && u.Seat == nil && u.SelectedTrains == nil && u.AutoPay == nil &&
		u.ReservationNumber == nil
}

func (u SessionUpdate) Validate() error {
	if u.Departure != nil && *u.Departure == "" {
		return &ValidationError{Field: "departure", Msg: "departure station is empty"}
	}
	if u.Arrival != nil && *u.Arrival == "" {
		return &ValidationError{Field: "arrival", Msg: "arrival station is empty"}
	}
	if u.Departure != nil && u.Arrival != nil && *u.Departure == *u.Arrival {
		return &ValidationError{Field: "arrival", Msg: "departure and arrival are the same station"}
	}
	if u.Date != nil {
		if _, err := time.Parse("20060102", *u.Date); err != nil {
			return &ValidationError{Field: "date", Msg: fmt.Sprintf("invalid travel date %q", *u.Date)}
		}
	}
	if u.Times != nil {
		if len(u.Times) == 0 {
			return &ValidationError{Field: "times", Msg: "at least one departure time is required"}
		}
		for _, t := range u.Times {
			if _, err := time.Parse("150405", t); err != nil {
				return &ValidationError{Field: "times", Msg: fmt.Sprintf("invalid departure time %q", t)}
			}
		}
	}
	if u.Passengers != nil {
		if err := u.Passengers.Validate(); err != nil {
			return err
		}
	}
	if u.Seat != nil && !u.Seat.Valid() {
		return &ValidationError{Field: "seat", Msg: fmt.Sprintf("unknown seat policy %q", *u.Seat)}
	}
	if u.SelectedTrains != nil {
		if len(u.SelectedTrains) == 0 {
			return &ValidationError{Field: "trains", Msg: "at least one train must be selected"}
		}
		for _, i := range u.SelectedTrains {
			if i < 0 {
				return &ValidationError{Field: "trains", Msg: fmt.Sprintf("invalid train index %d", i)}
			}
		}
	}
	return nil
}

// ParamsUpdate captures every booking parameter of s, for persisting once
// the user confirms.
func ParamsUpdate(s *Session) SessionUpdate {
	dep, arr, date := s.Departure, s.Arrival, s.Date
	pass, seat, auto := s.Passengers, s.Seat, s.AutoPay
	return SessionUpdate{
		Departure:      &dep,
		Arrival:        &arr,
		Date:           &date,
		Times:          append([]string{}, s.Times...),
		Passengers:     &pass,
		Seat:           &seat,
		SelectedTrains: append([]int{}, s.Selected...),
		AutoPay:        &auto,
	}
}
