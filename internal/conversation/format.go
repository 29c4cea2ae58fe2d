package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/rail"
)

// FormatDate renders YYYYMMDD as YYYY/MM/DD.
func FormatDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "/" + d[4:6] + "/" + d[6:]
}

// FormatClock renders HHMMSS as HH:MM.
func FormatClock(t string) string {
	if len(t) < 4 {
		return t
	}
	return t[:2] + ":" + t[2:4]
}

func SeatPolicyLabel(p rail.SeatPolicy) string {
	switch p {
	case rail.GeneralFirst:
		return "General first"
	case rail.GeneralOnly:
		return "General only"
	case rail.SpecialFirst:
		return "Special first"
	case rail.SpecialOnly:
		return "Special only"
	}
	return string(p)
}

func TrainLabel(t rail.Train) string {
	return fmt.Sprintf("%s %s | %s→%s", t.Name, t.Number, FormatClock(t.DepTime), FormatClock(t.ArrTime))
}

func SeatInfo(t rail.Train) string {
	state := func(open bool, desc string) string {
		if desc != "" {
			return desc
		}
		if open {
			return "available"
		}
		return "sold out"
	}
	parts := []string{
		"general: " + state(t.GeneralSeat, t.GeneralState),
		"special: " + state(t.SpecialSeat, t.SpecialState),
	}
	if t.StandbyOpen {
		parts = append(parts, "standby: open")
	}
	return strings.Join(parts, " | ")
}

func legTitle(p rail.Provider, leg booking.Leg) string {
	if leg == booking.Return {
		return fmt.Sprintf("%s return", p)
	}
	return string(p)
}

func TrainListMessage(s *booking.Session, trains []rail.Train) Message {
	m := Message{
		Title:  fmt.Sprintf("Search results (%s)", legTitle(s.Provider, s.Leg)),
		Text:   fmt.Sprintf("**%s** → **%s** | %s", s.Departure, s.Arrival, FormatDate(s.Date)),
		Footer: "Pick the trains to book",
	}
	for i, t := range trains {
		if i == MaxOptions {
			break
		}
		m.Fields = append(m.Fields, Field{
			Name:   fmt.Sprintf("%d. %s %s", i+1, t.Name, t.Number),
			Value:  fmt.Sprintf("%s → %s\n%s", FormatClock(t.DepTime), FormatClock(t.ArrTime), SeatInfo(t)),
			Inline: true,
		})
	}
	return m
}

func trainsSummary(s *booking.Session) string {
	var lines []string
	for _, t := range s.SelectedTrains() {
		lines = append(lines, fmt.Sprintf("%s %s (%s→%s)", t.Name, t.Number, FormatClock(t.DepTime), FormatClock(t.ArrTime)))
	}
	if len(lines) == 0 {
		return "none"
	}
	return strings.Join(lines, "\n")
}

func timesSummary(times []string) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = FormatClock(t) + "~"
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// SummaryMessage lists every leg for the final confirmation.
func SummaryMessage(legs ...*booking.Session) Message {
	m := Message{Title: fmt.Sprintf("Confirm booking (%s)", legs[0].Provider), Footer: "Press start to begin booking"}
	for _, s := range legs {
		prefix := ""
		if s.Leg == booking.Return {
			prefix = "Return "
		}
		m.Fields = append(m.Fields,
			Field{Name: prefix + "Route", Value: s.Departure + " → " + s.Arrival, Inline: true},
			Field{Name: prefix + "Date", Value: FormatDate(s.Date), Inline: true},
			Field{Name: prefix + "Times", Value: timesSummary(s.Times), Inline: true},
			Field{Name: prefix + "Trains", Value: trainsSummary(s)},
		)
	}
	first := legs[0]
	m.Fields = append(m.Fields,
		Field{Name: "Passengers", Value: first.Passengers.Description(), Inline: true},
		Field{Name: "Seat", Value: SeatPolicyLabel(first.Seat), Inline: true},
		Field{Name: "Auto-pay", Value: yesNo(first.AutoPay), Inline: true},
	)
	return m
}

func SearchingMessage(s *booking.Session, attempt int, elapsed time.Duration) Message {
	return Message{
		Title: fmt.Sprintf("Booking in progress... (%s)", legTitle(s.Provider, s.Leg)),
		Text:  fmt.Sprintf("Attempts: **%d** | Elapsed: %s", attempt, booking.FormatElapsed(elapsed)),
		Tone:  ToneWarning,
	}
}

func ReservationDetail(r rail.Reservation) string {
	lines := []string{
		fmt.Sprintf("%s %s %s %s→%s (%s→%s)", r.TrainName, r.TrainNo, FormatDate(r.DepDate),
			FormatClock(r.DepTime), FormatClock(r.ArrTime), r.DepStation, r.ArrStation),
		fmt.Sprintf("%d seat(s), %d won", r.SeatCount, r.TotalCost),
	}
	if r.Waiting {
		lines = append(lines, "Waiting list reservation")
	} else if r.Deadline != "" {
		lines = append(lines, "Pay by "+r.Deadline)
	}
	lines = append(lines, r.Tickets...)
	return strings.Join(lines, "\n")
}

func SuccessMessage(s *booking.Session, r rail.Reservation) Message {
	m := Message{
		Title:  fmt.Sprintf("Booked! (%s)", legTitle(s.Provider, s.Leg)),
		Text:   ReservationDetail(r),
		Footer: "This channel will be deleted shortly",
		Tone:   ToneSuccess,
	}
	if r.Number != "" {
		m.Fields = []Field{{Name: "Reservation number", Value: r.Number}}
	}
	return m
}

func ErrorMessage(text string) Message {
	return Message{Title: "Error", Text: text, Tone: ToneDanger}
}
