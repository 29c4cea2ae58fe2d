package conversation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/store"
)

const (
	manualRoute = "manual"
	oneWay      = "one-way"
	roundTrip   = "round-trip"
	answerYes   = "yes"
	answerNo    = "no"
	answerStart = "start"
	answerStop  = "cancel"

	bookableDays = 25
)

func stationPrompt(text string, names []string) SelectPrompt {
	opts := make([]Option, len(names))
	for i, n := range names {
		opts[i] = Option{Label: n, Value: n}
	}
	return SelectPrompt{Text: text, Menus: Menus("Station", opts), MaxValues: 1}
}

func favoritePrompt(favs []store.Favorite) SelectPrompt {
	opts := make([]Option, 0, len(favs)+1)
	for _, f := range favs {
		opts = append(opts, Option{Label: f.Label(), Value: strconv.FormatInt(f.ID, 10)})
	}
	opts = append(opts, Option{Label: "Choose manually", Value: manualRoute, Description: "Pick departure and arrival stations"})
	return SelectPrompt{Text: "Choose a route:", Menus: []Menu{{Placeholder: "Favorite routes", Options: opts}}, MaxValues: 1}
}

func tripTypePrompt() SelectPrompt {
	return SelectPrompt{
		Text: "One-way or round trip?",
		Menus: []Menu{{Placeholder: "Trip type", Options: []Option{
			{Label: "One-way", Value: oneWay},
			{Label: "Round trip", Value: roundTrip},
		}}},
		MaxValues: 1,
	}
}

// dateOptions offers today and the following days a booking can be made for.
func dateOptions(today time.Time) []Option {
	opts := make([]Option, bookableDays)
	for i := range opts {
		d := today.AddDate(0, 0, i)
		opts[i] = Option{Label: d.Format("2006/01/02 Mon"), Value: d.Format("20060102")}
	}
	return opts
}

func datePrompt(text string, today time.Time) SelectPrompt {
	return SelectPrompt{Text: text, Menus: []Menu{{Placeholder: "Date", Options: dateOptions(today)}}, MaxValues: 1}
}

// timeOptions are the 24 hourly departure buckets.
func timeOptions() []Option {
	opts := make([]Option, 24)
	for h := range opts {
		opts[h] = Option{Label: fmt.Sprintf("%02d:00~", h), Value: fmt.Sprintf("%02d0000", h)}
	}
	return opts
}

func timePrompt(text string) SelectPrompt {
	return SelectPrompt{Text: text, Menus: []Menu{{Placeholder: "Departure times", Options: timeOptions()}}, MaxValues: 24}
}

func passengerForm() FormPrompt {
	field := func(key, label, ph string) FormField {
		return FormField{Key: key, Label: label, Placeholder: ph, MaxLength: 1, Optional: true}
	}
	return FormPrompt{
		Title: "Passengers",
		Fields: []FormField{
			field("adults", "Adults", "1"),
			field("children", "Children", "0"),
			field("seniors", "Seniors", "0"),
		},
	}
}

// parsePassengers reads the passenger form. Blank counts are zero.
func parsePassengers(in map[string]string) (booking.PassengerInfo, error) {
	count := func(key, label string) (int, error) {
		v := strings.TrimSpace(in[key])
		if v == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > booking.MaxPassengers {
			return 0, &booking.ValidationError{Field: key, Msg: fmt.Sprintf("%s must be a number from 0 to %d", label, booking.MaxPassengers)}
		}
		return n, nil
	}
	var (
		p   booking.PassengerInfo
		err error
	)
	if p.Adults, err = count("adults", "Adults"); err != nil {
		return p, err
	}
	if p.Children, err = count("children", "Children"); err != nil {
		return p, err
	}
	if p.Seniors, err = count("seniors", "Seniors"); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func trainPrompt(trains []rail.Train) SelectPrompt {
	n := len(trains)
	if n > MaxOptions {
		n = MaxOptions
	}
	opts := make([]Option, n)
	for i := 0; i < n; i++ {
		opts[i] = Option{Label: TrainLabel(trains[i]), Value: strconv.Itoa(i), Description: truncate(SeatInfo(trains[i]), 100)}
	}
	return SelectPrompt{
		Text:      "Choose the trains to book (several allowed, tried in order):",
		Menus:     []Menu{{Placeholder: "Trains", Options: opts}},
		MaxValues: n,
	}
}

func parseIndexes(values []string) ([]int, error) {
	out := make([]int, 0, len(values))
	for _, v := range values {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			return nil, &booking.ValidationError{Field: "trains", Msg: fmt.Sprintf("invalid train choice %q", v)}
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return nil, &booking.ValidationError{Field: "trains", Msg: "choose at least one train"}
	}
	return out, nil
}

func seatPrompt() SelectPrompt {
	opts := make([]Option, len(rail.SeatPolicies))
	for i, p := range rail.SeatPolicies {
		opts[i] = Option{Label: SeatPolicyLabel(p), Value: string(p)}
	}
	return SelectPrompt{Text: "Choose the seat class:", Menus: []Menu{{Placeholder: "Seat class", Options: opts}}, MaxValues: 1}
}

func yesNoPrompt(text string) SelectPrompt {
	return SelectPrompt{
		Text:      text,
		Menus:     []Menu{{Placeholder: "Answer", Options: []Option{{Label: "Yes", Value: answerYes}, {Label: "No", Value: answerNo}}}},
		MaxValues: 1,
	}
}

func confirmPrompt() SelectPrompt {
	return SelectPrompt{
		Text: "Start booking?",
		Menus: []Menu{{Placeholder: "Start or cancel", Options: []Option{
			{Label: "Start booking", Value: answerStart},
			{Label: "Cancel", Value: answerStop},
		}}},
		MaxValues: 1,
	}
}

func sortedTimes(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
