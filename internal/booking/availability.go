package booking

import (
	"sort"

	"github.com/example/railbot/internal/rail"
)

// SeatAvailable applies the seat policy to a search result. A sold-out train
// counts as available only when its standby or waiting list is open.
func SeatAvailable(t rail.Train, policy rail.SeatPolicy) bool {
	if !t.SeatAvailable() {
		return t.StandbyOpen
	}
	switch policy {
	case rail.GeneralOnly:
		return t.GeneralSeat
	case rail.SpecialOnly:
		return t.SpecialSeat
	default:
		return true
	}
}

// MergeTrains joins per-time-bucket search results, keeping the first copy
// of each (train number, departure time) pair, ordered by departure time.
func MergeTrains(batches ...[]rail.Train) []rail.Train {
	seen := make(map[string]bool)
	var out []rail.Train
	for _, batch := range batches {
		for _, t := range batch {
			k := t.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DepTime < out[j].DepTime })
	return out
}

// CardType is "J" for a six digit birthday (personal card), "S" otherwise.
func CardType(birthday string) string {
	if len(birthday) == 6 {
		return "J"
	}
	return "S"
}
