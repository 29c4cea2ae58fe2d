package booking

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// Jitter returns the pause before the next polling round.
type Jitter func() time.Duration

// GammaJitter draws from Gamma(shape, scale) seconds plus a fixed floor.
// With shape 4 and scale 0.25 the draws cluster around one second.
func GammaJitter(shape, scale float64, floor time.Duration) Jitter {
	g := distuv.Gamma{Alpha: shape, Beta: 1 / scale}
	return func() time.Duration {
		return floor + time.Duration(g.Rand()*float64(time.Second))
	}
}

// FixedJitter always waits d.
func FixedJitter(d time.Duration) Jitter {
	return func() time.Duration { return d }
}

// FormatElapsed renders d as HH:MM:SS.
func FormatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
