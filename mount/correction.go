package mount

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// correctionRadius is the distance in degrees within which recorded
	// slew errors contribute to an estimate.
	correctionRadius = 10.0 / 60
	// correctionMaxAge bounds the age of contributing samples.
	correctionMaxAge = 12 * time.Hour
)

type correctionSample struct {
	ra, dec   float64
	dRA, dDec float64
	at        time.Time
}

// Correction is an in-memory model of slew errors. When enabled, slews are
// offset by the median error recorded near the target, and the polled target
// position has the last offset removed.
type Correction struct {
	mu      sync.Mutex
	enabled bool
	samples []correctionSample
	// last estimate, in hours and degrees
	dRA, dDec float64
}

func (c *Correction) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *Correction) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Add records a measured slew error at ra (hours), dec (degrees).
func (c *Correction) Add(ra, dec, dRA, dDec float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, correctionSample{ra: ra, dec: dec, dRA: dRA, dDec: dDec, at: at})
}

// Estimate returns the median error of samples near ra, dec, and remembers
// it for Last.
func (c *Correction) Estimate(ra, dec float64, now time.Time) (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dRAs, dDecs []float64
	for _, s := range c.samples {
		if math.Abs(now.Sub(s.at).Hours()) >= correctionMaxAge.Hours() {
			continue
		}
		if math.Hypot(hourDiff(ra, s.ra)*15, dec-s.dec) >= correctionRadius {
			continue
		}
		dRAs = append(dRAs, s.dRA)
		dDecs = append(dDecs, s.dDec)
	}
	c.dRA, c.dDec = median(dRAs), median(dDecs)
	return c.dRA, c.dDec
}

// Last returns the most recent estimate.
func (c *Correction) Last() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dRA, c.dDec
}

// hourDiff returns a-b wrapped into [-12, 12).
func hourDiff(a, b float64) float64 {
	d := math.Mod(a-b+12, 24)
	if d < 0 {
		d += 24
	}
	return d - 12
}

// wrapHours wraps h into [0, 24).
func wrapHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
