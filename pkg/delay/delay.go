package delay

import (
	"fmt"
	"math"
	"sync/atomic"
)

const (
	Min     = 0.0
	Max     = 5.0
	Default = 1.0
)

// Clamp bounds seconds to [Min, Max]. Out of range values
// are never an error, NaN becomes Min.
func Clamp(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return Min
	}
	return math.Max(Min, math.Min(Max, seconds))
}

func Format(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

// Setting holds the current delay in seconds. It is safe to
// set from one goroutine while the tick loop reads it from another.
type Setting struct {
	bits uint64
}

func NewSetting(seconds float64) *Setting {
	s := Setting{}
	s.Set(seconds)
	return &s
}

// Set stores the clamped value and returns what was stored.
func (s *Setting) Set(seconds float64) float64 {
	v := Clamp(seconds)
	atomic.StoreUint64(&s.bits, math.Float64bits(v))
	return v
}

func (s *Setting) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.bits))
}

func (s *Setting) Millis() float64 {
	return s.Get() * 1000
}

// FromKey maps a number key onto a delay. A bare digit n selects
// n tenths of a second, with shift it selects n whole seconds. Zero
// always selects no delay.
func FromKey(r rune, shift bool) (float64, bool) {
	if r < '0' || r > '9' {
		return 0, false
	}
	digit := float64(r - '0')
	if shift {
		return Clamp(digit), true
	}
	return Clamp(digit / 10), true
}
