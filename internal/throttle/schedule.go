// Package throttle spreads a purchased lead package over several days.
package throttle

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

type Mode string

const (
	Conservative Mode = "conservative"
	Standard     Mode = "standard"
	Aggressive   Mode = "aggressive"
)

// DateLayout is the key format of a Schedule.
const DateLayout = "2006-01-02"

// MaxQuantity caps one package. Even the slowest mode keeps the plan within
// a few years of the start date.
const MaxQuantity = 10_000

// Jitter is the maximum daily deviation applied on top of the random target.
const Jitter = 2

// Bounds is the inclusive per-day delivery range of a mode.
type Bounds struct {
	Min int
	Max int
}

var modeBounds = map[Mode]Bounds{
	Conservative: {Min: 3, Max: 5},
	Standard:     {Min: 5, Max: 7},
	Aggressive:   {Min: 8, Max: 12},
}

var (
	ErrUnknownMode     = errors.New("unknown throttle mode")
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
)

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return Standard, nil
	}
	if _, ok := modeBounds[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

func (m Mode) Bounds() (Bounds, bool) {
	b, ok := modeBounds[m]
	return b, ok
}

// Schedule maps an ISO date to the number of leads to deliver that day.
type Schedule map[string]int

func (s Schedule) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// Dates returns the schedule keys in calendar order.
func (s Schedule) Dates() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

type Option func(*options)

type options struct {
	skipWeekends bool
}

// SkipWeekends leaves Saturdays and Sundays out of the plan.
func SkipWeekends(skip bool) Option {
	return func(o *options) { o.skipWeekends = skip }
}

// Generate walks forward from start and assigns each day a target inside the
// mode bounds. The first day is halved (minimum 1) and the last day is capped
// so the targets sum to qty exactly.
func Generate(qty int, start time.Time, mode Mode, rng *rand.Rand, opts ...Option) (Schedule, error) {
	if qty <= 0 || qty > MaxQuantity {
		return nil, ErrInvalidQuantity
	}
	b, ok := mode.Bounds()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := Schedule{}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	remaining := qty
	first := true
	for remaining > 0 {
		if o.skipWeekends && isWeekend(day) {
			day = day.AddDate(0, 0, 1)
			continue
		}
		target := b.Min + rng.Intn(b.Max-b.Min+1)
		target += rng.Intn(2*Jitter+1) - Jitter
		target = clamp(target, b.Min, b.Max)
		if first {
			target /= 2
			if target < 1 {
				target = 1
			}
			first = false
		}
		if target > remaining {
			target = remaining
		}
		s[day.Format(DateLayout)] = target
		remaining -= target
		day = day.AddDate(0, 0, 1)
	}
	return s, nil
}

// IsThrottled reports whether deliveredToday already meets the target for
// today. Days without an entry have a target of zero.
func IsThrottled(s Schedule, today string, deliveredToday int) bool {
	return deliveredToday >= s[today]
}

// Today formats now as a schedule key in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
