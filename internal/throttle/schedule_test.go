package throttle

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSumsToQuantity(t *testing.T) {
	start := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	for _, mode := range []Mode{Conservative, Standard, Aggressive} {
		b, _ := mode.Bounds()
		for _, qty := range []int{1, 2, 7, 25, 100, 333} {
			for seed := int64(1); seed <= 20; seed++ {
				s, err := Generate(qty, start, mode, rand.New(rand.NewSource(seed)))
				require.NoError(t, err)
				assert.Equal(t, qty, s.Total(), "mode=%s qty=%d seed=%d", mode, qty, seed)

				dates := s.Dates()
				require.NotEmpty(t, dates)
				assert.Equal(t, "2026-03-02", dates[0])

				firstCap := (b.Max + 1) / 2
				assert.LessOrEqual(t, s[dates[0]], firstCap)
				assert.GreaterOrEqual(t, s[dates[0]], 1)

				for i, d := range dates {
					if i == 0 || i == len(dates)-1 {
						continue
					}
					assert.GreaterOrEqual(t, s[d], b.Min, "day %s", d)
					assert.LessOrEqual(t, s[d], b.Max, "day %s", d)
				}
				last := dates[len(dates)-1]
				assert.LessOrEqual(t, s[last], b.Max)
			}
		}
	}
}

func TestGenerateConsecutiveDays(t *testing.T) {
	start := time.Date(2026, 12, 30, 0, 0, 0, 0, time.UTC)
	s, err := Generate(40, start, Conservative, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	dates := s.Dates()
	for i := 1; i < len(dates); i++ {
		prev, _ := time.Parse(DateLayout, dates[i-1])
		cur, _ := time.Parse(DateLayout, dates[i])
		assert.Equal(t, 24*time.Hour, cur.Sub(prev))
	}
}

func TestGenerateSkipWeekends(t *testing.T) {
	// 2026-03-06 is a Friday.
	start := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	s, err := Generate(30, start, Standard, rand.New(rand.NewSource(3)), SkipWeekends(true))
	require.NoError(t, err)
	assert.Equal(t, 30, s.Total())
	for _, d := range s.Dates() {
		day, _ := time.Parse(DateLayout, d)
		assert.NotEqual(t, time.Saturday, day.Weekday())
		assert.NotEqual(t, time.Sunday, day.Weekday())
	}
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, _ := Generate(50, start, Aggressive, rand.New(rand.NewSource(42)))
	b, _ := Generate(50, start, Aggressive, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, err := Generate(0, time.Now(), Standard, nil)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = Generate(MaxQuantity+1, time.Now(), Conservative, nil)
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = Generate(10, time.Now(), Mode("turbo"), nil)
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Aggressive ")
	require.NoError(t, err)
	assert.Equal(t, Aggressive, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Standard, m)

	_, err = ParseMode("warp")
	assert.Error(t, err)
}

func TestIsThrottled(t *testing.T) {
	s := Schedule{"2026-03-02": 3}

	assert.False(t, IsThrottled(s, "2026-03-02", 2))
	assert.True(t, IsThrottled(s, "2026-03-02", 3))
	assert.True(t, IsThrottled(s, "2026-03-02", 4))
	assert.True(t, IsThrottled(s, "2026-03-03", 0), "missing day has a zero target")
}

func TestToday(t *testing.T) {
	ny := time.FixedZone("EST", -5*3600)
	now := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", Today(now, ny))
	assert.Equal(t, "2026-03-03", Today(now, nil))
}

func TestGenerateLargestPackageStaysOrdered(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s, err := Generate(MaxQuantity, start, Conservative, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, s.Total())

	dates := s.Dates()
	assert.Equal(t, "2026-01-05", dates[0])
	last, err := time.Parse(DateLayout, dates[len(dates)-1])
	require.NoError(t, err)
	assert.Less(t, last.Year(), 2036)
}
