package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlementsam/internal/throttle"
)

// runCLI executes the root command with fresh flag values and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	schedulePreviewCmd.Flags().VisitAll(reset)
	configPath = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func fixNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func firstDate(t *testing.T, out string) string {
	t.Helper()
	line, _, _ := strings.Cut(out, "\n")
	date, _, _ := strings.Cut(line, " ")
	return date
}

func TestSchedulePreviewTotals(t *testing.T) {
	out, err := runCLI(t, "--config", missingConfig(t), "schedule", "preview", "--qty", "10", "--start", "2026-03-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-02", firstDate(t, out))
	assert.Contains(t, out, "total        10 over ")
}

func TestSchedulePreviewTodayUsesZone(t *testing.T) {
	// 21:00 on March 2 in New York
	fixNow(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC))
	cfgPath := missingConfig(t)

	tests := []struct {
		name string
		tz   string
		want string
	}{
		{name: "utc default", want: "2026-03-03"},
		{name: "new york", tz: "America/New_York", want: "2026-03-02"},
		{name: "tokyo", tz: "Asia/Tokyo", want: "2026-03-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"--config", cfgPath, "schedule", "preview", "--qty", "5"}
			if tt.tz != "" {
				args = append(args, "--tz", tt.tz)
			}
			out, err := runCLI(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, firstDate(t, out))
		})
	}
}

func TestSchedulePreviewReadsDeliveryConfig(t *testing.T) {
	fixNow(t, time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwt_secret: "0123456789abcdef0123"
delivery:
  time_zone: America/Los_Angeles
  skip_weekends: true
`), 0o600))

	out, err := runCLI(t, "--config", path, "schedule", "preview", "--qty", "5")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", firstDate(t, out))

	// 2026-03-07 is a Saturday
	out, err = runCLI(t, "--config", path, "schedule", "preview", "--qty", "5", "--start", "2026-03-07")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", firstDate(t, out))

	out, err = runCLI(t, "--config", path, "schedule", "preview", "--qty", "5", "--start", "2026-03-07", "--skip-weekends=false")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-07", firstDate(t, out))
}

func TestSchedulePreviewRejectsBadInput(t *testing.T) {
	cfgPath := missingConfig(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad zone", args: []string{"--qty", "5", "--tz", "Mars/Olympus"}, want: "--tz"},
		{name: "bad start", args: []string{"--qty", "5", "--start", "03/02/2026"}, want: "--start"},
		{name: "bad mode", args: []string{"--qty", "5", "--mode", "reckless"}, want: "reckless"},
		{name: "oversized", args: []string{"--qty", "20000000"}, want: throttle.ErrInvalidQuantity.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfgPath, "schedule", "preview"}, tt.args...)
			_, err := runCLI(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
