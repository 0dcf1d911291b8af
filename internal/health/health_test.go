package health

import (
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	t.Parallel()
	s := Collect()
	if s.Status != "healthy" {
		t.Errorf("Status = %q", s.Status)
	}
	if s.Goroutines < 1 {
		t.Errorf("Goroutines = %d, want at least 1", s.Goroutines)
	}
	if s.Memory.AllocMB <= 0 || s.Memory.SysMB <= 0 {
		t.Errorf("Memory = %+v, want positive usage", s.Memory)
	}
	if s.Runtime.Version == "" || s.Runtime.CPUs < 1 {
		t.Errorf("Runtime = %+v", s.Runtime)
	}
	if _, err := time.Parse(time.RFC3339, s.Timestamp); err != nil {
		t.Errorf("Timestamp %q not RFC3339: %v", s.Timestamp, err)
	}
	if s.Uptime == "" {
		t.Error("Uptime is empty")
	}
}

func TestFormatUptime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h 30m"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
		{73 * time.Hour, "3d 1h 0m"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.d); got != tc.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
