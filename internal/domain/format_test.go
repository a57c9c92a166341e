package domain

import (
	"testing"
	"time"
)

func TestSessionTimeFormats(t *testing.T) {
	d := 1*time.Hour + 2*time.Minute + 3*time.Second + 450*time.Millisecond

	if got, want := Scorm12Time(d), "0001:02:03.45"; got != want {
		t.Errorf("Scorm12Time = %q, want %q", got, want)
	}
	if got, want := ISO8601Duration(d), "PT1H2M3.45S"; got != want {
		t.Errorf("ISO8601Duration = %q, want %q", got, want)
	}
	if got, want := AICCTime(d), "01:02:03"; got != want {
		t.Errorf("AICCTime = %q, want %q", got, want)
	}
}

func TestISO8601DurationZero(t *testing.T) {
	if got := ISO8601Duration(0); got != "PT0S" {
		t.Errorf("ISO8601Duration(0) = %q, want PT0S", got)
	}
	if got := ISO8601Duration(5 * time.Minute); got != "PT5M" {
		t.Errorf("ISO8601Duration(5m) = %q, want PT5M", got)
	}
}

func TestRequestDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	req := CompletionRequest{StartedAt: start}
	if got := req.Duration(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", got)
	}

	req.SessionTime = time.Minute
	if got := req.Duration(start.Add(time.Hour)); got != time.Minute {
		t.Errorf("explicit SessionTime should win, got %v", got)
	}
}
