package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/alfredhq/backend/internal/enclave"
)

func TestResolveWindowLabel_Today(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	window := enclave.TimeWindow{Start: now, End: now.Add(24 * time.Hour), Timezone: "UTC"}

	if got := ResolveWindowLabel(window, now); got != "today" {
		t.Errorf("ResolveWindowLabel() = %q, want %q", got, "today")
	}
}

func TestResolveWindowLabel_Tomorrow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	window := enclave.TimeWindow{Start: start, End: start.Add(24 * time.Hour), Timezone: "UTC"}

	if got := ResolveWindowLabel(window, now); got != "tomorrow" {
		t.Errorf("ResolveWindowLabel() = %q, want %q", got, "tomorrow")
	}
}

func TestResolveWindowLabel_DateRangeFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	window := enclave.TimeWindow{Start: start, End: start.AddDate(0, 0, 7), Timezone: "UTC"}

	got := ResolveWindowLabel(window, now)
	if !strings.Contains(got, "Mar 5") || !strings.Contains(got, "Mar 12") {
		t.Errorf("ResolveWindowLabel() = %q, want a date range mentioning Mar 5 and Mar 12", got)
	}
}

func TestBuildCalendarPayload_TodayWithMeeting(t *testing.T) {
	window := enclave.TimeWindow{Label: "today"}
	events := []enclave.CalendarEvent{
		{Title: "Team Sync", StartAt: time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC)},
	}

	payload := BuildCalendarPayload(events, window)

	if payload.Title != "Today's meetings" {
		t.Errorf("Title = %q, want %q", payload.Title, "Today's meetings")
	}
	if !strings.HasPrefix(payload.Summary, "Today's meetings") {
		t.Errorf("Summary = %q, want it to start with %q", payload.Summary, "Today's meetings")
	}
	if len(payload.KeyPoints) != 1 || payload.KeyPoints[0] != "16:30 UTC - Team Sync" {
		t.Errorf("KeyPoints = %v, want [%q]", payload.KeyPoints, "16:30 UTC - Team Sync")
	}
}

func TestBuildCalendarPayload_TodayEmpty(t *testing.T) {
	window := enclave.TimeWindow{Label: "today"}

	payload := BuildCalendarPayload(nil, window)

	if payload.Title != "No meetings today" {
		t.Errorf("Title = %q, want %q", payload.Title, "No meetings today")
	}
}

func TestBuildCalendarPayload_TomorrowEmpty(t *testing.T) {
	window := enclave.TimeWindow{Label: "tomorrow"}

	payload := BuildCalendarPayload(nil, window)

	if payload.Title != "No meetings tomorrow" {
		t.Errorf("Title = %q, want %q", payload.Title, "No meetings tomorrow")
	}
}

func TestBuildCalendarPayload_UntitledAndMissingStart(t *testing.T) {
	window := enclave.TimeWindow{Label: "today"}
	events := []enclave.CalendarEvent{{Title: "  ", StartAt: time.Time{}}}

	payload := BuildCalendarPayload(events, window)

	if len(payload.KeyPoints) != 1 || payload.KeyPoints[0] != "time TBD - Untitled meeting" {
		t.Errorf("KeyPoints = %v, want [%q]", payload.KeyPoints, "time TBD - Untitled meeting")
	}
}

func TestBuildCalendarPayload_KeyPointsCappedAtThree(t *testing.T) {
	window := enclave.TimeWindow{Label: "today"}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := make([]enclave.CalendarEvent, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, enclave.CalendarEvent{Title: "Meeting", StartAt: base.Add(time.Duration(i) * time.Hour)})
	}

	payload := BuildCalendarPayload(events, window)
	if len(payload.KeyPoints) != 3 {
		t.Errorf("len(KeyPoints) = %d, want 3", len(payload.KeyPoints))
	}
}
