package llm

import (
	"encoding/json"
	"testing"

	"github.com/alfredhq/backend/internal/apperr"
)

func TestParseMeetingsSummaryOutput_Valid(t *testing.T) {
	raw := json.RawMessage(`{"version":"2024-01","title":"Today's meetings","summary":"You have 1 meeting.","key_points":["16:30 UTC - Team Sync"],"follow_ups":[]}`)

	out, err := ParseMeetingsSummaryOutput(raw)
	if err != nil {
		t.Fatalf("ParseMeetingsSummaryOutput() error = %v", err)
	}
	if out.Title != "Today's meetings" {
		t.Errorf("Title = %q, want %q", out.Title, "Today's meetings")
	}
}

func TestParseMeetingsSummaryOutput_RejectsWrongVersion(t *testing.T) {
	raw := json.RawMessage(`{"version":"1999-01","title":"x","summary":"y","key_points":[],"follow_ups":[]}`)

	_, err := ParseMeetingsSummaryOutput(raw)
	if apperr.KindOf(err) != apperr.KindContractRejected {
		t.Errorf("kind = %v, want %v", apperr.KindOf(err), apperr.KindContractRejected)
	}
}

func TestParseMeetingsSummaryOutput_RejectsEmptyTitle(t *testing.T) {
	raw := json.RawMessage(`{"version":"2024-01","title":"","summary":"y","key_points":[],"follow_ups":[]}`)

	_, err := ParseMeetingsSummaryOutput(raw)
	if apperr.KindOf(err) != apperr.KindContractRejected {
		t.Errorf("kind = %v, want %v", apperr.KindOf(err), apperr.KindContractRejected)
	}
}

func TestParseMorningBriefOutput_RejectsMalformedJSON(t *testing.T) {
	_, err := ParseMorningBriefOutput(json.RawMessage(`not json`))
	if apperr.KindOf(err) != apperr.KindContractRejected {
		t.Errorf("kind = %v, want %v", apperr.KindOf(err), apperr.KindContractRejected)
	}
}

func TestParseUrgentEmailSummaryOutput_RejectsUnknownUrgency(t *testing.T) {
	raw := json.RawMessage(`{"version":"2024-01","should_notify":true,"urgency":"ludicrous","summary":"s","reason":"r","suggested_actions":[]}`)

	_, err := ParseUrgentEmailSummaryOutput(raw)
	if apperr.KindOf(err) != apperr.KindContractRejected {
		t.Errorf("kind = %v, want %v", apperr.KindOf(err), apperr.KindContractRejected)
	}
}

func TestParseUrgentEmailSummaryOutput_AcceptsKnownUrgency(t *testing.T) {
	raw := json.RawMessage(`{"version":"2024-01","should_notify":true,"urgency":"high","summary":"s","reason":"r","suggested_actions":["reply"]}`)

	out, err := ParseUrgentEmailSummaryOutput(raw)
	if err != nil {
		t.Fatalf("ParseUrgentEmailSummaryOutput() error = %v", err)
	}
	if out.Urgency != "high" {
		t.Errorf("Urgency = %q, want %q", out.Urgency, "high")
	}
}

func TestNotificationFromMorningBrief_JoinsNonEmptySegments(t *testing.T) {
	out := MorningBriefOutput{
		Version:    "2024-01",
		Headline:   "Good morning",
		Summary:    "3 meetings today",
		Priorities: []string{"Finish the report"},
		Schedule:   []string{"9am standup"},
		Alerts:     nil,
	}

	title, body := NotificationFromMorningBrief(out)
	if title != "Good morning" {
		t.Errorf("title = %q, want %q", title, "Good morning")
	}
	want := "3 meetings today • Finish the report • 9am standup"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestNotificationFromMorningBrief_AllEmptyFallsBackToDefaults(t *testing.T) {
	title, body := NotificationFromMorningBrief(MorningBriefOutput{})
	if title != "Morning brief" {
		t.Errorf("title = %q, want %q", title, "Morning brief")
	}
	if body != "Nothing new to report." {
		t.Errorf("body = %q, want %q", body, "Nothing new to report.")
	}
}

func TestTruncateNotification_ClampsToMaxLength(t *testing.T) {
	long := make([]rune, 200)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateNotification(string(long), notificationBodyMaxChars)
	if len([]rune(got)) != notificationBodyMaxChars {
		t.Errorf("len = %d, want %d", len([]rune(got)), notificationBodyMaxChars)
	}
}
