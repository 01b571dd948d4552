package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alfredhq/backend/internal/enclave"
)

const (
	calendarMaxResults = 20
	emailMaxResults    = 20
	maxKeyPoints       = 3
)

// GroundedPayload is the deterministic, hallucination-free output of a
// tool lane: built entirely from fetched provider data, never from model
// output, per the "deterministic grounded payload" requirement.
type GroundedPayload struct {
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	KeyPoints []string       `json:"key_points"`
	FollowUps []string       `json:"follow_ups"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// FilterEmails applies in-memory sender/keyword/unread/time-window
// filters to already-fetched candidates.
func FilterEmails(candidates []enclave.EmailCandidate, filters *enclave.EmailFilters, window *enclave.TimeWindow) []enclave.EmailCandidate {
	if filters == nil {
		return candidates
	}

	var out []enclave.EmailCandidate
	for _, c := range candidates {
		if filters.Sender != nil && !strings.Contains(strings.ToLower(c.From), strings.ToLower(*filters.Sender)) {
			continue
		}
		if len(filters.Keywords) > 0 && !matchesAllKeywords(c, filters.Keywords) {
			continue
		}
		if filters.UnreadOnly && !hasLabel(c.LabelIDs, "UNREAD") {
			continue
		}
		if window != nil && (c.ReceivedAt.Before(window.Start) || c.ReceivedAt.After(window.End)) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesAllKeywords(c enclave.EmailCandidate, keywords []string) bool {
	haystack := strings.ToLower(c.From + " " + c.Subject + " " + c.Snippet)
	for _, kw := range keywords {
		if !strings.Contains(haystack, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, target) {
			return true
		}
	}
	return false
}

// BuildCalendarPayload deterministically summarizes already-sorted
// calendar events (sorted start_at asc, title, id upstream in the Google
// client) against window's resolved label.
func BuildCalendarPayload(events []enclave.CalendarEvent, window enclave.TimeWindow) GroundedPayload {
	label := window.Label
	if label == "" {
		label = "the requested window"
	}

	if len(events) == 0 {
		title := noMeetingsTitle(label)
		return GroundedPayload{
			Title:   title,
			Summary: title + ".",
		}
	}

	keyPoints := make([]string, 0, maxKeyPoints)
	for i, e := range events {
		if i >= maxKeyPoints {
			break
		}
		keyPoints = append(keyPoints, fallbackMeetingKeyPoint(e))
	}

	title := meetingsTitle(label)
	return GroundedPayload{
		Title:     title,
		Summary:   fmt.Sprintf("%s. You have %d meeting(s) scheduled for %s.", title, len(events), label),
		KeyPoints: keyPoints,
		FollowUps: []string{"Open Calendar for full meeting details."},
	}
}

func meetingsTitle(label string) string {
	switch label {
	case "today":
		return "Today's meetings"
	case "tomorrow":
		return "Tomorrow's meetings"
	default:
		return fmt.Sprintf("Meetings for %s", label)
	}
}

func noMeetingsTitle(label string) string {
	switch label {
	case "today":
		return "No meetings today"
	case "tomorrow":
		return "No meetings tomorrow"
	default:
		return fmt.Sprintf("No meetings for %s", label)
	}
}

// fallbackMeetingKeyPoint renders one calendar event as a grounded key
// point: "{HH:MM UTC} - {title}", defaulting missing fields rather than
// dropping the event.
func fallbackMeetingKeyPoint(e enclave.CalendarEvent) string {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = "Untitled meeting"
	}
	startAt := "time TBD"
	if !e.StartAt.IsZero() {
		startAt = e.StartAt.UTC().Format("15:04 UTC")
	}
	return fmt.Sprintf("%s - %s", startAt, title)
}

// BuildEmailPayload deterministically summarizes filtered email
// candidates (sorted received_at desc upstream).
func BuildEmailPayload(candidates []enclave.EmailCandidate) GroundedPayload {
	if len(candidates) == 0 {
		return GroundedPayload{
			Title:   "No matching emails",
			Summary: "No emails matched your request.",
		}
	}

	keyPoints := make([]string, 0, maxKeyPoints)
	for i, c := range candidates {
		if i >= maxKeyPoints {
			break
		}
		subject := c.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		keyPoints = append(keyPoints, fmt.Sprintf("%s — %s", c.From, subject))
	}

	return GroundedPayload{
		Title:     fmt.Sprintf("%d matching email(s)", len(candidates)),
		Summary:   fmt.Sprintf("Found %d email(s) matching your request.", len(candidates)),
		KeyPoints: keyPoints,
		FollowUps: []string{"Want me to pull up the full message?"},
	}
}

// BuildMixedPayload combines calendar and email payloads for the mixed lane.
func BuildMixedPayload(calendar GroundedPayload, email GroundedPayload) GroundedPayload {
	return GroundedPayload{
		Title:     "Calendar & email summary",
		Summary:   calendar.Summary + " " + email.Summary,
		KeyPoints: append(append([]string{}, calendar.KeyPoints...), email.KeyPoints...),
		FollowUps: []string{"Want me to dig into either one further?"},
	}
}

// ResolveWindowLabel assigns a TimeWindow its display label: "today" or
// "tomorrow" when the window covers exactly that calendar day in its own
// timezone relative to now, otherwise a formatted absolute date range.
func ResolveWindowLabel(window enclave.TimeWindow, now time.Time) string {
	loc, err := time.LoadLocation(window.Timezone)
	if err != nil {
		loc = time.UTC
	}

	startLocal := window.Start.In(loc)
	endLocal := window.End.In(loc)
	nowLocal := now.In(loc)

	const dateLayout = "2006-01-02"
	startDate := startLocal.Format(dateLayout)
	todayDate := nowLocal.Format(dateLayout)
	tomorrowDate := nowLocal.AddDate(0, 0, 1).Format(dateLayout)

	spansAtMostOneDay := !endLocal.After(startLocal.Add(24 * time.Hour))

	switch {
	case spansAtMostOneDay && startDate == todayDate:
		return "today"
	case spansAtMostOneDay && startDate == tomorrowDate:
		return "tomorrow"
	default:
		return fmt.Sprintf("%s to %s (%s)", startLocal.Format("Jan 2"), endLocal.Format("Jan 2"), window.Timezone)
	}
}

// SortCalendarEvents sorts events start_at asc, then title, then id — the
// same deterministic order the Google client already applies, exposed
// here so lanes can re-sort after merging multiple fetches.
func SortCalendarEvents(events []enclave.CalendarEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].StartAt.Before(events[j].StartAt)
		}
		if events[i].Title != events[j].Title {
			return events[i].Title < events[j].Title
		}
		return events[i].ID < events[j].ID
	})
}

// SortEmailCandidates sorts candidates received_at desc.
func SortEmailCandidates(candidates []enclave.EmailCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.After(candidates[j].ReceivedAt)
	})
}
