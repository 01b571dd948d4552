package llm

import (
	"encoding/json"
	"strings"

	"github.com/alfredhq/backend/internal/apperr"
)

// MeetingsSummaryOutput is the output contract for CapabilityMeetingsSummary.
type MeetingsSummaryOutput struct {
	Version   string   `json:"version"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	FollowUps []string `json:"follow_ups"`
}

// MorningBriefOutput is the output contract for CapabilityMorningBrief.
type MorningBriefOutput struct {
	Version    string   `json:"version"`
	Headline   string   `json:"headline"`
	Summary    string   `json:"summary"`
	Priorities []string `json:"priorities"`
	Schedule   []string `json:"schedule"`
	Alerts     []string `json:"alerts"`
}

// UrgentEmailSummaryOutput is the output contract for
// CapabilityUrgentEmailSummary.
type UrgentEmailSummaryOutput struct {
	Version          string   `json:"version"`
	ShouldNotify     bool     `json:"should_notify"`
	Urgency          string   `json:"urgency"`
	Summary          string   `json:"summary"`
	Reason           string   `json:"reason"`
	SuggestedActions []string `json:"suggested_actions"`
}

// GeneralChatSummaryOutput is the output contract for the chat capability,
// carried here for completeness even though the fast path and keyword
// fallback never need to validate it against a model response.
type GeneralChatSummaryOutput struct {
	Version       string   `json:"version"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"key_points"`
	FollowUps     []string `json:"follow_ups"`
	ResponseStyle string   `json:"response_style"`
}

var urgencyLevels = map[string]struct{}{
	"low": {}, "medium": {}, "high": {}, "critical": {},
}

// ParseMeetingsSummaryOutput validates raw against the meetings_summary
// contract: well-formed JSON, the pinned contract version, and a non-empty
// title.
func ParseMeetingsSummaryOutput(raw json.RawMessage) (*MeetingsSummaryOutput, error) {
	var out MeetingsSummaryOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindContractRejected, "meetings_summary_contract_invalid", err)
	}
	if err := checkContractVersion(CapabilityMeetingsSummary, out.Version); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Title) == "" {
		return nil, apperr.New(apperr.KindContractRejected, "meetings_summary_contract_invalid", "title is required")
	}
	return &out, nil
}

// ParseMorningBriefOutput validates raw against the morning_brief
// contract.
func ParseMorningBriefOutput(raw json.RawMessage) (*MorningBriefOutput, error) {
	var out MorningBriefOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindContractRejected, "morning_brief_contract_invalid", err)
	}
	if err := checkContractVersion(CapabilityMorningBrief, out.Version); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Headline) == "" {
		return nil, apperr.New(apperr.KindContractRejected, "morning_brief_contract_invalid", "headline is required")
	}
	return &out, nil
}

// ParseUrgentEmailSummaryOutput validates raw against the
// urgent_email_summary contract, including that urgency is one of the
// four recognized levels.
func ParseUrgentEmailSummaryOutput(raw json.RawMessage) (*UrgentEmailSummaryOutput, error) {
	var out UrgentEmailSummaryOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindContractRejected, "urgent_email_summary_contract_invalid", err)
	}
	if err := checkContractVersion(CapabilityUrgentEmailSummary, out.Version); err != nil {
		return nil, err
	}
	if _, ok := urgencyLevels[strings.ToLower(out.Urgency)]; !ok {
		return nil, apperr.New(apperr.KindContractRejected, "urgent_email_summary_contract_invalid", "urgency must be one of low, medium, high, critical")
	}
	return &out, nil
}

func checkContractVersion(capability Capability, actual string) error {
	expected := ContractVersions[capability]
	if actual != expected {
		return apperr.New(apperr.KindContractRejected, "contract_version_mismatch",
			"output contract version mismatch for "+string(capability)+": expected="+expected+", actual="+actual)
	}
	return nil
}

const (
	notificationTitleMaxChars = 64
	notificationBodyMaxChars  = 180
)

// NotificationFromMorningBrief renders a push title/body from a validated
// morning brief contract, truncating to the notification length limits
// and joining whichever narrative segments are non-empty.
func NotificationFromMorningBrief(out MorningBriefOutput) (title, body string) {
	title = truncateNotification(out.Headline, notificationTitleMaxChars)
	if title == "" {
		title = "Morning brief"
	}

	segments := make([]string, 0, 3)
	if s := strings.TrimSpace(out.Summary); s != "" {
		segments = append(segments, s)
	}
	if len(out.Priorities) > 0 && strings.TrimSpace(out.Priorities[0]) != "" {
		segments = append(segments, strings.TrimSpace(out.Priorities[0]))
	}
	if len(out.Schedule) > 0 && strings.TrimSpace(out.Schedule[0]) != "" {
		segments = append(segments, strings.TrimSpace(out.Schedule[0]))
	}
	if len(out.Alerts) > 0 && strings.TrimSpace(out.Alerts[0]) != "" {
		segments = append(segments, strings.TrimSpace(out.Alerts[0]))
	}

	body = strings.Join(segments, " • ")
	if body == "" {
		body = "Nothing new to report."
	}
	body = truncateNotification(body, notificationBodyMaxChars)
	return title, body
}

// NotificationFromUrgentEmailSummary renders a push title/body from a
// validated urgent email contract.
func NotificationFromUrgentEmailSummary(out UrgentEmailSummaryOutput) (title, body string) {
	title = "Urgent email"
	if !out.ShouldNotify {
		title = "Email summary"
	}

	segments := make([]string, 0, 2)
	if s := strings.TrimSpace(out.Summary); s != "" {
		segments = append(segments, s)
	}
	if r := strings.TrimSpace(out.Reason); r != "" {
		segments = append(segments, r)
	}

	body = strings.Join(segments, " • ")
	if body == "" {
		body = "Nothing urgent to report."
	}
	body = truncateNotification(body, notificationBodyMaxChars)
	return title, body
}

func truncateNotification(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
