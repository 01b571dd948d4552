// Package orchestrator implements the enclave-local assistant state
// machine: fast-path small talk detection, semantic planning with a
// keyword-detector fallback, lane routing, session memory, and the
// envelope encryption wrapping every response.
package orchestrator

import (
	"strings"

	"github.com/alfredhq/backend/internal/enclave"
)

const (
	minLookbackDays = 1
	maxLookbackDays = 30
	maxKeywords     = 6
	maxFollowUpTokens = 10
)

// NormalizePlan enforces every semantic-plan invariant from the
// capability contract: calendar+email collapses to mixed, lookback_days
// is clamped into [1,30], keywords are truncated to 6, a time window
// with start >= end is rejected, and needs_clarification without a
// clarifying_question is rejected.
func NormalizePlan(plan *enclave.SemanticPlan) error {
	if plan == nil {
		return errInvalidContract("nil plan")
	}

	plan.Capabilities = collapseCalendarAndEmail(plan.Capabilities)

	if plan.NeedsClarification && (plan.ClarifyingQuestion == nil || strings.TrimSpace(*plan.ClarifyingQuestion) == "") {
		return errInvalidContract("needs_clarification without clarifying_question")
	}

	if plan.TimeWindow != nil {
		if !plan.TimeWindow.Start.Before(plan.TimeWindow.End) {
			return errInvalidContract("time_window start must be before end")
		}
	}

	if plan.EmailFilters != nil {
		if plan.EmailFilters.LookbackDays < minLookbackDays {
			plan.EmailFilters.LookbackDays = minLookbackDays
		}
		if plan.EmailFilters.LookbackDays > maxLookbackDays {
			plan.EmailFilters.LookbackDays = maxLookbackDays
		}
		if len(plan.EmailFilters.Keywords) > maxKeywords {
			plan.EmailFilters.Keywords = plan.EmailFilters.Keywords[:maxKeywords]
		}
	}

	return nil
}

func collapseCalendarAndEmail(caps []enclave.Capability) []enclave.Capability {
	hasCalendar, hasEmail := false, false
	for _, c := range caps {
		switch c {
		case enclave.CapabilityCalendarLookup:
			hasCalendar = true
		case enclave.CapabilityEmailLookup:
			hasEmail = true
		}
	}
	if hasCalendar && hasEmail {
		return []enclave.Capability{enclave.CapabilityMixed}
	}
	return caps
}

type contractError struct{ msg string }

func (e *contractError) Error() string { return e.msg }

func errInvalidContract(msg string) error { return &contractError{msg: msg} }

var followUpMarkers = map[string]struct{}{
	"what about": {}, "how about": {}, "then": {}, "next": {}, "after that": {},
	"same": {}, "again": {}, "also": {}, "those": {}, "them": {},
}

var calendarKeywordPattern = []string{"meeting", "calendar", "schedule", "event"}
var emailKeywordPattern = []string{"email", "inbox", "mail", "gmail"}

// KeywordDetect is the deterministic fallback used when the planner fails
// or returns an invalid contract: token-match against a small fixed
// vocabulary, optionally carrying forward the previous turn's capability
// for short follow-up queries.
func KeywordDetect(query string, previousCapability enclave.Capability, hasPreviousTurn bool) enclave.Capability {
	lower := strings.ToLower(query)
	tokens := strings.Fields(lower)

	hasToday := containsAny(lower, []string{"today"})
	hasCalendar := containsAny(lower, calendarKeywordPattern)
	hasEmail := containsAny(lower, emailKeywordPattern)

	switch {
	case hasCalendar && hasEmail:
		return enclave.CapabilityMixed
	case hasCalendar || (hasToday && !hasEmail):
		return enclave.CapabilityCalendarLookup
	case hasEmail:
		return enclave.CapabilityEmailLookup
	}

	if hasPreviousTurn && len(tokens) <= maxFollowUpTokens && isFollowUp(lower) {
		return previousCapability
	}

	return enclave.CapabilityGeneralChat
}

func isFollowUp(lower string) bool {
	for marker := range followUpMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
