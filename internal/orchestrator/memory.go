package orchestrator

import (
	"strings"
	"time"

	"github.com/alfredhq/backend/internal/enclave"
)

// SessionMemoryVersion is the dated schema version written into every
// memory blob. A version mismatch on read means the blob was produced by
// an incompatible build and must be refused rather than guessed at.
const SessionMemoryVersion = "2026-02-16"

const (
	memoryMaxTurns          = 6
	memoryQuerySnippetMax   = 180
	memorySummarySnippetMax = 280
)

// SessionTurn is one exchange kept in the bounded memory ring.
type SessionTurn struct {
	UserQuerySnippet      string              `json:"user_query_snippet"`
	AssistantSummarySnippet string            `json:"assistant_summary_snippet"`
	Capability            enclave.Capability  `json:"capability"`
	CreatedAt              time.Time          `json:"created_at"`
}

// SessionMemory is the versioned, bounded ring buffer of recent turns.
type SessionMemory struct {
	Version string        `json:"version"`
	Turns   []SessionTurn `json:"turns"`
}

// ErrUnknownMemoryVersion is returned when a decrypted memory blob carries
// a version this build does not recognize.
type ErrUnknownMemoryVersion struct{ Version string }

func (e *ErrUnknownMemoryVersion) Error() string {
	return "unknown session memory version: " + e.Version
}

// ValidateMemoryVersion rejects any memory blob not tagged with the
// current version.
func ValidateMemoryVersion(m *SessionMemory) error {
	if m == nil {
		return nil
	}
	if m.Version != SessionMemoryVersion {
		return &ErrUnknownMemoryVersion{Version: m.Version}
	}
	return nil
}

// AppendTurn appends a new turn, truncating/sanitizing its text and
// trimming the ring to the most recent memoryMaxTurns entries.
func AppendTurn(existing *SessionMemory, query, assistantSummary string, capability enclave.Capability, now time.Time) *SessionMemory {
	var turns []SessionTurn
	if existing != nil {
		turns = append(turns, existing.Turns...)
	}

	turns = append(turns, SessionTurn{
		UserQuerySnippet:        redactAndTruncate(query, memoryQuerySnippetMax),
		AssistantSummarySnippet: redactAndTruncate(assistantSummary, memorySummarySnippetMax),
		Capability:              capability,
		CreatedAt:               now,
	})

	if len(turns) > memoryMaxTurns {
		turns = turns[len(turns)-memoryMaxTurns:]
	}

	return &SessionMemory{Version: SessionMemoryVersion, Turns: turns}
}

// PreviousCapability returns the capability of the most recent turn, if any.
func PreviousCapability(m *SessionMemory) (enclave.Capability, bool) {
	if m == nil || len(m.Turns) == 0 {
		return "", false
	}
	return m.Turns[len(m.Turns)-1].Capability, true
}

// promptInjectionMarkers are untrusted-text substrings that must never be
// echoed verbatim into model context or stored memory. Detection is
// intentionally simple and conservative: a marker anywhere in the text
// redacts the whole value rather than attempting surgical removal.
var promptInjectionMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard the system prompt",
	"you are now",
	"new instructions:",
	"system prompt:",
}

func sanitizeUntrustedText(value string) string {
	lower := strings.ToLower(value)
	for _, marker := range promptInjectionMarkers {
		if strings.Contains(lower, marker) {
			return "[redacted untrusted instruction]"
		}
	}
	return value
}

func redactAndTruncate(value string, maxChars int) string {
	sanitized := sanitizeUntrustedText(value)
	runes := []rune(sanitized)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}
