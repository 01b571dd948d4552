package jobs

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAutomationIdempotencyKey_DeterministicPerFiring(t *testing.T) {
	ruleID := uuid.New()
	scheduledFor := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	a := automationIdempotencyKey(ruleID, scheduledFor)
	b := automationIdempotencyKey(ruleID, scheduledFor)
	if a != b {
		t.Error("the same rule/firing pair must always produce the same idempotency key")
	}

	other := automationIdempotencyKey(ruleID, scheduledFor.Add(time.Second))
	if a == other {
		t.Error("a different firing time must produce a different idempotency key")
	}

	otherRule := automationIdempotencyKey(uuid.New(), scheduledFor)
	if a == otherRule {
		t.Error("a different rule must produce a different idempotency key")
	}
}

func TestAutomationIdempotencyKey_NormalizesToUTC(t *testing.T) {
	ruleID := uuid.New()
	loc := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2026, 3, 1, 3, 0, 0, 0, loc)
	utc := local.UTC()

	if automationIdempotencyKey(ruleID, local) != automationIdempotencyKey(ruleID, utc) {
		t.Error("equivalent instants in different locations must produce the same key")
	}
}
