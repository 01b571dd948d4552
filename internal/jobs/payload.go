package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/store"
)

// payloadKind is the dispatch route a job's decrypted payload selects.
// Three routes exist: a ready-to-send notification, an automation rule
// that still needs its prompt run through the enclave, and a
// testing-only simulated failure marker.
type payloadKind string

const (
	payloadKindNotification     payloadKind = "notification"
	payloadKindAutomationPrompt payloadKind = "automation_prompt"
	payloadKindSimulatedFailure payloadKind = "simulated_failure"
)

// trace carries the request id of whatever enqueued the job, so it can be
// correlated end to end in structured logs and audit metadata.
type trace struct {
	RequestID string `json:"request_id,omitempty"`
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// jobPayload is the decrypted shape of Job.PayloadCiphertext.
// SimulatedFailureKind is "transient" or "permanent"; only ever set in
// test fixtures exercising the retry/dead-letter paths end to end.
type jobPayload struct {
	Kind                 payloadKind          `json:"kind"`
	Notification         *notificationPayload `json:"notification,omitempty"`
	RuleID               *uuid.UUID           `json:"rule_id,omitempty"`
	SimulatedFailureKind string               `json:"simulated_failure_kind,omitempty"`
	Trace                trace                `json:"trace"`
}

// encryptJobPayload seals p for storage in Job.PayloadCiphertext.
func encryptJobPayload(ctx context.Context, q *store.Queries, p jobPayload, dataEncryptionKey string) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling job payload: %w", err)
	}
	ciphertext, err := q.EncryptForStorage(ctx, string(raw), dataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting job payload: %w", err)
	}
	return ciphertext, nil
}

// decryptJobPayload is the inverse of encryptJobPayload. Job payloads
// carry display text or a rule id, never a secret on their own, so the
// worker is allowed to decrypt them directly — unlike connector refresh
// tokens, which only the enclave may ever decrypt.
func decryptJobPayload(ctx context.Context, q *store.Queries, ciphertext []byte, dataEncryptionKey string) (jobPayload, error) {
	var p jobPayload
	plaintext, err := q.DecryptValue(ctx, ciphertext, dataEncryptionKey)
	if err != nil {
		return p, fmt.Errorf("decrypting job payload: %w", err)
	}
	if err := json.Unmarshal([]byte(plaintext), &p); err != nil {
		return p, fmt.Errorf("unmarshaling job payload: %w", err)
	}
	return p, nil
}
