// Package store implements the persistence model: Postgres-backed
// repositories for every entity in the data model, with ciphertext
// columns kept opaque to host-only callers. The connector refresh-token
// decrypt method lives in decrypt.go; internal/store's own boundary guard
// test checks that the host packages hostapi and jobs never reference it
// (see boundary_test.go). Other decryption helpers in this package are
// not covered by that guard.
package store

import (
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle state of a User.
type UserStatus string

const (
	UserStatusActive  UserStatus = "ACTIVE"
	UserStatusDeleted UserStatus = "DELETED"
)

// User is a person identified by an external identity provider subject.
type User struct {
	ID        uuid.UUID
	Issuer    string
	Subject   string
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConnectorStatus is the lifecycle state of a Connector.
type ConnectorStatus string

const (
	ConnectorStatusActive  ConnectorStatus = "ACTIVE"
	ConnectorStatusRevoked ConnectorStatus = "REVOKED"
)

// Connector is a per-user, per-provider OAuth credential binding. The
// host never reads RefreshTokenCiphertext in plaintext; only the enclave
// may decrypt it, and only when TokenKeyID/TokenVersion match the
// current KMS binding policy.
type Connector struct {
	ID                      uuid.UUID
	UserID                  uuid.UUID
	Provider                string
	RefreshTokenCiphertext  []byte
	TokenKeyID              string
	TokenVersion            int
	TokenRotatedAt          time.Time
	GrantedScopes           []string
	Status                  ConnectorStatus
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// OAuthState is a single-use CSRF/PKCE state value with a TTL.
type OAuthState struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	StateHash  string
	Provider   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// ApnsEnvironment selects which APNs endpoint a device's token is valid for.
type ApnsEnvironment string

const (
	ApnsEnvironmentSandbox    ApnsEnvironment = "sandbox"
	ApnsEnvironmentProduction ApnsEnvironment = "production"
)

// Device is an iOS device registered to receive push notifications.
type Device struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	DeviceIdentifier  string
	APNsTokenCiphertext []byte
	Environment       ApnsEnvironment
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// JobType enumerates the kinds of work the job engine dispatches.
type JobType string

const (
	JobTypeAutomationRun     JobType = "AutomationRun"
	JobTypeMeetingReminder   JobType = "MeetingReminder"
	JobTypeMorningBrief      JobType = "MorningBrief"
	JobTypeUrgentEmailCheck  JobType = "UrgentEmailCheck"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
	JobStatusDead    JobStatus = "DEAD"
)

// Job is a unit of deferred work: a push notification, an automation
// run dispatch, or a scheduled check.
type Job struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	JobType         JobType
	DueAt           time.Time
	Attempts        int
	Status          JobStatus
	IdempotencyKey  *string
	PayloadCiphertext []byte
	LastError       *string
	NextAttemptAt   *time.Time
	LeaseOwner      *string
	LeaseExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AutomationRuleStatus is the lifecycle state of an AutomationRule.
type AutomationRuleStatus string

const (
	AutomationRuleStatusActive AutomationRuleStatus = "ACTIVE"
	AutomationRuleStatusPaused AutomationRuleStatus = "PAUSED"
)

// AutomationRule is a recurring user-defined automation, e.g. "summarize
// my inbox every morning at 8am".
type AutomationRule struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	IntervalSeconds   int64
	TimeZone          string
	NextRunAt         time.Time
	LeaseOwner        *string
	LeaseExpiresAt    *time.Time
	Status            AutomationRuleStatus
	PromptCiphertext  []byte
	PromptSHA256      string
	LastRunAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AutomationRunState is the lifecycle state of an AutomationRun.
type AutomationRunState string

const (
	AutomationRunStateMaterialized AutomationRunState = "MATERIALIZED"
	AutomationRunStateEnqueued     AutomationRunState = "ENQUEUED"
	AutomationRunStateFailed       AutomationRunState = "FAILED"
)

// AutomationRun is a single scheduled firing of an AutomationRule.
type AutomationRun struct {
	ID             uuid.UUID
	RuleID         uuid.UUID
	ScheduledFor   time.Time
	NextRunAt      time.Time
	State          AutomationRunState
	JobID          *uuid.UUID
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssistantEncryptedSession is an opaque, enclave-encrypted session
// memory blob. The host stores and retrieves it by (UserID, SessionID)
// but can never read its contents.
type AssistantEncryptedSession struct {
	UserID    uuid.UUID
	SessionID string
	Envelope  []byte
	KeyID     string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditResult is the outcome of an audited operation.
type AuditResult string

const (
	AuditResultSuccess AuditResult = "SUCCESS"
	AuditResultFailure AuditResult = "FAILURE"
)

// AuditEvent is an append-only record of a sensitive operation, with
// metadata redacted before persistence.
type AuditEvent struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	EventType        string
	Connector        *string
	Result           AuditResult
	RedactedMetadata []byte
	CreatedAt        time.Time
}

// PrivacyDeleteRequestStatus is the lifecycle state of a privacy delete
// request.
type PrivacyDeleteRequestStatus string

const (
	PrivacyDeleteStatusQueued    PrivacyDeleteRequestStatus = "QUEUED"
	PrivacyDeleteStatusRunning   PrivacyDeleteRequestStatus = "RUNNING"
	PrivacyDeleteStatusCompleted PrivacyDeleteRequestStatus = "COMPLETED"
	PrivacyDeleteStatusFailed    PrivacyDeleteRequestStatus = "FAILED"
)

// PrivacyDeleteRequest tracks an in-flight account purge.
type PrivacyDeleteRequest struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Status    PrivacyDeleteRequestStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
