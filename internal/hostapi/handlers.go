package hostapi

import "net/http"

// Handlers is the set of route handlers mounted by Router. Each field is
// wired by cmd/alfred once the store, enclave RPC client, and job engine
// are constructed, mirroring the enclave package's Handlers convention so
// neither package depends on the other's concrete wiring.
type Handlers struct {
	RegisterDevice http.HandlerFunc
	RevokeDevice   http.HandlerFunc

	StartGoogleConnector    http.HandlerFunc
	CompleteGoogleConnector http.HandlerFunc
	RevokeConnector         http.HandlerFunc

	GetPreferences http.HandlerFunc
	PutPreferences http.HandlerFunc

	CreateAutomationRule http.HandlerFunc
	ListAutomationRules  http.HandlerFunc
	DeleteAutomationRule http.HandlerFunc

	ListAuditEvents http.HandlerFunc

	AssistantQuery         http.HandlerFunc
	AssistantAttestedKey   http.HandlerFunc
	ListAssistantSessions  http.HandlerFunc
	DeleteAssistantSession http.HandlerFunc

	RequestPrivacyDelete http.HandlerFunc
}
