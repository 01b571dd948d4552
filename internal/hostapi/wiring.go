package hostapi

// HandlerDeps bundles every dependency group needed to build a full
// Handlers value. cmd/alfred constructs one of these in API mode and
// passes it to NewHandlers.
type HandlerDeps struct {
	Devices     DeviceDeps
	Connectors  ConnectorDeps
	Preferences PreferencesDeps
	Automation  AutomationDeps
	AuditEvents AuditEventDeps
	Assistant   AssistantDeps
	Privacy     PrivacyDeps
}

// NewHandlers wires every concrete handler method into the Handlers
// struct Router expects.
func NewHandlers(d HandlerDeps) Handlers {
	return Handlers{
		RegisterDevice: d.Devices.RegisterDevice,
		RevokeDevice:   d.Devices.RevokeDevice,

		StartGoogleConnector:    d.Connectors.StartGoogleConnector,
		CompleteGoogleConnector: d.Connectors.CompleteGoogleConnector,
		RevokeConnector:         d.Connectors.RevokeConnector,

		GetPreferences: d.Preferences.GetPreferences,
		PutPreferences: d.Preferences.PutPreferences,

		CreateAutomationRule: d.Automation.CreateAutomationRule,
		ListAutomationRules:  d.Automation.ListAutomationRules,
		DeleteAutomationRule: d.Automation.DeleteAutomationRule,

		ListAuditEvents: d.AuditEvents.ListAuditEvents,

		AssistantQuery:         d.Assistant.AssistantQuery,
		AssistantAttestedKey:   d.Assistant.AssistantAttestedKey,
		ListAssistantSessions:  d.Assistant.ListAssistantSessions,
		DeleteAssistantSession: d.Assistant.DeleteAssistantSession,

		RequestPrivacyDelete: d.Privacy.RequestPrivacyDelete,
	}
}
