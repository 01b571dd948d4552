package hostapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/audit"
	"github.com/alfredhq/backend/internal/store"
)

// AutomationDeps are the dependencies the automation rule handlers close
// over.
type AutomationDeps struct {
	Store             *store.Queries
	Audit             *audit.Writer
	DataEncryptionKey string
}

type createAutomationRuleRequest struct {
	Prompt          string `json:"prompt" validate:"required,max=4000"`
	IntervalSeconds int64  `json:"interval_seconds" validate:"required,min=60"`
	TimeZone        string `json:"time_zone" validate:"required"`
}

type automationRuleResponse struct {
	ID              uuid.UUID  `json:"id"`
	IntervalSeconds int64      `json:"interval_seconds"`
	TimeZone        string     `json:"time_zone"`
	NextRunAt       time.Time  `json:"next_run_at"`
	Status          string     `json:"status"`
	PromptSHA256    string     `json:"prompt_sha256"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toAutomationRuleResponse(r store.AutomationRule) automationRuleResponse {
	return automationRuleResponse{
		ID:              r.ID,
		IntervalSeconds: r.IntervalSeconds,
		TimeZone:        r.TimeZone,
		NextRunAt:       r.NextRunAt,
		Status:          string(r.Status),
		PromptSHA256:    r.PromptSHA256,
		LastRunAt:       r.LastRunAt,
		CreatedAt:       r.CreatedAt,
	}
}

// CreateAutomationRule defines a new recurring automation. The prompt is
// encrypted with EncryptForStorage before the insert; the plaintext is
// never persisted or logged, only its sha256 digest.
func (d AutomationDeps) CreateAutomationRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req createAutomationRuleRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	ciphertext, err := d.Store.EncryptForStorage(r.Context(), req.Prompt, d.DataEncryptionKey)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "automation_rule_encrypt_failed", err))
		return
	}

	now := time.Now().UTC()
	rule, err := d.Store.CreateAutomationRule(r.Context(), store.CreateAutomationRuleParams{
		UserID:           userID,
		IntervalSeconds:  req.IntervalSeconds,
		TimeZone:         req.TimeZone,
		NextRunAt:        now.Add(time.Duration(req.IntervalSeconds) * time.Second),
		PromptCiphertext: ciphertext,
		PromptPlaintext:  req.Prompt,
	})
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "automation_rule_create_failed", err))
		return
	}

	d.Audit.LogFromRequest(r, userID, "automation_rule_created", nil, store.AuditResultSuccess, map[string]any{
		"rule_id":          rule.ID.String(),
		"interval_seconds": rule.IntervalSeconds,
	})

	Respond(w, http.StatusCreated, toAutomationRuleResponse(*rule))
}

// ListAutomationRules returns every rule the authenticated user owns.
func (d AutomationDeps) ListAutomationRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	rules, err := d.Store.ListAutomationRulesForUser(r.Context(), userID)
	if err != nil {
		WriteAppError(w, apperr.Wrap(apperr.KindInternalError, "automation_rule_list_failed", err))
		return
	}

	out := make([]automationRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toAutomationRuleResponse(rule))
	}
	Respond(w, http.StatusOK, out)
}

// DeleteAutomationRule removes a rule owned by the authenticated user.
func (d AutomationDeps) DeleteAutomationRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rule_id", "ruleID must be a UUID")
		return
	}

	if err := d.Store.DeleteAutomationRule(r.Context(), userID, ruleID); err != nil {
		writeError(w, http.StatusNotFound, "automation_rule_not_found", "no such rule for this user")
		return
	}

	d.Audit.LogFromRequest(r, userID, "automation_rule_deleted", nil, store.AuditResultSuccess, map[string]any{
		"rule_id": ruleID.String(),
	})

	Respond(w, http.StatusNoContent, nil)
}
