package enclave

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/attestation"
	"github.com/alfredhq/backend/internal/rpcauth"
)

// Server exposes the enclave's RPC endpoints behind signed-envelope
// verification and the attestation hard guard. Route handlers are wired
// in cmd/alfred for the enclave mode; this type only owns the chi
// sub-router and shared middleware, mirroring the teacher's
// per-package Routes() convention.
type Server struct {
	logger       *slog.Logger
	rpcConfig    rpcauth.Config
	nonceChecker rpcauth.NonceChecker
	hardGuard    func() error
}

// NewServer builds an enclave RPC server.
func NewServer(logger *slog.Logger, rpcConfig rpcauth.Config, nonceChecker rpcauth.NonceChecker, hardGuard func() error) *Server {
	return &Server{logger: logger, rpcConfig: rpcConfig, nonceChecker: nonceChecker, hardGuard: hardGuard}
}

// Routes returns the chi router for the nine RPC endpoints. Handlers are
// registered by cmd/alfred once the Google client, LLM gateway, and store
// are constructed, keeping this package free of a direct store/google
// dependency cycle.
func (s *Server) Routes(handlers Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(s.verifyEnvelope)

	r.Post("/exchange_google_access_token", s.wrap(handlers.ExchangeGoogleAccessToken))
	r.Post("/revoke_google_connector_token", s.wrap(handlers.RevokeGoogleConnectorToken))
	r.Post("/fetch_google_calendar_events", s.wrap(handlers.FetchGoogleCalendarEvents))
	r.Post("/fetch_google_email_candidates", s.wrap(handlers.FetchGoogleEmailCandidates))
	r.Post("/process_assistant_query", s.wrap(handlers.ProcessAssistantQuery))
	r.Post("/process_automation_run", s.wrap(handlers.ProcessAutomationRun))
	r.Post("/generate_morning_brief", s.wrap(handlers.GenerateMorningBrief))
	r.Post("/generate_urgent_email_summary", s.wrap(handlers.GenerateUrgentEmailSummary))
	r.Post("/fetch_assistant_attested_key", s.wrap(handlers.FetchAssistantAttestedKey))
	return r
}

// Handlers is implemented by cmd/alfred's wiring once dependencies (store,
// google client, llm gateway) are constructed.
type Handlers struct {
	ExchangeGoogleAccessToken  http.HandlerFunc
	RevokeGoogleConnectorToken http.HandlerFunc
	FetchGoogleCalendarEvents  http.HandlerFunc
	FetchGoogleEmailCandidates http.HandlerFunc
	ProcessAssistantQuery      http.HandlerFunc
	ProcessAutomationRun       http.HandlerFunc
	GenerateMorningBrief       http.HandlerFunc
	GenerateUrgentEmailSummary http.HandlerFunc
	FetchAssistantAttestedKey  http.HandlerFunc
}

func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	if h == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			writeRPCError(w, apperr.New(apperr.KindInternalError, "rpc_unhandled", "endpoint not wired"))
		}
	}
	return h
}

// verifyEnvelope checks the hard guard, then the signed-RPC headers,
// before letting any endpoint handler run.
func (s *Server) verifyEnvelope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hardGuard != nil {
			if err := s.hardGuard(); err != nil {
				writeRPCError(w, apperr.Wrap(apperr.KindUnauthorized, "rpc_unauthorized", err))
				return
			}
		}

		signed, err := rpcauth.ParseHeaders(r.Header)
		if err != nil {
			writeRPCError(w, apperr.Wrap(apperr.KindUnauthorized, "rpc_unauthorized", err))
			return
		}

		body, err := readAndRestoreBody(r)
		if err != nil {
			writeRPCError(w, apperr.Wrap(apperr.KindInvalidRequest, "rpc_response_invalid", err))
			return
		}

		if err := rpcauth.Verify(s.rpcConfig, signed, r.Method, r.URL.Path, body, time.Now()); err != nil {
			writeRPCError(w, apperr.Wrap(apperr.KindUnauthorized, "rpc_unauthorized", err))
			return
		}

		if s.nonceChecker != nil {
			expiresAt := time.Unix(signed.Timestamp, 0).Add(s.rpcConfig.MaxClockSkew)
			if err := s.nonceChecker.CheckAndRecord(r.Context(), signed.Nonce, expiresAt); err != nil {
				writeRPCError(w, apperr.Wrap(apperr.KindReplayDetected, "rpc_contract_rejected", err))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func writeRPCError(w http.ResponseWriter, err *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err.Kind))
	_ = json.NewEncoder(w).Encode(map[string]string{"code": err.Code, "message": err.Message})
}

// VerifyChallengeResponse wraps attestation.VerifyResponse for a verifier
// of the signed Response that fetch_assistant_attested_key returns. The
// handler itself signs responses and does not call it.
func VerifyChallengeResponse(policy *attestation.Policy, challenge *attestation.Challenge, resp *attestation.Response, guard *attestation.ReplayGuard, now time.Time) error {
	return attestation.VerifyResponse(policy, challenge, resp, guard, now)
}
