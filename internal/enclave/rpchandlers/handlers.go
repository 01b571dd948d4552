package rpchandlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/attestation"
	"github.com/alfredhq/backend/internal/cryptoutil"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/enclave/google"
	"github.com/alfredhq/backend/internal/enclave/llm"
	"github.com/alfredhq/backend/internal/orchestrator"
	"github.com/alfredhq/backend/internal/store"
)

// Deps bundles everything the enclave process's RPC handlers need. It is
// built once at startup in cmd/alfred's enclave mode and handed to
// NewHandlers.
type Deps struct {
	Store       *store.Queries
	Google      *google.Client
	Gateway     llm.Gateway
	EnclaveKeys *cryptoutil.EnvelopeKeyPair
	SessionRing orchestrator.SessionKeyring

	AttestationPrivateKey []byte
	Runtime               string
	Measurement           string
	ReplayGuard           *attestation.ReplayGuard

	Logger *slog.Logger
}

// handlerSet holds the constructed dependencies every handler method
// closes over.
type handlerSet struct {
	store       *store.Queries
	google      *google.Client
	gateway     llm.Gateway
	enclaveKeys *cryptoutil.EnvelopeKeyPair
	sessionRing orchestrator.SessionKeyring

	attestationKey []byte
	runtime        string
	measurement    string
	replayGuard    *attestation.ReplayGuard

	logger *slog.Logger
}

// NewHandlers builds the concrete enclave.Handlers value cmd/alfred
// mounts behind Server.Routes.
func NewHandlers(d Deps) enclave.Handlers {
	s := &handlerSet{
		store:          d.Store,
		google:         d.Google,
		gateway:        d.Gateway,
		enclaveKeys:    d.EnclaveKeys,
		sessionRing:    d.SessionRing,
		attestationKey: d.AttestationPrivateKey,
		runtime:        d.Runtime,
		measurement:    d.Measurement,
		replayGuard:    d.ReplayGuard,
		logger:         d.Logger,
	}

	return enclave.Handlers{
		ExchangeGoogleAccessToken:  s.exchangeGoogleAccessToken,
		RevokeGoogleConnectorToken: s.revokeGoogleConnectorToken,
		FetchGoogleCalendarEvents:  s.fetchGoogleCalendarEvents,
		FetchGoogleEmailCandidates: s.fetchGoogleEmailCandidates,
		ProcessAssistantQuery:      s.processAssistantQuery,
		ProcessAutomationRun:       s.processAutomationRun,
		GenerateMorningBrief:       s.generateMorningBrief,
		GenerateUrgentEmailSummary: s.generateUrgentEmailSummary,
		FetchAssistantAttestedKey:  s.fetchAssistantAttestedKey,
	}
}

func writeRPCError(w http.ResponseWriter, err *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err.Kind))
	_ = json.NewEncoder(w).Encode(map[string]string{"code": err.Code, "message": err.Message})
}

func writeRPCJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
