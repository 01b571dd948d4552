package rpchandlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/enclave/google"
	"github.com/alfredhq/backend/internal/store"
)

// googleFetcherAdapter satisfies orchestrator.GoogleFetcher by composing
// the connector lookup, the enclave-only refresh-token decrypt, and the
// Google OAuth exchange into the single ResolveAccessToken step the
// orchestrator needs before either lane can fetch anything.
type googleFetcherAdapter struct {
	client *google.Client
	store  *store.Queries
}

func newGoogleFetcherAdapter(client *google.Client, q *store.Queries) *googleFetcherAdapter {
	return &googleFetcherAdapter{client: client, store: q}
}

func (a *googleFetcherAdapter) ResolveAccessToken(ctx context.Context, userID string) (string, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("parsing user id: %w", err)
	}

	connector, err := a.store.GetActiveConnector(ctx, uid, "google")
	if err != nil {
		return "", fmt.Errorf("looking up active google connector: %w", err)
	}

	refreshToken, err := a.client.DecryptConnectorRefreshToken(ctx, uid, connector.ID, connector.TokenKeyID, connector.TokenVersion)
	if err != nil {
		return "", err
	}

	return a.client.ExchangeRefreshForAccessToken(ctx, refreshToken)
}

func (a *googleFetcherAdapter) FetchCalendarEvents(ctx context.Context, accessToken string, timeMin, timeMax time.Time, maxResults int) ([]enclave.CalendarEvent, error) {
	return a.client.FetchCalendarEvents(ctx, accessToken, timeMin, timeMax, maxResults)
}

func (a *googleFetcherAdapter) FetchEmailCandidates(ctx context.Context, accessToken, query string, maxResults int) ([]enclave.EmailCandidate, error) {
	return a.client.FetchEmailCandidates(ctx, accessToken, query, maxResults)
}
