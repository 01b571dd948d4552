// Package google implements the enclave-only Google OAuth2/Calendar/Gmail
// client. Every function here either decrypts a connector refresh token
// or performs a bearer-authenticated fetch to Google — both are
// enclave-exclusive operations the host process must never reach; see
// internal/store's boundary guard test.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/enclave"
	"github.com/alfredhq/backend/internal/store"
)

const (
	tokenEndpoint    = "https://oauth2.googleapis.com/token"
	revokeEndpoint   = "https://oauth2.googleapis.com/revoke"
	calendarEndpoint = "https://www.googleapis.com/calendar/v3/calendars/primary/events"
	gmailListEndpoint = "https://gmail.googleapis.com/gmail/v1/users/me/messages"
)

// Client talks to Google on behalf of the enclave. It never returns raw
// provider headers to callers — only the normalized enclave.CalendarEvent
// and enclave.EmailCandidate types.
type Client struct {
	httpClient         *http.Client
	clientID           string
	clientSecret       string
	store              *store.Queries
	dataEncryptionKey  string
}

// NewClient builds a Google client bound to the enclave's OAuth app
// credentials and the data-encryption key used to decrypt stored refresh
// tokens.
func NewClient(httpClient *http.Client, clientID, clientSecret string, q *store.Queries, dataEncryptionKey string) *Client {
	return &Client{
		httpClient:        httpClient,
		clientID:          clientID,
		clientSecret:      clientSecret,
		store:             q,
		dataEncryptionKey: dataEncryptionKey,
	}
}

// DecryptConnectorRefreshToken reads and decrypts an ACTIVE connector's
// refresh token, scoped to the exact (token_key_id, token_version)
// currently bound by KMS policy. Returns apperr.Kind
// apperr.KindDecryptNotAuthorized when no matching row exists — a stale
// key binding must never silently decrypt under the wrong key.
func (c *Client) DecryptConnectorRefreshToken(ctx context.Context, userID, connectorID uuid.UUID, tokenKeyID string, tokenVersion int) (string, error) {
	token, err := c.store.DecryptConnectorRefreshToken(ctx, userID, connectorID, tokenKeyID, tokenVersion, c.dataEncryptionKey)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecryptNotAuthorized, "decrypt_not_authorized", err)
	}
	return token, nil
}

// ExchangeRefreshForAccessToken trades a refresh token for a short-lived
// access token. The access token never leaves the enclave process.
func (c *Client) ExchangeRefreshForAccessToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamUnavailable, "provider_unavailable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", providerFailedError(resp.StatusCode, body)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.Wrap(apperr.KindProviderFailed, "provider_response_invalid", err)
	}
	return parsed.AccessToken, nil
}

// RevokeRefreshToken calls Google's revoke endpoint for a refresh token.
func (c *Client) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	form := url.Values{"token": {refreshToken}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "provider_unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return providerFailedError(resp.StatusCode, body)
	}
	return nil
}

type googleCalendarEventsResponse struct {
	Items []googleCalendarEvent `json:"items"`
}

type googleCalendarEvent struct {
	ID        string                       `json:"id"`
	Summary   string                       `json:"summary"`
	Start     googleCalendarEventDateTime  `json:"start"`
	End       googleCalendarEventDateTime  `json:"end"`
	Attendees []googleCalendarAttendee     `json:"attendees"`
}

type googleCalendarEventDateTime struct {
	DateTime string `json:"dateTime"`
}

type googleCalendarAttendee struct {
	Email string `json:"email"`
}

// FetchCalendarEvents fetches and normalizes events in [timeMin, timeMax],
// sorted start_at asc, then title, then id, matching the lane's
// deterministic ordering requirement.
func (c *Client) FetchCalendarEvents(ctx context.Context, accessToken string, timeMin, timeMax time.Time, maxResults int) ([]enclave.CalendarEvent, error) {
	q := url.Values{
		"timeMin":      {timeMin.UTC().Format(time.RFC3339)},
		"timeMax":      {timeMax.UTC().Format(time.RFC3339)},
		"maxResults":   {strconv.Itoa(maxResults)},
		"singleEvents": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, calendarEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building calendar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "provider_unavailable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, providerFailedError(resp.StatusCode, body)
	}

	var parsed googleCalendarEventsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailed, "provider_response_invalid", err)
	}

	events := make([]enclave.CalendarEvent, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		start, _ := time.Parse(time.RFC3339, item.Start.DateTime)
		end, _ := time.Parse(time.RFC3339, item.End.DateTime)
		attendees := make([]string, 0, len(item.Attendees))
		for _, a := range item.Attendees {
			if a.Email != "" {
				attendees = append(attendees, a.Email)
			}
		}
		events = append(events, enclave.CalendarEvent{
			ID:        item.ID,
			Title:     item.Summary,
			StartAt:   start.UTC(),
			EndAt:     end.UTC(),
			Attendees: attendees,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].StartAt.Before(events[j].StartAt)
		}
		if events[i].Title != events[j].Title {
			return events[i].Title < events[j].Title
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

type gmailMessageListEntry struct {
	ID string `json:"id"`
}

type gmailMessagesListResponse struct {
	Messages []gmailMessageListEntry `json:"messages"`
}

type gmailMessageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailMessagePayload struct {
	Headers  []gmailMessageHeader  `json:"headers"`
	Parts    []gmailMessagePayload `json:"parts"`
	Filename string                `json:"filename"`
	Body     *struct {
		AttachmentID string `json:"attachmentId"`
	} `json:"body"`
}

func (p gmailMessagePayload) header(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

func (p gmailMessagePayload) hasAttachments() bool {
	if p.Body != nil && p.Body.AttachmentID != "" {
		return true
	}
	if strings.TrimSpace(p.Filename) != "" {
		return true
	}
	for _, part := range p.Parts {
		if part.hasAttachments() {
			return true
		}
	}
	return false
}

type gmailMessageMetadataResponse struct {
	ID           string              `json:"id"`
	Snippet      string              `json:"snippet"`
	InternalDate string              `json:"internalDate"`
	LabelIDs     []string            `json:"labelIds"`
	Payload      gmailMessagePayload `json:"payload"`
}

func (m gmailMessageMetadataResponse) toCandidate() enclave.EmailCandidate {
	var receivedAt time.Time
	if millis, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil {
		receivedAt = time.UnixMilli(millis).UTC()
	}
	return enclave.EmailCandidate{
		MessageID:      m.ID,
		From:           m.Payload.header("From"),
		Subject:        m.Payload.header("Subject"),
		Snippet:        m.Snippet,
		ReceivedAt:     receivedAt,
		LabelIDs:       m.LabelIDs,
		HasAttachments: m.Payload.hasAttachments(),
	}
}

// FetchEmailCandidates fetches and normalizes up to maxResults Gmail
// messages matching query, sorted received_at desc.
func (c *Client) FetchEmailCandidates(ctx context.Context, accessToken, query string, maxResults int) ([]enclave.EmailCandidate, error) {
	q := url.Values{"maxResults": {strconv.Itoa(maxResults)}}
	if query != "" {
		q.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gmailListEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building gmail list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "provider_unavailable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, providerFailedError(resp.StatusCode, body)
	}

	var listResp gmailMessagesListResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailed, "provider_response_invalid", err)
	}

	candidates := make([]enclave.EmailCandidate, 0, len(listResp.Messages))
	for _, entry := range listResp.Messages {
		meta, err := c.fetchMessageMetadata(ctx, accessToken, entry.ID)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, meta.toCandidate())
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ReceivedAt.After(candidates[j].ReceivedAt)
	})
	return candidates, nil
}

func (c *Client) fetchMessageMetadata(ctx context.Context, accessToken, messageID string) (*gmailMessageMetadataResponse, error) {
	u := fmt.Sprintf("%s/%s?format=metadata&metadataHeaders=From&metadataHeaders=Subject", gmailListEndpoint, url.PathEscape(messageID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building gmail metadata request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamUnavailable, "provider_unavailable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, providerFailedError(resp.StatusCode, body)
	}

	var parsed gmailMessageMetadataResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailed, "provider_response_invalid", err)
	}
	return &parsed, nil
}

func providerFailedError(status int, body []byte) error {
	var parsed struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &parsed)
	return apperr.New(apperr.KindProviderFailed, "provider_failed", fmt.Sprintf("google provider returned status=%d oauth_error=%q", status, parsed.Error))
}
