// Package push sends APNs notifications for the job engine. It knows
// nothing about ciphertext, devices rows, or the data model: callers
// decrypt device tokens and pick targets, this package only speaks HTTP
// to Apple.
package push

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/apperr"
)

// Environment selects which APNs endpoint a token is valid against.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// Notification is the plaintext fallback alert shown when no end-to-end
// envelope key is available for a device.
type Notification struct {
	Title string
	Body  string
}

// Envelope is a pre-sealed push payload (internal/cryptoutil's
// nonce/ciphertext pair). A device that has registered an envelope key
// receives only this; Apple and the host never see the notification
// text.
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte
}

// Target is one device to attempt delivery to, with its token already
// decrypted by the caller.
type Target struct {
	DeviceID    uuid.UUID
	Token       string
	Environment Environment
}

// AttemptResult records one device's delivery outcome for audit metadata.
type AttemptResult struct {
	DeviceID uuid.UUID
	Success  bool
	Code     string
}

// Result summarizes a Deliver call across every target device.
type Result struct {
	Delivered   bool
	PayloadMode string // "encrypted" or "plain"
	Attempts    []AttemptResult
}

// Sender posts APNs HTTP/2 requests. The zero-value endpoints (no
// APNS_SANDBOX_ENDPOINT/APNS_PRODUCTION_ENDPOINT configured) make every
// delivery a no-op success, so local/dev runs can exercise the job engine
// without a live Apple developer account.
type Sender struct {
	httpClient         *http.Client
	sandboxEndpoint    string
	productionEndpoint string
	authToken          string
}

// NewSender builds a Sender. httpClient should have a reasonable timeout;
// net/http dials APNs over HTTP/2 automatically for https endpoints.
func NewSender(httpClient *http.Client, sandboxEndpoint, productionEndpoint, authToken string) *Sender {
	return &Sender{
		httpClient:         httpClient,
		sandboxEndpoint:    sandboxEndpoint,
		productionEndpoint: productionEndpoint,
		authToken:          authToken,
	}
}

// Deliver attempts notif (or envelope, if a device has one) against every
// target and reports success if any device accepted it. When every
// device fails, the first transient error wins over the first permanent
// one, so the job engine retries a batch that had any chance of
// succeeding on a later attempt.
func (s *Sender) Deliver(ctx context.Context, targets []Target, notif Notification, envelope *Envelope) (*Result, *apperr.Error) {
	payloadMode := "plain"
	if envelope != nil {
		payloadMode = "encrypted"
	}
	res := &Result{PayloadMode: payloadMode}
	if len(targets) == 0 {
		return res, nil
	}

	var firstTransient, firstPermanent *apperr.Error
	for _, target := range targets {
		if appErr := s.deliverOne(ctx, target, notif, envelope); appErr != nil {
			res.Attempts = append(res.Attempts, AttemptResult{DeviceID: target.DeviceID, Code: appErr.Code})
			if appErr.Kind == apperr.KindTransient {
				if firstTransient == nil {
					firstTransient = appErr
				}
			} else if firstPermanent == nil {
				firstPermanent = appErr
			}
			continue
		}
		res.Delivered = true
		res.Attempts = append(res.Attempts, AttemptResult{DeviceID: target.DeviceID, Success: true})
	}

	if res.Delivered {
		return res, nil
	}
	if firstTransient != nil {
		return res, firstTransient
	}
	return res, firstPermanent
}

func (s *Sender) deliverOne(ctx context.Context, target Target, notif Notification, envelope *Envelope) *apperr.Error {
	endpoint := s.productionEndpoint
	if target.Environment == EnvironmentSandbox {
		endpoint = s.sandboxEndpoint
	}
	if endpoint == "" {
		return nil
	}

	body, err := buildPayload(notif, envelope)
	if err != nil {
		return apperr.Wrap(apperr.KindPermanent, "APNS_PAYLOAD_ENCODE_ERROR", err)
	}

	url := fmt.Sprintf("%s/3/device/%s", endpoint, target.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindPermanent, "APNS_REQUEST_BUILD_ERROR", err)
	}
	req.Header.Set("authorization", "bearer "+s.authToken)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("content-type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.New(apperr.KindTransient, "APNS_NETWORK_ERROR", err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	code := fmt.Sprintf("APNS_HTTP_%d", resp.StatusCode)
	if isTransientStatus(resp.StatusCode) {
		return apperr.New(apperr.KindTransient, code, "apns rejected push")
	}
	return apperr.New(apperr.KindPermanent, code, "apns rejected push")
}

func isTransientStatus(status int) bool {
	switch status {
	case 408, 425, 429:
		return true
	default:
		return status >= 500
	}
}

func buildPayload(notif Notification, envelope *Envelope) ([]byte, error) {
	if envelope != nil {
		return json.Marshal(map[string]any{
			"aps": map[string]any{
				"content-available": 1,
				"mutable-content":   1,
			},
			"envelope": map[string]string{
				"nonce":      base64.StdEncoding.EncodeToString(envelope.Nonce),
				"ciphertext": base64.StdEncoding.EncodeToString(envelope.Ciphertext),
			},
		})
	}
	return json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert": map[string]string{
				"title": notif.Title,
				"body":  notif.Body,
			},
		},
	})
}
