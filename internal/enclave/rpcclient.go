package enclave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/rpcauth"
)

// RPCClient is the host-side client for calling enclave RPC endpoints.
// Every call is signed with internal/rpcauth; transport-level failures
// collapse to the four RPC error codes the host API maps to HTTP status.
type RPCClient struct {
	httpClient *http.Client
	baseURL    string
	cfg        rpcauth.Config
}

// NewRPCClient builds a client bound to the enclave's base URL.
func NewRPCClient(httpClient *http.Client, baseURL string, cfg rpcauth.Config) *RPCClient {
	return &RPCClient{httpClient: httpClient, baseURL: baseURL, cfg: cfg}
}

// Call POSTs a JSON request body to path, signs it, and decodes a JSON
// response into out.
func (c *RPCClient) Call(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling rpc request: %w", err)
	}

	signed, err := rpcauth.Sign(c.cfg, http.MethodPost, path, body, time.Now())
	if err != nil {
		return fmt.Errorf("signing rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	signed.ApplyHeaders(httpReq.Header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "rpc_transport_unavailable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "rpc_transport_unavailable", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindUnauthorized, "rpc_unauthorized", string(respBody))
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		return apperr.New(apperr.KindContractRejected, "rpc_contract_rejected", string(respBody))
	case resp.StatusCode >= 500:
		return apperr.New(apperr.KindUpstreamUnavailable, "rpc_transport_unavailable", string(respBody))
	case resp.StatusCode >= 400:
		return apperr.New(apperr.KindInvalidRequest, "rpc_response_invalid", string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.Wrap(apperr.KindInternalError, "rpc_response_invalid", err)
		}
	}
	return nil
}
