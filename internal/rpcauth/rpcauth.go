// Package rpcauth implements the signed envelope that authenticates every
// host-to-enclave RPC request: HMAC-SHA256 request signing, clock-skew
// bounded timestamps, and nonce-based replay protection.
package rpcauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredhq/backend/internal/cryptoutil"
)

// Header names on the wire between host and enclave.
const (
	HeaderContractVersion = "x-alfred-rpc-version"
	HeaderTimestamp       = "x-alfred-rpc-ts"
	HeaderNonce           = "x-alfred-rpc-nonce"
	HeaderSignature       = "x-alfred-rpc-signature"
)

// Sentinel errors surfaced by ParseHeaders, Verify and the NonceChecker
// implementations. Callers map these to apperr kinds at the HTTP boundary.
var (
	ErrMissingHeader    = errors.New("rpcauth: missing required header")
	ErrInvalidHeader    = errors.New("rpcauth: malformed header value")
	ErrInvalidSignature = errors.New("rpcauth: signature mismatch")
	ErrInvalidTimestamp = errors.New("rpcauth: timestamp outside allowed clock skew")
	ErrReplayDetected   = errors.New("rpcauth: nonce already used")
	ErrContractVersion  = errors.New("rpcauth: unsupported contract version")
)

// Config carries the parameters needed to sign and verify RPC requests.
type Config struct {
	SharedSecret    string
	ContractVersion string
	MaxClockSkew    time.Duration
}

// SignedRequest is the set of header values produced by Sign and consumed
// by Verify.
type SignedRequest struct {
	ContractVersion string
	Timestamp       int64
	Nonce           string
	Signature       string
}

// NewNonce generates a fresh random nonce suitable for the x-alfred-rpc-nonce
// header.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating rpc nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sign produces the full set of signed headers for an outbound RPC
// request. now is injected so tests can control timestamps.
func Sign(cfg Config, method, path string, body []byte, now time.Time) (*SignedRequest, error) {
	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}
	ts := now.Unix()
	sig := cryptoutil.SignHMAC(cfg.SharedSecret, method, path, ts, nonce, body)
	return &SignedRequest{
		ContractVersion: cfg.ContractVersion,
		Timestamp:       ts,
		Nonce:           nonce,
		Signature:       sig,
	}, nil
}

// ApplyHeaders writes the signed request's fields onto an HTTP request.
func (s *SignedRequest) ApplyHeaders(h http.Header) {
	h.Set(HeaderContractVersion, s.ContractVersion)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderNonce, s.Nonce)
	h.Set(HeaderSignature, s.Signature)
}

// ParseHeaders extracts the signed request fields from incoming headers.
func ParseHeaders(h http.Header) (*SignedRequest, error) {
	version := h.Get(HeaderContractVersion)
	tsRaw := h.Get(HeaderTimestamp)
	nonce := h.Get(HeaderNonce)
	sig := h.Get(HeaderSignature)

	if version == "" || tsRaw == "" || nonce == "" || sig == "" {
		return nil, ErrMissingHeader
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, HeaderTimestamp)
	}

	return &SignedRequest{
		ContractVersion: version,
		Timestamp:       ts,
		Nonce:           nonce,
		Signature:       sig,
	}, nil
}

// NonceChecker records nonces and rejects ones already seen within the
// validity window. Implementations: InProcessNonceCache (single-process,
// mutex-guarded) and RedisNonceCache (shared across host replicas).
type NonceChecker interface {
	CheckAndRecord(ctx context.Context, nonce string, expiresAt time.Time) error
}

// Verify validates a signed RPC request against the expected method, path,
// and body: checks the contract version, the clock skew window, recomputes
// the HMAC and compares it in constant time. Verify does not check the
// nonce for replay; callers consult a NonceChecker separately. now is
// injected for testability.
func Verify(cfg Config, req *SignedRequest, method, path string, body []byte, now time.Time) error {
	if req.ContractVersion != cfg.ContractVersion {
		return fmt.Errorf("%w: got %q want %q", ErrContractVersion, req.ContractVersion, cfg.ContractVersion)
	}

	skew := now.Unix() - req.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > cfg.MaxClockSkew {
		return fmt.Errorf("%w: skew %ds exceeds %s", ErrInvalidTimestamp, skew, cfg.MaxClockSkew)
	}

	expected := cryptoutil.SignHMAC(cfg.SharedSecret, method, path, req.Timestamp, req.Nonce, body)
	if !cryptoutil.ConstantTimeEqual(expected, req.Signature) {
		return ErrInvalidSignature
	}

	return nil
}
