package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapAndAs(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(KindProviderFailed, "provider_failed", fmt.Errorf("calling provider: %w", base))

	ae, ok := As(wrapped)
	if !ok {
		t.Fatal("expected wrapped error to be extractable")
	}
	if ae.Kind != KindProviderFailed {
		t.Errorf("Kind = %v, want %v", ae.Kind, KindProviderFailed)
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected errors.Is to find the base error through the chain")
	}
}

func TestHTTPStatusProjection(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidRequest:       http.StatusBadRequest,
		KindUnauthorized:         http.StatusUnauthorized,
		KindDecryptNotAuthorized: http.StatusForbidden,
		KindUpstreamUnavailable:  http.StatusBadGateway,
		KindReplayDetected:       http.StatusConflict,
		KindRateLimited:          http.StatusTooManyRequests,
		KindInternalError:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(KindTransient) {
		t.Error("Transient should be retryable")
	}
	if IsRetryable(KindPermanent) {
		t.Error("Permanent should not be retryable")
	}
	if IsRetryable(KindContractRejected) {
		t.Error("ContractRejected should not be retryable")
	}
}

func TestKindOfUnwrappedError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternalError {
		t.Errorf("KindOf(plain error) = %v, want %v", got, KindInternalError)
	}
}
