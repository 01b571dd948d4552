package jobs

import (
	"testing"
	"time"

	"github.com/alfredhq/backend/internal/apperr"
	"github.com/alfredhq/backend/internal/jobs/push"
)

func testBackoffWorker() *Worker {
	return NewWorker(WorkerConfig{
		RetryBaseSeconds: 2,
		RetryMaxSeconds:  30,
	})
}

func TestWorkerBackoff_DoublesUntilCap(t *testing.T) {
	w := testBackoffWorker()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := w.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestOutcomeLabel(t *testing.T) {
	if got := outcomeLabel(nil); got != "no_devices" {
		t.Errorf("outcomeLabel(nil) = %q, want %q", got, "no_devices")
	}
	if got := outcomeLabel(&push.Result{Delivered: false}); got != "no_devices" {
		t.Errorf("outcomeLabel(undelivered) = %q, want %q", got, "no_devices")
	}
	if got := outcomeLabel(&push.Result{Delivered: true}); got != "success" {
		t.Errorf("outcomeLabel(delivered) = %q, want %q", got, "success")
	}
}

func TestSimulatedFailure_KindMapsToRetryability(t *testing.T) {
	transient := simulatedFailure("transient")
	if apperr.KindOf(transient) != apperr.KindTransient {
		t.Errorf("simulatedFailure(%q) kind = %v, want %v", "transient", apperr.KindOf(transient), apperr.KindTransient)
	}
	if !apperr.IsRetryable(apperr.KindOf(transient)) {
		t.Error("a simulated transient failure must be retryable")
	}

	permanent := simulatedFailure("permanent")
	if apperr.KindOf(permanent) != apperr.KindPermanent {
		t.Errorf("simulatedFailure(%q) kind = %v, want %v", "permanent", apperr.KindOf(permanent), apperr.KindPermanent)
	}
	if apperr.IsRetryable(apperr.KindOf(permanent)) {
		t.Error("a simulated permanent failure must not be retryable")
	}

	other := simulatedFailure("anything-else")
	if apperr.KindOf(other) != apperr.KindPermanent {
		t.Error("an unrecognized simulated failure kind must default to permanent")
	}
}
