package hostapi

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRateLimiter(t *testing.T, max int) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, max, time.Minute)
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := rl.Check(ctx, "user-1")
		if err != nil {
			t.Fatalf("Check returned error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed under the limit", i+1)
		}
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := newTestRateLimiter(t, 2)
	ctx := context.Background()

	rl.Check(ctx, "user-1")
	rl.Check(ctx, "user-1")

	result, err := rl.Check(ctx, "user-1")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected the third request to be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", result.Remaining)
	}
}

func TestRateLimiter_ScopesAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(t, 1)
	ctx := context.Background()

	result, err := rl.Check(ctx, "user-a")
	if err != nil || !result.Allowed {
		t.Fatalf("user-a request should be allowed, got %+v, err %v", result, err)
	}

	result, err = rl.Check(ctx, "user-b")
	if err != nil || !result.Allowed {
		t.Fatalf("user-b request should be allowed independently of user-a, got %+v, err %v", result, err)
	}
}
