package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRateLimiter(t *testing.T, rules map[string]RateLimitRule) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRateLimiter(client, rules, logger), mr
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := newRateLimiter(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision := limiter.Check(ctx, "10.0.0.1", "a@x.com", "signup")
		if !decision.Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
		limiter.Increment(ctx, "10.0.0.1", "a@x.com", "signup")
	}

	decision := limiter.Check(ctx, "10.0.0.1", "a@x.com", "signup")
	if decision.Allowed {
		t.Fatal("expected 4th signup in the window to be denied")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", decision.Remaining)
	}
}

func TestRateLimiterRemainingCountsDown(t *testing.T) {
	limiter, _ := newRateLimiter(t, nil)
	ctx := context.Background()

	for want := 4; want >= 0; want-- {
		decision := limiter.Check(ctx, "10.0.0.1", "a@x.com", "login")
		if !decision.Allowed {
			t.Fatal("unexpectedly denied")
		}
		if decision.Remaining != want {
			t.Fatalf("expected %d remaining, got %d", want, decision.Remaining)
		}
		limiter.Increment(ctx, "10.0.0.1", "a@x.com", "login")
	}
}

func TestRateLimiterEmailCounterSpansIPs(t *testing.T) {
	limiter, _ := newRateLimiter(t, nil)
	ctx := context.Background()

	// Same email from rotating addresses still exhausts the email budget.
	for i := 0; i < 3; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		if !limiter.Check(ctx, ip, "a@x.com", "signup").Allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
		limiter.Increment(ctx, ip, "a@x.com", "signup")
	}

	if limiter.Check(ctx, "10.0.0.99", "a@x.com", "signup").Allowed {
		t.Fatal("expected email counter to deny across IPs")
	}
	// A different email from a fresh IP is unaffected.
	if !limiter.Check(ctx, "10.0.0.99", "b@x.com", "signup").Allowed {
		t.Fatal("expected unrelated email to be allowed")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	limiter, mr := newRateLimiter(t, map[string]RateLimitRule{
		"login": {Window: time.Minute, MaxRequests: 2},
	})
	ctx := context.Background()

	limiter.Increment(ctx, "10.0.0.1", "a@x.com", "login")
	limiter.Increment(ctx, "10.0.0.1", "a@x.com", "login")
	if limiter.Check(ctx, "10.0.0.1", "a@x.com", "login").Allowed {
		t.Fatal("expected budget to be exhausted")
	}

	mr.FastForward(61 * time.Second)

	if !limiter.Check(ctx, "10.0.0.1", "a@x.com", "login").Allowed {
		t.Fatal("expected counters to reset after the window")
	}
}

func TestRateLimiterKeysOmitRawEmail(t *testing.T) {
	limiter, mr := newRateLimiter(t, nil)
	ctx := context.Background()

	limiter.Increment(ctx, "10.0.0.1", "secret-person@x.com", "login")

	for _, key := range mr.Keys() {
		if strings.Contains(strings.ToLower(key), "secret-person") {
			t.Fatalf("raw email leaked into key %q", key)
		}
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := NewRateLimiter(client, nil, logger)
	ctx := context.Background()

	mr.Close()

	if !limiter.Check(ctx, "10.0.0.1", "a@x.com", "login").Allowed {
		t.Fatal("expected limiter to allow when the store is unreachable")
	}
}

func TestRateLimiterUnknownActionAllowed(t *testing.T) {
	limiter, _ := newRateLimiter(t, nil)
	ctx := context.Background()

	if !limiter.Check(ctx, "10.0.0.1", "a@x.com", "delete-account").Allowed {
		t.Fatal("expected unknown action to be allowed")
	}
}
