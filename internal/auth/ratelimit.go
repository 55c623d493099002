package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitRule is a fixed-window budget for one action. Counters expire
// with the window, so bursts straddling a window boundary are accepted as a
// known limitation.
type RateLimitRule struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRateLimits holds the per-action budgets.
func DefaultRateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"signup": {Window: time.Hour, MaxRequests: 3},
		"login":  {Window: 15 * time.Minute, MaxRequests: 5},
		"resend": {Window: time.Hour, MaxRequests: 3},
	}
}

// RateDecision is the outcome of a limiter check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter enforces per-IP and per-email fixed-window counters in Redis.
// The email is hashed and truncated before becoming part of a key, so raw
// addresses never appear in the store. When Redis is unreachable the
// limiter fails open: availability wins over strictness.
type RateLimiter struct {
	client *redis.Client
	rules  map[string]RateLimitRule
	logger *slog.Logger
}

// NewRateLimiter constructs a RateLimiter with the given per-action rules.
func NewRateLimiter(client *redis.Client, rules map[string]RateLimitRule, logger *slog.Logger) *RateLimiter {
	if rules == nil {
		rules = DefaultRateLimits()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{client: client, rules: rules, logger: logger}
}

func ipRateKey(ip, action string) string {
	return "rate:ip:" + ip + ":" + action
}

func emailRateKey(email, action string) string {
	return "rate:email:" + hashEmailKey(email) + ":" + action
}

// Check reads both counters for the action. The more restrictive of the two
// governs: the request is denied if either has reached the budget. Check
// does not bump the counters; call Increment after the request is accepted.
func (l *RateLimiter) Check(ctx context.Context, ip, email, action string) RateDecision {
	rule, ok := l.rules[action]
	if !ok {
		l.logger.Warn("rate limit rule missing", slog.String("action", action))
		return RateDecision{Allowed: true}
	}

	ipCount, err := l.count(ctx, ipRateKey(ip, action))
	if err != nil {
		l.logger.Warn("rate limiter store unreachable, failing open", slog.Any("error", err))
		return RateDecision{Allowed: true}
	}
	emailCount := 0
	if email != "" {
		emailCount, err = l.count(ctx, emailRateKey(email, action))
		if err != nil {
			l.logger.Warn("rate limiter store unreachable, failing open", slog.Any("error", err))
			return RateDecision{Allowed: true}
		}
	}

	worst := ipCount
	if emailCount > worst {
		worst = emailCount
	}
	if worst >= rule.MaxRequests {
		l.logger.Info("rate limited",
			slog.String("action", action),
			slog.Int("ip_count", ipCount),
			slog.Int("email_count", emailCount),
			slog.Int("max", rule.MaxRequests),
		)
		return RateDecision{Allowed: false, Remaining: 0, ResetIn: rule.Window}
	}
	remaining := rule.MaxRequests - worst - 1
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{Allowed: true, Remaining: remaining, ResetIn: rule.Window}
}

// Increment bumps both counters, setting the window TTL when a counter is
// first created. INCR plus EXPIRE NX in one pipeline keeps the bump atomic.
func (l *RateLimiter) Increment(ctx context.Context, ip, email, action string) {
	rule, ok := l.rules[action]
	if !ok {
		return
	}
	keys := []string{ipRateKey(ip, action)}
	if email != "" {
		keys = append(keys, emailRateKey(email, action))
	}
	pipe := l.client.TxPipeline()
	for _, key := range keys {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rule.Window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter increment failed", slog.Any("error", err))
	}
}

func (l *RateLimiter) count(ctx context.Context, key string) (int, error) {
	n, err := l.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
