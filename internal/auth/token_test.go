package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

func newTokenService(t *testing.T) (*TokenService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTokenService(client, "test-secret", nil), mr
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, _ := newTokenService(t)

	token, err := svc.IssueAccessToken("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims := svc.VerifyAccessToken(token)
	if claims == nil {
		t.Fatal("expected valid access token")
	}
	if claims.Subject != "user-1" || claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	until := time.Until(claims.ExpiresAt.Time)
	if until < 14*time.Minute || until > 16*time.Minute {
		t.Fatalf("expected ~15m expiry, got %v", until)
	}
}

func TestAccessTokenRejectsTampering(t *testing.T) {
	svc, _ := newTokenService(t)
	other := NewTokenService(nil, "other-secret", nil)

	token, err := other.IssueAccessToken("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if svc.VerifyAccessToken(token) != nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
	if svc.VerifyAccessToken("not.a.jwt") != nil {
		t.Fatal("expected garbage token to be rejected")
	}
}

func TestAccessTokenRejectsWrongAudience(t *testing.T) {
	svc, _ := newTokenService(t)

	claims := AccessClaims{
		Email:   "a@x.com",
		Purpose: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"someone-else"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(AccessTokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if svc.VerifyAccessToken(token) != nil {
		t.Fatal("expected wrong audience to be rejected")
	}
}

func TestCrossPurposeTokensRejected(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	verifyToken, err := svc.IssueVerifyToken(ctx, "user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue verify: %v", err)
	}
	if svc.VerifyAccessToken(verifyToken) != nil {
		t.Fatal("expected verify-purpose token to fail access verification")
	}

	accessToken, err := svc.IssueAccessToken("user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if svc.ConsumeVerifyToken(ctx, accessToken) != nil {
		t.Fatal("expected access-purpose token to fail verify consumption")
	}
}

func TestVerifyTokenSingleUse(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	token, err := svc.IssueVerifyToken(ctx, "user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims := svc.ConsumeVerifyToken(ctx, token)
	if claims == nil {
		t.Fatal("expected first consumption to succeed")
	}
	if claims.Subject != "user-1" || claims.Email != "a@x.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Replay: signature and JWT expiry are still valid, but the store
	// mirror is gone.
	if svc.ConsumeVerifyToken(ctx, token) != nil {
		t.Fatal("expected second consumption to be rejected")
	}
}

func TestVerifyTokenStoreTTLIsAuthoritative(t *testing.T) {
	svc, mr := newTokenService(t)
	ctx := context.Background()

	token, err := svc.IssueVerifyToken(ctx, "user-1", "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Expire the store mirror while the JWT itself is still in date.
	mr.FastForward(VerifyTokenTTL + time.Minute)

	if svc.ConsumeVerifyToken(ctx, token) != nil {
		t.Fatal("expected store-expired token to be rejected")
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	token, err := svc.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := svc.StoreRefreshToken(ctx, "user-1", token); err != nil {
		t.Fatalf("store: %v", err)
	}

	valid, err := svc.ValidateRefreshToken(ctx, "user-1", token)
	if err != nil || !valid {
		t.Fatalf("expected stored token to validate, valid=%v err=%v", valid, err)
	}
	valid, err = svc.ValidateRefreshToken(ctx, "user-2", token)
	if err != nil || valid {
		t.Fatalf("expected token to be scoped to its user, valid=%v err=%v", valid, err)
	}

	if err := svc.DeleteRefreshToken(ctx, "user-1", token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	valid, err = svc.ValidateRefreshToken(ctx, "user-1", token)
	if err != nil || valid {
		t.Fatalf("expected deleted token to be invalid, valid=%v err=%v", valid, err)
	}
}

func TestRotateInvalidatesOldTokenImmediately(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	oldToken, err := svc.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := svc.StoreRefreshToken(ctx, "user-1", oldToken); err != nil {
		t.Fatalf("store: %v", err)
	}

	newToken, err := svc.RotateRefreshToken(ctx, "user-1", oldToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if newToken == oldToken {
		t.Fatal("expected rotation to mint a different token")
	}

	valid, err := svc.ValidateRefreshToken(ctx, "user-1", oldToken)
	if err != nil || valid {
		t.Fatalf("expected old token to be invalid after rotation, valid=%v err=%v", valid, err)
	}
	valid, err = svc.ValidateRefreshToken(ctx, "user-1", newToken)
	if err != nil || !valid {
		t.Fatalf("expected new token to be valid, valid=%v err=%v", valid, err)
	}
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	svc, _ := newTokenService(t)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 4; i++ {
		token, err := svc.GenerateRefreshToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if err := svc.StoreRefreshToken(ctx, "user-1", token); err != nil {
			t.Fatalf("store: %v", err)
		}
		tokens = append(tokens, token)
	}
	otherToken, err := svc.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := svc.StoreRefreshToken(ctx, "user-2", otherToken); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := svc.RevokeAllRefreshTokens(ctx, "user-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	for _, token := range tokens {
		valid, err := svc.ValidateRefreshToken(ctx, "user-1", token)
		if err != nil || valid {
			t.Fatalf("expected token to be revoked, valid=%v err=%v", valid, err)
		}
	}
	valid, err := svc.ValidateRefreshToken(ctx, "user-2", otherToken)
	if err != nil || !valid {
		t.Fatalf("expected other user's token to survive, valid=%v err=%v", valid, err)
	}
}

func TestDecodeExpiredAccessToken(t *testing.T) {
	svc, _ := newTokenService(t)

	claims := AccessClaims{
		Email:   "a@x.com",
		Purpose: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{TokenAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-45 * time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if svc.VerifyAccessToken(expired) != nil {
		t.Fatal("expected expired token to fail normal verification")
	}

	decoded := svc.DecodeExpiredAccessToken(expired)
	if decoded == nil {
		t.Fatal("expected expired-but-authentic token to decode")
	}
	if decoded.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", decoded.Subject)
	}

	// A forged token must not decode even with claims validation skipped.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if svc.DecodeExpiredAccessToken(forged) != nil {
		t.Fatal("expected forged token to be rejected")
	}
}
