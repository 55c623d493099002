package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Token lifetimes and the fixed JWT audience.
const (
	AccessTokenTTL  = 15 * time.Minute
	VerifyTokenTTL  = 24 * time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour

	TokenAudience = "lawmakers-app"
)

// Token purposes. Verification matches the purpose exhaustively so an
// access token can never pass as a verify token or vice versa.
const (
	purposeAccess = "access"
	purposeVerify = "verify"
)

// AccessClaims is the payload of a short-lived bearer token. Not persisted
// server-side.
type AccessClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerifyClaims is the payload of a one-time email-confirmation token. Its
// jti is mirrored in Redis at issuance; consumption deletes the mirror.
type VerifyClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies the three token kinds. Access and verify
// tokens are HS256 JWTs signed with the configured secret; refresh tokens
// are opaque random strings whose only record of validity lives in Redis.
type TokenService struct {
	client *redis.Client
	secret []byte
	logger *slog.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(client *redis.Client, secret string, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{client: client, secret: []byte(secret), logger: logger}
}

// randomToken returns 32 random bytes, base64url encoded. Used for verify
// token jtis and refresh token values.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func verifyKey(jti string) string {
	return "verify:" + jti
}

func refreshKey(userID, token string) string {
	return "refresh:" + userID + ":" + token
}

// IssueAccessToken signs a 15 minute access token for the user.
func (s *TokenService) IssueAccessToken(userID, email string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email:   email,
		Purpose: purposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, expiry, audience and purpose. It
// returns nil on any failure; callers treat nil as unauthenticated.
func (s *TokenService) VerifyAccessToken(token string) *AccessClaims {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(TokenAudience),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.Purpose != purposeAccess || claims.Subject == "" || claims.Email == "" {
		return nil
	}
	return claims
}

// DecodeExpiredAccessToken verifies the signature but skips claims
// validation, recovering the subject of an authentic-but-expired access
// token. Trust for the /refresh flow still rests on the refresh token
// record; this only closes the tampering gap a raw payload decode leaves.
func (s *TokenService) DecodeExpiredAccessToken(token string) *AccessClaims {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil
	}
	if claims.Purpose != purposeAccess || claims.Subject == "" {
		return nil
	}
	found := false
	for _, aud := range claims.Audience {
		if aud == TokenAudience {
			found = true
		}
	}
	if !found {
		return nil
	}
	return claims
}

type verifyRecord struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// IssueVerifyToken signs a 24 hour email-confirmation token and mirrors its
// jti in Redis. The mirror, not the JWT expiry, is the authoritative
// one-time-use gate.
func (s *TokenService) IssueVerifyToken(ctx context.Context, userID, email string) (string, error) {
	jti, err := randomToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := VerifyClaims{
		Email:   email,
		Purpose: purposeVerify,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(VerifyTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign verify token: %w", err)
	}

	record, err := json.Marshal(verifyRecord{UserID: userID, Email: email})
	if err != nil {
		return "", fmt.Errorf("auth: marshal verify record: %w", err)
	}
	if err := s.client.Set(ctx, verifyKey(jti), record, VerifyTokenTTL).Err(); err != nil {
		return "", fmt.Errorf("auth: store verify token: %w", err)
	}
	return signed, nil
}

// consumeVerifyScript deletes the jti mirror only if it is present,
// returning what it held. Running as a script makes consumption
// exactly-once under concurrent duplicate submissions.
var consumeVerifyScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
	redis.call('DEL', KEYS[1])
end
return v
`)

// ConsumeVerifyToken checks signature, expiry and purpose, then atomically
// consumes the jti mirror. An already-consumed or store-expired token is
// rejected even while its JWT expiry has not elapsed. Returns nil on any
// failure.
func (s *TokenService) ConsumeVerifyToken(ctx context.Context, token string) *VerifyClaims {
	claims := &VerifyClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.Purpose != purposeVerify || claims.Subject == "" || claims.Email == "" || claims.ID == "" {
		return nil
	}

	val, err := consumeVerifyScript.Run(ctx, s.client, []string{verifyKey(claims.ID)}).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error("consume verify token", slog.Any("error", err))
		}
		return nil
	}
	if val == nil {
		return nil
	}
	return claims
}

// GenerateRefreshToken returns a fresh opaque refresh token value. The
// value is meaningless until stored.
func (s *TokenService) GenerateRefreshToken() (string, error) {
	return randomToken()
}

// StoreRefreshToken records the token for the user with a 30 day TTL.
// Existence of the key is the sole definition of validity.
func (s *TokenService) StoreRefreshToken(ctx context.Context, userID, token string) error {
	payload, err := json.Marshal(map[string]int64{"createdAt": time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("auth: marshal refresh record: %w", err)
	}
	if err := s.client.Set(ctx, refreshKey(userID, token), payload, RefreshTokenTTL).Err(); err != nil {
		return fmt.Errorf("auth: store refresh token: %w", err)
	}
	return nil
}

// ValidateRefreshToken reports whether the token is currently active for
// the user.
func (s *TokenService) ValidateRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	n, err := s.client.Exists(ctx, refreshKey(userID, token)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: validate refresh token: %w", err)
	}
	return n > 0, nil
}

// RotateRefreshToken stores a replacement and deletes the old token in one
// pipeline. The old token stops validating the instant rotation completes;
// a client retrying with it after a partition gets rejected.
func (s *TokenService) RotateRefreshToken(ctx context.Context, userID, oldToken string) (string, error) {
	newToken, err := s.GenerateRefreshToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]int64{"createdAt": time.Now().UnixMilli()})
	if err != nil {
		return "", fmt.Errorf("auth: marshal refresh record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshKey(userID, newToken), payload, RefreshTokenTTL)
	pipe.Del(ctx, refreshKey(userID, oldToken))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("auth: rotate refresh token: %w", err)
	}
	return newToken, nil
}

// DeleteRefreshToken revokes a single token, e.g. at logout.
func (s *TokenService) DeleteRefreshToken(ctx context.Context, userID, token string) error {
	if err := s.client.Del(ctx, refreshKey(userID, token)).Err(); err != nil {
		return fmt.Errorf("auth: delete refresh token: %w", err)
	}
	return nil
}

// RevokeAllRefreshTokens deletes every active refresh token for the user.
// Used on security-sensitive events such as a password change; signs the
// user out of all devices.
func (s *TokenService) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	iter := s.client.Scan(ctx, 0, refreshKey(userID, "*"), 100).Iterator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for iter.Next(ctx) {
		key := iter.Val()
		g.Go(func() error {
			return s.client.Del(gctx, key).Err()
		})
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("auth: scan refresh tokens: %w", err)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("auth: revoke refresh tokens: %w", err)
	}
	return nil
}

func (s *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}
