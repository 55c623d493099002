package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lawmakers-app/lawmakers-api/internal/mail"
)

// ServiceConfig carries the deploy-specific knobs for auth flows.
type ServiceConfig struct {
	// AppOrigin is the application origin used to build verification links
	// and redirect targets.
	AppOrigin string
	// DevAutoVerify short-circuits email confirmation: signups are verified
	// immediately and receive session cookies without any mail being sent.
	// An explicit escape hatch for local development, never default-on.
	DevAutoVerify bool
}

// Service composes hashing, tokens, rate limiting, the user store and the
// mailer into the signup/login/verify/refresh/logout/me flows. It holds no
// cross-request state; all authentication state lives in Postgres and Redis.
type Service struct {
	cfg     ServiceConfig
	repo    Repository
	tokens  *TokenService
	limiter *RateLimiter
	mailer  mail.Mailer
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig, repo Repository, tokens *TokenService, limiter *RateLimiter, mailer mail.Mailer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, repo: repo, tokens: tokens, limiter: limiter, mailer: mailer, logger: logger}
}

// SessionTokens is a freshly established credential pair for cookie issue.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
}

// UserSummary is the client-facing view of a user.
type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// SignupResult reports how a signup request was handled.
type SignupResult struct {
	Message string
	Resent  bool
	// User and Tokens are set only on the DevAutoVerify path, where signup
	// immediately establishes a session.
	User   *UserSummary
	Tokens *SessionTokens
}

// Signup validates the request, rate-limits it, and either creates a new
// unverified user, resends a confirmation for an existing unverified one,
// or rejects an already-registered address.
func (s *Service) Signup(ctx context.Context, ip, email, password string) (*SignupResult, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	if decision := s.limiter.Check(ctx, ip, email, "signup"); !decision.Allowed {
		return nil, ErrRateLimited
	}
	s.limiter.Increment(ctx, ip, email, "signup")

	existing, err := s.repo.FindByNormalizedEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if existing != nil {
		if existing.Verified {
			return nil, ErrUserExists
		}
		if s.cfg.DevAutoVerify {
			return s.autoVerify(ctx, existing, "signup_resend_dev")
		}
		// Unverified duplicate signup: mint a fresh token and resend. Old
		// tokens stay valid until their own TTL.
		if err := s.sendVerification(ctx, existing); err != nil {
			s.logger.Error("resend verification mail", slog.Any("error", err))
		}
		s.logger.Info("signup resend", slog.String("email", MaskEmail(email)), slog.String("ip", ip))
		return &SignupResult{Message: "verification email resent", Resent: true}, nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			// Lost a race with a concurrent signup for the same address.
			return nil, ErrUserExists
		}
		return nil, err
	}

	if s.cfg.DevAutoVerify {
		return s.autoVerify(ctx, user, "signup_dev")
	}

	// Mail failure must not unwind user creation: the row persists and the
	// resend flow covers the retry.
	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("send verification mail", slog.Any("error", err), slog.String("email", MaskEmail(email)))
	}
	s.logger.Info("signup", slog.String("email", MaskEmail(email)), slog.String("user_id", user.ID), slog.String("ip", ip))
	return &SignupResult{Message: "check your email to complete registration"}, nil
}

func (s *Service) autoVerify(ctx context.Context, user *User, event string) (*SignupResult, error) {
	if !user.Verified {
		if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	tokens, err := s.EstablishSession(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info(event, slog.String("email", MaskEmail(user.Email)), slog.String("user_id", user.ID))
	return &SignupResult{
		Message: "account verified",
		User:    &UserSummary{ID: user.ID, Email: user.Email, Verified: true},
		Tokens:  tokens,
	}, nil
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	token, err := s.tokens.IssueVerifyToken(ctx, user.ID, user.Email)
	if err != nil {
		return err
	}
	verifyURL := fmt.Sprintf("%s/verify?token=%s", s.cfg.AppOrigin, token)
	return s.mailer.Send(ctx, mail.VerificationEmail(user.Email, verifyURL, s.cfg.AppOrigin))
}

// VerifyResult reports a successful email verification.
type VerifyResult struct {
	User   *UserSummary
	Tokens *SessionTokens
}

// Verify consumes a one-time verification token, flips the user to
// verified and establishes a session. A second click on an already-used
// link fails at token consumption; an already-verified user presenting a
// still-valid token succeeds idempotently.
func (s *Service) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	claims := s.tokens.ConsumeVerifyToken(ctx, token)
	if claims == nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !user.Verified {
		if err := s.repo.MarkVerified(ctx, user.ID); err != nil {
			return nil, err
		}
		user.Verified = true
	}

	tokens, err := s.EstablishSession(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info("verify success", slog.String("user_id", user.ID))
	return &VerifyResult{
		User:   &UserSummary{ID: user.ID, Email: user.Email, Verified: true},
		Tokens: tokens,
	}, nil
}

// LoginResult reports a successful login.
type LoginResult struct {
	User   *UserSummary
	Tokens *SessionTokens
}

// Login authenticates email/password credentials. Unknown addresses and
// wrong passwords produce the same ErrInvalidCredentials so responses do
// not reveal which accounts exist.
func (s *Service) Login(ctx context.Context, ip, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	if decision := s.limiter.Check(ctx, ip, email, "login"); !decision.Allowed {
		return nil, ErrRateLimited
	}
	s.limiter.Increment(ctx, ip, email, "login")

	user, err := s.repo.FindByNormalizedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Verified {
		return nil, ErrNotVerified
	}
	if !VerifyPassword(password, user.PasswordHash) {
		s.logger.Info("login failed", slog.String("email", MaskEmail(email)), slog.String("ip", ip))
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.EstablishSession(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info("login success", slog.String("user_id", user.ID), slog.String("ip", ip))
	return &LoginResult{
		User:   &UserSummary{ID: user.ID, Email: user.Email, Verified: user.Verified},
		Tokens: tokens,
	}, nil
}

// Refresh rotates the refresh token and issues a new access token. The
// subject is recovered from the (possibly expired) access cookie with its
// signature re-verified; trust rests on the refresh token record.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	claims := s.tokens.DecodeExpiredAccessToken(accessToken)
	if claims == nil {
		return nil, ErrInvalidToken
	}
	userID := claims.Subject

	valid, err := s.tokens.ValidateRefreshToken(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.Verified {
		return nil, ErrUserNotFound
	}

	newRefresh, err := s.tokens.RotateRefreshToken(ctx, userID, refreshToken)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info("token refresh", slog.String("user_id", user.ID))
	return &LoginResult{
		User:   &UserSummary{ID: user.ID, Email: user.Email, Verified: user.Verified},
		Tokens: &SessionTokens{AccessToken: access, RefreshToken: newRefresh},
	}, nil
}

// Logout revokes the presented refresh token. Best effort: cookie clearing
// happens at the handler regardless of the outcome here.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	if accessToken == "" || refreshToken == "" {
		return
	}
	claims := s.tokens.DecodeExpiredAccessToken(accessToken)
	if claims == nil {
		return
	}
	if err := s.tokens.DeleteRefreshToken(ctx, claims.Subject, refreshToken); err != nil {
		s.logger.Warn("delete refresh token", slog.Any("error", err))
		return
	}
	s.logger.Info("logout", slog.String("user_id", claims.Subject))
}

// CurrentUser re-fetches the user row so the response reflects present
// truth rather than the snapshot at token-issue time.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.FindByID(ctx, userID)
}

// ResendResult reports a resend request. The message is intentionally
// generic even for unknown addresses.
type ResendResult struct {
	Message string
}

// Resend mints a fresh verification token for an unverified account and
// re-dispatches the confirmation email.
func (s *Service) Resend(ctx context.Context, ip, email string) (*ResendResult, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	if decision := s.limiter.Check(ctx, ip, email, "resend"); !decision.Allowed {
		return nil, ErrRateLimited
	}
	s.limiter.Increment(ctx, ip, email, "resend")

	user, err := s.repo.FindByNormalizedEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Do not reveal whether the address is registered.
			return &ResendResult{Message: "verification email sent"}, nil
		}
		return nil, err
	}
	if user.Verified {
		return nil, ErrAlreadyVerified
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("resend verification mail", slog.Any("error", err), slog.String("email", MaskEmail(email)))
	}
	s.logger.Info("resend", slog.String("email", MaskEmail(email)), slog.String("user_id", user.ID), slog.String("ip", ip))
	return &ResendResult{Message: "verification email sent"}, nil
}

// ChangePassword replaces the stored hash and revokes every refresh token
// for the user, forcing re-authentication on all devices.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllRefreshTokens(ctx, userID); err != nil {
		s.logger.Error("revoke refresh tokens", slog.Any("error", err), slog.String("user_id", userID))
	}
	return nil
}

// EstablishSession issues a new access token and stores a new refresh
// token for the user.
func (s *Service) EstablishSession(ctx context.Context, userID, email string) (*SessionTokens, error) {
	access, err := s.tokens.IssueAccessToken(userID, email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.tokens.StoreRefreshToken(ctx, userID, refresh); err != nil {
		return nil, err
	}
	return &SessionTokens{AccessToken: access, RefreshToken: refresh}, nil
}
