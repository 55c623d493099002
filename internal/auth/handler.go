package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/lawmakers-app/lawmakers-api/internal/observability"
	"github.com/lawmakers-app/lawmakers-api/internal/platform/httpx"
)

// HandlerConfig carries the handler-level settings.
type HandlerConfig struct {
	// AppOrigin is the redirect target for the verification flow.
	AppOrigin string
	// SecureCookies controls the Secure attribute on credential cookies.
	SecureCookies bool
}

// Handler wires HTTP endpoints for the credential/session lifecycle.
type Handler struct {
	cfg        HandlerConfig
	logger     *slog.Logger
	service    *Service
	middleware *Middleware
	metrics    *observability.Metrics
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg HandlerConfig, logger *slog.Logger, service *Service, mw *Middleware, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:        cfg,
		logger:     logger,
		service:    service,
		middleware: mw,
		metrics:    metrics,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Get("/verify", h.handleVerify)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Post("/resend", h.handleResend)
	r.With(h.middleware.RequireAuth).Get("/me", h.handleMe)
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusInternalServerError, CodeServerError, "internal server error")
		return
	}

	result, err := h.service.Signup(r.Context(), clientIP(r), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.countEvent("signup")

	if result.Tokens != nil {
		h.setSessionCookies(w, result.Tokens)
		httpx.JSON(w, http.StatusOK, map[string]any{
			"message": result.Message,
			"user":    result.User,
		})
		return
	}
	body := map[string]any{"message": result.Message}
	if result.Resent {
		body["resend"] = true
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.Error(w, http.StatusBadRequest, CodeMissingToken, "token query parameter is required")
		return
	}

	result, err := h.service.Verify(r.Context(), token)
	if err != nil {
		reason := "server_error"
		switch {
		case errors.Is(err, ErrInvalidToken):
			reason = "invalid_token"
		case errors.Is(err, ErrUserNotFound):
			reason = "user_not_found"
		default:
			h.logger.Error("verify", slog.Any("error", err))
		}
		h.redirectVerifyError(w, r, reason)
		return
	}
	h.countEvent("verify")

	h.setSessionCookies(w, result.Tokens)
	http.Redirect(w, r, h.cfg.AppOrigin, http.StatusFound)
}

func (h *Handler) redirectVerifyError(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.cfg.AppOrigin + "/verify?error=" + url.QueryEscape(reason)
	http.Redirect(w, r, target, http.StatusFound)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusInternalServerError, CodeServerError, "internal server error")
		return
	}

	result, err := h.service.Login(r.Context(), clientIP(r), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.countEvent("login")

	h.setSessionCookies(w, result.Tokens)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "logged in",
		"user":    result.User,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	accessToken := cookieValue(r, AccessTokenCookie)
	refreshToken := cookieValue(r, RefreshTokenCookie)

	result, err := h.service.Refresh(r.Context(), accessToken, refreshToken)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.countEvent("refresh")

	h.setSessionCookies(w, result.Tokens)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "tokens refreshed"})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), cookieValue(r, AccessTokenCookie), cookieValue(r, RefreshTokenCookie))
	// Cookies are cleared even when revocation failed or nothing was set.
	h.clearSessionCookies(w)
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id == nil {
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httpx.Error(w, http.StatusNotFound, CodeUserNotFound, "user not found")
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":        user.ID,
		"email":     user.Email,
		"verified":  user.Verified,
		"createdAt": user.CreatedAt,
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusInternalServerError, CodeServerError, "internal server error")
		return
	}

	result, err := h.service.Resend(r.Context(), clientIP(r), req.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.countEvent("resend")
	httpx.JSON(w, http.StatusOK, map[string]any{"message": result.Message})
}

// respondError maps service errors to the JSON envelope. Authentication
// failures share generic wording so responses never reveal which condition
// tripped.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		httpx.Error(w, http.StatusBadRequest, CodeInvalidEmail, err.Error())
	case errors.Is(err, ErrInvalidPassword):
		httpx.Error(w, http.StatusBadRequest, CodeInvalidPassword, err.Error())
	case errors.Is(err, ErrMissingCredentials):
		httpx.Error(w, http.StatusBadRequest, CodeMissingCredentials, "email and password are required")
	case errors.Is(err, ErrRateLimited):
		h.countEvent("rate_limited")
		httpx.Error(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, try again later")
	case errors.Is(err, ErrUserExists):
		httpx.Error(w, http.StatusBadRequest, CodeUserExists, "this email address is already registered")
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, ErrNotVerified):
		httpx.Error(w, http.StatusUnauthorized, CodeNotVerified, "email address is not verified")
	case errors.Is(err, ErrMissingRefreshToken):
		httpx.Error(w, http.StatusUnauthorized, CodeMissingRefreshToken, "refresh token is missing")
	case errors.Is(err, ErrUnauthorized):
		httpx.Error(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
	case errors.Is(err, ErrInvalidToken):
		httpx.Error(w, http.StatusUnauthorized, CodeInvalidToken, "token is invalid")
	case errors.Is(err, ErrInvalidRefreshToken):
		httpx.Error(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "refresh token is invalid")
	case errors.Is(err, ErrUserNotFound):
		httpx.Error(w, http.StatusUnauthorized, CodeUserNotFound, "user not found")
	case errors.Is(err, ErrAlreadyVerified):
		httpx.Error(w, http.StatusBadRequest, CodeAlreadyVerified, "this email address is already verified")
	default:
		h.logger.Error("unexpected error", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, CodeServerError, "internal server error")
	}
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, tokens *SessionTokens) {
	http.SetCookie(w, h.sessionCookie(AccessTokenCookie, tokens.AccessToken, int(AccessTokenTTL.Seconds())))
	http.SetCookie(w, h.sessionCookie(RefreshTokenCookie, tokens.RefreshToken, int(RefreshTokenTTL.Seconds())))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.sessionCookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, h.sessionCookie(RefreshTokenCookie, "", -1))
}

func (h *Handler) sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) countEvent(event string) {
	if h.metrics != nil {
		h.metrics.IncAuthEvent(event)
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clientIP returns the caller address. The RealIP middleware has already
// resolved forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
