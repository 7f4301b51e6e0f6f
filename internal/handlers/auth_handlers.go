package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"taskflow/internal/auth"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"
	"taskflow/internal/service"
	"time"

	"go.uber.org/zap"
)

// VerifierCookie holds the PKCE verifier between sign-up and the email link callback.
const VerifierCookie = "taskflow_pkce"

const verifierTTL = time.Hour

// AuthPages are the browser pages the callbacks redirect to.
type AuthPages struct {
	Dashboard     string
	VerifyEmail   string
	ResetPassword string
}

func DefaultAuthPages() AuthPages {
	return AuthPages{
		Dashboard:     "/dashboard",
		VerifyEmail:   "/auth/verify-email",
		ResetPassword: "/auth/reset-password",
	}
}

type AuthHandler struct {
	AuthService   AuthService
	pages         AuthPages
	secureCookies bool
}

func NewAuthHandler(authService AuthService, pages AuthPages, secureCookies bool) AuthHandler {
	return AuthHandler{
		AuthService:   authService,
		pages:         pages,
		secureCookies: secureCookies,
	}
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value, path string, expires time.Time) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if expires.IsZero() {
		c.MaxAge = -1
	} else {
		c.Expires = expires
	}
	http.SetCookie(w, c)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, s *auth.Session) {
	h.setCookie(w, middleware.SessionCookie, s.AccessToken, "/", s.ExpiresAt)
}

func redirectTo(w http.ResponseWriter, r *http.Request, page string, params url.Values) {
	target := page
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var req dto.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verifier := auth.NewVerifier()
	res, err := h.AuthService.SignUp(r.Context(), service.SignUpInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		CodeChallenge:   auth.Challenge(verifier),
	})
	if err != nil {
		handleServiceError(w, r, err, "signup")
		return
	}

	payload := []Payload{
		toPayload("user", dto.FromUser(res.User)),
		toPayload("confirmation_required", res.ConfirmationRequired),
	}
	if res.Session != nil {
		h.setSession(w, res.Session)
		payload = append(payload, toPayload("session", dto.FromSession(res.Session)))
	} else {
		h.setCookie(w, VerifierCookie, verifier, "/auth", time.Now().Add(verifierTTL))
	}

	logger.Info("HTTP_OUT: User signed up",
		zap.Duration("ms", time.Since(start)),
		zap.Bool("confirmation_required", res.ConfirmationRequired),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, payload...)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.AuthService.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err, "login")
		return
	}
	h.setSession(w, session)

	logger.Info("HTTP_OUT: User logged in",
		zap.Duration("ms", time.Since(start)),
		zap.String("user_id", session.User.ID.String()),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("session", dto.FromSession(session)))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	token, _ := auth.TokenFromContext(r.Context())
	if err := h.AuthService.SignOut(r.Context(), token); err != nil {
		handleServiceError(w, r, err, "logout")
		return
	}
	h.setCookie(w, middleware.SessionCookie, "", "/", time.Time{})

	responseWithJSON(w, http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("user", dto.FromUser(user)))
}

// ConfirmCallback finishes email confirmation. Failures land on the verify-email
// page with error, error_code and error_message query parameters.
func (h *AuthHandler) ConfirmCallback(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")
	q := r.URL.Query()

	if q.Get("error") != "" || q.Get("error_code") != "" {
		if token := middleware.BearerToken(r); token != "" {
			if _, err := h.AuthService.CurrentUser(r.Context(), token); err == nil {
				logger.Info("Auth: Callback error for signed in user, redirecting to dashboard",
					zap.String("error", q.Get("error")))
				redirectTo(w, r, h.pages.Dashboard, nil)
				return
			}
		}
		redirectTo(w, r, h.pages.VerifyEmail, callbackError(q))
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectTo(w, r, h.pages.Dashboard, nil)
		return
	}

	verifier, err := r.Cookie(VerifierCookie)
	if err != nil || verifier.Value == "" {
		logger.Warn("Auth: Callback without PKCE verifier",
			zap.String("client_ip", r.RemoteAddr))
		redirectTo(w, r, h.pages.VerifyEmail, url.Values{"error": {"pkce_missing"}})
		return
	}

	if params, ok := h.exchange(w, r, code, verifier.Value); !ok {
		redirectTo(w, r, h.pages.VerifyEmail, params)
		return
	}
	h.setCookie(w, VerifierCookie, "", "/auth", time.Time{})
	redirectTo(w, r, h.pages.Dashboard, nil)
}

// ResetCallback exchanges the recovery link code and sends the user to the
// reset-password page with a session.
func (h *AuthHandler) ResetCallback(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")
	q := r.URL.Query()

	if q.Get("error") != "" || q.Get("error_code") != "" {
		redirectTo(w, r, h.pages.ResetPassword, callbackError(q))
		return
	}

	code := q.Get("code")
	if code == "" {
		redirectTo(w, r, h.pages.ResetPassword, nil)
		return
	}

	var verifier string
	if c, err := r.Cookie(VerifierCookie); err == nil {
		verifier = c.Value
	}
	if params, ok := h.exchange(w, r, code, verifier); !ok {
		redirectTo(w, r, h.pages.ResetPassword, params)
		return
	}
	redirectTo(w, r, h.pages.ResetPassword, nil)
}

func callbackError(q url.Values) url.Values {
	params := url.Values{}
	errParam := q.Get("error")
	if errParam == "" {
		errParam = "unknown"
	}
	params.Set("error", errParam)
	if code := q.Get("error_code"); code != "" {
		params.Set("error_code", code)
	}
	return params
}

// exchange trades the code for a session cookie. On failure it returns the
// query parameters describing the error.
func (h *AuthHandler) exchange(w http.ResponseWriter, r *http.Request, code, verifier string) (url.Values, bool) {
	session, err := h.AuthService.ExchangeCode(r.Context(), code, verifier)
	if err != nil {
		var businessErr *service.BusinessError
		if !errors.As(err, &businessErr) {
			logger.Error("Auth: Code exchange failed", err)
			return url.Values{"error": {"unknown_error"}}, false
		}
		logger.Warn("Auth: Code exchange rejected",
			zap.String("error_code", businessErr.Code))
		return url.Values{
			"error":         {"exchange_failed"},
			"error_code":    {businessErr.Code},
			"error_message": {businessErr.Message},
		}, false
	}
	if session == nil {
		logger.Warn("Auth: Code exchange returned no session")
		return url.Values{"error": {"no_session"}}, false
	}

	h.setSession(w, session)
	logger.Info("Auth: Session created from code",
		zap.String("user_id", session.User.ID.String()))
	return nil, true
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.AuthService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleServiceError(w, r, err, "forgot_password")
		return
	}

	responseWithJSON(w, http.StatusAccepted,
		toPayload("message", "if the account exists, a reset link has been sent"))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var req dto.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, _ := auth.TokenFromContext(r.Context())
	if err := h.AuthService.ResetPassword(r.Context(), token, req.Password, req.ConfirmPassword); err != nil {
		handleServiceError(w, r, err, "reset_password")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("message", "password updated"))
}
