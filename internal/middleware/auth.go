package middleware

import (
	"context"
	"net/http"
	"strings"
	"taskflow/internal/auth"
	"taskflow/internal/logger"

	"go.uber.org/zap"
)

// SessionCookie carries the access token for browser clients.
const SessionCookie = "taskflow_session"

type Authenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

// BearerToken reads the token from the Authorization header, falling back to
// the session cookie.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Auth rejects requests without a valid access token and stores the user in
// the request context.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, r, "missing access token")
				return
			}

			user, err := authn.CurrentUser(r.Context(), token)
			if err != nil {
				logger.Info("Auth: Rejected token",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err))
				unauthorized(w, r, "invalid or expired access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), *user, token)))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskflow"`)
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error":      "UNAUTHORIZED",
		"message":    message,
		"request_id": GetRequestID(r.Context()),
	})
}
