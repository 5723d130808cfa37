package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/containerd/errdefs"
)

// AccountChecker re-validates the underlying account on every protected
// call. Implemented by the directory service.
type AccountChecker interface {
	CheckActive(ctx context.Context, email string) error
}

// RequireAuth returns middleware that rejects requests without a live
// session (401) or whose account has since become inactive or expired
// (403). The account check runs on every call, never cached at login.
func RequireAuth(sessions *Manager, checker AccountChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			email, ok := sessions.Email(token)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			if err := checker.CheckActive(r.Context(), email); err != nil {
				switch {
				case errdefs.IsUnauthorized(err):
					writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				case errdefs.IsPermissionDenied(err):
					writeJSONError(w, http.StatusForbidden, "Session expired or deactivated")
				default:
					// A store failure is not a lapsed subscription.
					slog.Error("Account check failed", "email", email, "error", err)
					writeJSONError(w, http.StatusInternalServerError, "internal error")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
