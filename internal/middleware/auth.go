package middleware

import (
	"net/http"

	"github.com/offsetx/carbon-tracker/internal/auth"
	"github.com/offsetx/carbon-tracker/internal/logging"
)

// RequireAuth is middleware that validates the session cookie and
// injects the user id into the request context. Every failure, including a
// session store error, is answered with 401.
func RequireAuth(sessions auth.Sessions, cookieName string, log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, "not authenticated")
				return
			}

			userID, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil {
				logging.FromContext(r.Context(), log).WithError(err).Error("session lookup")
			}
			if err != nil || userID == "" {
				unauthorized(w, "session expired")
				return
			}

			ctx := auth.WithUserID(r.Context(), userID)
			ctx = logging.IntoContext(ctx, logging.FromContext(ctx, log).WithUserID(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
