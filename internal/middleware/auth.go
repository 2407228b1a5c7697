package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensegate/internal/errors"
	"licensegate/internal/infrastructure"
)

// AdminTokenHeader carries the pre-shared admin credential.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth gates the admin surface behind a single shared credential.
// The comparison is constant-time so response timing cannot be used to
// probe the token byte by byte. A failed match short-circuits here:
// nothing downstream runs, so failed auth has no side effects.
func AdminAuth(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AdminTokenHeader)

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.WarnContext(r.Context(), "admin authentication failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Bool("token_present", presented != ""),
				)

				problem := errors.Unauthorized(r.URL.Path)
				problem.WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
				render.Render(w, r, problem)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
