package middleware

import (
	"log/slog"
	"net/http"

	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/config"
)

type SubjectConnectionCounter func(subject string) int
type SubjectConnectionCycler func(subject string)

// NewConnectionLimiter bounds concurrent connections per subject. In "cycle"
// mode the oldest connection is closed to make room; in "reject" mode the new
// handshake is refused. Must run after the admission middleware.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter SubjectConnectionCounter,
	cycler SubjectConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerUser <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			subject := reqMeta.Identity.Subject
			if subject == "" {
				logger.Warn("Connection limiter could not determine subject from metadata; blocking request for safety.")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			count := counter(subject)
			if count < cfg.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Subject connection limit reached", slog.String("subject", subject), slog.Int("count", count))
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(subject)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
