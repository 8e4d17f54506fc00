package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/auth"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/state"
)

// CredentialVerifier is the admission gate seam; satisfied by *auth.Verifier.
type CredentialVerifier interface {
	Verify(credential string) (auth.Identity, error)
}

// extractCredential pulls the bearer credential from the handshake: the
// Authorization header wins, the 'token' query parameter is the fallback for
// clients that cannot set headers on a websocket dial.
func extractCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// NewAdmissionMiddleware refuses the handshake before any connection state
// exists. A refused request never reaches the upgrade handler, so there are
// no partially-admitted connections to clean up.
func NewAdmissionMiddleware(logger *slog.Logger, verifier CredentialVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			identity, err := verifier.Verify(extractCredential(r))
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingCredential):
					logger.Warn("Handshake without credential", slog.String("ip", reqMeta.IP))
					http.Error(w, "Missing credential", http.StatusUnauthorized)
				default:
					logger.Warn("Handshake with invalid credential", slog.String("ip", reqMeta.IP))
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			reqMeta.Identity = identity

			if requested := r.URL.Query().Get("group"); requested != "" {
				group, ok := state.ParseGroup(requested)
				if !ok {
					logger.Warn("Handshake requested unknown group",
						slog.String("ip", reqMeta.IP),
						slog.String("group", requested),
					)
					http.Error(w, "Unknown group", http.StatusBadRequest)
					return
				}
				reqMeta.RequestedGroup = group
				reqMeta.HasGroup = true
			}

			next.ServeHTTP(w, r)
		})
	}
}
