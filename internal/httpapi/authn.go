package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"usermanager.org/internal/auth"
	"usermanager.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// authenticate attaches the principal carried by a valid bearer token.
// Anything else is rejected with 401 before next runs.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			challenge(w)
			writeError(w, r, a.status.Unauthenticated, err.Error())
			return
		}

		claims, err := a.tokens.Verify(token)
		if err != nil {
			obs.Logger().DebugContext(r.Context(), "token rejected",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.Any("error", err),
			)
			challenge(w)
			writeError(w, r, a.status.Unauthenticated, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose principal lacks role. It expects an
// authenticated context; the status codes come from the API's StatusPolicy.
func (a *API) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				challenge(w)
				writeError(w, r, a.status.Unauthenticated, "unauthenticated")
				return
			}
			if !p.HasRole(role) {
				challenge(w)
				writeError(w, r, a.status.Forbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="usermanager"`)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
