package middleware

import (
	"context"
	"net/http"
	"strings"

	"certivax/internal/platform/logger"
	"certivax/internal/ports/auth"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// DebugPrincipalHeader inyecta el principal en modo dev (sin verifier).
const DebugPrincipalHeader = "X-Debug-Principal"

// AuthContext resuelve el principal del request y lo deja en el contexto.
//
// Sin verifier (modo dev) se toma del header X-Debug-Principal. Con verifier
// sólo cuenta un Bearer token válido y el header de debug se ignora.
// Un request sin principal sigue de largo: el handler responde 401 si la
// operación lo exige.
func AuthContext(verifier auth.AuthVerifier, log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Fields{"component": "auth"})

	resolve := func(r *http.Request) (auth.Claims, bool) {
		if verifier == nil {
			p := strings.TrimSpace(r.Header.Get(DebugPrincipalHeader))
			return auth.Claims{Principal: p}, p != ""
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			return auth.Claims{}, false
		}
		claims, err := verifier.Verify(r.Context(), token)
		if err != nil {
			log.Debug("token rejected", logger.Fields{"path": r.URL.Path, "error": err})
			return auth.Claims{}, false
		}
		return claims, strings.TrimSpace(claims.Principal) != ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := resolve(r); ok {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims deja claims en ctx; lo usa AuthContext y los tests de handlers.
func WithClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func GetClaims(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(auth.Claims)
	return c, ok
}

// Principal devuelve el principal autenticado del request, o "" si no hay.
func Principal(ctx context.Context) string {
	c, _ := GetClaims(ctx)
	return strings.TrimSpace(c.Principal)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
