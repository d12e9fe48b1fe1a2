package auth

import "context"

// AuthVerifier valida un token de acceso y devuelve el principal que lo firma.
// Un error significa request anónimo; el handler decide si eso es 401.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
