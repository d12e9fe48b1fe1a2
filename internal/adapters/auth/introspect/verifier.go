package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"certivax/internal/platform/httpclient"
	"certivax/internal/ports/auth"
)

var (
	ErrNotConfigured = errors.New("introspection not configured")
	ErrTokenEmpty    = errors.New("token is empty")
	ErrInactive      = errors.New("token inactive")
	ErrUpstream      = errors.New("introspection upstream error")
)

const introspectPath = "/introspect"

type Config struct {
	BaseURL string
	APIKey  string

	// Si está vacío, se usa "X-Api-Key".
	APIKeyHeader string

	Timeout time.Duration
}

// Verifier implementa auth.AuthVerifier contra un endpoint de introspección
// (estilo RFC 7662: {"active": true, "sub": "..."}).
type Verifier struct {
	client       *httpclient.Client
	apiKey       string
	apiKeyHeader string
}

var _ auth.AuthVerifier = (*Verifier)(nil)

func New(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	c, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewWithClient(c, cfg.APIKey, cfg.APIKeyHeader), nil
}

// NewWithClient permite inyectar el cliente HTTP (tests).
func NewWithClient(c *httpclient.Client, apiKey, apiKeyHeader string) *Verifier {
	h := strings.TrimSpace(apiKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	return &Verifier{client: c, apiKey: strings.TrimSpace(apiKey), apiKeyHeader: h}
}

type introspectResponse struct {
	Active bool   `json:"active"`
	Sub    string `json:"sub"`
	Iss    string `json:"iss"`
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	headers := map[string]string{}
	if v.apiKey != "" {
		headers[v.apiKeyHeader] = v.apiKey
	}

	var out introspectResponse
	err := v.client.DoJSON(ctx, http.MethodPost, introspectPath, headers, map[string]string{"token": token}, &out)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return auth.Claims{}, ErrInactive
		}
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if !out.Active {
		return auth.Claims{}, ErrInactive
	}
	sub := strings.TrimSpace(out.Sub)
	if sub == "" {
		return auth.Claims{}, errors.New("introspection response missing sub")
	}

	return auth.Claims{Principal: sub, Issuer: strings.TrimSpace(out.Iss)}, nil
}
