package docs_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"certivax/docs"
	"certivax/internal/adapters/storage/memory"
	"certivax/internal/domain/registry"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

func TestDocs_CoverEveryRoute(t *testing.T) {
	raw, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	r := chi.NewRouter()
	registry.RegisterRoutes(r, registry.NewService(memory.NewStore(), registry.Options{}))

	routes := 0
	err = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes++
		if len(route) > 1 {
			route = strings.TrimSuffix(route, "/")
		}
		ops, ok := doc.Paths[route]
		if assert.True(t, ok, "undocumented path %s", route) {
			assert.Contains(t, ops, strings.ToLower(method), "undocumented %s %s", method, route)
		}
		return nil
	})
	require.NoError(t, err)

	documented := 0
	for _, ops := range doc.Paths {
		documented += len(ops)
	}
	assert.Equal(t, routes, documented, "docs list operations the router does not serve")
}
