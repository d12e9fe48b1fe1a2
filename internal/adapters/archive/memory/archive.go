package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"certivax/internal/domain/registry"
)

// Archive guarda la metadata en memoria, indexada por compromiso.
type Archive struct {
	mu     sync.RWMutex
	byHash map[registry.Hash][]byte
}

var _ registry.MetadataArchive = (*Archive)(nil)

func New() *Archive {
	return &Archive{byHash: make(map[registry.Hash][]byte)}
}

func (a *Archive) Put(_ context.Context, hash registry.Hash, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.byHash[hash] = slices.Clone(payload)
	return nil
}

func (a *Archive) Get(_ context.Context, hash registry.Hash) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("metadata %s: %w", hash, registry.ErrNotFound)
	}
	return slices.Clone(b), nil
}
