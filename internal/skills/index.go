package skills

import (
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
)

// Index is the process-wide skill cache. It is loaded once at startup and
// treated as immutable between explicit reloads; a reload swaps the whole
// catalog atomically so readers never observe a partial update.
type Index struct {
	fsys fs.FS

	mu      sync.RWMutex
	catalog []Skill
	base    string
	loaded  bool
}

// NewIndex creates an Index over the given catalog filesystem. Call Load
// before first use.
func NewIndex(fsys fs.FS) *Index {
	return &Index{fsys: fsys}
}

// Load parses the catalog and replaces the cached list. Safe to call
// concurrently with readers.
func (ix *Index) Load() error {
	catalog, err := LoadCatalog(ix.fsys)
	if err != nil {
		return fmt.Errorf("loading skill index: %w", err)
	}
	base := LoadBase(ix.fsys)
	if base == "" {
		slog.Warn("skill catalog has no base document; composing without a base layer")
	}

	ix.mu.Lock()
	ix.catalog = catalog
	ix.base = base
	ix.loaded = true
	ix.mu.Unlock()

	slog.Info("skill index loaded", "skills", len(catalog))
	return nil
}

// Invalidate drops the cache; the next Load rebuilds it. Intended for
// tests and the admin reload endpoint.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.catalog = nil
	ix.base = ""
	ix.loaded = false
	ix.mu.Unlock()
}

// Skills returns the cached catalog. The returned slice must not be
// mutated by callers.
func (ix *Index) Skills() []Skill {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.catalog
}

// Base returns the cached global base layer, or "" when absent.
func (ix *Index) Base() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.base
}

// Get returns the skill with the given id, or nil when unknown.
func (ix *Index) Get(id string) *Skill {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for i := range ix.catalog {
		if ix.catalog[i].ID == id {
			return &ix.catalog[i]
		}
	}
	return nil
}
