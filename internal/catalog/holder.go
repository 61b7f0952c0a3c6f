package catalog

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/lishe/internal/metrics"
)

// Holder keeps the current catalog snapshot. Readers get a consistent snapshot
// for the duration of a call; Reload swaps in a new one atomically.
type Holder struct {
	current    atomic.Pointer[Catalog]
	path       string
	nameColumn string
	reloadMu   sync.Mutex
}

// NewHolder loads the catalog at path and returns a holder serving it.
func NewHolder(path, nameColumn string) (*Holder, error) {
	c, err := Load(path, nameColumn)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path, nameColumn: nameColumn}
	h.current.Store(c)
	metrics.CatalogRows.Set(float64(c.Len()))
	return h, nil
}

// NewStaticHolder serves a fixed snapshot. Reload is an error.
func NewStaticHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Get returns the current snapshot.
func (h *Holder) Get() *Catalog {
	return h.current.Load()
}

// Path returns the file the holder reloads from.
func (h *Holder) Path() string {
	return h.path
}

// Reload re-reads the catalog file. On failure the previous snapshot is kept.
func (h *Holder) Reload() (*Catalog, error) {
	if h.path == "" {
		return nil, errors.New("catalog: holder has no source file")
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	c, err := Load(h.path, h.nameColumn)
	if err != nil {
		metrics.CatalogReloads.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("path", h.path).Msg("Catalog reload failed, keeping previous snapshot")
		return nil, err
	}
	h.current.Store(c)
	metrics.CatalogReloads.WithLabelValues("ok").Inc()
	metrics.CatalogRows.Set(float64(c.Len()))

	log.Info().
		Str("path", h.path).
		Int("rows", c.Len()).
		Int("skipped", c.Skipped()).
		Msg("Catalog reloaded")
	return c, nil
}
