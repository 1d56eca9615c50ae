// Package datasetstore persists geojson datasets on a byte-level cache backend.
package datasetstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/poi-cache/internal/cache"
	"github.com/mohammed-shakir/poi-cache/internal/geojson"
)

type Config struct {
	// TTL applies to non-empty datasets; 0 keeps them until evicted.
	TTL time.Duration
	// NegativeTTL applies to empty datasets; 0 means empty datasets are not stored.
	NegativeTTL time.Duration
	// OpTimeout bounds each backend call; 0 disables the bound.
	OpTimeout time.Duration
}

type Store struct {
	backend cache.Interface
	cfg     Config
	logger  *slog.Logger
}

func New(backend cache.Interface, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, cfg: cfg, logger: logger}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// Get returns (nil, false, nil) on a miss. An entry that does not decode is
// reported as an error, not a miss.
func (s *Store) Get(ctx context.Context, key string) (*geojson.Dataset, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	b, ok, err := s.backend.Get(cctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("dataset get %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	d, err := geojson.Decode(b)
	if err != nil {
		return nil, false, fmt.Errorf("dataset decode %q: %w", key, err)
	}
	return d, true, nil
}

// GetMany returns the hits only; absent keys are misses.
func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]*geojson.Dataset, error) {
	out := make(map[string]*geojson.Dataset, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := s.backend.MGet(cctx, keys)
	if err != nil {
		return nil, fmt.Errorf("dataset mget: %w", err)
	}
	for k, b := range raw {
		d, err := geojson.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("dataset decode %q: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

// Put stores d under key. Empty datasets are written only when a negative
// TTL is configured.
func (s *Store) Put(ctx context.Context, key string, d *geojson.Dataset) error {
	ttl := s.cfg.TTL
	if d.IsEmpty() {
		if s.cfg.NegativeTTL <= 0 {
			s.logger.Debug("skip storing empty dataset", "key", key)
			return nil
		}
		ttl = s.cfg.NegativeTTL
	}
	b, err := geojson.Encode(d)
	if err != nil {
		return fmt.Errorf("dataset encode %q: %w", key, err)
	}

	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.backend.Set(cctx, key, b, ttl); err != nil {
		return fmt.Errorf("dataset put %q: %w", key, err)
	}
	return nil
}
