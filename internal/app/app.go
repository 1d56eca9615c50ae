// Package app assembles the service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/mohammed-shakir/poi-cache/internal/cache"
	"github.com/mohammed-shakir/poi-cache/internal/cache/datasetstore"
	"github.com/mohammed-shakir/poi-cache/internal/cache/keys"
	"github.com/mohammed-shakir/poi-cache/internal/cache/memstore"
	"github.com/mohammed-shakir/poi-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/poi-cache/internal/core/config"
	"github.com/mohammed-shakir/poi-cache/internal/core/health"
	"github.com/mohammed-shakir/poi-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/poi-cache/internal/core/server"
	"github.com/mohammed-shakir/poi-cache/internal/events"
	h3mapper "github.com/mohammed-shakir/poi-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/poi-cache/internal/metrics"
	"github.com/mohammed-shakir/poi-cache/internal/pipeline"
	"github.com/mohammed-shakir/poi-cache/internal/places"
	"github.com/mohammed-shakir/poi-cache/internal/query"
)

type App struct {
	Handler      http.Handler
	Orchestrator *pipeline.Orchestrator

	closers []func() error
}

// Options carries the pieces main owns. Both fields are optional.
type Options struct {
	Metrics    *metrics.Provider
	HTTPClient *http.Client
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	backend, ready, err := a.buildCache(ctx, cfg.Cache, opts.Metrics)
	if err != nil {
		return nil, err
	}

	kb, err := keys.NewBuilder(cfg.H3Res)
	if err != nil {
		return nil, fmt.Errorf("key builder: %w", err)
	}
	cells, err := h3mapper.New(cfg.H3Res)
	if err != nil {
		return nil, fmt.Errorf("h3 mapper: %w", err)
	}

	var prior query.Popularity
	if cfg.PopularityFile != "" {
		prior, err = query.LoadPopularity(cfg.PopularityFile)
		if err != nil {
			return nil, err
		}
		logger.Info("popularity prior loaded", "categories", len(prior))
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = httpclient.NewOutbound(2 * cfg.Places.FetchTimeout)
	}
	if cfg.Places.APIKey == "" {
		logger.Warn("PLACES_API_KEY is empty; upstream calls will be rejected")
	}
	client := places.NewClient(logger, hc, places.Config{
		URL:       cfg.Places.URL,
		APIKey:    cfg.Places.APIKey,
		FieldMask: cfg.Places.FieldMask,
	})

	var sink events.Sink = events.Nop{}
	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Queue, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		sink = pub
		logger.Info("resolve events enabled", "topic", cfg.Events.Topic, "brokers", cfg.Events.Brokers)
	}

	orch, err := pipeline.New(pipeline.Deps{
		Keys: kb,
		Store: datasetstore.New(backend, datasetstore.Config{
			TTL:         cfg.Cache.TTL,
			NegativeTTL: cfg.Cache.NegativeTTL,
			OpTimeout:   cfg.Cache.OpTimeout,
		}, logger),
		Decomposer: query.NewDecomposer(prior),
		Fetcher:    client,
		Normalizer: places.Normalizer{Cell: cells.CellForPoint},
		Events:     sink,
		Logger:     logger,
	}, pipeline.Options{
		MaxConcurrency: cfg.Places.MaxConcurrency,
		FetchTimeout:   cfg.Places.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	a.Orchestrator = orch
	a.Handler = server.Handler(logger, orch, ready)
	ok = true
	return a, nil
}

func (a *App) buildCache(ctx context.Context, cfg config.CacheCfg, mp *metrics.Provider) (cache.Interface, map[string]health.Pinger, error) {
	newL1 := func() (*memstore.Store, error) {
		ms, err := memstore.New(cfg.L1Size)
		if err != nil {
			return nil, err
		}
		if mp != nil {
			mp.GaugeFunc("cache_l1_entries", "Entries held in the in-process dataset cache.",
				func() float64 { return float64(ms.Len()) })
		}
		return ms, nil
	}
	newL2 := func() (*redisstore.Client, error) {
		opts := []redisstore.Option{
			redisstore.WithReadTimeout(cfg.OpTimeout),
			redisstore.WithWriteTimeout(cfg.OpTimeout),
		}
		if cfg.RedisPool > 0 {
			opts = append(opts, redisstore.WithPoolSize(cfg.RedisPool))
		}
		rc, err := redisstore.New(ctx, cfg.RedisAddr, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		return rc, nil
	}

	switch cfg.Backend {
	case config.BackendMemory:
		ms, err := newL1()
		return ms, nil, err
	case config.BackendTiered:
		ms, err := newL1()
		if err != nil {
			return nil, nil, err
		}
		rc, err := newL2()
		if err != nil {
			return nil, nil, err
		}
		return cache.NewTiered(ms, rc, cfg.TTL), map[string]health.Pinger{"redis": rc}, nil
	case config.BackendRedis, "":
		rc, err := newL2()
		if err != nil {
			return nil, nil, err
		}
		return rc, map[string]health.Pinger{"redis": rc}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Close releases the cache connection and flushes the event publisher.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, context.Canceled) {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
