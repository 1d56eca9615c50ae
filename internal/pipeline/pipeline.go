// Package pipeline resolves a dataset request: combined cache lookup, query
// decomposition, per-sub-query cache probe, concurrent fetch of the misses,
// merge, and write-back.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
	"github.com/mohammed-shakir/poi-cache/internal/core/observability"
	"github.com/mohammed-shakir/poi-cache/internal/events"
	"github.com/mohammed-shakir/poi-cache/internal/geojson"
	"github.com/mohammed-shakir/poi-cache/internal/logger"
	"github.com/mohammed-shakir/poi-cache/internal/places"
)

const (
	DefaultMaxConcurrency = 8

	levelCombined = "combined"
	levelSub      = "sub"

	tracerName = "github.com/mohammed-shakir/poi-cache/internal/pipeline"
)

type Deps struct {
	Keys       KeyBuilder
	Store      Store
	Decomposer Decomposer
	Fetcher    Fetcher
	Normalizer Normalizer
	Events     events.Sink // optional
	Logger     *slog.Logger
}

type Options struct {
	// MaxConcurrency caps in-flight fetches per resolve.
	MaxConcurrency int
	// FetchTimeout bounds one sub-query fetch; 0 leaves it to the caller's context.
	FetchTimeout time.Duration
}

// Report describes how a resolve was satisfied. FetchErr aggregates the
// sub-query failures that were degraded to empty contributions; a nil
// FetchErr means the result is complete.
type Report struct {
	CombinedHit  bool
	NoSubQueries bool
	Shared       bool
	SubQueries   int
	SubHits      int
	Fetched      int
	Empty        int
	Failed       int
	Features     int
	FetchErr     error
}

type Orchestrator struct {
	keys       KeyBuilder
	store      Store
	decomposer Decomposer
	fetcher    Fetcher
	normalizer Normalizer
	events     events.Sink
	logger     *slog.Logger
	opts       Options
	tracer     trace.Tracer
	group      singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context of one shared resolve. It is canceled only when
// every caller waiting on it has gone away.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func New(d Deps, opts Options) (*Orchestrator, error) {
	switch {
	case d.Keys == nil:
		return nil, errors.New("pipeline: key builder is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case d.Decomposer == nil:
		return nil, errors.New("pipeline: decomposer is required")
	case d.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case d.Normalizer == nil:
		return nil, errors.New("pipeline: normalizer is required")
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Orchestrator{
		keys:       d.Keys,
		store:      d.Store,
		decomposer: d.Decomposer,
		fetcher:    d.Fetcher,
		normalizer: d.Normalizer,
		events:     d.Events,
		logger:     d.Logger.With("component", "pipeline"),
		opts:       opts,
		tracer:     otel.Tracer(tracerName),
		flights:    make(map[string]*flight),
	}, nil
}

func (o *Orchestrator) Resolve(ctx context.Context, req model.Request) (*geojson.Dataset, error) {
	d, _, err := o.ResolveWithReport(ctx, req)
	return d, err
}

type result struct {
	d   *geojson.Dataset
	rep Report
}

// ResolveWithReport is Resolve plus a Report. Concurrent calls for the same
// request share one underlying resolve; each caller gets its own copy.
func (o *Orchestrator) ResolveWithReport(ctx context.Context, req model.Request) (*geojson.Dataset, Report, error) {
	if err := req.Validate(); err != nil {
		return nil, Report{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	key, err := o.keys.Combined(req)
	if err != nil {
		return nil, Report{}, stageErr(StageKey, "", err)
	}

	fl, ch := o.join(ctx, req, key)
	select {
	case r := <-ch:
		o.leave(key, fl)
		res, _ := r.Val.(result)
		if r.Err != nil {
			return nil, res.rep, r.Err
		}
		if r.Shared {
			res.d = res.d.Clone()
			res.rep.Shared = true
		}
		return res.d, res.rep, nil
	case <-ctx.Done():
		o.leave(key, fl)
		return nil, Report{}, ctx.Err()
	}
}

// join attaches the caller to the in-flight resolve for key, starting one if
// none is running. The resolve runs detached from any single caller.
func (o *Orchestrator) join(ctx context.Context, req model.Request, key string) (*flight, <-chan singleflight.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fl := o.flights[key]
	if fl == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		o.flights[key] = fl
	}
	fl.waiters++
	ch := o.group.DoChan(key, func() (any, error) {
		defer func() {
			o.mu.Lock()
			if o.flights[key] == fl {
				delete(o.flights, key)
			}
			o.mu.Unlock()
			fl.cancel()
		}()
		d, rep, err := o.resolve(fl.ctx, req, key)
		return result{d: d, rep: rep}, err
	})
	return fl, ch
}

func (o *Orchestrator) leave(key string, fl *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	// nobody is left to receive the result: abort it, and make the next
	// caller start a fresh resolve instead of joining the aborting one
	fl.cancel()
	if o.flights[key] == fl {
		delete(o.flights, key)
		o.group.Forget(key)
	}
}

func (o *Orchestrator) resolve(ctx context.Context, req model.Request, key string) (d *geojson.Dataset, rep Report, err error) {
	start := time.Now()
	ctx = logger.WithCacheKey(ctx, key)
	ctx, span := o.tracer.Start(ctx, "pipeline.resolve", trace.WithAttributes(
		attribute.String("poi.cache_key", key),
		attribute.String("poi.query", req.BooleanQuery),
		attribute.Float64("poi.radius", req.Radius),
	))
	defer func() {
		path := resolvePath(rep, err)
		took := time.Since(start)
		observability.ObserveResolve(path, took.Seconds())
		span.SetAttributes(
			attribute.String("poi.path", path),
			attribute.Int("poi.sub_queries", rep.SubQueries),
			attribute.Int("poi.features", rep.Features),
		)
		endSpan(span, err)
		o.events.Publish(ctx, events.ResolveEvent{
			Key:        key,
			Outcome:    path,
			SubQueries: rep.SubQueries,
			SubHits:    rep.SubHits,
			Fetched:    rep.Fetched,
			Failed:     rep.Failed,
			Features:   rep.Features,
			DurationMS: took.Milliseconds(),
			TS:         start.UTC(),
		})
	}()

	cached, hit, err := o.store.Get(ctx, key)
	if err != nil {
		return nil, rep, stageErr(StageCacheGet, key, err)
	}
	observability.IncDatasetCache(levelCombined, hit)
	if hit {
		// stored bytes keep ids; strip the decoded copy so hit and miss responses match
		geojson.StripIDs(cached)
		rep.CombinedHit = true
		rep.Features = cached.Len()
		o.logger.DebugContext(logger.WithCacheOutcome(ctx, "hit"), "combined cache hit", "features", rep.Features)
		return cached, rep, nil
	}
	ctx = logger.WithCacheOutcome(ctx, "miss")

	sqs, err := o.decomposer.Decompose(req.BooleanQuery)
	if err != nil {
		return nil, rep, stageErr(StageDecompose, key, err)
	}
	if len(sqs) == 0 {
		rep.NoSubQueries = true
		o.logger.WarnContext(ctx, "query decomposed into no sub-queries", "query", req.BooleanQuery)
		return geojson.Empty(), rep, nil
	}
	rep.SubQueries = len(sqs)

	subKeys := make([]string, len(sqs))
	for i, sq := range sqs {
		k, err := o.keys.Sub(req, sq)
		if err != nil {
			return nil, rep, stageErr(StageKey, "", err)
		}
		subKeys[i] = k
	}
	hits, err := o.store.GetMany(ctx, subKeys)
	if err != nil {
		return nil, rep, stageErr(StageCacheGet, key, err)
	}

	// parts is indexed by decomposition position so merge order never
	// depends on fetch completion order
	parts := make([]*geojson.Dataset, len(sqs))
	pending := make([]int, 0, len(sqs))
	for i, k := range subKeys {
		if ds, ok := hits[k]; ok {
			parts[i] = ds
			rep.SubHits++
			observability.IncDatasetCache(levelSub, true)
			continue
		}
		observability.IncDatasetCache(levelSub, false)
		pending = append(pending, i)
	}

	if err := o.fetchPending(ctx, req, sqs, subKeys, pending, parts, &rep); err != nil {
		return nil, rep, err
	}

	merged, diag := geojson.MergeWithDiagnostics(parts)
	rep.Features = merged.Len()
	if diag.MissingID > 0 || diag.DedupByID > 0 {
		o.logger.DebugContext(ctx, "merge dropped features",
			"missing_id", diag.MissingID, "duplicates", diag.DedupByID)
	}

	if merged.IsEmpty() {
		o.logger.InfoContext(ctx, "resolve produced no features",
			"sub_queries", rep.SubQueries, "failed", rep.Failed)
		return merged, rep, nil
	}
	if err := o.store.Put(ctx, key, merged); err != nil {
		return nil, rep, stageErr(StageCachePut, key, err)
	}
	geojson.StripIDs(merged)

	o.logger.InfoContext(ctx, "resolved",
		"sub_queries", rep.SubQueries,
		"sub_hits", rep.SubHits,
		"fetched", rep.Fetched,
		"failed", rep.Failed,
		"features", rep.Features,
		"took", time.Since(start),
	)
	return merged, rep, nil
}

func (o *Orchestrator) fetchPending(
	ctx context.Context,
	req model.Request,
	sqs []model.SubQuery,
	subKeys []string,
	pending []int,
	parts []*geojson.Dataset,
	rep *Report,
) error {
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrency)

	var (
		mu       sync.Mutex
		fetchErr *multierror.Error
	)
	for _, i := range pending {
		g.Go(func() error {
			ds, ferr := o.fetchOne(gctx, req, sqs[i])

			mu.Lock()
			switch {
			case ferr != nil:
				rep.Failed++
				fetchErr = multierror.Append(fetchErr, ferr)
			case ds.IsEmpty():
				rep.Empty++
			default:
				rep.Fetched++
			}
			mu.Unlock()

			if ferr != nil {
				return nil
			}
			if err := o.store.Put(gctx, subKeys[i], ds); err != nil {
				return stageErr(StageCachePut, subKeys[i], err)
			}
			if !ds.IsEmpty() {
				parts[i] = ds
			}
			return nil
		})
	}

	err := g.Wait()
	rep.FetchErr = fetchErr.ErrorOrNil()
	if err != nil {
		return err
	}
	// a canceled caller turns every fetch into a failure; that result must
	// not be merged and cached as if it were complete
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("resolve aborted: %w", cerr)
	}
	return nil
}

// fetchOne runs one sub-query and normalizes the records. Errors are returned
// for accounting only; the caller degrades them to an empty contribution.
func (o *Orchestrator) fetchOne(ctx context.Context, req model.Request, sq model.SubQuery) (*geojson.Dataset, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.fetch", trace.WithAttributes(
		attribute.StringSlice("poi.included", sq.Included),
		attribute.StringSlice("poi.excluded", sq.Excluded),
	))
	if o.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := o.fetcher.SearchNearby(ctx, req, sq)
	if err != nil {
		observability.IncSubqueryFetch("failed")
		o.logger.WarnContext(ctx, "sub-query fetch failed",
			"sub_query", sq.String(), "err", err, "took", time.Since(start))
		endSpan(span, err)
		return nil, fmt.Errorf("fetch %s: %w", sq, err)
	}

	ds := o.normalizer.Normalize(raw, req.Radius)
	if ds == nil {
		ds = geojson.Empty()
	}
	places.CoerceNumbers(ds)

	if ds.IsEmpty() {
		observability.IncSubqueryFetch("empty")
	} else {
		observability.IncSubqueryFetch("ok")
	}
	o.logger.DebugContext(ctx, "sub-query fetched",
		"sub_query", sq.String(), "records", len(raw), "features", ds.Len(), "took", time.Since(start))
	span.SetAttributes(attribute.Int("poi.records", len(raw)))
	endSpan(span, nil)
	return ds, nil
}

func resolvePath(rep Report, err error) string {
	switch {
	case err != nil:
		return "error"
	case rep.CombinedHit:
		return "hit"
	case rep.Features == 0:
		return "empty"
	default:
		return "fill"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
