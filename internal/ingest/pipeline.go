// Package ingest runs the layer pipeline: cache lookup, fetch, normalize,
// CRS detection, reprojection, validation with fallback, and cache store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/layer-ingest/internal/cache/keys"
	"github.com/mohammed-shakir/layer-ingest/internal/cache/layercache"
	"github.com/mohammed-shakir/layer-ingest/internal/core/executor"
	"github.com/mohammed-shakir/layer-ingest/internal/core/observability"
	"github.com/mohammed-shakir/layer-ingest/internal/core/ogc"
	"github.com/mohammed-shakir/layer-ingest/internal/geo/crs"
	"github.com/mohammed-shakir/layer-ingest/internal/geo/normalize"
	"github.com/mohammed-shakir/layer-ingest/internal/geo/reproject"
	mylog "github.com/mohammed-shakir/layer-ingest/internal/logger"
)

// Cache is the subset of layercache.Cache the pipeline needs.
type Cache interface {
	Get(key string) (layercache.Entry, bool)
	PutWith(key string, fc *geojson.FeatureCollection, opts layercache.PutOptions) (layercache.Entry, error)
	Invalidate(key string) bool
}

type Options struct {
	Logger           *slog.Logger
	ValidationSample int
	Now              func() time.Time // for tests
}

type Pipeline struct {
	log    *slog.Logger
	fetch  executor.Interface
	cache  Cache
	sample int
	now    func() time.Time

	flights inflight
}

// Result describes one ingested layer. Body is the serialized Collection.
type Result struct {
	Collection  *geojson.FeatureCollection
	Body        []byte
	Key         string
	CRS         crs.Kind
	Declared    string
	Reprojected bool
	FromCache   bool
	FellBack    bool
	Dropped     int
}

func New(f executor.Interface, c Cache, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ValidationSample <= 0 {
		opts.ValidationSample = DefaultValidationSample
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		log:    opts.Logger,
		fetch:  f,
		cache:  c,
		sample: opts.ValidationSample,
		now:    opts.Now,
	}
}

// Ingest returns the canonical WGS84 collection for rawURL. ctx is the
// caller's liveness: once it is done, nothing is written to the cache and
// ctx.Err() is returned. An invalidation of rawURL that arrives while the
// ingest runs keeps its result out of the cache.
func (p *Pipeline) Ingest(ctx context.Context, rawURL string) (Result, error) {
	ctx = mylog.WithLayerKey(ctx, keys.Fingerprint(rawURL))
	candidates := ogc.FetchCandidates(rawURL)

	for _, key := range candidates {
		if e, ok := p.cache.Get(key); ok {
			observability.ObserveIngest("hit", 0)
			p.log.DebugContext(ctx, "layer cache hit", "key", key, "bytes", e.SizeBytes)
			return fromEntry(e), nil
		}
	}

	t := p.flights.begin(candidates)
	defer p.flights.end(t, candidates)

	start := p.now()
	res, err := p.run(ctx, rawURL, candidates, t)
	observability.ObserveIngest(outcomeOf(err), p.now().Sub(start).Seconds())
	if err != nil {
		p.logFailure(ctx, rawURL, err)
		return Result{}, err
	}
	p.log.InfoContext(ctx, "layer ingested",
		"key", res.Key,
		"features", len(res.Collection.Features),
		"crs", string(res.CRS),
		"reprojected", res.Reprojected,
		"fallback", res.FellBack,
		"dropped", res.Dropped,
		"bytes", len(res.Body),
		"took", p.now().Sub(start))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, rawURL string, candidates []string, t *ticket) (Result, error) {
	payload, norm, err := p.fetchNormalized(ctx, candidates)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Key:      payload.URL,
		CRS:      crs.Detect(payload.Body, norm.Collection),
		Declared: crs.DeclaredName(payload.Body, norm.Collection),
		Dropped:  norm.Dropped,
	}
	observability.IncCRSDetected(string(res.CRS))
	if norm.Dropped > 0 {
		p.log.WarnContext(ctx, "dropped unconvertible elements",
			"shape", norm.Shape, "dropped", norm.Dropped, "kept", len(norm.Collection.Features))
	}

	fc := norm.Collection
	// only reprojected data must validate; declared WGS84 is trusted as-is
	if res.CRS == crs.WebMercator {
		projected := reproject.Collection(fc)
		if verr := Validate(projected, p.sample); verr == nil {
			fc = projected
			res.Reprojected = true
		} else {
			observability.IncFallback()
			p.log.WarnContext(ctx, "reprojected layer failed validation, refetching without reprojection",
				"err", verr, "key", res.Key)
			fb, err := p.fallback(ctx, rawURL)
			if err != nil {
				return Result{}, err
			}
			fc = fb.Collection
			res.Key = rawURL
			res.FellBack = true
			res.Dropped = fb.Dropped
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return p.store(ctx, res, fc, t)
}

// fetchNormalized tries each candidate URL in order and returns the first
// payload that arrives intact and normalizes. A later candidate is tried
// whatever made the earlier one fail, except cancellation.
func (p *Pipeline) fetchNormalized(ctx context.Context, candidates []string) (executor.Payload, normalize.Result, error) {
	var lastErr error
	for i, u := range candidates {
		payload, err := p.fetch.Fetch(ctx, u)
		if cerr := ctx.Err(); cerr != nil {
			return executor.Payload{}, normalize.Result{}, cerr
		}
		if err == nil {
			norm, nerr := normalize.Normalize(payload.Decoded)
			if nerr == nil {
				return payload, norm, nil
			}
			err = fmt.Errorf("%w: %w", ErrNormalization, nerr)
		} else {
			err = classifyFetchErr(err)
		}
		lastErr = err
		if i < len(candidates)-1 {
			p.log.DebugContext(ctx, "fetch with srsName unusable, retrying original url", "err", err)
		}
	}
	return executor.Payload{}, normalize.Result{}, lastErr
}

func (p *Pipeline) fallback(ctx context.Context, rawURL string) (normalize.Result, error) {
	payload, err := p.fetch.Fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return normalize.Result{}, ctx.Err()
		}
		return normalize.Result{}, classifyFetchErr(err)
	}
	if err := ctx.Err(); err != nil {
		return normalize.Result{}, err
	}
	norm, err := normalize.Normalize(payload.Decoded)
	if err != nil {
		return normalize.Result{}, fmt.Errorf("%w: %w", ErrNormalization, err)
	}
	if err := Validate(norm.Collection, p.sample); err != nil {
		return normalize.Result{}, fmt.Errorf("%w: %w", ErrEmptyLayer, err)
	}
	return norm, nil
}

func (p *Pipeline) store(ctx context.Context, res Result, fc *geojson.FeatureCollection, t *ticket) (Result, error) {
	res.Collection = fc
	e, err := p.cache.PutWith(res.Key, fc, layercache.PutOptions{
		Meta: layercache.Meta{
			CRS:         string(res.CRS),
			Declared:    res.Declared,
			Reprojected: res.Reprojected,
			FellBack:    res.FellBack,
			Dropped:     res.Dropped,
		},
		Guard: func() bool { return !t.superseded.Load() },
	})
	switch {
	case err == nil:
		res.Body = e.Body
	case errors.Is(err, layercache.ErrSkipped):
		p.log.InfoContext(ctx, "layer invalidated during ingest, serving uncached", "key", res.Key)
		res.Body = e.Body
	case errors.Is(err, layercache.ErrEntryTooLarge):
		p.log.WarnContext(ctx, "layer too large to cache, serving uncached", "err", err)
		res.Body = e.Body
	default:
		return Result{}, fmt.Errorf("cache layer: %w", err)
	}
	return res, nil
}

// Invalidate drops every cache entry a fetch of rawURL could have produced
// and reports whether anything was removed. Ingests of rawURL still running
// will not cache their result.
func (p *Pipeline) Invalidate(rawURL string) bool {
	candidates := ogc.FetchCandidates(rawURL)
	// mark before removing: a guarded write either sees the mark or lands
	// before the removal below
	if n := p.flights.supersede(candidates); n > 0 {
		p.log.Debug("invalidation superseded running ingests", "url", rawURL, "ingests", n)
	}
	removed := false
	for _, key := range candidates {
		if p.cache.Invalidate(key) {
			removed = true
		}
	}
	return removed
}

func (p *Pipeline) logFailure(ctx context.Context, rawURL string, err error) {
	var te *executor.TruncatedError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.log.DebugContext(ctx, "layer ingest abandoned", "url", rawURL, "err", err)
	case errors.As(err, &te):
		p.log.ErrorContext(ctx, "truncated layer response",
			"url", rawURL,
			"expected_bytes", te.Expected,
			"received_bytes", te.Received)
	case errors.Is(err, ErrEmptyLayer):
		p.log.WarnContext(ctx, "layer has no valid WGS84 data", "url", rawURL, "err", err)
	default:
		p.log.ErrorContext(ctx, "layer ingest failed", "url", rawURL, "err", err)
	}
}

func fromEntry(e layercache.Entry) Result {
	return Result{
		Collection:  e.Value,
		Body:        e.Body,
		Key:         e.Key,
		CRS:         crs.Kind(e.Meta.CRS),
		Declared:    e.Meta.Declared,
		Reprojected: e.Meta.Reprojected,
		FellBack:    e.Meta.FellBack,
		Dropped:     e.Meta.Dropped,
		FromCache:   true,
	}
}
