// Package provider is the top-level orchestrator: it expands a request into
// a plan, resolves cache misses through the registered retrievers with
// bounded retries and bounded concurrency, writes fresh fragments back to
// the cache, and merges everything into one unified result.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kacper-wojtaszczyk/weathermart/internal/cache"
	"github.com/kacper-wojtaszczyk/weathermart/internal/geo"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/plan"
	"github.com/kacper-wojtaszczyk/weathermart/internal/registry"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultWorkers        = 4
)

// Options tunes the orchestration. The zero value picks sensible defaults.
type Options struct {
	// Reprojector handles target_crs/bounds requests. Defaults to the
	// built-in lon/lat cropper.
	Reprojector geo.Reprojector

	// MaxRetries bounds re-attempts after transient upstream failures.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Workers bounds concurrent miss resolution to respect upstream rate
	// limits.
	Workers int
}

// Provider orchestrates cache-first retrieval. Build one from an injected
// store and registry; it holds no implicit global state.
type Provider struct {
	store   cache.Store
	reg     *registry.Registry
	planner *plan.Planner
	opts    Options
	now     func() time.Time
}

// New creates a provider. A nil store disables caching: every unit is
// fetched and nothing is written back.
func New(store cache.Store, reg *registry.Registry, opts Options) *Provider {
	if opts.Reprojector == nil {
		opts.Reprojector = geo.LatLonCropper{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &Provider{
		store:   store,
		reg:     reg,
		planner: plan.New(reg, store),
		opts:    opts,
		now:     time.Now,
	}
}

// ProvideFromConfig runs one retrieval for an in-memory request document.
func (p *Provider) ProvideFromConfig(ctx context.Context, doc map[string]any) (*model.Result, error) {
	cfg, err := plan.FromMap(doc)
	if err != nil {
		return nil, err
	}
	return p.Provide(ctx, cfg)
}

// ProvideYAML runs one retrieval for a YAML request document.
func (p *Provider) ProvideYAML(ctx context.Context, data []byte) (*model.Result, error) {
	cfg, err := plan.ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return p.Provide(ctx, cfg)
}

// Provide materializes the config. Configuration errors abort before any
// upstream I/O; per-unit fetch failures are isolated into the result's
// warning list. When everything is absent the caller still gets an
// explicitly empty result plus the warnings, never a silent empty success.
func (p *Provider) Provide(ctx context.Context, cfg *plan.Config) (*model.Result, error) {
	pl, err := p.planner.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}

	requestID := uuid.Must(uuid.NewV7())
	log := slog.With("request_id", requestID)
	log.InfoContext(ctx, "retrieval plan built", "entries", len(pl.Entries), "misses", len(pl.Misses()))

	var fragments []*model.DataFragment
	var warnings []model.Warning

	// Cache hits first; a hit that fails to read degrades to a miss.
	misses := make([]plan.Entry, 0, len(pl.Entries))
	for _, entry := range pl.Entries {
		if !entry.Cached {
			misses = append(misses, entry)
			continue
		}
		frag, err := p.readCached(ctx, entry)
		if err != nil {
			log.WarnContext(ctx, "cache read failed, refetching", "unit", entry.Unit.String(), "error", err)
			misses = append(misses, entry)
			continue
		}
		fragments = append(fragments, frag)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, entry := range misses {
		g.Go(func() error {
			frag, warning := p.resolveMiss(gctx, log, entry)
			mu.Lock()
			defer mu.Unlock()
			if warning != nil {
				warnings = append(warnings, *warning)
			}
			if frag != nil {
				fragments = append(fragments, frag)
			}
			return nil
		})
	}
	_ = g.Wait()

	fields := mergeFragments(fragments, &warnings)
	if cfg.Options.TargetCRS != "" || cfg.Options.Bounds != nil {
		for variable, frag := range fields {
			projected, err := p.opts.Reprojector.Reproject(ctx, frag, cfg.Options.TargetCRS, cfg.Options.Bounds)
			if err != nil {
				return nil, err
			}
			fields[variable] = projected
		}
	}

	result := &model.Result{Fields: fields, Warnings: warnings}
	log.InfoContext(ctx, "retrieval complete", "fields", len(result.Fields), "warnings", len(result.Warnings))
	return result, nil
}

// readCached joins the per-day cache objects of a hit entry back into one
// fragment-per-day list merged later with everything else.
func (p *Provider) readCached(ctx context.Context, entry plan.Entry) (*model.DataFragment, error) {
	var joined *model.DataFragment
	for _, day := range entry.Unit.Days {
		frag, err := p.store.Read(ctx, entry.Prefix, day)
		if err != nil {
			return nil, err
		}
		if err := frag.Validate(); err != nil {
			return nil, err
		}
		if joined == nil {
			joined = frag
			continue
		}
		appended, err := appendFragment(joined, frag)
		if err != nil {
			return nil, err
		}
		joined = appended
	}
	return joined, nil
}

// resolveMiss drives one unit through its state machine:
// Fetching -> Fetched -> CachedWrite -> merged, or a terminal warning.
func (p *Provider) resolveMiss(ctx context.Context, log *slog.Logger, entry plan.Entry) (*model.DataFragment, *model.Warning) {
	ret, err := p.reg.Resolve(entry.Unit.Source)
	if err != nil {
		return nil, &model.Warning{Unit: entry.Unit, Kind: model.WarnGivenUp, Detail: err.Error()}
	}

	frag, err := p.fetchWithRetry(ctx, log, ret, entry.Unit)
	if err != nil {
		return nil, classifyFailure(entry.Unit, err)
	}

	if err := frag.Validate(); err != nil {
		return nil, &model.Warning{Unit: entry.Unit, Kind: model.WarnGivenUp, Detail: err.Error()}
	}
	// Clip to the requested days so a generous upstream cannot pollute the
	// unit's cache key with foreign days.
	frag = frag.SelectDays(entry.Unit.Days)
	if len(frag.Times) == 0 {
		return nil, &model.Warning{Unit: entry.Unit, Kind: model.WarnAbsent, Detail: "upstream returned no requested days"}
	}
	if frag.FetchedAt.IsZero() {
		frag.FetchedAt = p.now().UTC()
	}

	// Write before merging so a crash afterwards still leaves the cache
	// consistent with what was actually fetched.
	if p.store != nil {
		for _, day := range frag.Days() {
			if err := p.store.Write(ctx, entry.Prefix, day, frag.SelectDays([]model.Date{day})); err != nil {
				log.WarnContext(ctx, "cache write failed", "unit", entry.Unit.String(), "day", day.String(), "error", err)
			}
		}
	}
	return frag, nil
}

// fetchWithRetry retries transient upstream failures with exponential
// backoff; every other error propagates immediately.
func (p *Provider) fetchWithRetry(ctx context.Context, log *slog.Logger, ret retriever.Retriever, unit model.FetchUnit) (*model.DataFragment, error) {
	backoff := p.opts.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			log.InfoContext(ctx, "retrying unit", "unit", unit.String(), "attempt", attempt, "backoff", backoff.String())
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			if backoff > p.opts.MaxBackoff {
				backoff = p.opts.MaxBackoff
			}
		}

		frag, err := ret.Retrieve(ctx, unit)
		if err == nil {
			return frag, nil
		}
		if !retriever.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func classifyFailure(unit model.FetchUnit, err error) *model.Warning {
	var invalid *retriever.InvalidParameterError
	switch {
	case retriever.IsNotFound(err):
		return &model.Warning{Unit: unit, Kind: model.WarnAbsent, Detail: err.Error()}
	case errors.As(err, &invalid):
		return &model.Warning{Unit: unit, Kind: model.WarnInvalidParameter, Detail: err.Error()}
	default:
		return &model.Warning{Unit: unit, Kind: model.WarnGivenUp, Detail: err.Error()}
	}
}
