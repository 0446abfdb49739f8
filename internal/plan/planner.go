package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kacper-wojtaszczyk/weathermart/internal/cache"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/registry"
)

// Entry is one atomic, classified piece of work: a fetch unit whose days are
// a contiguous run, flagged as already cached or still to fetch.
type Entry struct {
	Unit   model.FetchUnit
	Prefix string // canonical cache key of the unit
	Cached bool
}

// Plan is the classified expansion of one config. It lives only for the
// duration of one provide call; the hit/miss split is computed once so
// concurrent misses can never duplicate upstream calls for the same key.
type Plan struct {
	Entries []Entry
	Options model.ExtraParams
}

// Misses returns the entries that still need an upstream fetch.
func (p *Plan) Misses() []Entry {
	var out []Entry
	for _, e := range p.Entries {
		if !e.Cached {
			out = append(out, e)
		}
	}
	return out
}

// Planner expands configs into plans against a registry and a cache store.
// A nil store plans every unit as a miss.
type Planner struct {
	reg   *registry.Registry
	store cache.Store
}

// New creates a planner.
func New(reg *registry.Registry, store cache.Store) *Planner {
	return &Planner{reg: reg, store: store}
}

// Plan expands the config into fetch units and classifies each against the
// cache. Configuration errors (unknown key, unknown variable, bad
// parameters) abort here, before any upstream I/O.
func (p *Planner) Plan(ctx context.Context, cfg *Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &Plan{Options: cfg.Options}
	for _, req := range cfg.Requests {
		if !p.reg.Has(req.Source) {
			return nil, &UnrecognizedConfigKeyError{Key: req.Source.String()}
		}
		ret, err := p.reg.Resolve(req.Source)
		if err != nil {
			return nil, err
		}
		cat, err := ret.Variables(req.Source)
		if err != nil {
			return nil, err
		}
		for _, variable := range req.Variables {
			// Name translation must succeed now, not deep inside a fetch.
			if _, err := cat.ToNative(variable); err != nil {
				return nil, err
			}
			unit := model.FetchUnit{
				Source:   req.Source,
				Variable: variable,
				Days:     cfg.Days,
				Params:   cfg.Options,
			}
			entries, err := p.classify(ctx, unit, cfg.ForceRefresh)
			if err != nil {
				return nil, err
			}
			out.Entries = append(out.Entries, entries...)
		}
	}
	return out, nil
}

// classify splits one unit into cached and missing day runs. A cache holding
// a superset of the requested days is a full hit; a proper subset splits the
// unit so no day is ever fetched twice nor served twice.
func (p *Planner) classify(ctx context.Context, unit model.FetchUnit, forceRefresh bool) ([]Entry, error) {
	prefix, err := cache.Key(unit)
	if err != nil {
		return nil, err
	}

	var covered []model.Date
	if p.store != nil && !forceRefresh {
		covered, err = p.store.Coverage(ctx, prefix)
		if err != nil {
			// A broken cache lookup degrades to a full miss; the cache is an
			// optimization, not a source of truth.
			slog.WarnContext(ctx, "cache coverage lookup failed", "key", prefix, "error", err)
			covered = nil
		}
	}

	hits := model.IntersectDates(unit.Days, covered)
	misses := model.DiffDates(unit.Days, hits)

	var entries []Entry
	for _, r := range model.ContiguousRanges(hits) {
		entries = append(entries, Entry{Unit: unitForRange(unit, r), Prefix: prefix, Cached: true})
	}
	for _, r := range model.ContiguousRanges(misses) {
		entries = append(entries, Entry{Unit: unitForRange(unit, r), Prefix: prefix, Cached: false})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("unit %s classified to nothing", unit)
	}
	return entries, nil
}

func unitForRange(unit model.FetchUnit, r model.DateRange) model.FetchUnit {
	return model.FetchUnit{
		Source:   unit.Source,
		Variable: unit.Variable,
		Days:     r.Days(),
		Params:   unit.Params,
	}
}
