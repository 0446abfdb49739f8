package plan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/registry"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

type fakeRetriever struct {
	source  model.Source
	catalog catalog.Catalog
}

func newFakeRetriever(source model.Source, variables ...model.CanonicalVariable) *fakeRetriever {
	mapping := make(map[model.CanonicalVariable]string, len(variables))
	for _, v := range variables {
		mapping[v] = "native_" + v.String()
	}
	return &fakeRetriever{source: source, catalog: catalog.MustNew(source, mapping)}
}

func (f *fakeRetriever) Sources() []model.Source { return []model.Source{f.source} }

func (f *fakeRetriever) Variables(source model.Source) (catalog.Catalog, error) {
	return f.catalog, nil
}

func (f *fakeRetriever) CRS(source model.Source) (string, error) { return "epsg:4326", nil }

func (f *fakeRetriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	return nil, fmt.Errorf("planner tests never fetch")
}

// fakeStore answers coverage queries from a fixed map and fails everything
// else.
type fakeStore struct {
	coverage map[string][]model.Date
	err      error
}

func (s *fakeStore) Coverage(ctx context.Context, prefix string) ([]model.Date, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.coverage[prefix], nil
}

func (s *fakeStore) Read(ctx context.Context, prefix string, day model.Date) (*model.DataFragment, error) {
	return nil, fmt.Errorf("planner tests never read")
}

func (s *fakeStore) Write(ctx context.Context, prefix string, day model.Date, frag *model.DataFragment) error {
	return fmt.Errorf("planner tests never write")
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func mustRegistry(t *testing.T, retrievers ...*fakeRetriever) *registry.Registry {
	t.Helper()
	args := make([]retriever.Retriever, len(retrievers))
	for i, r := range retrievers {
		args[i] = r
	}
	reg, err := registry.New(args...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func TestPlanner_AllMissWithoutStore(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	planner := New(reg, nil)

	cfg := &Config{
		Days:     []model.Date{mustDate(t, "2024-01-01"), mustDate(t, "2024-01-02")},
		Requests: []Request{{Source: "OPERA", Variables: []model.CanonicalVariable{"TOT_PREC"}}},
	}
	p, err := planner.Plan(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Entries) != 1 || p.Entries[0].Cached {
		t.Fatalf("got %+v", p.Entries)
	}
	if len(p.Misses()) != 1 {
		t.Fatalf("got %d misses", len(p.Misses()))
	}
	if p.Entries[0].Prefix != "opera/TOT_PREC" {
		t.Fatalf("got prefix %q", p.Entries[0].Prefix)
	}
}

func TestPlanner_PartialCoverageSplitsUnit(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	store := &fakeStore{coverage: map[string][]model.Date{
		"opera/TOT_PREC": {mustDate(t, "2024-01-01"), mustDate(t, "2024-01-03")},
	}}
	planner := New(reg, store)

	cfg := &Config{
		Days: model.DateRange{
			Start: mustDate(t, "2024-01-01"),
			End:   mustDate(t, "2024-01-05"),
		}.Days(),
		Requests: []Request{{Source: "OPERA", Variables: []model.CanonicalVariable{"TOT_PREC"}}},
	}
	p, err := planner.Plan(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var hits, misses []model.FetchUnit
	for _, e := range p.Entries {
		if e.Cached {
			hits = append(hits, e.Unit)
		} else {
			misses = append(misses, e.Unit)
		}
	}
	// Hits: Jan 1 and Jan 3 as separate runs. Misses: Jan 2 and Jan 4-5.
	if len(hits) != 2 {
		t.Fatalf("got %d hit entries: %v", len(hits), hits)
	}
	if len(misses) != 2 {
		t.Fatalf("got %d miss entries: %v", len(misses), misses)
	}
	if misses[0].Range().String() != "2024-01-02" {
		t.Errorf("first miss: got %s", misses[0].Range())
	}
	if misses[1].Range().String() != "2024-01-04..2024-01-05" {
		t.Errorf("second miss: got %s", misses[1].Range())
	}
}

func TestPlanner_ForceRefreshIgnoresCoverage(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	store := &fakeStore{coverage: map[string][]model.Date{
		"opera/TOT_PREC": {mustDate(t, "2024-01-01")},
	}}
	planner := New(reg, store)

	cfg := &Config{
		Days:         []model.Date{mustDate(t, "2024-01-01")},
		Requests:     []Request{{Source: "OPERA", Variables: []model.CanonicalVariable{"TOT_PREC"}}},
		ForceRefresh: true,
	}
	p, err := planner.Plan(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Misses()) != 1 {
		t.Fatalf("expected a forced miss, got %+v", p.Entries)
	}
}

func TestPlanner_BrokenCoverageDegradesToMiss(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	store := &fakeStore{err: fmt.Errorf("listing failed")}
	planner := New(reg, store)

	cfg := &Config{
		Days:     []model.Date{mustDate(t, "2024-01-01")},
		Requests: []Request{{Source: "OPERA", Variables: []model.CanonicalVariable{"TOT_PREC"}}},
	}
	p, err := planner.Plan(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Misses()) != 1 {
		t.Fatalf("expected a miss, got %+v", p.Entries)
	}
}

func TestPlanner_UnknownSourceIsConfigError(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	planner := New(reg, nil)

	cfg := &Config{
		Days:     []model.Date{mustDate(t, "2024-01-01")},
		Requests: []Request{{Source: "OPERAA", Variables: []model.CanonicalVariable{"TOT_PREC"}}},
	}
	_, err := planner.Plan(context.Background(), cfg)
	var unrecognized *UnrecognizedConfigKeyError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("expected UnrecognizedConfigKeyError, got %v", err)
	}
	if unrecognized.Key != "OPERAA" {
		t.Fatalf("got %+v", unrecognized)
	}
}

func TestPlanner_UnknownVariableFailsBeforeFetch(t *testing.T) {
	reg := mustRegistry(t, newFakeRetriever("OPERA", "TOT_PREC"))
	planner := New(reg, nil)

	cfg := &Config{
		Days:     []model.Date{mustDate(t, "2024-01-01")},
		Requests: []Request{{Source: "OPERA", Variables: []model.CanonicalVariable{"T_2M"}}},
	}
	_, err := planner.Plan(context.Background(), cfg)
	var unknown *catalog.UnknownVariableError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownVariableError, got %v", err)
	}
}
