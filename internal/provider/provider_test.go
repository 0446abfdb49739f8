package provider

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/registry"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

// memStore is an in-memory cache.Store for orchestration tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string]map[model.Date]*model.DataFragment
	writes  int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]map[model.Date]*model.DataFragment)}
}

func (s *memStore) Coverage(ctx context.Context, prefix string) ([]model.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var days []model.Date
	for day := range s.objects[prefix] {
		days = append(days, day)
	}
	return model.SortDates(days), nil
}

func (s *memStore) Read(ctx context.Context, prefix string, day model.Date) (*model.DataFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frag, ok := s.objects[prefix][day]
	if !ok {
		return nil, fmt.Errorf("no object %s/%s", prefix, day)
	}
	return frag, nil
}

func (s *memStore) Write(ctx context.Context, prefix string, day model.Date, frag *model.DataFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[prefix] == nil {
		s.objects[prefix] = make(map[model.Date]*model.DataFragment)
	}
	s.objects[prefix][day] = frag
	s.writes++
	return nil
}

// scriptedRetriever serves one source from a scripted Retrieve function and
// counts calls.
type scriptedRetriever struct {
	source   model.Source
	catalog  catalog.Catalog
	crs      string
	mu       sync.Mutex
	calls    int
	retrieve func(call int, unit model.FetchUnit) (*model.DataFragment, error)
}

func newScriptedRetriever(source model.Source, variables ...model.CanonicalVariable) *scriptedRetriever {
	mapping := make(map[model.CanonicalVariable]string, len(variables))
	for _, v := range variables {
		mapping[v] = "native_" + v.String()
	}
	return &scriptedRetriever{
		source:  source,
		catalog: catalog.MustNew(source, mapping),
		crs:     "epsg:4326",
	}
}

func (r *scriptedRetriever) Sources() []model.Source { return []model.Source{r.source} }

func (r *scriptedRetriever) Variables(source model.Source) (catalog.Catalog, error) {
	return r.catalog, nil
}

func (r *scriptedRetriever) CRS(source model.Source) (string, error) { return r.crs, nil }

func (r *scriptedRetriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	r.mu.Lock()
	call := r.calls
	r.calls++
	r.mu.Unlock()
	return r.retrieve(call, unit)
}

func (r *scriptedRetriever) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

// fragmentFor materializes a one-cell grid fragment covering the unit's days
// at noon.
func fragmentFor(unit model.FetchUnit, crs string) *model.DataFragment {
	frag := &model.DataFragment{
		Source:   unit.Source,
		Variable: unit.Variable,
		CRS:      crs,
		XS:       []float64{7.5},
		YS:       []float64{46.5},
	}
	for _, day := range unit.Days {
		frag.Times = append(frag.Times, day.Time().Add(12*time.Hour))
		frag.Values = append(frag.Values, 1.0)
	}
	return frag
}

func mustRegistry(t *testing.T, retrievers ...retriever.Retriever) *registry.Registry {
	t.Helper()
	reg, err := registry.New(retrievers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func testOptions() Options {
	return Options{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Workers:        2,
	}
}

func TestProvide_FetchesWritesAndMerges(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return fragmentFor(unit, "laea"), nil
	}
	store := newMemStore()
	p := New(store, mustRegistry(t, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": []string{"2024-01-01", "2024-01-02"},
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if radar.callCount() != 1 {
		t.Fatalf("expected one upstream call for a contiguous run, got %d", radar.callCount())
	}
	field, ok := result.Fields["TOT_PREC"]
	if !ok {
		t.Fatalf("missing field, got %v", result.Fields)
	}
	if len(field.Times) != 2 {
		t.Fatalf("got %d time steps", len(field.Times))
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	// One cache object per day under the unit's key.
	if store.writes != 2 {
		t.Fatalf("got %d cache writes, want 2", store.writes)
	}
	if days, _ := store.Coverage(context.Background(), "opera/TOT_PREC"); len(days) != 2 {
		t.Fatalf("got coverage %v", days)
	}
}

func TestProvide_SecondCallServedFromCache(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return fragmentFor(unit, "laea"), nil
	}
	store := newMemStore()
	p := New(store, mustRegistry(t, radar), testOptions())

	doc := map[string]any{"dates": []string{"2024-01-01", "2024-01-02"}, "OPERA": "TOT_PREC"}
	if _, err := p.ProvideFromConfig(context.Background(), doc); err != nil {
		t.Fatalf("first call: %v", err)
	}
	result, err := p.ProvideFromConfig(context.Background(), doc)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if radar.callCount() != 1 {
		t.Fatalf("second call hit upstream, %d calls total", radar.callCount())
	}
	if field := result.Fields["TOT_PREC"]; field == nil || len(field.Times) != 2 {
		t.Fatalf("cached result incomplete: %v", result.Fields)
	}
}

func TestProvide_PartialCacheFetchesOnlyMissingDays(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	var fetched []model.Date
	var mu sync.Mutex
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		mu.Lock()
		fetched = append(fetched, unit.Days...)
		mu.Unlock()
		return fragmentFor(unit, "laea"), nil
	}
	store := newMemStore()
	p := New(store, mustRegistry(t, radar), testOptions())

	if _, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": []string{"2024-01-01", "2024-01-02"},
		"OPERA": "TOT_PREC",
	}); err != nil {
		t.Fatalf("warmup call: %v", err)
	}

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"},
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fetched) != 4 { // 2 warmup + 2 extension
		t.Fatalf("fetched days %v", fetched)
	}
	if fetched[2].String() != "2024-01-03" || fetched[3].String() != "2024-01-04" {
		t.Fatalf("extension fetched wrong days: %v", fetched[2:])
	}
	if field := result.Fields["TOT_PREC"]; field == nil || len(field.Times) != 4 {
		t.Fatalf("merged field incomplete: %v", result.Fields)
	}
}

func TestProvide_MultiSourceMerge(t *testing.T) {
	surface := newScriptedRetriever("SURFACE", "T_2M")
	surface.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		frag := &model.DataFragment{
			Source:   unit.Source,
			Variable: unit.Variable,
			CRS:      "epsg:4326",
			Stations: []string{"BER", "GVE"},
		}
		for _, day := range unit.Days {
			frag.Times = append(frag.Times, day.Time().Add(12*time.Hour))
			frag.Values = append(frag.Values, 1.0, 2.0)
		}
		return frag, nil
	}
	nwp := newScriptedRetriever("ICON-CH1-EPS", "U_10M")
	nwp.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return fragmentFor(unit, "epsg:4326"), nil
	}
	p := New(nil, mustRegistry(t, surface, nwp), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates":        "2024-01-01",
		"SURFACE":      "T_2M",
		"ICON-CH1-EPS": "U_10M",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Fields) != 2 {
		t.Fatalf("got fields %v", result.Fields)
	}
	if result.Fields["T_2M"].Source != "SURFACE" || result.Fields["U_10M"].Source != "ICON-CH1-EPS" {
		t.Fatal("fields attributed to wrong sources")
	}
	// Each field keeps its native spatial axes.
	if len(result.Fields["T_2M"].Stations) != 2 || len(result.Fields["U_10M"].XS) != 1 {
		t.Fatal("native axes not preserved")
	}
}

func TestProvide_RetriesTransientFailures(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		if call < 2 {
			return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: fmt.Errorf("503")}
		}
		return fragmentFor(unit, "laea"), nil
	}
	p := New(nil, mustRegistry(t, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": "2024-01-01",
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if radar.callCount() != 3 {
		t.Fatalf("got %d attempts, want 3", radar.callCount())
	}
	if result.Fields["TOT_PREC"] == nil || len(result.Warnings) != 0 {
		t.Fatalf("recovered fetch not merged: %+v", result)
	}
}

func TestProvide_GivesUpAfterRetriesExhausted(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: fmt.Errorf("down")}
	}
	p := New(nil, mustRegistry(t, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": "2024-01-01",
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if radar.callCount() != 3 { // initial try + MaxRetries
		t.Fatalf("got %d attempts, want 3", radar.callCount())
	}
	if !result.Empty() {
		t.Fatal("expected empty result")
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Kind != model.WarnGivenUp {
		t.Fatalf("got warnings %v", result.Warnings)
	}
}

func TestProvide_AbsentDataIsWarningNotError(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
	}
	p := New(nil, mustRegistry(t, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": "2024-01-01",
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if radar.callCount() != 1 {
		t.Fatalf("confirmed absence must not be retried, got %d calls", radar.callCount())
	}
	if !result.Empty() || len(result.Warnings) != 1 || result.Warnings[0].Kind != model.WarnAbsent {
		t.Fatalf("got %+v", result)
	}
}

func TestProvide_FailingUnitDoesNotPoisonOthers(t *testing.T) {
	surface := newScriptedRetriever("SURFACE", "T_2M")
	surface.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return nil, &retriever.InvalidParameterError{Name: "use_limitation", Reason: "tier not licensed"}
	}
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		return fragmentFor(unit, "laea"), nil
	}
	p := New(nil, mustRegistry(t, surface, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates":   "2024-01-01",
		"SURFACE": "T_2M",
		"OPERA":   "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fields["TOT_PREC"] == nil {
		t.Fatal("healthy unit missing from result")
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Kind != model.WarnInvalidParameter {
		t.Fatalf("got warnings %v", result.Warnings)
	}
}

func TestProvide_UpstreamSurplusDaysAreClipped(t *testing.T) {
	radar := newScriptedRetriever("OPERA", "TOT_PREC")
	radar.retrieve = func(call int, unit model.FetchUnit) (*model.DataFragment, error) {
		generous := model.FetchUnit{
			Source:   unit.Source,
			Variable: unit.Variable,
			Days:     model.DateRange{Start: unit.Days[0], End: unit.Days[len(unit.Days)-1].Next()}.Days(),
		}
		return fragmentFor(generous, "laea"), nil
	}
	store := newMemStore()
	p := New(store, mustRegistry(t, radar), testOptions())

	result, err := p.ProvideFromConfig(context.Background(), map[string]any{
		"dates": "2024-01-01",
		"OPERA": "TOT_PREC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if field := result.Fields["TOT_PREC"]; len(field.Times) != 1 {
		t.Fatalf("surplus day not clipped: %v", field.Times)
	}
	if store.writes != 1 {
		t.Fatalf("surplus day written to cache, %d writes", store.writes)
	}
}
