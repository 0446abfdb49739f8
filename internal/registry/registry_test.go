package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

type fakeRetriever struct {
	sources []model.Source
}

func (f *fakeRetriever) Sources() []model.Source { return f.sources }

func (f *fakeRetriever) Variables(source model.Source) (catalog.Catalog, error) {
	return catalog.Catalog{}, nil
}

func (f *fakeRetriever) CRS(source model.Source) (string, error) { return "epsg:4326", nil }

func (f *fakeRetriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	return nil, nil
}

func TestRegistry_Resolve(t *testing.T) {
	radar := &fakeRetriever{sources: []model.Source{"OPERA"}}
	nwp := &fakeRetriever{sources: []model.Source{"ICON-CH1-EPS", "COSMO-1E"}}

	reg, err := New(radar, nwp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := reg.Resolve("COSMO-1E")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(*fakeRetriever) != nwp {
		t.Fatal("resolved the wrong retriever")
	}
	if !reg.Has("OPERA") || reg.Has("SURFACE") {
		t.Fatal("Has gave wrong answers")
	}
}

func TestRegistry_NoRetrieverForSource(t *testing.T) {
	reg, err := New(&fakeRetriever{sources: []model.Source{"OPERA"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = reg.Resolve("SURFACE")
	var missing *NoRetrieverForSourceError
	if !errors.As(err, &missing) {
		t.Fatalf("expected NoRetrieverForSourceError, got %v", err)
	}
	if missing.Source != "SURFACE" {
		t.Fatalf("got %+v", missing)
	}
}

func TestRegistry_AmbiguousSource(t *testing.T) {
	a := &fakeRetriever{sources: []model.Source{"OPERA"}}
	b := &fakeRetriever{sources: []model.Source{"OPERA"}}
	_, err := New(a, b)
	var ambiguous *AmbiguousSourceError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousSourceError, got %v", err)
	}
}

func TestRegistry_Sources(t *testing.T) {
	reg, err := New(&fakeRetriever{sources: []model.Source{"SURFACE", "OPERA"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sources := reg.Sources()
	if len(sources) != 2 || sources[0] != "OPERA" || sources[1] != "SURFACE" {
		t.Fatalf("got %v", sources)
	}
}
