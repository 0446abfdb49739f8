// Package dem retrieves digital-elevation data from a NASADEM-style tile
// service. Elevation is static; the requested days only shape how the
// result flows through the per-day cache layout.
package dem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/httpclient"
)

// SourceNASADEM is the NASADEM elevation source.
const SourceNASADEM = model.Source("NASADEM")

const demCRS = "epsg:4326"

var demCatalog = catalog.MustNew(SourceNASADEM, map[model.CanonicalVariable]string{
	"HSURF": "NASADEM_HGT",
})

// Retriever downloads elevation grids cropped server-side to a bounding box.
type Retriever struct {
	client  *httpclient.Client
	baseURL string
}

// New creates the DEM retriever.
func New(baseURL string, cfg httpclient.Config) *Retriever {
	return &Retriever{
		client:  httpclient.New("nasadem", cfg),
		baseURL: baseURL,
	}
}

// Sources implements retriever.Retriever.
func (r *Retriever) Sources() []model.Source {
	return []model.Source{SourceNASADEM}
}

// Variables implements retriever.Retriever.
func (r *Retriever) Variables(source model.Source) (catalog.Catalog, error) {
	if source != SourceNASADEM {
		return catalog.Catalog{}, &retriever.UnknownSourceError{Source: source}
	}
	return demCatalog, nil
}

// CRS implements retriever.Retriever.
func (r *Retriever) CRS(source model.Source) (string, error) {
	if source != SourceNASADEM {
		return "", &retriever.UnknownSourceError{Source: source}
	}
	return demCRS, nil
}

// elevationPayload is the tile service response.
type elevationPayload struct {
	XS     []float64 `json:"xs"`
	YS     []float64 `json:"ys"`
	Values []float64 `json:"values"`
}

// Retrieve downloads the elevation grid for the requested bounds. A bounding
// box is a hard precondition of the tile service.
func (r *Retriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	cat, err := r.Variables(unit.Source)
	if err != nil {
		return nil, err
	}
	native, err := cat.ToNative(unit.Variable)
	if err != nil {
		return nil, err
	}
	if unit.Params.Bounds == nil {
		return nil, &retriever.InvalidParameterError{Name: "bounds", Reason: "DEM retrieval requires a bounding box"}
	}
	minLon, minLat, maxLon, maxLat := unit.Params.Bounds.Edges()

	resp, err := r.client.Do(ctx, func() (*http.Request, error) {
		url := fmt.Sprintf("%s/elevation?product=%s&bbox=%g,%g,%g,%g", r.baseURL, native, minLon, minLat, maxLon, maxLat)
		return http.NewRequest(http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceNASADEM, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &retriever.InvalidParameterError{Name: "bounds", Reason: "tile service rejected the bounding box"}
	case resp.StatusCode != http.StatusOK:
		return nil, &retriever.SourceUnavailableError{
			Source: SourceNASADEM,
			Err:    fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var payload elevationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceNASADEM, Err: err}
	}
	if len(payload.Values) != len(payload.XS)*len(payload.YS) {
		return nil, &retriever.SourceUnavailableError{
			Source: SourceNASADEM,
			Err:    fmt.Errorf("elevation payload has %d values, want %d", len(payload.Values), len(payload.XS)*len(payload.YS)),
		}
	}

	// Replicate the static grid onto the requested days so elevation joins
	// time-indexed fields without special cases downstream.
	frag := &model.DataFragment{
		Source:   unit.Source,
		Variable: unit.Variable,
		CRS:      demCRS,
		XS:       payload.XS,
		YS:       payload.YS,
	}
	for _, day := range unit.Days {
		frag.Times = append(frag.Times, day.Time())
		frag.Values = append(frag.Values, payload.Values...)
	}
	return frag, nil
}
