// Package station retrieves surface station observations from the
// measurement warehouse. Access is tiered by use limitation: a request only
// sees stations licensed at or below its tier.
package station

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

// SourceSurface is the surface observation network source.
const SourceSurface = model.Source("SURFACE")

const surfaceCRS = "epsg:4326"

// surfaceCatalog maps canonical short names to the warehouse parameter
// codes.
var surfaceCatalog = catalog.MustNew(SourceSurface, map[model.CanonicalVariable]string{
	"T_2M":      "tre200s0",
	"RELHUM_2M": "ure200s0",
	"TOT_PREC":  "rre150z0",
	"FF_10M":    "fkl010z0",
	"DD_10M":    "dkl010z0",
	"PMSL":      "pp0qffs0",
	"GLOB":      "gre000z0",
})

// Observation is one station measurement.
type Observation struct {
	StationID string
	Time      time.Time
	Value     float64
}

// ObservationStore is the warehouse query boundary, implemented against
// ClickHouse in production and stubbed in tests.
type ObservationStore interface {
	Query(ctx context.Context, parameter string, from, to time.Time, useLimitation int) ([]Observation, error)
}

// Retriever assembles observation fragments from the warehouse.
type Retriever struct {
	store ObservationStore
}

// New creates the surface retriever.
func New(store ObservationStore) *Retriever {
	return &Retriever{store: store}
}

// Sources implements retriever.Retriever.
func (r *Retriever) Sources() []model.Source {
	return []model.Source{SourceSurface}
}

// Variables implements retriever.Retriever.
func (r *Retriever) Variables(source model.Source) (catalog.Catalog, error) {
	if source != SourceSurface {
		return catalog.Catalog{}, &retriever.UnknownSourceError{Source: source}
	}
	return surfaceCatalog, nil
}

// CRS implements retriever.Retriever.
func (r *Retriever) CRS(source model.Source) (string, error) {
	if source != SourceSurface {
		return "", &retriever.UnknownSourceError{Source: source}
	}
	return surfaceCRS, nil
}

// Retrieve queries the warehouse over the unit's span and pivots the
// observations into a (time, station) matrix. Days without any observation
// simply do not appear; gaps inside an observed matrix are NaN because a
// station can legitimately miss single readings.
func (r *Retriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	cat, err := r.Variables(unit.Source)
	if err != nil {
		return nil, err
	}
	parameter, err := cat.ToNative(unit.Variable)
	if err != nil {
		return nil, err
	}
	limitation := unit.Params.EffectiveUseLimitation()
	if limitation < 1 || limitation > model.MaxUseLimitation {
		return nil, &retriever.InvalidParameterError{
			Name:   "use_limitation",
			Reason: fmt.Sprintf("must be between 1 and %d", model.MaxUseLimitation),
		}
	}

	span := unit.Range()
	from := span.Start.Time()
	to := span.End.Next().Time()
	observations, err := r.store.Query(ctx, parameter, from, to, limitation)
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: err}
	}
	if len(observations) == 0 {
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: span}
	}

	return pivot(unit, observations), nil
}

// pivot arranges observations into the fragment's time-major matrix.
func pivot(unit model.FetchUnit, observations []Observation) *model.DataFragment {
	stationSet := make(map[string]struct{})
	timeSet := make(map[time.Time]struct{})
	for _, obs := range observations {
		stationSet[obs.StationID] = struct{}{}
		timeSet[obs.Time.UTC()] = struct{}{}
	}

	stations := make([]string, 0, len(stationSet))
	for s := range stationSet {
		stations = append(stations, s)
	}
	sort.Strings(stations)
	stationIdx := make(map[string]int, len(stations))
	for i, s := range stations {
		stationIdx[s] = i
	}

	times := make([]time.Time, 0, len(timeSet))
	for t := range timeSet {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	timeIdx := make(map[time.Time]int, len(times))
	for i, t := range times {
		timeIdx[t] = i
	}

	values := make([]float64, len(times)*len(stations))
	for i := range values {
		values[i] = math.NaN()
	}
	for _, obs := range observations {
		values[timeIdx[obs.Time.UTC()]*len(stations)+stationIdx[obs.StationID]] = obs.Value
	}

	return &model.DataFragment{
		Source:   unit.Source,
		Variable: unit.Variable,
		CRS:      surfaceCRS,
		Times:    times,
		Stations: stations,
		Values:   values,
	}
}
