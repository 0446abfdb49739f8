// Package nwp retrieves numerical-weather-prediction fields from the grib
// archive on disk. Grib decoding itself is delegated to an injected Decoder;
// this package owns the archive layout, naming and selection logic.
package nwp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/geo"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

// Sources served from the grib archive.
const (
	SourceKENDA  = model.Source("KENDA-CH1")
	SourceICON   = model.Source("ICON-CH1-EPS")
	SourceCOSMO1 = model.Source("COSMO-1E")
	SourceCOSMO2 = model.Source("COSMO-2E")
)

const nwpCRS = "epsg:4326"

// prefixes map sources to their archive directory prefixes. KENDA analyses
// live under the ICON tree.
var prefixes = map[model.Source]string{
	SourceKENDA:  "i1",
	SourceICON:   "i1",
	SourceCOSMO1: "c1",
	SourceCOSMO2: "c2",
}

// nwpShortNames are the eccodes COSMO/ICON short names; canonical names
// already follow that convention, so the mapping is the identity.
var nwpShortNames = []string{
	"T_2M", "TD_2M", "U_10M", "V_10M", "TOT_PREC", "PMSL", "CLCT", "HSURF", "W_SO",
}

func newNWPCatalog(source model.Source) catalog.Catalog {
	m := make(map[model.CanonicalVariable]string, len(nwpShortNames))
	for _, name := range nwpShortNames {
		m[model.CanonicalVariable(name)] = name
	}
	return catalog.MustNew(source, m)
}

// Field is one decoded grib field: a single valid time on a regular grid.
type Field struct {
	XS     []float64
	YS     []float64
	Values []float64
}

// Decoder reads one field out of a grib file. The concrete decoder wraps
// whatever grib tooling the deployment ships; it is injected so the archive
// logic stays testable.
type Decoder interface {
	Decode(ctx context.Context, path string, shortName string) (Field, error)
}

// Retriever serves the grib archive sources.
type Retriever struct {
	root     string
	dec      Decoder
	catalogs map[model.Source]catalog.Catalog
}

// New creates the archive retriever rooted at the given directory.
func New(root string, dec Decoder) *Retriever {
	catalogs := make(map[model.Source]catalog.Catalog, len(prefixes))
	for source := range prefixes {
		catalogs[source] = newNWPCatalog(source)
	}
	return &Retriever{root: root, dec: dec, catalogs: catalogs}
}

// Sources implements retriever.Retriever.
func (r *Retriever) Sources() []model.Source {
	return []model.Source{SourceKENDA, SourceICON, SourceCOSMO1, SourceCOSMO2}
}

// Variables implements retriever.Retriever.
func (r *Retriever) Variables(source model.Source) (catalog.Catalog, error) {
	cat, ok := r.catalogs[source]
	if !ok {
		return catalog.Catalog{}, &retriever.UnknownSourceError{Source: source}
	}
	return cat, nil
}

// CRS implements retriever.Retriever.
func (r *Retriever) CRS(source model.Source) (string, error) {
	if _, ok := r.catalogs[source]; !ok {
		return "", &retriever.UnknownSourceError{Source: source}
	}
	return nwpCRS, nil
}

// Retrieve decodes the requested field for every requested day and step.
// Days missing from the archive shrink the output; only a fully absent
// range is a not-found error. At most one ensemble member can be selected
// per unit since a fragment has a single value per cell and step.
func (r *Retriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	cat, err := r.Variables(unit.Source)
	if err != nil {
		return nil, err
	}
	shortName, err := cat.ToNative(unit.Variable)
	if err != nil {
		return nil, err
	}
	if len(unit.Params.EnsembleMembers) > 1 {
		return nil, &retriever.InvalidParameterError{
			Name:   "ensemble_members",
			Reason: "at most one member per request",
		}
	}
	// Decoding a whole field just to crop it to nothing is wasted work, so a
	// bounding box outside the model domain fails up front.
	if b := unit.Params.Bounds; b != nil && !b.Intersects(geo.ICONDomain.Bound) {
		return nil, &retriever.InvalidParameterError{
			Name:   "bounds",
			Reason: "bounding box does not intersect the model domain",
		}
	}
	if _, err := os.Stat(r.root); err != nil {
		return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: err}
	}

	member := memberDir(unit.Params.EnsembleMembers)
	steps := unit.Params.StepHours
	if len(steps) == 0 {
		steps = []int{0}
	}

	frag := &model.DataFragment{Source: unit.Source, Variable: unit.Variable, CRS: nwpCRS}
	for _, day := range unit.Days {
		for _, step := range steps {
			path := r.fieldPath(unit.Source, day, step, member)
			field, err := r.dec.Decode(ctx, path, shortName)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue // day or step not archived
				}
				return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: err}
			}
			if err := appendField(frag, day.Time().Add(time.Duration(step)*time.Hour), field); err != nil {
				return nil, &retriever.SourceUnavailableError{Source: unit.Source, Err: err}
			}
		}
	}
	if len(frag.Times) == 0 {
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
	}
	return frag, nil
}

// fieldPath renders the archive layout:
// <root>/<prefix>/<KIND><yy>/<yymmdd>00_<step>/<member>.grib
// Analyses (step 0) live under ANA, forecasts under FCST.
func (r *Retriever) fieldPath(source model.Source, day model.Date, step int, member string) string {
	kind := "ANA"
	if step > 0 {
		kind = "FCST"
	}
	t := day.Time()
	return filepath.Join(
		r.root,
		prefixes[source],
		fmt.Sprintf("%s%02d", kind, t.Year()%100),
		fmt.Sprintf("%s00_%03d", t.Format("060102"), step),
		member+".grib",
	)
}

// memberDir renders the ensemble member directory; the deterministic run is
// the default.
func memberDir(members []int) string {
	if len(members) == 0 {
		return "det"
	}
	return fmt.Sprintf("%03d", members[0])
}

func appendField(frag *model.DataFragment, validTime time.Time, field Field) error {
	if len(field.Values) != len(field.XS)*len(field.YS) {
		return fmt.Errorf("decoded field has %d values, want %d", len(field.Values), len(field.XS)*len(field.YS))
	}
	if len(frag.Times) == 0 {
		frag.XS = field.XS
		frag.YS = field.YS
	} else if len(frag.XS) != len(field.XS) || len(frag.YS) != len(field.YS) {
		return fmt.Errorf("grid changed between archive files")
	}
	frag.Times = append(frag.Times, validTime)
	frag.Values = append(frag.Values, field.Values...)
	return nil
}
