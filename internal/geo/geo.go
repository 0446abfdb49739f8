// Package geo carries the geospatial collaborator boundary: the provider
// delegates CRS reprojection here and never does projection math itself.
package geo

import (
	"context"
	"fmt"
	"math"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// ICONDomain is the lon/lat bounding box of the ICON model domain.
var ICONDomain = model.NewBounds(0.5, 43, 16.5, 50)

const (
	earthCircumferenceKM = 40075
	earthRadiusKM        = earthCircumferenceKM / 2 / math.Pi
)

// Reprojector transforms a fragment onto a target CRS and/or crops it to
// bounds. It is used only when the request carries a target_crs or bounds
// option.
type Reprojector interface {
	Reproject(ctx context.Context, frag *model.DataFragment, targetCRS string, bounds *model.Bounds) (*model.DataFragment, error)
}

// LatLonCropper is the built-in Reprojector for fragments already on a
// regular lon/lat grid. It can crop to bounds but refuses actual CRS
// changes, which belong to an external reprojection service.
type LatLonCropper struct{}

// Reproject crops the fragment grid to bounds. Requesting a CRS other than
// the fragment's own is an error.
func (LatLonCropper) Reproject(ctx context.Context, frag *model.DataFragment, targetCRS string, bounds *model.Bounds) (*model.DataFragment, error) {
	if targetCRS != "" && targetCRS != frag.CRS {
		return nil, fmt.Errorf("cannot reproject %s/%s from %q to %q: only cropping on the native grid is supported", frag.Source, frag.Variable, frag.CRS, targetCRS)
	}
	if bounds == nil {
		return frag, nil
	}
	if len(frag.XS) == 0 || len(frag.YS) == 0 {
		// Point data: drop stations outside the box is not possible without
		// station coordinates, so leave the fragment untouched.
		return frag, nil
	}

	minLon, minLat, maxLon, maxLat := bounds.Edges()
	var xIdx, yIdx []int
	for i, x := range frag.XS {
		if x >= minLon && x <= maxLon {
			xIdx = append(xIdx, i)
		}
	}
	for i, y := range frag.YS {
		if y >= minLat && y <= maxLat {
			yIdx = append(yIdx, i)
		}
	}
	// A box narrower than the grid spacing can catch no node even though it
	// lies on the grid; snap the empty axis to the node nearest the box
	// center instead of failing.
	cx := (minLon + maxLon) / 2
	cy := (minLat + maxLat) / 2
	if len(xIdx) == 0 && withinExtent(frag.XS, cx) {
		xIdx = []int{nearestIndex(frag.XS, func(x float64) float64 { return Distance(x, cy, cx, cy) })}
	}
	if len(yIdx) == 0 && withinExtent(frag.YS, cy) {
		yIdx = []int{nearestIndex(frag.YS, func(y float64) float64 { return Distance(cx, y, cx, cy) })}
	}
	if len(xIdx) == 0 || len(yIdx) == 0 {
		return nil, fmt.Errorf("bounds %v do not intersect the %s/%s grid", bounds.Bound, frag.Source, frag.Variable)
	}

	out := &model.DataFragment{
		Source:    frag.Source,
		Variable:  frag.Variable,
		CRS:       frag.CRS,
		Times:     frag.Times,
		XS:        make([]float64, len(xIdx)),
		YS:        make([]float64, len(yIdx)),
		FetchedAt: frag.FetchedAt,
	}
	for i, xi := range xIdx {
		out.XS[i] = frag.XS[xi]
	}
	for i, yi := range yIdx {
		out.YS[i] = frag.YS[yi]
	}
	nx := len(frag.XS)
	cells := frag.CellsPerStep()
	out.Values = make([]float64, 0, len(frag.Times)*len(xIdx)*len(yIdx))
	for t := range frag.Times {
		base := t * cells
		for _, yi := range yIdx {
			row := base + yi*nx
			for _, xi := range xIdx {
				out.Values = append(out.Values, frag.Values[row+xi])
			}
		}
	}
	return out, nil
}

// Distance computes the great-circle distance in kilometers between two
// (lon, lat) points using the haversine formula.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	p := math.Pi / 180
	a := 0.5 - math.Cos((lat2-lat1)*p)/2 +
		math.Cos(lat1*p)*math.Cos(lat2*p)*(1-math.Cos((lon2-lon1)*p))/2
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// withinExtent reports whether v falls inside the axis span.
func withinExtent(axis []float64, v float64) bool {
	lo, hi := axis[0], axis[len(axis)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// nearestIndex returns the axis index minimizing the given distance.
func nearestIndex(axis []float64, dist func(float64) float64) int {
	best := 0
	bestD := dist(axis[0])
	for i := 1; i < len(axis); i++ {
		if d := dist(axis[i]); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}
