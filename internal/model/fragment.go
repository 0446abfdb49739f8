package model

import (
	"fmt"
	"time"
)

// DataFragment is the materialized result of one fetch unit: a labeled,
// coordinate-tagged block of values. The time axis is the outer dimension;
// each time step carries either one value per station (point data) or one
// value per grid cell (len(YS) rows of len(XS) columns). A fragment is never
// mutated after creation; transformations return copies.
//
// Missing readings are NaN values; the cache layer encodes them as nulls.
type DataFragment struct {
	Source   Source            `json:"source"`
	Variable CanonicalVariable `json:"variable"`
	CRS      string            `json:"crs"`

	Times    []time.Time `json:"times"`
	Stations []string    `json:"stations,omitempty"`
	XS       []float64   `json:"xs,omitempty"`
	YS       []float64   `json:"ys,omitempty"`

	// Values holds len(Times) * CellsPerStep() entries, time-major.
	Values []float64 `json:"values"`

	FetchedAt time.Time `json:"fetched_at"`
}

// CellsPerStep returns the number of values per time step.
func (f *DataFragment) CellsPerStep() int {
	if len(f.Stations) > 0 {
		return len(f.Stations)
	}
	if len(f.XS) > 0 && len(f.YS) > 0 {
		return len(f.XS) * len(f.YS)
	}
	return 1
}

// Validate checks the structural invariants: strictly ascending times and a
// value block matching the declared axes.
func (f *DataFragment) Validate() error {
	if err := f.Source.Validate(); err != nil {
		return err
	}
	if err := f.Variable.Validate(); err != nil {
		return err
	}
	if len(f.Times) == 0 {
		return fmt.Errorf("fragment %s/%s has no time steps", f.Source, f.Variable)
	}
	for i := 1; i < len(f.Times); i++ {
		if !f.Times[i-1].Before(f.Times[i]) {
			return fmt.Errorf("fragment %s/%s time axis is not strictly ascending", f.Source, f.Variable)
		}
	}
	if len(f.Stations) > 0 && (len(f.XS) > 0 || len(f.YS) > 0) {
		return fmt.Errorf("fragment %s/%s mixes station and grid axes", f.Source, f.Variable)
	}
	if want := len(f.Times) * f.CellsPerStep(); len(f.Values) != want {
		return fmt.Errorf("fragment %s/%s has %d values, want %d", f.Source, f.Variable, len(f.Values), want)
	}
	return nil
}

// Days lists the distinct UTC days the fragment covers, ascending.
func (f *DataFragment) Days() []Date {
	var days []Date
	for _, t := range f.Times {
		d := DateOf(t)
		if n := len(days); n == 0 || days[n-1] != d {
			days = append(days, d)
		}
	}
	return days
}

// SelectDays copies the time steps falling on the given days into a new
// fragment. The result may cover fewer days than asked; absence stays absent
// rather than being padded.
func (f *DataFragment) SelectDays(days []Date) *DataFragment {
	wanted := make(map[Date]struct{}, len(days))
	for _, d := range days {
		wanted[d] = struct{}{}
	}
	cells := f.CellsPerStep()
	out := &DataFragment{
		Source:    f.Source,
		Variable:  f.Variable,
		CRS:       f.CRS,
		Stations:  f.Stations,
		XS:        f.XS,
		YS:        f.YS,
		FetchedAt: f.FetchedAt,
	}
	for i, t := range f.Times {
		if _, ok := wanted[DateOf(t)]; !ok {
			continue
		}
		out.Times = append(out.Times, t)
		out.Values = append(out.Values, f.Values[i*cells:(i+1)*cells]...)
	}
	return out
}

// SameGrid reports whether two fragments share identical spatial axes.
func (f *DataFragment) SameGrid(o *DataFragment) bool {
	if len(f.Stations) != len(o.Stations) || len(f.XS) != len(o.XS) || len(f.YS) != len(o.YS) {
		return false
	}
	for i := range f.Stations {
		if f.Stations[i] != o.Stations[i] {
			return false
		}
	}
	for i := range f.XS {
		if f.XS[i] != o.XS[i] {
			return false
		}
	}
	for i := range f.YS {
		if f.YS[i] != o.YS[i] {
			return false
		}
	}
	return true
}
