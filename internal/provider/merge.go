package provider

import (
	"fmt"
	"sort"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// mergeFragments assembles all fragments of one provide call into the final
// per-variable fields. Fragments sharing a canonical variable are
// concatenated along the date axis in date order; duplicate-day collisions
// keep the most recently fetched fragment. Merging keys strictly on
// (variable, day), never on arrival order, so the output is deterministic
// regardless of fetch completion order.
func mergeFragments(fragments []*model.DataFragment, warnings *[]model.Warning) map[model.CanonicalVariable]*model.DataFragment {
	byVariable := make(map[model.CanonicalVariable][]*model.DataFragment)
	for _, frag := range fragments {
		byVariable[frag.Variable] = append(byVariable[frag.Variable], frag)
	}

	fields := make(map[model.CanonicalVariable]*model.DataFragment, len(byVariable))
	for variable, frags := range byVariable {
		merged, err := mergeVariable(frags)
		if err != nil {
			*warnings = append(*warnings, model.Warning{
				Unit:   model.FetchUnit{Source: frags[0].Source, Variable: variable, Days: frags[0].Days()},
				Kind:   model.WarnGivenUp,
				Detail: err.Error(),
			})
			continue
		}
		fields[variable] = merged
	}
	return fields
}

func mergeVariable(frags []*model.DataFragment) (*model.DataFragment, error) {
	sort.Slice(frags, func(i, j int) bool {
		if !frags[i].Times[0].Equal(frags[j].Times[0]) {
			return frags[i].Times[0].Before(frags[j].Times[0])
		}
		if frags[i].Source != frags[j].Source {
			return frags[i].Source < frags[j].Source
		}
		return frags[i].FetchedAt.Before(frags[j].FetchedAt)
	})

	// Pick one fragment per day, preferring the newest fetch.
	chosen := make(map[model.Date]*model.DataFragment)
	var days []model.Date
	for _, frag := range frags {
		for _, day := range frag.Days() {
			prev, ok := chosen[day]
			if !ok {
				chosen[day] = frag
				days = append(days, day)
				continue
			}
			if frag.FetchedAt.After(prev.FetchedAt) {
				chosen[day] = frag
			}
		}
	}
	days = model.SortDates(days)

	reference := chosen[days[0]]
	out := &model.DataFragment{
		Source:    reference.Source,
		Variable:  reference.Variable,
		CRS:       reference.CRS,
		Stations:  reference.Stations,
		XS:        reference.XS,
		YS:        reference.YS,
		FetchedAt: reference.FetchedAt,
	}
	for _, day := range days {
		frag := chosen[day]
		if !frag.SameGrid(reference) {
			return nil, fmt.Errorf("cannot merge %s: fragments from %s and %s have different grids", reference.Variable, reference.Source, frag.Source)
		}
		piece := frag.SelectDays([]model.Date{day})
		appended, err := appendFragment(out, piece)
		if err != nil {
			return nil, err
		}
		out = appended
		if frag.FetchedAt.After(out.FetchedAt) {
			out.FetchedAt = frag.FetchedAt
		}
	}
	return out, nil
}

// appendFragment concatenates b after a along the time axis. Both fragments
// must share the grid and b must start strictly after a ends.
func appendFragment(a, b *model.DataFragment) (*model.DataFragment, error) {
	if len(a.Times) == 0 {
		return b, nil
	}
	if len(b.Times) == 0 {
		return a, nil
	}
	if !a.SameGrid(b) {
		return nil, fmt.Errorf("cannot append %s/%s fragments with different grids", a.Source, a.Variable)
	}
	if !a.Times[len(a.Times)-1].Before(b.Times[0]) {
		return nil, fmt.Errorf("cannot append %s/%s fragments with overlapping time axes", a.Source, a.Variable)
	}
	out := &model.DataFragment{
		Source:    a.Source,
		Variable:  a.Variable,
		CRS:       a.CRS,
		Stations:  a.Stations,
		XS:        a.XS,
		YS:        a.YS,
		FetchedAt: a.FetchedAt,
	}
	out.Times = append(append([]time.Time{}, a.Times...), b.Times...)
	out.Values = append(append([]float64{}, a.Values...), b.Values...)
	return out, nil
}
