package provider

import (
	"testing"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

func dayFragment(t *testing.T, day string, value float64, fetchedAt time.Time) *model.DataFragment {
	t.Helper()
	d := mustDate(t, day)
	return &model.DataFragment{
		Source:    "OPERA",
		Variable:  "TOT_PREC",
		CRS:       "laea",
		XS:        []float64{7.5},
		YS:        []float64{46.5},
		Times:     []time.Time{d.Time().Add(12 * time.Hour)},
		Values:    []float64{value},
		FetchedAt: fetchedAt,
	}
}

func TestMergeFragments_OrderIndependent(t *testing.T) {
	now := time.Now().UTC()
	a := dayFragment(t, "2024-01-01", 1, now)
	b := dayFragment(t, "2024-01-02", 2, now)
	c := dayFragment(t, "2024-01-03", 3, now)

	for name, order := range map[string][]*model.DataFragment{
		"ascending":  {a, b, c},
		"descending": {c, b, a},
		"shuffled":   {b, c, a},
	} {
		t.Run(name, func(t *testing.T) {
			var warnings []model.Warning
			fields := mergeFragments(order, &warnings)
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", warnings)
			}
			field := fields["TOT_PREC"]
			if field == nil || len(field.Times) != 3 {
				t.Fatalf("got %+v", field)
			}
			if field.Values[0] != 1 || field.Values[1] != 2 || field.Values[2] != 3 {
				t.Fatalf("values out of date order: %v", field.Values)
			}
		})
	}
}

func TestMergeFragments_DuplicateDayPrefersNewestFetch(t *testing.T) {
	older := dayFragment(t, "2024-01-01", 1, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	newer := dayFragment(t, "2024-01-01", 9, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC))

	var warnings []model.Warning
	fields := mergeFragments([]*model.DataFragment{older, newer}, &warnings)
	field := fields["TOT_PREC"]
	if field == nil || len(field.Times) != 1 {
		t.Fatalf("got %+v", field)
	}
	if field.Values[0] != 9 {
		t.Fatalf("stale fragment won: %v", field.Values)
	}
}

func TestMergeFragments_GridMismatchIsIsolatedWarning(t *testing.T) {
	now := time.Now().UTC()
	a := dayFragment(t, "2024-01-01", 1, now)
	b := dayFragment(t, "2024-01-02", 2, now)
	b.XS = []float64{8.0, 9.0}
	b.Values = []float64{2, 2}

	other := dayFragment(t, "2024-01-01", 5, now)
	other.Variable = "ACRR"

	var warnings []model.Warning
	fields := mergeFragments([]*model.DataFragment{a, b, other}, &warnings)
	if len(warnings) != 1 || warnings[0].Kind != model.WarnGivenUp {
		t.Fatalf("got warnings %v", warnings)
	}
	if _, ok := fields["TOT_PREC"]; ok {
		t.Fatal("mismatched variable should not merge")
	}
	if fields["ACRR"] == nil {
		t.Fatal("healthy variable lost to unrelated mismatch")
	}
}

func TestAppendFragment_RejectsOverlap(t *testing.T) {
	now := time.Now().UTC()
	a := dayFragment(t, "2024-01-02", 1, now)
	b := dayFragment(t, "2024-01-01", 2, now)
	if _, err := appendFragment(a, b); err == nil {
		t.Fatal("expected error for non-increasing time axis")
	}
	same := dayFragment(t, "2024-01-02", 3, now)
	if _, err := appendFragment(a, same); err == nil {
		t.Fatal("expected error for duplicate time")
	}
}
