package cache

import (
	"testing"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

func unitWith(params model.ExtraParams) model.FetchUnit {
	return model.FetchUnit{Source: "ICON-CH1-EPS", Variable: "T_2M", Params: params}
}

func TestKey_NoParams(t *testing.T) {
	key, err := Key(unitWith(model.ExtraParams{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "icon-ch1-eps/T_2M" {
		t.Fatalf("got %q", key)
	}
}

func TestKey_ParamTokens(t *testing.T) {
	cases := []struct {
		name   string
		params model.ExtraParams
		want   string
	}{
		{
			name:   "single member",
			params: model.ExtraParams{EnsembleMembers: []int{1}},
			want:   "icon-ch1-eps/T_2M/ens1",
		},
		{
			name:   "member range",
			params: model.ExtraParams{EnsembleMembers: []int{1, 2, 3}},
			want:   "icon-ch1-eps/T_2M/ens1to3",
		},
		{
			name:   "steps",
			params: model.ExtraParams{StepHours: []int{3, 6, 9}},
			want:   "icon-ch1-eps/T_2M/step3to9",
		},
		{
			name:   "levels",
			params: model.ExtraParams{Levels: []int{100, 200, 300}},
			want:   "icon-ch1-eps/T_2M/level100to300",
		},
		{
			name:   "non-default limitation",
			params: model.ExtraParams{UseLimitation: 30},
			want:   "icon-ch1-eps/T_2M/limitation30",
		},
		{
			name:   "default limitation stays out",
			params: model.ExtraParams{UseLimitation: model.DefaultUseLimitation},
			want:   "icon-ch1-eps/T_2M",
		},
		{
			name: "bounds strip dots",
			params: model.ExtraParams{
				Bounds: ptr(model.NewBounds(1.1, 2.2, 3.3, 4.4)),
			},
			want: "icon-ch1-eps/T_2M/bounds11_22_33_44",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := Key(unitWith(tc.params))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key != tc.want {
				t.Fatalf("got %q, want %q", key, tc.want)
			}
		})
	}
}

func TestKey_OrderIndependentAcrossParams(t *testing.T) {
	// Tokens are sorted, so the key never depends on which parameter was
	// set first in the request document.
	params := model.ExtraParams{
		StepHours:       []int{0, 3},
		EnsembleMembers: []int{1, 5},
		UseLimitation:   40,
	}
	key, err := Key(unitWith(params))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "icon-ch1-eps/T_2M/ens1to5_limitation40_step0to3" {
		t.Fatalf("got %q", key)
	}
}

func TestKey_RejectsUnsortedAndDuplicateLists(t *testing.T) {
	for _, params := range []model.ExtraParams{
		{EnsembleMembers: []int{3, 1}},
		{StepHours: []int{3, 3}},
		{Levels: []int{}},
	} {
		if _, err := Key(unitWith(params)); err == nil {
			t.Errorf("expected error for %+v", params)
		}
	}
}

func TestKey_RejectsUnsafeIdentifiers(t *testing.T) {
	if _, err := Key(model.FetchUnit{Source: "a/b", Variable: "T_2M"}); err == nil {
		t.Fatal("expected error for slash in source")
	}
	if _, err := Key(model.FetchUnit{Source: "OPERA", Variable: "T 2M"}); err == nil {
		t.Fatal("expected error for space in variable")
	}
}

func ptr[T any](v T) *T { return &v }
