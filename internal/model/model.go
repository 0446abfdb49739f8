package model

import (
	"fmt"
	"strings"
)

// Source identifies an upstream dataset, model run or measurement network,
// e.g. "ICON-CH1-EPS", "OPERA" or "SURFACE". Each source is owned by exactly
// one retriever.
type Source string

// Validate checks that the source identifier is usable as part of a cache key.
func (s Source) Validate() error {
	if s == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if strings.ContainsAny(string(s), "/ ") {
		return fmt.Errorf("source %q must not contain slashes or spaces", s)
	}
	return nil
}

// String returns the source identifier.
func (s Source) String() string {
	return string(s)
}

// CanonicalVariable is the provider-unified name for a physical quantity,
// independent of source-native naming. Names follow the COSMO/ICON short-name
// convention, e.g. "T_2M" or "TOT_PREC".
type CanonicalVariable string

// Validate checks that the variable name is usable as part of a cache key.
func (v CanonicalVariable) Validate() error {
	if v == "" {
		return fmt.Errorf("variable cannot be empty")
	}
	if strings.ContainsAny(string(v), "/ ") {
		return fmt.Errorf("variable %q must not contain slashes or spaces", v)
	}
	return nil
}

// String returns the variable name.
func (v CanonicalVariable) String() string {
	return string(v)
}

// FetchUnit is the atomic request: one variable from one source over a set of
// days, plus the extra parameters that narrow the selection. It is an
// immutable value and doubles as the identity from which the cache key is
// derived.
type FetchUnit struct {
	Source   Source
	Variable CanonicalVariable
	Days     []Date
	Params   ExtraParams
}

// Validate checks the structural invariants of the unit.
func (u FetchUnit) Validate() error {
	if err := u.Source.Validate(); err != nil {
		return err
	}
	if err := u.Variable.Validate(); err != nil {
		return err
	}
	if len(u.Days) == 0 {
		return fmt.Errorf("unit %s/%s has no days", u.Source, u.Variable)
	}
	for i := 1; i < len(u.Days); i++ {
		if !u.Days[i-1].Before(u.Days[i]) {
			return fmt.Errorf("unit %s/%s days are not strictly ascending", u.Source, u.Variable)
		}
	}
	return nil
}

// Range returns the first and last day covered by the unit.
func (u FetchUnit) Range() DateRange {
	if len(u.Days) == 0 {
		return DateRange{}
	}
	return DateRange{Start: u.Days[0], End: u.Days[len(u.Days)-1]}
}

// String renders the unit for logs and error messages.
func (u FetchUnit) String() string {
	return fmt.Sprintf("%s/%s@%s", u.Source, u.Variable, u.Range())
}

// WarningKind classifies the terminal state of a fetch unit that did not end
// up merged into the result.
type WarningKind string

const (
	// WarnAbsent marks data confirmed missing upstream for the unit.
	WarnAbsent WarningKind = "absent"
	// WarnGivenUp marks a unit abandoned after exhausting transient-fault retries.
	WarnGivenUp WarningKind = "given_up"
	// WarnInvalidParameter marks a unit rejected by its retriever's preconditions.
	WarnInvalidParameter WarningKind = "invalid_parameter"
)

// Warning records a per-unit failure attached to a Result instead of being
// raised, so one failing unit never aborts unrelated units.
type Warning struct {
	Unit   FetchUnit
	Kind   WarningKind
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%s)", w.Unit, w.Kind, w.Detail)
}

// Result is the unified multi-variable dataset returned to the caller.
// Fields are keyed by canonical variable name; every field keeps its native
// grid unless reprojection was requested, sharing only the time axis.
// Ownership passes to the caller.
type Result struct {
	Fields   map[CanonicalVariable]*DataFragment
	Warnings []Warning
}

// Empty reports whether the result carries no data at all. An empty result
// with warnings is a legitimate outcome when everything was absent upstream.
func (r *Result) Empty() bool {
	return len(r.Fields) == 0
}
