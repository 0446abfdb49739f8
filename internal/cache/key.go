package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// Key derives the canonical cache key of a fetch unit, without the day
// component: lowercased source, canonical variable, then the sorted
// non-default parameter tokens. Identical units always collide to the same
// key no matter how their parameters were supplied.
//
// Selection parameters are part of the identity; the target CRS and the
// credentials path are not, since they change the output projection or the
// access path but never which raw data is addressed.
func Key(unit model.FetchUnit) (string, error) {
	if err := unit.Source.Validate(); err != nil {
		return "", err
	}
	if err := unit.Variable.Validate(); err != nil {
		return "", err
	}

	tokens, err := paramTokens(unit.Params)
	if err != nil {
		return "", fmt.Errorf("key for %s/%s: %w", unit.Source, unit.Variable, err)
	}

	key := strings.ToLower(unit.Source.String()) + "/" + unit.Variable.String()
	if len(tokens) > 0 {
		key += "/" + strings.Join(tokens, "_")
	}
	return key, nil
}

func paramTokens(p model.ExtraParams) ([]string, error) {
	var tokens []string

	if p.EnsembleMembers != nil {
		tok, err := formatIntList("ens", "ensemble_members", p.EnsembleMembers)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	if p.StepHours != nil {
		tok, err := formatIntList("step", "step_hours", p.StepHours)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	if p.Levels != nil {
		tok, err := formatIntList("level", "levels", p.Levels)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	// The default tier stays out of the key so pre-existing entries keep
	// their addresses.
	if p.UseLimitation != 0 && p.UseLimitation != model.DefaultUseLimitation {
		tokens = append(tokens, fmt.Sprintf("limitation%d", p.UseLimitation))
	}
	if p.Bounds != nil {
		minLon, minLat, maxLon, maxLat := p.Bounds.Edges()
		tokens = append(tokens, "bounds"+formatFloats(minLon, minLat, maxLon, maxLat))
	}

	sort.Strings(tokens)
	return tokens, nil
}

// formatIntList renders a numeric selection as "<prefix>N" or
// "<prefix>AtoB". The list must be non-empty, strictly ascending and free of
// duplicates so equivalent selections render identically.
func formatIntList(prefix, name string, vals []int) (string, error) {
	if len(vals) == 0 {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return "", fmt.Errorf("%s must be sorted ascending without duplicates", name)
		}
	}
	if len(vals) == 1 {
		return fmt.Sprintf("%s%d", prefix, vals[0]), nil
	}
	return fmt.Sprintf("%s%dto%d", prefix, vals[0], vals[len(vals)-1]), nil
}

// formatFloats joins float values with underscores, stripping dots so the
// token stays path-safe: 1.1, 2.2 becomes "11_22".
func formatFloats(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strings.ReplaceAll(strconv.FormatFloat(v, 'g', -1, 64), ".", "")
	}
	return strings.Join(parts, "_")
}
