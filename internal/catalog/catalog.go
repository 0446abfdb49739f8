// Package catalog holds the per-retriever tables mapping canonical variable
// names to source-native names and back. Catalogs are immutable after
// construction and are pure lookups with no side effects.
package catalog

import (
	"fmt"
	"sort"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// UnknownVariableError reports a canonical name with no mapping for a source.
// It is raised at plan time so a bad config fails fast with a precise
// variable/source pointer.
type UnknownVariableError struct {
	Variable model.CanonicalVariable
	Source   model.Source
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("variable %q is not known for source %q", e.Variable, e.Source)
}

// Catalog maps canonical variable names to the native names of one source.
type Catalog struct {
	source      model.Source
	toNative    map[model.CanonicalVariable]string
	toCanonical map[string]model.CanonicalVariable
}

// New builds a catalog for one source. Two canonical names must not share a
// native name.
func New(source model.Source, mapping map[model.CanonicalVariable]string) (Catalog, error) {
	c := Catalog{
		source:      source,
		toNative:    make(map[model.CanonicalVariable]string, len(mapping)),
		toCanonical: make(map[string]model.CanonicalVariable, len(mapping)),
	}
	for canonical, native := range mapping {
		if native == "" {
			return Catalog{}, fmt.Errorf("catalog for %q: empty native name for %q", source, canonical)
		}
		if prev, ok := c.toCanonical[native]; ok {
			return Catalog{}, fmt.Errorf("catalog for %q: native name %q mapped by both %q and %q", source, native, prev, canonical)
		}
		c.toNative[canonical] = native
		c.toCanonical[native] = canonical
	}
	return c, nil
}

// MustNew is New for static catalogs declared in retriever variants.
func MustNew(source model.Source, mapping map[model.CanonicalVariable]string) Catalog {
	c, err := New(source, mapping)
	if err != nil {
		panic(err)
	}
	return c
}

// Source returns the source the catalog is scoped to.
func (c Catalog) Source() model.Source {
	return c.source
}

// ToNative translates a canonical name to the source-native name.
func (c Catalog) ToNative(v model.CanonicalVariable) (string, error) {
	native, ok := c.toNative[v]
	if !ok {
		return "", &UnknownVariableError{Variable: v, Source: c.source}
	}
	return native, nil
}

// ToCanonical translates a source-native name back to the canonical name.
func (c Catalog) ToCanonical(native string) (model.CanonicalVariable, error) {
	canonical, ok := c.toCanonical[native]
	if !ok {
		return "", fmt.Errorf("native name %q is not known for source %q", native, c.source)
	}
	return canonical, nil
}

// Has reports whether the canonical name is mapped.
func (c Catalog) Has(v model.CanonicalVariable) bool {
	_, ok := c.toNative[v]
	return ok
}

// Canonicals lists the mapped canonical names, sorted.
func (c Catalog) Canonicals() []model.CanonicalVariable {
	out := make([]model.CanonicalVariable, 0, len(c.toNative))
	for v := range c.toNative {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
