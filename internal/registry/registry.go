// Package registry routes a source identifier to the one retriever that owns
// it. Registration happens once at provider construction; Resolve is a pure
// lookup with no I/O so it stays testable with fake retrievers.
package registry

import (
	"fmt"
	"sort"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
)

// NoRetrieverForSourceError means no registered retriever declares the source.
type NoRetrieverForSourceError struct {
	Source model.Source
}

func (e *NoRetrieverForSourceError) Error() string {
	return fmt.Sprintf("no retriever registered for source %q", e.Source)
}

// AmbiguousSourceError means more than one retriever declares the source.
// Sources must be partitioned uniquely across retrievers.
type AmbiguousSourceError struct {
	Source model.Source
}

func (e *AmbiguousSourceError) Error() string {
	return fmt.Sprintf("source %q is declared by more than one retriever", e.Source)
}

// Registry is the read-only source-to-retriever table.
type Registry struct {
	bySource map[model.Source]retriever.Retriever
}

// New registers the given retrievers under the sources they declare.
func New(retrievers ...retriever.Retriever) (*Registry, error) {
	bySource := make(map[model.Source]retriever.Retriever)
	for _, r := range retrievers {
		if r == nil {
			return nil, fmt.Errorf("retriever cannot be nil")
		}
		for _, source := range r.Sources() {
			if err := source.Validate(); err != nil {
				return nil, err
			}
			if _, ok := bySource[source]; ok {
				return nil, &AmbiguousSourceError{Source: source}
			}
			bySource[source] = r
		}
	}
	return &Registry{bySource: bySource}, nil
}

// Resolve returns the retriever owning the source.
func (r *Registry) Resolve(source model.Source) (retriever.Retriever, error) {
	ret, ok := r.bySource[source]
	if !ok {
		return nil, &NoRetrieverForSourceError{Source: source}
	}
	return ret, nil
}

// Has reports whether any retriever declares the source.
func (r *Registry) Has(source model.Source) bool {
	_, ok := r.bySource[source]
	return ok
}

// Sources lists every registered source, sorted.
func (r *Registry) Sources() []model.Source {
	out := make([]model.Source, 0, len(r.bySource))
	for s := range r.bySource {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
