// Package retriever defines the uniform capability contract every
// protocol-specific retriever variant implements, and the error taxonomy the
// orchestration layer dispatches on.
package retriever

import (
	"context"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// Retriever fetches one (source, variable, days, params) unit from one
// upstream system. Implementations declare the sources they serve and never
// see planner or cache internals.
//
// Retrieve may succeed partially inside one call: when only some of the
// requested days exist upstream it returns the available subset and must
// never pad missing days with sentinel values. Confirmed absence of all days
// is a DataNotFoundError; unreachable upstreams are a SourceUnavailableError.
type Retriever interface {
	// Sources declares what this variant can serve.
	Sources() []model.Source

	// Variables returns the canonical-to-native mapping scoped to a source.
	Variables(source model.Source) (catalog.Catalog, error)

	// CRS returns the coordinate reference descriptor for a source.
	CRS(source model.Source) (string, error)

	// Retrieve materializes one fetch unit.
	Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error)
}
