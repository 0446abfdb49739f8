// Package cache interposes a content cache between the provider and the
// upstream retrievers. Fragments are stored one object per (unit key, day)
// so date coverage is a plain prefix listing. The cache is an optimization,
// not a source of truth: a failed write is logged and ignored.
package cache

import (
	"context"
	"fmt"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// Store is the key/value persistence behind the provider. Implementations
// must keep Read byte-transparent with respect to Write: a fragment read
// back equals the fragment written. Concurrent-access guarantees belong to
// the concrete implementation; the provider never writes the same object key
// twice within one call.
type Store interface {
	// Coverage lists the days already materialized under a unit key,
	// ascending. A key with no objects yields an empty list, not an error.
	Coverage(ctx context.Context, prefix string) ([]model.Date, error)

	// Read returns the fragment stored for one day of a unit key.
	Read(ctx context.Context, prefix string, day model.Date) (*model.DataFragment, error)

	// Write persists the fragment for one day of a unit key, overwriting any
	// previous object.
	Write(ctx context.Context, prefix string, day model.Date, frag *model.DataFragment) error
}

// ObjectKey addresses one cached fragment.
type ObjectKey struct {
	Prefix string // canonical unit key, see Key
	Day    model.Date
}

// Key renders the full object path, e.g.
// "opera/TOT_PREC/ens1to3/2024-01-01.json".
func (k ObjectKey) Key() string {
	return fmt.Sprintf("%s/%s.json", k.Prefix, k.Day)
}
