package radar

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// compositePayload is the decoded API response for one day: a stack of
// composite grids on the OPERA projection.
type compositePayload struct {
	Times  []time.Time `json:"times"`
	XS     []float64   `json:"xs"`
	YS     []float64   `json:"ys"`
	Values []float64   `json:"values"`
}

func decodeComposite(r io.Reader) (*compositePayload, error) {
	var payload compositePayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode composite payload: %w", err)
	}
	if want := len(payload.Times) * len(payload.XS) * len(payload.YS); len(payload.Values) != want {
		return nil, fmt.Errorf("composite payload has %d values, want %d", len(payload.Values), want)
	}
	return &payload, nil
}

// appendPayload extends the fragment with one day's grids. Every day must
// share the grid of the first.
func appendPayload(frag *model.DataFragment, payload *compositePayload) error {
	if len(frag.Times) == 0 {
		frag.XS = payload.XS
		frag.YS = payload.YS
	} else if len(frag.XS) != len(payload.XS) || len(frag.YS) != len(payload.YS) {
		return fmt.Errorf("composite grid changed between days")
	}
	frag.Times = append(frag.Times, payload.Times...)
	frag.Values = append(frag.Values, payload.Values...)
	return nil
}
