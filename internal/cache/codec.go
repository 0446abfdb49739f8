package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// fragmentDoc is the stored form of a fragment. Values are nullable because
// station fragments mark missing readings with NaN, which JSON cannot carry.
type fragmentDoc struct {
	Source    model.Source            `json:"source"`
	Variable  model.CanonicalVariable `json:"variable"`
	CRS       string                  `json:"crs"`
	Times     []time.Time             `json:"times"`
	Stations  []string                `json:"stations,omitempty"`
	XS        []float64               `json:"xs,omitempty"`
	YS        []float64               `json:"ys,omitempty"`
	Values    []*float64              `json:"values"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// encodeFragment serializes a fragment for storage, mapping NaN gaps to
// JSON nulls.
func encodeFragment(frag *model.DataFragment) ([]byte, error) {
	doc := fragmentDoc{
		Source:    frag.Source,
		Variable:  frag.Variable,
		CRS:       frag.CRS,
		Times:     frag.Times,
		Stations:  frag.Stations,
		XS:        frag.XS,
		YS:        frag.YS,
		Values:    make([]*float64, len(frag.Values)),
		FetchedAt: frag.FetchedAt,
	}
	for i, v := range frag.Values {
		if math.IsNaN(v) {
			continue
		}
		val := v
		doc.Values[i] = &val
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fragment: %w", err)
	}
	return data, nil
}

// decodeFragment is the inverse of encodeFragment: nulls come back as NaN.
func decodeFragment(data []byte) (*model.DataFragment, error) {
	var doc fragmentDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode fragment: %w", err)
	}
	frag := &model.DataFragment{
		Source:    doc.Source,
		Variable:  doc.Variable,
		CRS:       doc.CRS,
		Times:     doc.Times,
		Stations:  doc.Stations,
		XS:        doc.XS,
		YS:        doc.YS,
		Values:    make([]float64, len(doc.Values)),
		FetchedAt: doc.FetchedAt,
	}
	for i, v := range doc.Values {
		if v == nil {
			frag.Values[i] = math.NaN()
			continue
		}
		frag.Values[i] = *v
	}
	return frag, nil
}
