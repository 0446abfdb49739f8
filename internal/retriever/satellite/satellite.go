// Package satellite retrieves SEVIRI channel data through an
// EUMETSAT-style ordering API: submit an order, poll until it is processed,
// then download the result.
package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/httpclient"
)

// SourceSatellite is the SEVIRI channel source.
const SourceSatellite = model.Source("SATELLITE")

const satelliteCRS = "epsg:4326"

// seviriCatalog maps the SEVIRI channel names; canonical and native names
// coincide for satellite channels.
var seviriCatalog = catalog.MustNew(SourceSatellite, func() map[model.CanonicalVariable]string {
	channels := []string{
		"VIS006", "VIS008", "HRV",
		"IR_016", "IR_039", "IR_087", "IR_097", "IR_108", "IR_120", "IR_134",
		"WV_062", "WV_073",
	}
	m := make(map[model.CanonicalVariable]string, len(channels))
	for _, ch := range channels {
		m[model.CanonicalVariable(ch)] = ch
	}
	return m
}())

// Retriever drives the ordering API.
type Retriever struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// New creates the satellite retriever.
func New(baseURL, apiKey string, cfg httpclient.Config) *Retriever {
	return &Retriever{
		client:       httpclient.New("satellite", cfg),
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: 10 * time.Second,
		pollTimeout:  30 * time.Minute,
	}
}

// Sources implements retriever.Retriever.
func (r *Retriever) Sources() []model.Source {
	return []model.Source{SourceSatellite}
}

// Variables implements retriever.Retriever.
func (r *Retriever) Variables(source model.Source) (catalog.Catalog, error) {
	if source != SourceSatellite {
		return catalog.Catalog{}, &retriever.UnknownSourceError{Source: source}
	}
	return seviriCatalog, nil
}

// CRS implements retriever.Retriever.
func (r *Retriever) CRS(source model.Source) (string, error) {
	if source != SourceSatellite {
		return "", &retriever.UnknownSourceError{Source: source}
	}
	return satelliteCRS, nil
}

// Retrieve orders the channel for the whole requested range in one go and
// downloads whatever the order produced. An order covering only part of the
// range yields the partial subset.
func (r *Retriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	cat, err := r.Variables(unit.Source)
	if err != nil {
		return nil, err
	}
	native, err := cat.ToNative(unit.Variable)
	if err != nil {
		return nil, err
	}

	order, err := r.submitOrder(ctx, native, unit)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "satellite order submitted", "order_id", order.OrderID, "status", order.Status)

	completed, err := r.waitForCompletion(ctx, unit, order.OrderID)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "satellite order completed", "order_id", completed.OrderID, "status", completed.Status)

	payload, err := r.downloadResult(ctx, completed.OrderID)
	if err != nil {
		return nil, err
	}
	if len(payload.Times) == 0 {
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
	}

	return &model.DataFragment{
		Source:   unit.Source,
		Variable: unit.Variable,
		CRS:      satelliteCRS,
		Times:    payload.Times,
		XS:       payload.XS,
		YS:       payload.YS,
		Values:   payload.Values,
	}, nil
}

func (r *Retriever) submitOrder(ctx context.Context, channel string, unit model.FetchUnit) (*orderResponse, error) {
	body := orderRequest{
		Product: channel,
		Start:   unit.Range().Start.String(),
		End:     unit.Range().End.String(),
	}
	if unit.Params.Bounds != nil {
		minLon, minLat, maxLon, maxLat := unit.Params.Bounds.Edges()
		body.BBox = []float64{minLon, minLat, maxLon, maxLat}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := r.doRequest(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, &retriever.SourceUnavailableError{
			Source: SourceSatellite,
			Err:    fmt.Errorf("order submission failed with status %d", resp.StatusCode),
		}
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	return &order, nil
}

// waitForCompletion polls until the order is processed or fails.
func (r *Retriever) waitForCompletion(ctx context.Context, unit model.FetchUnit, orderID string) (*orderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: ctx.Err()}
		case <-ticker.C:
		}

		order, err := r.getOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		switch order.Status {
		case orderStateCompleted:
			return order, nil
		case orderStateFailed:
			return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
		case orderStateRejected:
			return nil, &retriever.InvalidParameterError{Name: "bounds", Reason: fmt.Sprintf("order %s rejected by upstream", orderID)}
		default:
			slog.InfoContext(ctx, "satellite order not completed yet", "order_id", order.OrderID, "status", order.Status)
		}
	}
}

func (r *Retriever) getOrder(ctx context.Context, orderID string) (*orderResponse, error) {
	resp, err := r.doRequest(ctx, http.MethodGet, "/orders/"+orderID, nil)
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &retriever.SourceUnavailableError{
			Source: SourceSatellite,
			Err:    fmt.Errorf("order status query failed with status %d", resp.StatusCode),
		}
	}
	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	return &order, nil
}

func (r *Retriever) downloadResult(ctx context.Context, orderID string) (*gridPayload, error) {
	resp, err := r.doRequest(ctx, http.MethodGet, "/orders/"+orderID+"/result", nil)
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &retriever.SourceUnavailableError{
			Source: SourceSatellite,
			Err:    fmt.Errorf("result download failed with status %d", resp.StatusCode),
		}
	}
	var payload gridPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceSatellite, Err: err}
	}
	return &payload, nil
}

func (r *Retriever) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return r.client.Do(ctx, func() (*http.Request, error) {
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, r.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("PRIVATE-TOKEN", r.apiKey)
		req.Header.Set("Accept", "application/json")
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
}
