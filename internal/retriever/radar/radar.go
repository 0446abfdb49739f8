// Package radar retrieves OPERA European radar composites through the
// MeteoFrance partner API.
package radar

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/kacper-wojtaszczyk/weathermart/internal/catalog"
	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever"
	"github.com/kacper-wojtaszczyk/weathermart/internal/retriever/httpclient"
)

// SourceOPERA is the European radar composite source.
const SourceOPERA = model.Source("OPERA")

// DefaultBaseURL is the MeteoFrance partner endpoint serving OPERA data.
const DefaultBaseURL = "https://partner-api.meteofrance.fr/partner/radar/opera/1.0"

// operaCRS is the Lambert azimuthal equal-area projection the composites
// are published on.
const operaCRS = "+proj=laea +lat_0=55.0 +lon_0=10.0 +x_0=1950000.0 +y_0=-2100000.0 +units=m +ellps=WGS84"

var operaCatalog = catalog.MustNew(SourceOPERA, map[model.CanonicalVariable]string{
	"TOT_PREC": "ACRR",
})

// Retriever fetches daily OPERA composites.
type Retriever struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// New creates the OPERA retriever. The API key may be overridden per request
// through the credentials_path parameter.
func New(baseURL, apiKey string, cfg httpclient.Config) *Retriever {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Retriever{
		client:  httpclient.New("opera", cfg),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Sources implements retriever.Retriever.
func (r *Retriever) Sources() []model.Source {
	return []model.Source{SourceOPERA}
}

// Variables implements retriever.Retriever.
func (r *Retriever) Variables(source model.Source) (catalog.Catalog, error) {
	if source != SourceOPERA {
		return catalog.Catalog{}, &retriever.UnknownSourceError{Source: source}
	}
	return operaCatalog, nil
}

// CRS implements retriever.Retriever.
func (r *Retriever) CRS(source model.Source) (string, error) {
	if source != SourceOPERA {
		return "", &retriever.UnknownSourceError{Source: source}
	}
	return operaCRS, nil
}

// Retrieve fetches one composite per requested day. Days the API does not
// hold are left out of the result; only when every day is missing does the
// unit come back as not found.
func (r *Retriever) Retrieve(ctx context.Context, unit model.FetchUnit) (*model.DataFragment, error) {
	cat, err := r.Variables(unit.Source)
	if err != nil {
		return nil, err
	}
	native, err := cat.ToNative(unit.Variable)
	if err != nil {
		return nil, err
	}
	apiKey, err := r.resolveKey(unit.Params)
	if err != nil {
		return nil, err
	}

	frag := &model.DataFragment{Source: unit.Source, Variable: unit.Variable, CRS: operaCRS}
	for _, day := range unit.Days {
		payload, err := r.fetchDay(ctx, native, day, apiKey)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			continue // confirmed missing day
		}
		if err := appendPayload(frag, payload); err != nil {
			return nil, err
		}
	}
	if len(frag.Times) == 0 {
		return nil, &retriever.DataNotFoundError{Source: unit.Source, Variable: unit.Variable, Range: unit.Range()}
	}
	return frag, nil
}

// fetchDay returns nil without error when the API confirms the day absent.
func (r *Retriever) fetchDay(ctx context.Context, product string, day model.Date, apiKey string) (*compositePayload, error) {
	resp, err := r.client.Do(ctx, func() (*http.Request, error) {
		url := fmt.Sprintf("%s/composites?product=%s&date=%s", r.baseURL, product, day)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceOPERA, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &retriever.InvalidParameterError{Name: "credentials_path", Reason: "OPERA API rejected the key"}
	case resp.StatusCode != http.StatusOK:
		return nil, &retriever.SourceUnavailableError{
			Source: SourceOPERA,
			Err:    fmt.Errorf("unexpected status %d for %s", resp.StatusCode, day),
		}
	}

	payload, err := decodeComposite(resp.Body)
	if err != nil {
		return nil, &retriever.SourceUnavailableError{Source: SourceOPERA, Err: err}
	}
	return payload, nil
}

// resolveKey prefers a key file named by the request over the constructor
// key, the way operational pipelines rotate credentials.
func (r *Retriever) resolveKey(params model.ExtraParams) (string, error) {
	if params.CredentialsPath == "" {
		if r.apiKey == "" {
			return "", &retriever.InvalidParameterError{Name: "credentials_path", Reason: "no OPERA API key configured"}
		}
		return r.apiKey, nil
	}
	data, err := os.ReadFile(params.CredentialsPath)
	if err != nil {
		return "", &retriever.InvalidParameterError{Name: "credentials_path", Reason: err.Error()}
	}
	return strings.TrimSpace(string(data)), nil
}
