// Package fhir reads patient data from a FHIR R4 server with a bearer token.
package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/requester"
	"go.uber.org/zap"
)

// LabResultsPageSize caps lab searches. Vital signs are deliberately
// uncapped and get the server's default page size.
const LabResultsPageSize = 100

// Client reads resources under a fixed base URL with a fixed access token.
// It is safe for concurrent use; a new token needs a new Client.
type Client struct {
	baseURL   string
	requester *requester.HTTPRequester
}

type options struct {
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New creates a Client for baseURL authenticated with accessToken.
func New(baseURL, accessToken string, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := requester.NewHTTPRequester(requester.HTTPRequesterParams{
		Client:      o.httpClient,
		AuthManager: requester.NewBearerAuth(accessToken),
	})
	return newClient(baseURL, r)
}

func newClient(baseURL string, r *requester.HTTPRequester) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, requester: r}
}

// BaseURL returns the normalized base URL, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetPatient reads Patient/{id}.
func (c *Client) GetPatient(ctx context.Context, patientID string) (*Patient, error) {
	if patientID == "" {
		return nil, &RequestError{Message: ErrEmptyPatientID.Error(), Err: ErrEmptyPatientID}
	}
	return fetchWithAuth[Patient](ctx, c, "Patient/"+url.PathEscape(patientID))
}

// GetLabResults returns up to LabResultsPageSize laboratory observations,
// newest first.
func (c *Client) GetLabResults(ctx context.Context, patientID string) (*Bundle[Observation], error) {
	if patientID == "" {
		return nil, &RequestError{Message: ErrEmptyPatientID.Error(), Err: ErrEmptyPatientID}
	}
	endpoint := fmt.Sprintf("Observation?category=%s&patient=%s&_sort=-date&_count=%d",
		CategoryLaboratory, url.QueryEscape(patientID), LabResultsPageSize)
	return fetchWithAuth[Bundle[Observation]](ctx, c, endpoint)
}

// GetVitalSigns returns vital sign observations ordered by code, then newest
// first within each code.
func (c *Client) GetVitalSigns(ctx context.Context, patientID string) (*Bundle[Observation], error) {
	if patientID == "" {
		return nil, &RequestError{Message: ErrEmptyPatientID.Error(), Err: ErrEmptyPatientID}
	}
	endpoint := fmt.Sprintf("Observation?category=%s&patient=%s&_sort=code,-date",
		CategoryVitalSigns, url.QueryEscape(patientID))
	return fetchWithAuth[Bundle[Observation]](ctx, c, endpoint)
}

// GetMedications returns the patient's medication requests in server order.
func (c *Client) GetMedications(ctx context.Context, patientID string) (*Bundle[MedicationRequest], error) {
	if patientID == "" {
		return nil, &RequestError{Message: ErrEmptyPatientID.Error(), Err: ErrEmptyPatientID}
	}
	endpoint := "MedicationRequest?patient=" + url.QueryEscape(patientID)
	return fetchWithAuth[Bundle[MedicationRequest]](ctx, c, endpoint)
}

// fetchWithAuth GETs baseURL+endpoint and decodes the body as T, keeping the
// body on resources that hold it. Every failure is returned as a
// *RequestError.
func fetchWithAuth[T any, PT interface {
	*T
	Resource
}](ctx context.Context, c *Client, endpoint string) (PT, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.requester.Do(req)
	if err != nil {
		logger.Warn("FHIR request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, transportError(err)
	}

	if !resp.OK() {
		logger.Warn("FHIR request returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, statusError(resp.StatusCode, resp.Body)
	}

	out := PT(new(T))
	got, err := PeekResourceType(resp.Body)
	if err != nil {
		return nil, parseError(resp.StatusCode, resp.Body, err)
	}
	if got != out.Kind() {
		return nil, kindError(resp.StatusCode, resp.Body, got, out.Kind())
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, parseError(resp.StatusCode, resp.Body, err)
	}
	if h, ok := any(out).(rawHolder); ok {
		h.setRaw(resp.Body)
	}
	return out, nil
}
