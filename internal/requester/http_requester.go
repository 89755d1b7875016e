package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RequestIDHeader carries a per-request id so server logs can be correlated
const RequestIDHeader = "X-Request-ID"

// HTTPRequester executes authenticated requests and reads the whole response
type HTTPRequester struct {
	client  *http.Client
	authMgr AuthManager
	headers map[string]string
}

type HTTPRequesterParams struct {
	fx.In

	Client      *http.Client `optional:"true"`
	AuthManager AuthManager
	Headers     map[string]string `optional:"true"`
}

// NewHTTPRequester creates a new HTTPRequester. Without a client it uses one
// with no timeout, leaving cancellation to the caller's context.
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	client := params.Client
	if client == nil {
		client = &http.Client{}
	}
	authMgr := params.AuthManager
	if authMgr == nil {
		authMgr = NoAuth{}
	}

	headers := make(map[string]string, len(params.Headers))
	for k, v := range params.Headers {
		headers[k] = v
	}

	return &HTTPRequester{
		client:  client,
		authMgr: authMgr,
		headers: headers,
	}
}

// Get issues a GET request to url
func (r *HTTPRequester) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	return r.Do(req)
}

// Do applies headers and authentication to req and executes it
func (r *HTTPRequester) Do(req *http.Request) (*Response, error) {
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	if err := r.authMgr.ApplyAuth(req); err != nil {
		return nil, fmt.Errorf("failed to apply authentication: %w", err)
	}

	logger.Debug("request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", req.Header.Get(RequestIDHeader)),
	)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Debug("response",
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(bodyBytes)),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}
