package sparql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kasuganosora/sparqlexec/pkg/config"
)

const (
	// DefaultTimeout bounds one request from connect to the last body byte.
	DefaultTimeout = 30 * time.Second

	ContentTypeForm        = "application/x-www-form-urlencoded"
	ContentTypeResultsJSON = "application/sparql-results+json"
)

// Executor posts queries to a SPARQL endpoint. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	client  *http.Client
	timeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates an executor with a 30 second request timeout.
// Redirects are not followed; a 3xx is classified like any other status.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client: &http.Client{
			// A redirect would turn the POST into a second request.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the per-request timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute sends query to the endpoint in one POST and classifies the result.
// The returned error is non-nil only when ctx was cancelled or expired;
// every other failure is reported through the Outcome.
func (e *Executor) Execute(ctx context.Context, endpoint config.Endpoint, query string) (Outcome, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	form := url.Values{"query": []string{query}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return transportFailure(endpoint.URL, unwrapURLError(err)), nil
	}
	req.Header.Set("Content-Type", ContentTypeForm)
	req.Header.Set("Accept", ContentTypeResultsJSON)
	if endpoint.HasCredentials() {
		req.SetBasicAuth(endpoint.Username, endpoint.Password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return transportFailure(endpoint.URL, unwrapURLError(err)), nil
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// A truncated error body is still worth reporting with its status.
		return httpStatusFailure(resp.StatusCode, string(data)), nil
	}
	if readErr != nil {
		return transportFailure(endpoint.URL, unwrapURLError(readErr)), nil
	}

	body, err := decodeJSON(data)
	if err != nil {
		return decodeFailure(resp.StatusCode, endpoint.URL), nil
	}
	return success(resp.StatusCode, body, data), nil
}

// decodeJSON parses exactly one JSON value. Numbers stay json.Number so a
// re-encode reproduces them digit for digit.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
