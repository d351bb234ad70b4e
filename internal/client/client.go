// Package client provides the authenticated HTTP transport to the
// spreadsheet and file-metadata APIs.
//
// The extraction core depends only on the Client interface; the production
// implementation handles service-account auth, retries with exponential
// backoff, and request timeouts. Anything that escapes a Get call is fatal
// for the sheet being synced.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// API base URLs keyed by logical API name.
var apiBases = map[string]string{
	"sheets": "https://sheets.googleapis.com/v4/",
	"files":  "https://www.googleapis.com/drive/v3/",
}

// Scopes requested for the service account token. Read-only: this tool
// never writes to the source spreadsheet.
var scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets.readonly",
	"https://www.googleapis.com/auth/drive.metadata.readonly",
}

// Client fetches parsed JSON from a spreadsheet-relative path and reports
// when the response was captured.
type Client interface {
	Get(ctx context.Context, api, path string, query url.Values, endpoint string) (json.RawMessage, time.Time, error)
}

// APIError is a non-success response from the upstream API.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request %q failed with status %d: %s", e.Endpoint, e.Status, e.Body)
}

// retryable reports whether the request should be retried: rate limiting
// and server-side failures are transient, everything else is not.
func (e *APIError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// HTTP is the production Client implementation.
type HTTP struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	maxElapsed time.Duration
	logger     *slog.Logger
}

// Options configures the production transport.
type Options struct {
	// KeyfilePath is the service-account JSON credentials file.
	KeyfilePath string
	// UserAgent is sent on every request.
	UserAgent string
	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration
	// RetryElapsed bounds the total time spent retrying one request.
	RetryElapsed time.Duration
	Logger       *slog.Logger
}

// New builds the production transport from a service-account keyfile.
func New(ctx context.Context, opts Options) (*HTTP, error) {
	data, err := os.ReadFile(opts.KeyfilePath)
	if err != nil {
		return nil, fmt.Errorf("read service account keyfile: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account keyfile: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	maxElapsed := opts.RetryElapsed
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Minute
	}

	return &HTTP{
		httpClient: oauth2.NewClient(ctx, conf.TokenSource(ctx)),
		userAgent:  opts.UserAgent,
		timeout:    timeout,
		maxElapsed: maxElapsed,
		logger:     logger,
	}, nil
}

// Get implements Client. Transient failures (429, 5xx, network errors) are
// retried with exponential backoff until RetryElapsed runs out.
func (c *HTTP) Get(ctx context.Context, api, path string, query url.Values, endpoint string) (json.RawMessage, time.Time, error) {
	base, ok := apiBases[api]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("unknown api %q for endpoint %q", api, endpoint)
	}
	reqURL := base + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body json.RawMessage
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network-level failures are retryable unless the parent
			// context is gone.
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(data), 300)}
			if apiErr.retryable() {
				c.logger.Warn("retrying api request", "endpoint", endpoint, "status", resp.StatusCode)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		body = json.RawMessage(data)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, time.Time{}, apiErr
		}
		return nil, time.Time{}, fmt.Errorf("api request %q: %w", endpoint, err)
	}

	return body, time.Now().UTC(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
