package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestAPIErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		e := &APIError{Status: tt.status}
		if got := e.retryable(); got != tt.want {
			t.Errorf("retryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short, 10) = %q", got)
	}
	if got := truncate("0123456789", 4); got != "0123..." {
		t.Errorf("truncate = %q, want %q", got, "0123...")
	}
}

// testTransport points the "sheets" API at a local server for the duration
// of one test.
func testTransport(t *testing.T, handler http.Handler) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	saved := apiBases["sheets"]
	apiBases["sheets"] = srv.URL + "/"
	t.Cleanup(func() { apiBases["sheets"] = saved })

	return &HTTP{
		httpClient: srv.Client(),
		userAgent:  "sheetsync test",
		timeout:    2 * time.Second,
		maxElapsed: 5 * time.Second,
		logger:     slog.Default(),
	}
}

func TestGetSuccess(t *testing.T) {
	var gotUA atomic.Value
	c := testTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))

	query := url.Values{}
	query.Set("fields", "id")
	body, capturedAt, err := c.Get(context.Background(), "sheets", "spreadsheets/x", query, "sheet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if capturedAt.IsZero() {
		t.Error("capturedAt is zero")
	}
	if gotUA.Load() != "sheetsync test" {
		t.Errorf("user agent = %q", gotUA.Load())
	}
}

func TestGetRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := testTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))

	_, _, err := c.Get(context.Background(), "sheets", "spreadsheets/x", nil, "sheet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	c := testTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"denied"}`))
	}))

	_, _, err := c.Get(context.Background(), "sheets", "spreadsheets/x", nil, "sheet")
	if err == nil {
		t.Fatal("Get() expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1", calls.Load())
	}
}

func TestGetUnknownAPI(t *testing.T) {
	c := &HTTP{}
	if _, _, err := c.Get(context.Background(), "nope", "x", nil, "x"); err == nil {
		t.Fatal("Get() with unknown api expected error")
	}
}
