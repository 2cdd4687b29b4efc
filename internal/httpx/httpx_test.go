package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/actris-cloudnet/cloudnet-processing/internal/httpx"
)

func newClient(maxRetries int) *httpx.Client {
	return httpx.New(&http.Client{Timeout: 5 * time.Second}, maxRetries)
}

func get(t *testing.T, c *httpx.Client, url string) (*http.Response, error) {
	t.Helper()
	return c.Do(context.Background(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	})
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := get(t, newClient(5), srv.URL)
	if err != nil {
		t.Fatalf("Do() error after retries: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestDoSurfacesClientErrorsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := get(t, newClient(5), srv.URL)
	if err == nil {
		t.Fatal("Do() should fail on 404")
	}
	if !httpx.IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (4xx must not retry)", got)
	}
}

func TestDoGivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := get(t, newClient(2), srv.URL)
	if err == nil {
		t.Fatal("Do() should fail once retries are exhausted")
	}
	se, ok := httpx.AsStatusError(err)
	if !ok || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("want wrapped 500 StatusError, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server called %d times, want 2", got)
	}
}

func TestIsNotFoundIgnoresOtherStatuses(t *testing.T) {
	if httpx.IsNotFound(&httpx.StatusError{StatusCode: http.StatusForbidden}) {
		t.Error("403 must not count as not-found")
	}
	if httpx.IsNotFound(nil) {
		t.Error("nil error must not count as not-found")
	}
}
