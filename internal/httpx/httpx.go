// Package httpx wraps *http.Client with the bounded exponential backoff
// every outbound client in this engine needs: retry on 5xx and
// transient network errors, surface 4xx immediately.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// Client performs HTTP requests with retries. Basic-auth credentials are
// supplied per call since different endpoints (data-submission vs
// storage-service) use different identities.
type Client struct {
	http       *http.Client
	maxRetries uint
}

func New(hc *http.Client, maxRetries int) *Client {
	return &Client{http: hc, maxRetries: uint(maxRetries)}
}

// StatusError is returned for any response with status >= 400; 4xx
// responses surface immediately (not retried), 5xx responses are retried
// by Do and only returned wrapped once retries are exhausted.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, string(e.Body))
}

// IsNotFound reports whether err is (or wraps) a 404 StatusError, used by
// callers that treat a missing resource as a typed nil rather than an
// error (nominal-instrument and calibration lookups).
func IsNotFound(err error) bool {
	se, ok := AsStatusError(err)
	return ok && se.StatusCode == http.StatusNotFound
}

// AsStatusError unwraps err looking for a *StatusError.
func AsStatusError(err error) (*StatusError, bool) {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// Do executes newReq() (called again on every retry, since *http.Request
// bodies cannot be replayed) with bounded exponential backoff on 5xx and
// transport-level errors.
func (c *Client) Do(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	op := func() (*http.Response, error) {
		req, err := newReq()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err // network/transport error: retryable
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: body})
		}
		return resp, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries),
	)
}
