package api

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 500 * time.Millisecond
)

var retryableStatus = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// retryTransport retries idempotent GETs on transient upstream statuses
// with exponential backoff. Other methods and status codes pass through
// untouched.
type retryTransport struct {
	base        http.RoundTripper
	maxAttempts int
	backoffBase time.Duration
	wait        func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:        base,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		wait:        waitBackoff,
	}
}

// waitBackoff sleeps for d unless the request context ends first.
func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := t.backoffBase << (attempt - 1)
			if err := t.wait(req.Context(), backoff); err != nil {
				return nil, err
			}
		}
		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if _, retryable := retryableStatus[resp.StatusCode]; !retryable {
			return resp, nil
		}
		if attempt == t.maxAttempts-1 {
			break
		}
		// Drain so the connection can be reused before the retry.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return resp, err
}
