// Package lookup talks to the two external collaborators of the gatekeeper:
// the address detection service and the IP reputation service.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound means the service has no data for the request. It is not a
// failure and callers should treat it as "nothing to act on".
var ErrNotFound = errors.New("no data")

// ServiceError is any other failed call: transport error, non-2xx status or
// an undecodable body. StatusCode is 0 when no response was received.
type ServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ObserveFunc receives the result of every call, for metrics.
type ObserveFunc func(service, result string, d time.Duration)

type Options struct {
	HTTPClient *http.Client
	// MaxRPS paces outbound calls across all visitors. Zero disables pacing.
	MaxRPS  float64
	Burst   int
	Observe ObserveFunc
}

// maxBody caps response bodies; both services answer with tiny JSON objects.
const maxBody = 64 << 10

type caller struct {
	service string
	hc      *http.Client
	pacer   *rate.Limiter
	observe ObserveFunc
}

func newCaller(service string, opts Options) caller {
	c := caller{
		service: service,
		hc:      opts.HTTPClient,
		observe: opts.Observe,
	}
	if c.hc == nil {
		c.hc = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.MaxRPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.pacer = rate.NewLimiter(rate.Limit(opts.MaxRPS), burst)
	}
	return c
}

// getJSON issues a GET and decodes a 2xx body into out.
func (c caller) getJSON(ctx context.Context, url string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(c.service, resultLabel(err), time.Since(start))
		}
	}()

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return &ServiceError{Service: c.service, Err: fmt.Errorf("pacing: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ServiceError{Service: c.service, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &ServiceError{Service: c.service, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return fmt.Errorf("%s: %w", c.service, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return &ServiceError{Service: c.service, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
		return &ServiceError{Service: c.service, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func resultLabel(err error) string {
	var se *ServiceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &se) && se.StatusCode != 0:
		return "bad_status"
	default:
		return "error"
	}
}
