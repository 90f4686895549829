// Package health probes the supervised server's readiness endpoint and
// reduces the result to a small status with a consecutive-failure counter.
// A prober is bound to one server incarnation; the supervisor constructs a
// fresh one for every spawn.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Sentinel errors returned by WaitReady.
var (
	// ErrStartupTimeout means the overall readiness deadline elapsed.
	ErrStartupTimeout = errors.New("server did not become ready in time")
	// ErrCheckFailed means the failure counter hit the threshold first.
	ErrCheckFailed = errors.New("readiness checks failed repeatedly")
)

// readyBody is the JSON shape the server returns from GET /ready.
type readyBody struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Options configures a Prober.
type Options struct {
	// FailureThreshold is the consecutive-failure count at which WaitReady
	// gives up early. Zero means 5.
	FailureThreshold int
	// PollInterval is the delay between WaitReady probes. Zero means 250ms.
	PollInterval time.Duration
	// RequestTimeout bounds each individual probe. Zero means 2s.
	RequestTimeout time.Duration
	// OnChange, if set, is invoked after every status update.
	OnChange func(Status)
	Logger   *slog.Logger
}

// Prober issues readiness probes against one server base URL.
type Prober struct {
	baseURL   string
	client    *http.Client
	threshold int
	interval  time.Duration
	onChange  func(Status)
	logger    *slog.Logger

	mu       sync.Mutex
	status   Status
	failures int
}

// NewProber creates a prober for the server at baseURL.
func NewProber(baseURL string, opts Options) *Prober {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: opts.RequestTimeout},
		threshold: opts.FailureThreshold,
		interval:  opts.PollInterval,
		onChange:  opts.OnChange,
		logger:    logger,
		status:    Status{Kind: KindStarting, CheckedAt: time.Now()},
	}
}

// Check performs a single probe, updates the cached status and counters,
// and returns the observation.
func (p *Prober) Check(ctx context.Context) Status {
	started := time.Now()
	body, err := p.fetchReady(ctx)
	checked := time.Now()

	p.mu.Lock()
	if err != nil {
		p.failures++
		p.status = Status{
			Kind:                KindUnhealthy,
			ConsecutiveFailures: p.failures,
			LastError:           err.Error(),
			CheckedAt:           checked,
		}
	} else {
		p.failures = 0
		p.status = Status{
			Kind:          KindHealthy,
			Latency:       checked.Sub(started),
			ServerVersion: body.Version,
			CheckedAt:     checked,
		}
	}
	status := p.status
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("Readiness probe failed", "failures", status.ConsecutiveFailures, "error", err)
	}
	p.notify(status)
	return status
}

// WaitReady polls Check until the server is healthy, the failure counter
// reaches the threshold (ErrCheckFailed), or timeout elapses
// (ErrStartupTimeout).
func (p *Prober) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(p.interval)
	defer tick.Stop()

	for {
		status := p.Check(ctx)
		if status.Healthy() {
			return nil
		}
		if status.ConsecutiveFailures >= p.threshold {
			return fmt.Errorf("%w: %d consecutive failures, last: %s", ErrCheckFailed, status.ConsecutiveFailures, status.LastError)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s, last: %s", ErrStartupTimeout, timeout, status.LastError)
		case <-tick.C:
		}
	}
}

// SetStatus forces a status no probe would produce, such as ShuttingDown
// or Crashed with an exit code.
func (p *Prober) SetStatus(status Status) {
	if status.CheckedAt.IsZero() {
		status.CheckedAt = time.Now()
	}
	p.mu.Lock()
	p.status = status
	if status.Kind == KindHealthy {
		p.failures = 0
	}
	p.mu.Unlock()
	p.notify(status)
}

// Snapshot returns the most recent status.
func (p *Prober) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Failures returns the current consecutive-failure count.
func (p *Prober) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// BaseURL returns the probed server address.
func (p *Prober) BaseURL() string {
	return p.baseURL
}

func (p *Prober) fetchReady(ctx context.Context) (*readyBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/ready", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("readiness endpoint returned %d", resp.StatusCode)
	}
	var body readyBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed readiness body: %w", err)
	}
	return &body, nil
}

func (p *Prober) notify(status Status) {
	if p.onChange != nil {
		p.onChange(status)
	}
}
