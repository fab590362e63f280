// Package health runs periodic readiness probes against the ledger's
// dependencies and reports the aggregate status.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// WebhookDispatchFunc is an optional callback for dispatching health transitions.
type WebhookDispatchFunc func(ctx context.Context, eventType string, payload any)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// ProbeStatus is the last observed state of one probe.
type ProbeStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"consecutive_failures"`
	LastError string    `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthChecker runs registered probes on an interval. A probe is reported
// unhealthy once it has failed FailThreshold times in a row.
type HealthChecker struct {
	mu        sync.Mutex
	probes    map[string]Probe
	status    map[string]*ProbeStatus
	cfg       Config
	onWebhook WebhookDispatchFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new HealthChecker.
func New(cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &HealthChecker{
		probes: make(map[string]Probe),
		status: make(map[string]*ProbeStatus),
		cfg:    cfg,
		logger: logger,
	}
}

// Register adds a named probe. Probes start out healthy.
func (h *HealthChecker) Register(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
	h.status[name] = &ProbeStatus{Name: name, Healthy: true}
}

// SetWebhookDispatch configures the webhook dispatch callback.
func (h *HealthChecker) SetWebhookDispatch(fn WebhookDispatchFunc) {
	h.onWebhook = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Run checks every probe immediately and then on each interval until ctx is
// done.
func (h *HealthChecker) Run(ctx context.Context) error {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// CheckAll runs every probe concurrently, each bounded by ProbeTimeout.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p(pctx)
			cancel()
			h.record(ctx, name, err)
		}(name, p)
	}
	wg.Wait()
}

func (h *HealthChecker) record(ctx context.Context, name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(err == nil)
	}

	h.mu.Lock()
	st := h.status[name]
	wasHealthy := st.Healthy
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.Failures = 0
		st.LastError = ""
		st.Healthy = true
	} else {
		st.Failures++
		st.LastError = err.Error()
		if st.Failures >= h.cfg.FailThreshold {
			st.Healthy = false
		}
	}
	snapshot := *st
	h.mu.Unlock()

	switch {
	case wasHealthy && !snapshot.Healthy:
		h.logger.Warn("health: degraded",
			zap.String("probe", name),
			zap.Int("fail_count", snapshot.Failures),
			zap.Error(err),
		)
		if h.onWebhook != nil {
			h.onWebhook(ctx, "health.degraded", snapshot)
		}
	case !wasHealthy && snapshot.Healthy:
		h.logger.Info("health: recovered", zap.String("probe", name))
		if h.onWebhook != nil {
			h.onWebhook(ctx, "health.recovered", snapshot)
		}
	case err != nil:
		h.logger.Debug("health: probe failed", zap.String("probe", name), zap.Error(err))
	}
}

// Status returns every probe's state sorted by name and whether all are
// healthy.
func (h *HealthChecker) Status() ([]ProbeStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ProbeStatus, 0, len(h.status))
	ok := true
	for _, st := range h.status {
		out = append(out, *st)
		ok = ok && st.Healthy
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, ok
}
