// Package healthcheck evaluates the runtime dependencies the pipeline
// cannot deliver without: the channel API, the responder endpoint, and
// the history database.
package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// StatusOK indicates the dependency answered.
	StatusOK = "ok"
	// StatusError indicates the dependency failed or timed out.
	StatusError = "error"
)

// CheckResult is the outcome of probing one dependency.
type CheckResult struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Registry runs a fixed set of checkers with a shared per-check timeout.
type Registry struct {
	mu       sync.Mutex
	checkers []Checker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger, timeout time.Duration) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		timeout: timeout,
		logger:  log.With(slog.String("component", "healthcheck")),
	}
}

// Register adds a checker. Nil checkers are ignored so call sites can
// pass conditionally constructed probes.
func (r *Registry) Register(c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

// Run probes every registered dependency sequentially. It never returns
// an error; failures are reported per result.
func (r *Registry) Run(ctx context.Context) []CheckResult {
	r.mu.Lock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.Unlock()

	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		results = append(results, r.runOne(ctx, c))
	}
	return results
}

// Healthy reports whether every result passed or was skipped.
func Healthy(results []CheckResult) bool {
	for _, res := range results {
		if res.Status == StatusError {
			return false
		}
	}
	return true
}

func (r *Registry) runOne(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(checkCtx)
	elapsed := time.Since(start)

	result := CheckResult{
		Name:      c.Name(),
		Status:    StatusOK,
		LatencyMS: elapsed.Milliseconds(),
	}
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		r.logger.Warn("dependency check failed",
			slog.String("check", c.Name()),
			slog.Any("error", err))
	}
	return result
}
