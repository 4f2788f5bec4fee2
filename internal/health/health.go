// Package health serves the liveness and readiness probes of voxmail.
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz runs every registered [Checker] concurrently and answers 200
//     only when all of them pass. Typical checks are the directory storage
//     and the circuit breakers in front of the external services.
//
// Responses are JSON: {"status":"ok"|"fail","checks":{"<name>":"ok"|"fail: ..."}}.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxmail/internal/resilience"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and must honour ctx cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// BreakerState is implemented by every circuit-breaker-guarded component.
type BreakerState interface {
	State() resilience.State
}

// Breaker reports a dependency as not ready while its circuit is open.
// Half-open counts as ready so probe traffic can close the circuit.
func Breaker(name string, b BreakerState) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if s := b.State(); s == resilience.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}}
}

// Ping wraps a storage ping function, e.g. a database connection check.
func Ping(name string, ping func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: ping}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler is safe for concurrent use; checkers are fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))

	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
