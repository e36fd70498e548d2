// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; returns 200 unless a liveness [Checker]
//     fails (a stalled audio goroutine, for instance).
//   - /readyz: readiness probe; returns 200 only when all registered
//     readiness checkers pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single check may take before the
// context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "audio",
	// "backend"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker lists are fixed once [Handler.Register] was called.
type Handler struct {
	liveness  []Checker
	readiness []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(readiness ...Checker) *Handler {
	c := make([]Checker, len(readiness))
	copy(c, readiness)
	return &Handler{readiness: c}
}

// WithLiveness adds checkers that are also evaluated by /healthz. It returns
// h for chaining and must be called before the handler serves requests.
func (h *Handler) WithLiveness(checkers ...Checker) *Handler {
	h.liveness = append(h.liveness, checkers...)
	return h
}

// Healthz is a liveness probe. Without liveness checkers it always returns
// 200 OK: a running process that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if len(h.liveness) == 0 {
		writeJSON(w, http.StatusOK, result{Status: "ok"})
		return
	}
	h.evaluate(w, r, h.liveness)
}

// Readyz is a readiness probe that returns 200 only when every liveness and
// readiness [Checker] passes. Each checker is given a context with a
// [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	all := make([]Checker, 0, len(h.liveness)+len(h.readiness))
	all = append(all, h.liveness...)
	all = append(all, h.readiness...)
	h.evaluate(w, r, all)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, checkers []Checker) {
	checks := make(map[string]string, len(checkers))
	allOK := true

	for _, c := range checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// HeartbeatChecker fails when beat reports a time older than maxAge, or the
// zero time. Use it with [atl.System.Heartbeat] to detect a stalled or
// stopped audio goroutine.
func HeartbeatChecker(name string, beat func() time.Time, maxAge time.Duration) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			last := beat()
			if last.IsZero() {
				return errors.New("not running")
			}
			if age := time.Since(last); age > maxAge {
				return fmt.Errorf("last heartbeat %s ago", age.Round(time.Millisecond))
			}
			return nil
		},
	}
}

// BackendChecker fails while the active backend differs from the one the
// configuration asked for, for example after a fallback to the null
// backend. active and want return backend names.
func BackendChecker(active, want func() string) Checker {
	return Checker{
		Name: "backend",
		Check: func(context.Context) error {
			got, w := active(), want()
			if got == "" {
				return errors.New("no backend bound")
			}
			if got != w {
				return fmt.Errorf("running on %q instead of %q", got, w)
			}
			return nil
		},
	}
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
