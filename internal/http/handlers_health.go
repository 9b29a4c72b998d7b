package httpx

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	healthResponse      = `{"status":"ok"}`
	readinessTimeout    = 2 * time.Second
	readinessStatusOK   = "ok"
	readinessStatusFail = "unavailable"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// healthHandler is the liveness probe. It never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, healthResponse)
}

// readinessHandler runs every check with a shared deadline and answers 503
// when any fails. Check errors are reported by name only.
func readinessHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = readinessStatusFail
				continue
			}
			results[name] = readinessStatusOK
		}

		overall := readinessStatusOK
		if status != http.StatusOK {
			overall = readinessStatusFail
		}
		w.Header().Set("Cache-Control", "no-store")
		WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
