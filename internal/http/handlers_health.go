package httpx

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandlers serves liveness and readiness checks. Checks maps a
// dependency name to its ping; pings run concurrently per request.
type HealthHandlers struct {
	Checks map[string]func(ctx context.Context) error
}

// Live handles GET /healthz: process liveness only, no dependency checks.
func (h *HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Ready handles GET /health: pings every dependency concurrently and reports
// 503 if any fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]string, len(h.Checks))

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.Checks {
		g.Go(func() error {
			err := check(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = err.Error()
				return err
			}
			results[name] = "ok"
			return nil
		})
	}

	status := http.StatusOK
	overall := "ok"
	if err := g.Wait(); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	WriteJSON(w, status, map[string]any{
		"status": overall,
		"checks": results,
	})
}
