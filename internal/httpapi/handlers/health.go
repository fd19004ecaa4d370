package handlers

import (
	"context"
	"net/http"
	"time"

	"clipforge/internal/httpkit"
)

// Health reports liveness. With ?deep=true it also pings the database, the
// queue and storage, reporting "degraded" if any check fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": h.health.Service,
	}
	if h.health.Version != "" {
		health["version"] = h.health.Version
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any)

	switch {
	case h.health.Pool != nil:
		checks["postgres"] = h.checkPostgres(ctx)
	case h.health.DB != nil:
		checks[h.health.DBDriver] = pingCheck(ctx, h.health.DB.Ping)
	}
	if h.health.Redis != nil {
		checks["redis"] = pingCheck(ctx, h.health.Redis.Ping)
	}
	if h.health.Queue != nil {
		checks["queue"] = h.checkQueue(ctx)
	}
	checks["storage"] = h.checkStorage(ctx)

	return checks
}

func pingCheck(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}

func (h *Handler) checkPostgres(ctx context.Context) map[string]any {
	result := pingCheck(ctx, h.health.Pool.Ping)
	if result["status"] == "ok" {
		stats := h.health.Pool.Stat()
		result["total_conns"] = stats.TotalConns()
		result["idle_conns"] = stats.IdleConns()
		result["acquired_conns"] = stats.AcquiredConns()
	}
	return result
}

func (h *Handler) checkQueue(ctx context.Context) map[string]any {
	result := map[string]any{"status": "ok"}
	queued, inflight, err := h.health.Queue.Len(ctx)
	if err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
		return result
	}
	result["queued"] = queued
	result["inflight"] = inflight
	return result
}

func (h *Handler) checkStorage(ctx context.Context) map[string]any {
	result := map[string]any{
		"status":   "ok",
		"provider": h.sp.Provider(),
	}
	// A missing .healthcheck object is fine; only transport errors count.
	if _, err := h.sp.Exists(ctx, ".healthcheck"); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	return result
}
