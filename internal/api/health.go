package api

import (
	"context"
	"net/http"
	"time"
)

// Health reports database reachability and live connection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	users, channels := h.registry.Count()
	body := map[string]interface{}{
		"status":       "ok",
		"database":     "ok",
		"online_users": users,
		"connections":  channels,
	}

	if err := h.messages.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	JSON(w, http.StatusOK, body)
}
