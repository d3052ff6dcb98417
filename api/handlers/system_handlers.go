package handlers

import (
	"context"
	"net/http"
	"time"

	"warroom/core/store"
	"warroom/core/utils"
)

type SystemHandler struct {
	db      *store.DB
	logger  *utils.Logger
	started time.Time
}

func NewSystemHandler(db *store.DB, logger *utils.Logger) *SystemHandler {
	return &SystemHandler{db: db, logger: logger, started: utils.NowUTC()}
}

// Health pings the database and reports the applied schema version.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warnf("health: db ping failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "db": err.Error()})
		return
	}
	version, err := store.SchemaVersion(ctx, h.db)
	if err != nil {
		h.logger.Warnf("health: schema version: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"schema_version": version,
		"uptime":         time.Since(h.started).Round(time.Second).String(),
	})
}
