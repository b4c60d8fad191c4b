package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// SnapshotService defines what the snapshot handler needs from the service
// layer.
type SnapshotService interface {
	Export(ctx context.Context) (string, error)
}

// SnapshotHandler serves the on-demand snapshot export endpoint.
type SnapshotHandler struct {
	snapshots SnapshotService
	logger    *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler. A nil service disables the
// endpoint.
func NewSnapshotHandler(snapshots SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots: snapshots,
		logger:    logger,
	}
}

// Export takes a state snapshot and uploads it to object storage.
// POST /api/admin/snapshot
func (h *SnapshotHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots are not configured")
		return
	}

	key, err := h.snapshots.Export(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: snapshot export failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "snapshot export failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}
