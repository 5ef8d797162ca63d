package handlers

import (
	"context"
	"net/http"

	"github.com/noesis-ai/noesis/internal/api"
)

type Reindexer interface {
	HasBackend() bool
	ReindexAll(ctx context.Context) (int, error)
}

type AdminHandler struct {
	reindexer Reindexer
}

func NewAdminHandler(reindexer Reindexer) *AdminHandler {
	return &AdminHandler{reindexer: reindexer}
}

// Reindex re-embeds and re-upserts every non-deleted entry. Entries
// that fail are recorded on the entry itself and skipped, so a partial
// failure still returns 200 with the processed count.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if !h.reindexer.HasBackend() {
		api.Error(w, http.StatusServiceUnavailable, "no index backend configured")
		return
	}

	count, err := h.reindexer.ReindexAll(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"reindexed": count})
}
