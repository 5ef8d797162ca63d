package handlers

import (
	"context"
	"net/http"

	"github.com/noesis-ai/noesis/internal/api"
	"github.com/noesis-ai/noesis/internal/domain"
)

type AnalyticsServiceAPI interface {
	Summary(ctx context.Context) (*domain.AnalyticsSummary, error)
}

type AnalyticsHandler struct {
	svc AnalyticsServiceAPI
}

func NewAnalyticsHandler(svc AnalyticsServiceAPI) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, summary)
}
