package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/noesis-ai/noesis/internal/api"
	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/service"
)

type RetrievalServiceAPI interface {
	Retrieve(ctx context.Context, input service.RetrieveInput) (*service.RetrievalResult, error)
}

type RetrievalHandler struct {
	svc RetrievalServiceAPI
}

func NewRetrievalHandler(svc RetrievalServiceAPI) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type RetrieveRequest struct {
	ChatID             string   `json:"chat_id"`
	UserID             string   `json:"user_id"`
	ModelID            string   `json:"model_id"`
	ModelKey           string   `json:"model_key"`
	Query              string   `json:"query"`
	QueryLanguage      string   `json:"query_language"`
	UseCustomKnowledge bool     `json:"use_custom_knowledge"`
	Threshold          *float32 `json:"threshold"`
}

type RetrieveResponse struct {
	Supplement string              `json:"supplement"`
	Usage      *service.UsageEvent `json:"usage,omitempty"`
}

func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.RetrieveInput{
		ChatID:             req.ChatID,
		UserID:             req.UserID,
		Model:              domain.ModelRef{ID: req.ModelID, Key: req.ModelKey},
		Query:              req.Query,
		QueryLanguage:      req.QueryLanguage,
		UseCustomKnowledge: req.UseCustomKnowledge,
		Threshold:          req.Threshold,
	}

	result, err := h.svc.Retrieve(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// A nil result means retrieval is disabled or unavailable; the chat
	// proceeds without augmentation.
	if result == nil {
		api.Success(w, http.StatusOK, RetrieveResponse{})
		return
	}

	api.Success(w, http.StatusOK, RetrieveResponse{
		Supplement: result.Supplement,
		Usage:      &result.Usage,
	})
}
