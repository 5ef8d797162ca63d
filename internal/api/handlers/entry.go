package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/noesis-ai/noesis/internal/api"
	"github.com/noesis-ai/noesis/internal/api/middleware"
	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/service"
)

type EntryService interface {
	Create(ctx context.Context, input service.CreateEntryInput, actorID string) (*domain.Entry, error)
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	Update(ctx context.Context, input service.UpdateEntryInput, actorID string) (*domain.Entry, error)
	BulkSetStatus(ctx context.Context, ids []string, status domain.EntryStatus, actorID string) ([]*domain.Entry, error)
	ArchiveEntries(ctx context.Context, ids []string, actorID string) error
	Restore(ctx context.Context, id string, actorID string) (*domain.Entry, error)
	RestoreVersion(ctx context.Context, entryID, versionID, actorID string) (*domain.Entry, error)
	SetApproval(ctx context.Context, entryID string, target domain.ApprovalStatus, actorID string) (*domain.Entry, error)
	List(ctx context.Context, input service.ListEntriesInput) (*service.ListEntriesOutput, error)
	ListVersions(ctx context.Context, entryID string) ([]*domain.EntryVersion, error)
	DocumentDownloadURL(ctx context.Context, entryID string) (string, error)
}

type EntryHandler struct {
	svc EntryService
}

func NewEntryHandler(svc EntryService) *EntryHandler {
	return &EntryHandler{svc: svc}
}

type CreateEntryRequest struct {
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	Type              string         `json:"type"`
	SourceURL         string         `json:"source_url"`
	Tags              []string       `json:"tags"`
	Models            []string       `json:"models"`
	CategoryID        string         `json:"category_id"`
	PersonalForUserID string         `json:"personal_for_user_id"`
	Metadata          map[string]any `json:"metadata"`
}

// UpdateEntryRequest carries partial updates: absent fields leave the
// current value unchanged.
type UpdateEntryRequest struct {
	Title      *string  `json:"title"`
	Content    *string  `json:"content"`
	Type       *string  `json:"type"`
	SourceURL  *string  `json:"source_url"`
	Tags       []string `json:"tags"`
	Models     []string `json:"models"`
	CategoryID *string  `json:"category_id"`
}

type EntryResponse struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	Type              string   `json:"type"`
	SourceURL         string   `json:"source_url,omitempty"`
	Tags              []string `json:"tags"`
	Models            []string `json:"models"`
	CategoryID        string   `json:"category_id,omitempty"`
	AddedBy           string   `json:"added_by"`
	PersonalForUserID string   `json:"personal_for_user_id,omitempty"`
	Status            string   `json:"status"`
	ApprovalStatus    string   `json:"approval_status"`
	ApprovedBy        string   `json:"approved_by,omitempty"`
	Eligibility       string   `json:"eligibility"`
	Version           int      `json:"version"`
	EmbeddingStatus   string   `json:"embedding_status"`
	EmbeddingError    string   `json:"embedding_error,omitempty"`
	DeletedAt         string   `json:"deleted_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

const timeLayout = "2006-01-02T15:04:05Z"

func entryToResponse(e *domain.Entry) *EntryResponse {
	resp := &EntryResponse{
		ID:                e.ID,
		Title:             e.Title,
		Content:           e.Content,
		Type:              string(e.Type),
		SourceURL:         e.SourceURL,
		Tags:              e.Tags,
		Models:            e.Models,
		CategoryID:        e.CategoryID,
		AddedBy:           e.AddedBy,
		PersonalForUserID: e.PersonalForUserID,
		Status:            string(e.Status),
		ApprovalStatus:    string(e.ApprovalStatus),
		ApprovedBy:        e.ApprovedBy,
		Eligibility:       string(e.Eligibility()),
		Version:           e.Version,
		EmbeddingStatus:   string(e.EmbeddingStatus),
		EmbeddingError:    e.EmbeddingError,
		CreatedAt:         e.CreatedAt.Format(timeLayout),
		UpdatedAt:         e.UpdatedAt.Format(timeLayout),
	}
	if e.DeletedAt != nil {
		resp.DeletedAt = e.DeletedAt.Format(timeLayout)
	}
	return resp
}

type VersionResponse struct {
	ID            string           `json:"id"`
	EntryID       string           `json:"entry_id"`
	Version       int              `json:"version"`
	Title         string           `json:"title"`
	ChangeSummary string           `json:"change_summary"`
	EditorID      string           `json:"editor_id"`
	Diff          domain.EntryDiff `json:"diff"`
	CreatedAt     string           `json:"created_at"`
}

func versionToResponse(v *domain.EntryVersion) *VersionResponse {
	return &VersionResponse{
		ID:            v.ID,
		EntryID:       v.EntryID,
		Version:       v.Version,
		Title:         v.Title,
		ChangeSummary: v.ChangeSummary,
		EditorID:      v.EditorID,
		Diff:          v.Diff,
		CreatedAt:     v.CreatedAt.Format(timeLayout),
	}
}

func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	input := service.CreateEntryInput{
		Title:             req.Title,
		Content:           req.Content,
		Type:              domain.EntryType(req.Type),
		SourceURL:         req.SourceURL,
		Tags:              req.Tags,
		Models:            req.Models,
		CategoryID:        req.CategoryID,
		PersonalForUserID: req.PersonalForUserID,
		Metadata:          req.Metadata,
	}

	entry, err := h.svc.Create(r.Context(), input, actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, entryToResponse(entry))
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := service.UpdateEntryInput{
		EntryID:    id,
		Title:      req.Title,
		Content:    req.Content,
		SourceURL:  req.SourceURL,
		Tags:       req.Tags,
		Models:     req.Models,
		CategoryID: req.CategoryID,
	}
	if req.Type != nil {
		entryType := domain.EntryType(*req.Type)
		input.Type = &entryType
	}

	entry, err := h.svc.Update(r.Context(), input, actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

type BulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

func (h *EntryHandler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req BulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.IDs) == 0 {
		api.Error(w, http.StatusBadRequest, "ids is required")
		return
	}

	entries, err := h.svc.BulkSetStatus(r.Context(), req.IDs, domain.EntryStatus(req.Status), actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = entryToResponse(e)
	}
	api.Success(w, http.StatusOK, responses)
}

type ArchiveRequest struct {
	IDs []string `json:"ids"`
}

func (h *EntryHandler) Archive(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.IDs) == 0 {
		api.Error(w, http.StatusBadRequest, "ids is required")
		return
	}

	if err := h.svc.ArchiveEntries(r.Context(), req.IDs, actorID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"archived": len(req.IDs)})
}

func (h *EntryHandler) Restore(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.svc.Restore(r.Context(), id, actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

// DocumentURL returns a presigned download link for the source payload
// of a document entry.
func (h *EntryHandler) DocumentURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	url, err := h.svc.DocumentDownloadURL(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"url": url})
}

func (h *EntryHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*VersionResponse, len(versions))
	for i, v := range versions {
		responses[i] = versionToResponse(v)
	}
	api.Success(w, http.StatusOK, responses)
}

func (h *EntryHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	versionID := chi.URLParam(r, "versionID")
	if id == "" || versionID == "" {
		api.Error(w, http.StatusBadRequest, "id and versionID are required")
		return
	}

	entry, err := h.svc.RestoreVersion(r.Context(), id, versionID, actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

type ApprovalRequest struct {
	Status string `json:"status"`
}

func (h *EntryHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetActorID(r.Context())
	if actorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.svc.SetApproval(r.Context(), id, domain.ApprovalStatus(req.Status), actorID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, entryToResponse(entry))
}

type EntryListResponse struct {
	Items   []*EntryResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if limitStr := q.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	filter := service.EntryFilter{
		Scope:          service.EntryScope(q.Get("scope")),
		UserID:         q.Get("user_id"),
		Status:         domain.EntryStatus(q.Get("status")),
		ApprovalStatus: domain.ApprovalStatus(q.Get("approval_status")),
		CategoryID:     q.Get("category_id"),
		Tag:            q.Get("tag"),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	if filter.Scope == service.ScopePersonal && filter.UserID == "" {
		filter.UserID = middleware.GetActorID(r.Context())
	}

	output, err := h.svc.List(r.Context(), service.ListEntriesInput{
		Filter: filter,
		Cursor: q.Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*EntryResponse, len(output.Items))
	for i, e := range output.Items {
		responses[i] = entryToResponse(e)
	}

	api.Success(w, http.StatusOK, EntryListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
