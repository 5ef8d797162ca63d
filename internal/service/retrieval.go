package service

import (
	"context"
	"strings"
	"time"

	"github.com/noesis-ai/noesis/internal/domain"
	"github.com/noesis-ai/noesis/internal/index"
	"github.com/noesis-ai/noesis/internal/telemetry"
)

// Retrieval tuning. The relaxed-retry ratio and floor are product
// tuning knobs, not correctness requirements.
const (
	DefaultMatchThreshold  float32 = 0.45
	DefaultMatchCount              = 4
	ShortQueryMaxChars             = 40
	ShortQueryMinThreshold float32 = 0.2
	ShortQueryMaxThreshold float32 = 0.4
	RelaxedThresholdRatio  float32 = 0.75
	RelaxedThresholdFloor  float32 = 0.15
	KeywordMatchScore      float32 = 0.01

	MaxEntrySectionChars    = 8000
	ContextBudgetChars      = 4000
	minKeywordTokenChars    = 3
	DefaultRetrievalTimeout = 5 * time.Second
)

// SafetyPreamble heads every supplement so the downstream model cannot
// pass off the references as its own sources.
const SafetyPreamble = "Use the reference material below when it is relevant. " +
	"Never fabricate citations or attribute information to references that do not contain it. " +
	"If the references are insufficient, say explicitly that you do not know."

// NoMatchSupplement is returned when every retrieval stage comes up
// empty. It is a valid outcome, not an error.
const NoMatchSupplement = "No reference material matched this question. " +
	"Do not invent sources or citations. If you cannot answer reliably without references, " +
	"say explicitly that you do not know."

// RetrievalLogSink accepts analytics records without blocking. Logging
// is best-effort: a dropped record never affects retrieval.
type RetrievalLogSink interface {
	Log(rec *domain.RetrievalLogRecord)
}

// RetrievalConfig tunes the retrieval cascade.
type RetrievalConfig struct {
	Threshold    float32
	MatchCount   int
	RelaxedRatio float32
	RelaxedFloor float32
	EntryCap     int
	Budget       int
	CallTimeout  time.Duration
}

// DefaultRetrievalConfig returns the standard retrieval tuning.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Threshold:    DefaultMatchThreshold,
		MatchCount:   DefaultMatchCount,
		RelaxedRatio: RelaxedThresholdRatio,
		RelaxedFloor: RelaxedThresholdFloor,
		EntryCap:     MaxEntrySectionChars,
		Budget:       ContextBudgetChars,
		CallTimeout:  DefaultRetrievalTimeout,
	}
}

// RetrieveInput is one chat-time retrieval request. QueryLanguage is
// the caller-detected language of Query; the chat pipeline already
// knows it and the analytics records carry it through.
type RetrieveInput struct {
	ChatID             string
	UserID             string
	Model              domain.ModelRef
	Query              string
	QueryLanguage      string
	UseCustomKnowledge bool
	Threshold          *float32
}

// UsageEntry records one reference surfaced to the caller.
type UsageEntry struct {
	EntryID   string   `json:"entry_id"`
	Title     string   `json:"title"`
	Score     float32  `json:"score"`
	Tags      []string `json:"tags,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	ChunkID   string   `json:"chunk_id,omitempty"`
}

// UsageEvent is the structured record of which entries grounded a
// response, for UI display and analytics.
type UsageEvent struct {
	Query   string       `json:"query"`
	Entries []UsageEntry `json:"entries"`
}

// RetrievalResult is the supplement injected into the model context
// plus its usage event. A nil result means "no augmentation".
type RetrievalResult struct {
	Supplement string     `json:"supplement"`
	Usage      UsageEvent `json:"usage"`
}

// RetrievalService answers chat-time queries with a bounded,
// safety-prefixed prompt supplement. The cascade is vector search,
// relaxed vector search, keyword search, then a fixed no-match
// sentinel; external calls are individually time-limited and any
// failure degrades to the next stage instead of surfacing.
type RetrievalService struct {
	embedder EmbeddingProvider
	backend  index.Index
	entries  EntryRepositoryInterface
	logs     RetrievalLogSink
	uuidGen  UUIDGenerator
	cfg      RetrievalConfig
}

// NewRetrievalService creates a RetrievalService with default tuning.
func NewRetrievalService(embedder EmbeddingProvider, backend index.Index, entries EntryRepositoryInterface, logs RetrievalLogSink) *RetrievalService {
	return NewRetrievalServiceWithConfig(embedder, backend, entries, logs, DefaultRetrievalConfig())
}

// NewRetrievalServiceWithConfig creates a RetrievalService with explicit tuning.
func NewRetrievalServiceWithConfig(embedder EmbeddingProvider, backend index.Index, entries EntryRepositoryInterface, logs RetrievalLogSink, cfg RetrievalConfig) *RetrievalService {
	def := DefaultRetrievalConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = def.MatchCount
	}
	if cfg.RelaxedRatio <= 0 || cfg.RelaxedRatio >= 1 {
		cfg.RelaxedRatio = def.RelaxedRatio
	}
	if cfg.RelaxedFloor <= 0 {
		cfg.RelaxedFloor = def.RelaxedFloor
	}
	if cfg.EntryCap <= 0 {
		cfg.EntryCap = def.EntryCap
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &RetrievalService{
		embedder: embedder,
		backend:  backend,
		entries:  entries,
		logs:     logs,
		uuidGen:  &DefaultUUIDGenerator{},
		cfg:      cfg,
	}
}

type scoredMatch struct {
	entry   *domain.Entry
	chunkID string
	content string
	score   float32
}

// Retrieve runs the retrieval cascade for one query. It returns nil
// when augmentation is disabled, no backend is configured, or the
// query is blank; otherwise it always returns a result and never an
// error: failures degrade to later stages or to the no-match sentinel.
func (s *RetrievalService) Retrieve(ctx context.Context, input RetrieveInput) (*RetrievalResult, error) {
	query := strings.TrimSpace(input.Query)
	if !input.UseCustomKnowledge || s.backend == nil || query == "" {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		UserID:    input.UserID,
		ModelID:   input.Model.ID,
		Operation: "retrieve",
	})
	defer span.End()

	threshold := s.effectiveThreshold(query, input.Threshold)
	matches := s.vectorSearch(ctx, query, input.Model, threshold)

	var survivors []scoredMatch
	if matches == nil {
		// Vector path failed outright; go straight to keyword search.
		survivors = s.keywordSearch(ctx, query, input.Model)
	} else if len(matches) == 0 {
		// Both vector passes ran and found nothing above threshold.
		return s.noMatch(query), nil
	} else {
		survivors = s.hydrate(ctx, matches, input.Model)
		if len(survivors) == 0 {
			survivors = s.keywordSearch(ctx, query, input.Model)
		}
	}
	if len(survivors) == 0 {
		return s.noMatch(query), nil
	}

	result := s.compose(query, survivors)
	s.logMatches(input, query, survivors)
	return result, nil
}

// effectiveThreshold clamps the requested threshold. Short queries
// embed weakly, so they get a lower band.
func (s *RetrievalService) effectiveThreshold(query string, requested *float32) float32 {
	t := s.cfg.Threshold
	if requested != nil {
		t = *requested
	}
	if len([]rune(query)) < ShortQueryMaxChars {
		return clamp(t, ShortQueryMinThreshold, ShortQueryMaxThreshold)
	}
	return clamp(t, 0, 1)
}

// vectorSearch runs the primary search and one relaxed retry. A nil
// return means the vector path itself failed (embedding or backend
// error); an empty slice means it ran and found nothing.
func (s *RetrievalService) vectorSearch(ctx context.Context, query string, model domain.ModelRef, threshold float32) []index.Match {
	q := index.Query{
		Text:        query,
		Limit:       s.cfg.MatchCount,
		Threshold:   threshold,
		ModelFilter: modelFilter(model),
		StatusTag:   string(domain.EntryStatusActive),
	}

	if s.backend.RequiresVectors() {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		emb, err := s.embedder.GenerateEmbedding(callCtx, query)
		cancel()
		if err != nil {
			telemetry.AddBreadcrumb(ctx, "retrieval", "query embedding failed, degrading to keyword search")
			return nil
		}
		q.Vector = emb.Vector
	}

	matches, err := s.searchOnce(ctx, q)
	if err != nil {
		return nil
	}
	if len(matches) > 0 {
		return matches
	}

	relaxed := threshold * s.cfg.RelaxedRatio
	if relaxed < s.cfg.RelaxedFloor {
		relaxed = s.cfg.RelaxedFloor
	}
	q.Threshold = relaxed
	matches, err = s.searchOnce(ctx, q)
	if err != nil {
		return nil
	}
	return matches
}

func (s *RetrievalService) searchOnce(ctx context.Context, q index.Query) ([]index.Match, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	matches, err := s.backend.Search(callCtx, q)
	if err != nil {
		telemetry.CaptureError(ctx, err)
		return nil, err
	}

	// Backends may not honor thresholds exactly. The result is always
	// non-nil on success so callers can tell "ran and found nothing"
	// apart from "search failed".
	kept := make([]index.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= q.Threshold {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// hydrate re-checks backend matches against live entry state, dropping
// anything stale: ineligible entries and entries whose allow-list
// excludes the requesting model.
func (s *RetrievalService) hydrate(ctx context.Context, matches []index.Match, model domain.ModelRef) []scoredMatch {
	ids := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.EntryID]; ok {
			continue
		}
		seen[m.EntryID] = struct{}{}
		ids = append(ids, m.EntryID)
	}

	entries, err := s.entries.GetByIDs(ctx, ids)
	if err != nil {
		telemetry.CaptureError(ctx, err)
		return nil
	}
	byID := make(map[string]*domain.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	out := make([]scoredMatch, 0, len(matches))
	for _, m := range matches {
		e, ok := byID[m.EntryID]
		if !ok || !e.IsEligible() || !e.MatchesModel(model) {
			continue
		}
		content := m.Content
		if content == "" {
			content = e.Content
		}
		out = append(out, scoredMatch{entry: e, chunkID: m.ChunkID, content: content, score: m.Score})
	}
	return out
}

// keywordSearch is the last live fallback: a case-insensitive token
// match over title and content of eligible entries, scored nominally
// so consumers can tell keyword hits from semantic ones.
func (s *RetrievalService) keywordSearch(ctx context.Context, query string, model domain.ModelRef) []scoredMatch {
	tokens := keywordTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	entries, err := s.entries.KeywordSearch(callCtx, tokens, s.cfg.MatchCount)
	if err != nil {
		telemetry.CaptureError(ctx, err)
		return nil
	}

	out := make([]scoredMatch, 0, len(entries))
	for _, e := range entries {
		if !e.IsEligible() || !e.MatchesModel(model) {
			continue
		}
		out = append(out, scoredMatch{entry: e, content: e.Content, score: KeywordMatchScore})
	}
	return out
}

// compose builds the safety-prefixed supplement, greedily adding whole
// reference sections until the context budget would be exceeded.
func (s *RetrievalService) compose(query string, survivors []scoredMatch) *RetrievalResult {
	var b strings.Builder
	b.WriteString(SafetyPreamble)

	used := 0
	usage := make([]UsageEntry, 0, len(survivors))
	for _, m := range survivors {
		section := referenceSection(m.entry, m.content, s.cfg.EntryCap)
		if used+len([]rune(section)) > s.cfg.Budget {
			break
		}
		b.WriteString("\n\n")
		b.WriteString(section)
		used += len([]rune(section))

		usage = append(usage, UsageEntry{
			EntryID:   m.entry.ID,
			Title:     m.entry.Title,
			Score:     m.score,
			Tags:      m.entry.Tags,
			SourceURL: m.entry.SourceURL,
			ChunkID:   m.chunkID,
		})
	}

	return &RetrievalResult{
		Supplement: b.String(),
		Usage:      UsageEvent{Query: query, Entries: usage},
	}
}

func (s *RetrievalService) noMatch(query string) *RetrievalResult {
	return &RetrievalResult{
		Supplement: NoMatchSupplement,
		Usage:      UsageEvent{Query: query, Entries: []UsageEntry{}},
	}
}

// logMatches hands one record per surfaced entry to the async sink.
func (s *RetrievalService) logMatches(input RetrieveInput, query string, survivors []scoredMatch) {
	if s.logs == nil {
		return
	}
	now := time.Now().UTC()
	for _, m := range survivors {
		s.logs.Log(&domain.RetrievalLogRecord{
			ID:            s.uuidGen.NewString(),
			EntryID:       m.entry.ID,
			ChatID:        input.ChatID,
			ModelID:       input.Model.ID,
			UserID:        input.UserID,
			Score:         m.score,
			QueryText:     query,
			QueryLanguage: input.QueryLanguage,
			CreatedAt:     now,
		})
	}
}

func referenceSection(e *domain.Entry, content string, maxChars int) string {
	header := "Reference: " + e.Title
	if e.SourceURL != "" {
		header += " (" + e.SourceURL + ")"
	}
	runes := []rune(content)
	if len(runes) > maxChars {
		content = string(runes[:maxChars])
	}
	return header + "\n" + content
}

// modelFilter derives the backend filter from the requesting model's
// identity. Both id and key are included because entries may allow-list
// by either.
func modelFilter(ref domain.ModelRef) []string {
	var out []string
	if ref.ID != "" {
		out = append(out, ref.ID)
	}
	if ref.Key != "" && ref.Key != ref.ID {
		out = append(out, ref.Key)
	}
	return out
}

func keywordTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len([]rune(f)) >= minKeywordTokenChars {
			out = append(out, f)
		}
	}
	return out
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
