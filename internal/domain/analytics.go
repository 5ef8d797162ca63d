package domain

// CreatorCount is the number of entries contributed by one creator.
type CreatorCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// RetrievalCount is the number of times one entry was served as
// reference material.
type RetrievalCount struct {
	EntryID string `json:"entry_id"`
	Count   int    `json:"count"`
}

// AnalyticsSummary rolls up entry, embedding, and retrieval counts for
// dashboards.
type AnalyticsSummary struct {
	TotalEntries      int                    `json:"total_entries"`
	ByStatus          map[EntryStatus]int    `json:"by_status"`
	ByApprovalStatus  map[ApprovalStatus]int `json:"by_approval_status"`
	PendingEmbeddings int                    `json:"pending_embeddings"`
	FailedEmbeddings  int                    `json:"failed_embeddings"`
	PerCreator        []CreatorCount         `json:"per_creator"`
	TopRetrieved      []RetrievalCount       `json:"top_retrieved"`
}
