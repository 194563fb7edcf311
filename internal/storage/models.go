package storage

import (
	"time"

	"github.com/google/uuid"
)

// SearchRecord represents a tool search for analytics.
type SearchRecord struct {
	// SearchID is a unique identifier for this search (UUID).
	SearchID string `json:"search_id"`

	// QueryHash is the SHA256 hash of the search query for privacy.
	QueryHash string `json:"query_hash"`

	// Timestamp is when the search was performed.
	Timestamp time.Time `json:"timestamp"`

	// ResultsCount is the number of results returned.
	ResultsCount int `json:"results_count"`
}

// NewSearchRecord creates a record for a query with a fresh ID.
func NewSearchRecord(query string, results int, at time.Time) SearchRecord {
	return SearchRecord{
		SearchID:     uuid.NewString(),
		QueryHash:    HashContext(query),
		Timestamp:    at,
		ResultsCount: results,
	}
}
