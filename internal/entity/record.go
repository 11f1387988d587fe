package entity

import (
	"time"
)

// QueryType identifies the kind of target being looked up
type QueryType string

const (
	QueryTypeIP   QueryType = "ip"
	QueryTypeURL  QueryType = "url"
	QueryTypeFile QueryType = "file"
)

// Valid reports whether the query type is one of ip/url/file
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeIP, QueryTypeURL, QueryTypeFile:
		return true
	}
	return false
}

// Threat level constants
//
// Binary in the current scoring model; the storage schema does not
// constrain the set, so finer buckets can be added without migration.
const (
	ThreatLevelLow  = "low"
	ThreatLevelHigh = "high"
)

// ThreatLevelFromScore derives the threat level from a reputation score.
// Sign convention: negative = risk, zero or positive = benign/unknown.
func ThreatLevelFromScore(score int) string {
	if score < 0 {
		return ThreatLevelHigh
	}
	return ThreatLevelLow
}

// ThreatRecord is one cached provider verdict for a target.
// Identity is the composite (ID, Source): the same target queried from two
// providers yields two rows, merged only at response-assembly time.
//
// For url records both ID and TargetURL hold the exact original user-supplied
// query string, never a normalized or provider-echoed form, so a repeat of
// the same literal query always hits the cache.
type ThreatRecord struct {
	ID              string     `json:"id" ch:"id"`
	Type            QueryType  `json:"type" ch:"type"`
	Source          string     `json:"source" ch:"source"`
	TargetURL       string     `json:"target_url,omitempty" ch:"target_url"`
	ReputationScore int32      `json:"reputation_score" ch:"reputation_score"`
	ThreatLevel     string     `json:"threat_level" ch:"threat_level"`
	LastUpdate      *time.Time `json:"last_update" ch:"last_update"`
	Details         string     `json:"details" ch:"details"`
	CreatedAt       time.Time  `json:"created_at" ch:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" ch:"updated_at"`
}

// ProviderResult is one provider's slot in a query response: either a record
// view or an error descriptor, never both.
type ProviderResult struct {
	Record    *ThreatRecord `json:"record,omitempty"`
	FromCache bool          `json:"from_cache"`
	Error     string        `json:"error,omitempty"`
}

// QueryResponse is the assembled per-request result map. Every configured
// provider has an entry regardless of individual failures.
type QueryResponse struct {
	Type    QueryType                 `json:"type"`
	Value   string                    `json:"value"`
	Results map[string]ProviderResult `json:"results"`
	Status  string                    `json:"status"`
}
