// Package providers contains the upstream threat-intelligence adapters.
// Each adapter translates ip/url/file queries into provider-specific API
// calls and renormalizes the heterogeneous raw signals into the common
// signed reputation score (negative = risk, zero or positive = benign).
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haoyusec/threatlens/internal/entity"
)

// RawResponse is the opaque decoded payload from one provider call. The raw
// shape never leaks past the adapter: Normalize and LastUpdate extract the
// well-typed fields the storage layer needs.
type RawResponse struct {
	Provider string
	Type     entity.QueryType
	// OriginalURL is the literal user-supplied query string for url
	// lookups. Providers echo their own normalized form of the URL; the
	// stored identity must be the original, so it rides along here.
	OriginalURL string
	Payload     map[string]interface{}
}

// JSON serializes the raw payload for the details column
func (r *RawResponse) JSON() string {
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Provider is the capability surface every upstream source implements.
// The orchestrator holds a slice of this interface, never concrete clients.
type Provider interface {
	Name() string
	QueryIP(ctx context.Context, ip string) (*RawResponse, error)
	QueryURL(ctx context.Context, rawURL string) (*RawResponse, error)
	QueryFile(ctx context.Context, hash string) (*RawResponse, error)

	// Normalize maps the provider's raw signals to the signed reputation
	// score. Weights are per-provider constants, not caller-tunable.
	Normalize(raw *RawResponse) int

	// LastUpdate extracts the provider-reported data timestamp. Zero time
	// means the provider reported none; callers substitute ingestion time.
	LastUpdate(raw *RawResponse) time.Time
}

// Query dispatches a value to the method matching its query type
func Query(ctx context.Context, p Provider, queryType entity.QueryType, value string) (*RawResponse, error) {
	switch queryType {
	case entity.QueryTypeIP:
		return p.QueryIP(ctx, value)
	case entity.QueryTypeURL:
		return p.QueryURL(ctx, value)
	case entity.QueryTypeFile:
		return p.QueryFile(ctx, value)
	}
	return nil, fmt.Errorf("unsupported query type: %s", queryType)
}

// decodeJSON decodes an API response body into an opaque payload map
func decodeJSON(resp *http.Response) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}

// Untyped-payload accessors. Upstream JSON is decoded into
// map[string]interface{}; these walk it defensively so a missing or
// reshaped field reads as the zero value instead of panicking.

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]interface{})
	return v
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]interface{})
	return v
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func getInt(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func getInt64(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
