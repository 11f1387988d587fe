package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haoyusec/threatlens/internal/entity"
)

func vtPayload(malicious, suspicious, harmless float64, yaraHits int) map[string]interface{} {
	yara := make([]interface{}, yaraHits)
	for i := range yara {
		yara[i] = map[string]interface{}{"rule_name": "test_rule"}
	}
	return map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"last_analysis_stats": map[string]interface{}{
					"malicious":  malicious,
					"suspicious": suspicious,
					"harmless":   harmless,
				},
				"crowdsourced_yara_results": yara,
			},
		},
	}
}

func TestVirusTotalNormalize(t *testing.T) {
	client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key"})

	tests := []struct {
		name     string
		raw      *RawResponse
		expected int
	}{
		{
			name:     "clean file scores positive",
			raw:      &RawResponse{Type: entity.QueryTypeFile, Payload: vtPayload(0, 0, 60, 0)},
			expected: 60,
		},
		{
			name:     "detected file scores negative",
			raw:      &RawResponse{Type: entity.QueryTypeFile, Payload: vtPayload(10, 2, 5, 0)},
			expected: -3*10 - 1*2 + 1*5,
		},
		{
			name:     "yara hits drag the file score down",
			raw:      &RawResponse{Type: entity.QueryTypeFile, Payload: vtPayload(0, 0, 10, 2)},
			expected: 10 - 10*2,
		},
		{
			name:     "malicious ip",
			raw:      &RawResponse{Type: entity.QueryTypeIP, Payload: vtPayload(4, 1, 3, 0)},
			expected: -5*4 - 2*1 + 1*3,
		},
		{
			name:     "malicious url",
			raw:      &RawResponse{Type: entity.QueryTypeURL, Payload: vtPayload(5, 0, 2, 0)},
			expected: -4*5 + 1*2,
		},
		{
			name:     "yara results do not affect urls",
			raw:      &RawResponse{Type: entity.QueryTypeURL, Payload: vtPayload(0, 0, 1, 3)},
			expected: 1,
		},
		{
			name:     "missing stats score zero",
			raw:      &RawResponse{Type: entity.QueryTypeIP, Payload: map[string]interface{}{}},
			expected: 0,
		},
		{
			name:     "nil payload scores zero",
			raw:      &RawResponse{Type: entity.QueryTypeFile, Payload: nil},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, client.Normalize(tt.raw))
		})
	}
}

func TestVirusTotalNormalizeCustomWeights(t *testing.T) {
	weights := DefaultVirusTotalWeights()
	weights.IPMalicious = -100
	client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key", Weights: &weights})

	raw := &RawResponse{Type: entity.QueryTypeIP, Payload: vtPayload(2, 0, 0, 0)}
	assert.Equal(t, -200, client.Normalize(raw))
}

func TestVirusTotalLastUpdate(t *testing.T) {
	client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key"})

	t.Run("last_analysis_date wins", func(t *testing.T) {
		raw := &RawResponse{Payload: map[string]interface{}{
			"data": map[string]interface{}{
				"attributes": map[string]interface{}{
					"last_analysis_date":     float64(1700000000),
					"last_modification_date": float64(1600000000),
				},
			},
		}}
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), client.LastUpdate(raw))
	})

	t.Run("falls back to last_modification_date", func(t *testing.T) {
		raw := &RawResponse{Payload: map[string]interface{}{
			"data": map[string]interface{}{
				"attributes": map[string]interface{}{
					"last_modification_date": float64(1600000000),
				},
			},
		}}
		assert.Equal(t, time.Unix(1600000000, 0).UTC(), client.LastUpdate(raw))
	})

	t.Run("no timestamp yields zero time", func(t *testing.T) {
		raw := &RawResponse{Payload: map[string]interface{}{}}
		assert.True(t, client.LastUpdate(raw).IsZero())
	})
}

func TestVirusTotalQueryURL(t *testing.T) {
	rawURL := "https://example.com/path"
	encoded := base64.RawURLEncoding.EncodeToString([]byte(rawURL))

	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-apikey")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":1}}}}`))
	}))
	defer srv.Close()

	client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key", RateLimitDelay: time.Millisecond})
	client.baseURL = srv.URL

	raw, err := client.QueryURL(context.Background(), rawURL)
	require.NoError(t, err)

	assert.Equal(t, "/urls/"+encoded, gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "VirusTotal", raw.Provider)
	assert.Equal(t, entity.QueryTypeURL, raw.Type)
	assert.Equal(t, rawURL, raw.OriginalURL, "response must retain the literal input, not the encoded form")
}

func TestVirusTotalQueryErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		client := NewVirusTotalClient(VirusTotalConfig{})
		_, err := client.QueryIP(context.Background(), "1.2.3.4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key", RateLimitDelay: time.Millisecond})
		client.baseURL = srv.URL

		_, err := client.QueryIP(context.Background(), "1.2.3.4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit exceeded")
	})

	t.Run("upstream error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewVirusTotalClient(VirusTotalConfig{APIKey: "test-key", RateLimitDelay: time.Millisecond})
		client.baseURL = srv.URL

		_, err := client.QueryFile(context.Background(), "d41d8cd98f00b204e9800998ecf8427e")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}
