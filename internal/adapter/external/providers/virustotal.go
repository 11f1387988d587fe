package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/haoyusec/threatlens/internal/entity"
)

// VirusTotalClient handles communication with the VirusTotal v3 API
type VirusTotalClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	weights    VirusTotalWeights
}

// VirusTotalConfig holds VirusTotal client configuration
type VirusTotalConfig struct {
	APIKey         string
	Timeout        time.Duration
	RateLimitDelay time.Duration
	Weights        *VirusTotalWeights
}

// VirusTotalWeights are the per-signal contributions to the reputation
// score, keyed by query type. The magnitudes are empirical; the sign
// convention (detections negative, harmless positive) is the contract.
type VirusTotalWeights struct {
	FileMalicious  int
	FileSuspicious int
	FileHarmless   int
	FileYaraHit    int

	IPMalicious  int
	IPSuspicious int
	IPHarmless   int

	URLMalicious  int
	URLSuspicious int
	URLHarmless   int
}

// DefaultVirusTotalWeights returns the default scoring weights
func DefaultVirusTotalWeights() VirusTotalWeights {
	return VirusTotalWeights{
		FileMalicious:  -3,
		FileSuspicious: -1,
		FileHarmless:   1,
		FileYaraHit:    -10,

		IPMalicious:  -5,
		IPSuspicious: -2,
		IPHarmless:   1,

		URLMalicious:  -4,
		URLSuspicious: -2,
		URLHarmless:   1,
	}
}

// NewVirusTotalClient creates a new VirusTotal client
func NewVirusTotalClient(cfg VirusTotalConfig) *VirusTotalClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 200 * time.Millisecond
	}
	weights := DefaultVirusTotalWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}

	return &VirusTotalClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://www.virustotal.com/api/v3",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
		weights: weights,
	}
}

// Name returns the provider name
func (c *VirusTotalClient) Name() string {
	return "VirusTotal"
}

// IsConfigured returns true if the client has an API key
func (c *VirusTotalClient) IsConfigured() bool {
	return c.apiKey != ""
}

// QueryIP looks up an IP address
func (c *VirusTotalClient) QueryIP(ctx context.Context, ip string) (*RawResponse, error) {
	payload, err := c.get(ctx, fmt.Sprintf("%s/ip_addresses/%s", c.baseURL, ip))
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: c.Name(), Type: entity.QueryTypeIP, Payload: payload}, nil
}

// QueryURL looks up a URL. VirusTotal addresses URLs by their unpadded
// urlsafe base64 form; the literal input is retained on the response so
// storage keeps the user's identity, not VirusTotal's.
func (c *VirusTotalClient) QueryURL(ctx context.Context, rawURL string) (*RawResponse, error) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(rawURL))
	payload, err := c.get(ctx, fmt.Sprintf("%s/urls/%s", c.baseURL, encoded))
	if err != nil {
		return nil, err
	}
	return &RawResponse{
		Provider:    c.Name(),
		Type:        entity.QueryTypeURL,
		OriginalURL: rawURL,
		Payload:     payload,
	}, nil
}

// QueryFile looks up a file hash (md5, sha1 or sha256)
func (c *VirusTotalClient) QueryFile(ctx context.Context, hash string) (*RawResponse, error) {
	payload, err := c.get(ctx, fmt.Sprintf("%s/files/%s", c.baseURL, hash))
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: c.Name(), Type: entity.QueryTypeFile, Payload: payload}, nil
}

func (c *VirusTotalClient) get(ctx context.Context, reqURL string) (map[string]interface{}, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("VirusTotal API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	return decodeJSON(resp)
}

// Normalize recomputes the reputation score from the analysis stats.
// VirusTotal's own reputation field mixes community votes in; scoring from
// the engine tallies keeps the result comparable across providers.
func (c *VirusTotalClient) Normalize(raw *RawResponse) int {
	attrs := getMap(getMap(raw.Payload, "data"), "attributes")
	stats := getMap(attrs, "last_analysis_stats")

	malicious := getInt(stats, "malicious")
	suspicious := getInt(stats, "suspicious")
	harmless := getInt(stats, "harmless")

	score := 0
	switch raw.Type {
	case entity.QueryTypeFile:
		score += malicious * c.weights.FileMalicious
		score += suspicious * c.weights.FileSuspicious
		score += harmless * c.weights.FileHarmless
		score += len(getSlice(attrs, "crowdsourced_yara_results")) * c.weights.FileYaraHit
	case entity.QueryTypeIP:
		score += malicious * c.weights.IPMalicious
		score += suspicious * c.weights.IPSuspicious
		score += harmless * c.weights.IPHarmless
	case entity.QueryTypeURL:
		score += malicious * c.weights.URLMalicious
		score += suspicious * c.weights.URLSuspicious
		score += harmless * c.weights.URLHarmless
	}

	return score
}

// LastUpdate extracts the analysis timestamp from the payload
func (c *VirusTotalClient) LastUpdate(raw *RawResponse) time.Time {
	attrs := getMap(getMap(raw.Payload, "data"), "attributes")

	ts := getInt64(attrs, "last_analysis_date")
	if ts == 0 {
		ts = getInt64(attrs, "last_modification_date")
	}
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
