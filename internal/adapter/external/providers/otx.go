package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haoyusec/threatlens/internal/domain/querykey"
	"github.com/haoyusec/threatlens/internal/entity"
)

// threatTags are pulse tags that carry extra weight when scoring
var threatTags = map[string]bool{
	"malware":  true,
	"trojan":   true,
	"backdoor": true,
	"botnet":   true,
	"apt":      true,
	"exploit":  true,
}

// OTXClient handles communication with the AlienVault OTX v1 API
type OTXClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	weights    OTXWeights
}

// OTXConfig holds OTX client configuration
type OTXConfig struct {
	APIKey         string
	Timeout        time.Duration
	RateLimitDelay time.Duration
	Weights        *OTXWeights
}

// OTXWeights are the per-signal score contributions. Pulses, malware-family
// and adversary associations push the score negative; whitelist validation
// and false-positive flags pull it back up.
type OTXWeights struct {
	Pulse         int
	MalwareFamily int
	Adversary     int
	Whitelist     int
	Blacklist     int
	FalsePositive int
	ThreatTag     int
}

// DefaultOTXWeights returns the default scoring weights
func DefaultOTXWeights() OTXWeights {
	return OTXWeights{
		Pulse:         -10,
		MalwareFamily: -15,
		Adversary:     -12,
		Whitelist:     20,
		Blacklist:     -25,
		FalsePositive: 10,
		ThreatTag:     -8,
	}
}

// NewOTXClient creates a new AlienVault OTX client
func NewOTXClient(cfg OTXConfig) *OTXClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 200 * time.Millisecond
	}
	weights := DefaultOTXWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}

	return &OTXClient{
		apiKey:  cfg.APIKey,
		baseURL: "https://otx.alienvault.com/api/v1",
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
		weights: weights,
	}
}

// Name returns the provider name
func (c *OTXClient) Name() string {
	return "AlienVault OTX"
}

// IsConfigured returns true if the client has an API key
func (c *OTXClient) IsConfigured() bool {
	return c.apiKey != ""
}

// QueryIP looks up an IPv4 indicator
func (c *OTXClient) QueryIP(ctx context.Context, ip string) (*RawResponse, error) {
	payload, err := c.get(ctx, fmt.Sprintf("%s/indicators/IPv4/%s/general", c.baseURL, ip))
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: c.Name(), Type: entity.QueryTypeIP, Payload: payload}, nil
}

// QueryURL looks up a URL indicator. The value is path-escaped so slashes
// inside the URL do not break the API route; the literal input is retained
// on the response for storage.
func (c *OTXClient) QueryURL(ctx context.Context, rawURL string) (*RawResponse, error) {
	encoded := url.PathEscape(rawURL)
	payload, err := c.get(ctx, fmt.Sprintf("%s/indicators/url/%s/general", c.baseURL, encoded))
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

// QueryFile looks up a file hash indicator (md5, sha1 or sha256)
func (c *OTXClient) QueryFile(ctx context.Context, hash string) (*RawResponse, error) {
	if querykey.HashKind(hash) == "" {
		return nil, fmt.Errorf("invalid hash length %d: must be 32 (md5), 40 (sha1) or 64 (sha256)", len(hash))
	}

	payload, err := c.get(ctx, fmt.Sprintf("%s/indicators/file/%s/general", c.baseURL, hash))
	if err != nil {
		return nil, err
	}
	return &RawResponse{Provider: c.Name(), Type: entity.QueryTypeFile, Payload: payload}, nil
}

func (c *OTXClient) get(ctx context.Context, reqURL string) (map[string]interface{}, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OTX API key not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-OTX-API-KEY", c.apiKey)
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

// Normalize scores an OTX indicator. OTX reports no single verdict; the
// score is assembled from pulse membership, related malware families and
// adversaries, community validation flags and pulse tags.
func (c *OTXClient) Normalize(raw *RawResponse) int {
	attrs := raw.Payload
	score := 0

	pulseInfo := getMap(attrs, "pulse_info")
	score += getInt(pulseInfo, "count") * c.weights.Pulse

	related := getMap(pulseInfo, "related")
	alienvault := getMap(related, "alienvault")
	other := getMap(related, "other")

	families := len(getSlice(alienvault, "malware_families")) + len(getSlice(other, "malware_families"))
	score += families * c.weights.MalwareFamily

	adversaries := len(getSlice(alienvault, "adversary")) + len(getSlice(other, "adversary"))
	score += adversaries * c.weights.Adversary

	for _, v := range getSlice(attrs, "validation") {
		entry, _ := v.(map[string]interface{})
		switch getString(entry, "name") {
		case "whitelist":
			score += c.weights.Whitelist
		case "blacklist":
			score += c.weights.Blacklist
		}
	}

	score += len(getSlice(attrs, "false_positive")) * c.weights.FalsePositive

	for _, p := range getSlice(pulseInfo, "pulses") {
		pulse, _ := p.(map[string]interface{})
		for _, t := range getSlice(pulse, "tags") {
			tag, _ := t.(string)
			if threatTags[strings.ToLower(tag)] {
				score += c.weights.ThreatTag
			}
		}
	}

	return score
}

// LastUpdate extracts the indicator modification time. OTX reports it as
// either an epoch or an ISO 8601 string depending on the indicator type.
func (c *OTXClient) LastUpdate(raw *RawResponse) time.Time {
	attrs := raw.Payload

	if ts := getInt64(attrs, "modified"); ts != 0 {
		return time.Unix(ts, 0).UTC()
	}
	if s := getString(attrs, "modified"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
