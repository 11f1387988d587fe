// Package querykey derives cache lookup identities from raw query values:
// query-type auto-detection and type-specific key variant generation.
package querykey

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haoyusec/threatlens/internal/entity"
)

var (
	ipv4Pattern = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)
	hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$|^[a-fA-F0-9]{40}$|^[a-fA-F0-9]{64}$`)
	// RFC 1035-ish label chain; intentionally loose so bare hosts like
	// "example.com" or "intranet" classify as url rather than failing.
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)
)

// Detect classifies a raw query value. Tests run in priority order: URL
// scheme prefix, exact IPv4 dotted quad, hex hash length, domain-name
// fallback. First match wins.
func Detect(value string) (entity.QueryType, error) {
	if value == "" {
		return "", fmt.Errorf("empty query value")
	}

	if HasScheme(value) {
		return entity.QueryTypeURL, nil
	}
	if ipv4Pattern.MatchString(value) {
		return entity.QueryTypeIP, nil
	}
	if hashPattern.MatchString(value) {
		return entity.QueryTypeFile, nil
	}
	if domainPattern.MatchString(value) {
		return entity.QueryTypeURL, nil
	}

	return "", fmt.Errorf("unable to detect query type for %q", value)
}

// HasScheme reports whether the value carries an explicit http(s) scheme
func HasScheme(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}

// Variants returns the cache key candidates for a query value in lookup
// priority order. For ip and file the value is the single key, unmodified.
// For url the list is: the original string, the original with the trailing
// slash toggled, and, when the original is schemeless, the http:// and
// https:// prefixed forms. Providers store URLs with inconsistent slash and
// scheme conventions; the variants let a lookup for "example.com" find a row
// stored under "http://example.com/" while the stored identity stays the
// literal input used at write time.
func Variants(queryType entity.QueryType, value string) []string {
	if queryType != entity.QueryTypeURL {
		return []string{value}
	}

	variants := []string{value}
	if strings.HasSuffix(value, "/") {
		variants = append(variants, strings.TrimRight(value, "/"))
	} else {
		variants = append(variants, value+"/")
	}
	if !HasScheme(value) {
		variants = append(variants, "http://"+value, "https://"+value)
	}
	return variants
}

// HashKind names the hash algorithm implied by a hex digest's length.
// Returns md5, sha1 or sha256; empty string when the length matches none.
func HashKind(hash string) string {
	switch len(hash) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	}
	return ""
}
