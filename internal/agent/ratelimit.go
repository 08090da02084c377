package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RateLimitInfo is what the dual-layer detector extracts from a failed or
// suspicious agent call.
type RateLimitInfo struct {
	RetryAfter time.Duration
	Source     string // "structured" or "text"
	RawMessage string
}

// structured429 matches an HTTP 429 or a rate_limit_error code anywhere in
// a JSON error payload emitted by a CLI backend.
var structured429 = regexp.MustCompile(`"(?:status|code)"\s*:\s*"?429"?|"type"\s*:\s*"rate_limit_error"`)

var retryAfterPattern = regexp.MustCompile(`"retry_after"\s*:\s*(\d+)`)

// textualRateLimitPhrases are closed-set phrases that, when found in the
// final response text rather than a structured error, still indicate a
// rate limit was hit.
var textualRateLimitPhrases = regexp.MustCompile(`(?i)(rate limit exceeded|too many requests|hit your limit|\b429\b)`)

// identifierShapedFalsePositive excludes matches that are actually part of
// an identifier (a Go type or error name) rather than a prose message,
// e.g. "GitHubRateLimitedError" should never trigger detection.
var identifierShapedFalsePositive = regexp.MustCompile(`[A-Za-z]+RateLimit(ed)?Error\b`)

// DetectStructured scans raw CLI stderr/stdout for a structured rate-limit
// error shape (HTTP 429 status or an explicit rate_limit_error type).
// Returns nil if nothing matches.
func DetectStructured(raw string) *RateLimitInfo {
	if raw == "" || !structured429.MatchString(raw) {
		return nil
	}
	info := &RateLimitInfo{Source: "structured", RawMessage: raw}
	if m := retryAfterPattern.FindStringSubmatch(raw); len(m) > 1 {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if info.RetryAfter == 0 {
		if d, ok := tryExtractJSONRetryAfter(raw); ok {
			info.RetryAfter = d
		}
	}
	if info.RetryAfter == 0 {
		info.RetryAfter = 60 * time.Second
	}
	return info
}

// DetectTextual scans the agent's *final response text* (as opposed to
// raw process stderr) for closed-set rate-limit phrases, excluding
// identifier-shaped false positives like "GitHubRateLimitedError" that
// merely name an error type rather than reporting one.
func DetectTextual(finalText string) *RateLimitInfo {
	if finalText == "" {
		return nil
	}
	stripped := identifierShapedFalsePositive.ReplaceAllString(finalText, "")
	if !textualRateLimitPhrases.MatchString(stripped) {
		return nil
	}
	return &RateLimitInfo{
		Source:     "text",
		RawMessage: finalText,
		RetryAfter: 60 * time.Second,
	}
}

// Detect runs both detection layers in order: structured detection against
// raw process output first (it carries the most reliable retry-after
// hint), then textual detection against the parsed final response. Returns
// nil if neither layer finds anything.
func Detect(rawOutput, finalText string) *RateLimitInfo {
	if info := DetectStructured(rawOutput); info != nil {
		return info
	}
	return DetectTextual(finalText)
}

// CapRetryAfter clamps d to a sane maximum so a malformed or adversarial
// retry_after value can't stall the scheduler indefinitely.
func CapRetryAfter(d, max time.Duration) time.Duration {
	if d <= 0 {
		return max
	}
	if d > max {
		return max
	}
	return d
}

// tryExtractJSONRetryAfter is a best-effort fallback for payloads shaped as
// a bare JSON object rather than text containing a retry_after field.
func tryExtractJSONRetryAfter(raw string) (time.Duration, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return 0, false
	}
	v, ok := obj["retry_after"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return time.Duration(n) * time.Second, true
	case string:
		if secs, err := strconv.Atoi(n); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
