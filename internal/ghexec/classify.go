// Package ghexec makes single external command invocations (the gh CLI
// and the coding agent) resilient to transient failure without masking
// permanent failure. The underlying transport surfaces opaque error
// strings, so classification is purely text-pattern based.
package ghexec

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Classification types produced by Classify.
const (
	TypeRateLimit   = "rate_limit"
	TypeAuthError   = "auth_error"
	TypeNotFound    = "not_found"
	TypeValidation  = "validation"
	TypeServerError = "server_error"
	TypeNetwork     = "network"
	TypeTimeout     = "timeout"
	TypeUnknown     = "unknown"
)

// Classification is the retry decision for one failure.
type Classification struct {
	Recoverable bool
	Type        string
	// RetryAfter is a server-suggested wait, parsed from rate-limit
	// responses. Zero when the server gave no hint.
	RetryAfter time.Duration
}

// retryAfterPattern matches "retry after: 5", "retry-after: 5" and
// similar phrasings, capturing the seconds value.
var retryAfterPattern = regexp.MustCompile(`retry[- ]after:?\s*(\d+)`)

// Signature tables, checked in priority order. Rate limits come first
// because GitHub rate-limit messages often embed a 403, which would
// otherwise classify as a permanent auth error.
var (
	rateLimitSignatures = []string{
		"rate limit",
		"api rate limit exceeded",
		"secondary rate limit",
		"abuse detection",
	}

	permanentSignatures = []struct {
		classType string
		phrases   []string
	}{
		{TypeAuthError, []string{"401", "unauthorized", "403", "forbidden", "bad credentials", "authentication failed"}},
		{TypeNotFound, []string{"404", "not found", "could not resolve"}},
		{TypeValidation, []string{"422", "unprocessable", "validation failed", "invalid field"}},
	}

	recoverableSignatures = []struct {
		classType string
		phrases   []string
	}{
		{TypeServerError, []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"}},
		{TypeNetwork, []string{"connection refused", "connection reset", "no such host", "network is unreachable", "eof", "broken pipe", "tls handshake"}},
		{TypeTimeout, []string{"timed out", "timeout", "deadline exceeded"}},
	}
)

// Classify maps a raw error to a retry decision. Unrecognized errors are
// non-recoverable: retrying an unknown failure hides real breakage more
// often than it survives a blip.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Recoverable: false, Type: TypeUnknown}
	}

	text := strings.ToLower(err.Error())

	for _, sig := range rateLimitSignatures {
		if strings.Contains(text, sig) {
			return Classification{
				Recoverable: true,
				Type:        TypeRateLimit,
				RetryAfter:  parseRetryAfter(text),
			}
		}
	}

	for _, group := range permanentSignatures {
		for _, phrase := range group.phrases {
			if strings.Contains(text, phrase) {
				return Classification{Recoverable: false, Type: group.classType}
			}
		}
	}

	for _, group := range recoverableSignatures {
		for _, phrase := range group.phrases {
			if strings.Contains(text, phrase) {
				return Classification{Recoverable: true, Type: group.classType}
			}
		}
	}

	return Classification{Recoverable: false, Type: TypeUnknown}
}

// parseRetryAfter extracts a suggested wait from rate-limit error text.
func parseRetryAfter(text string) time.Duration {
	matches := retryAfterPattern.FindStringSubmatch(text)
	if len(matches) != 2 {
		return 0
	}
	secs, err := strconv.Atoi(matches[1])
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
