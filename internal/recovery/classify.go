package recovery

import "strings"

// Substring tables for error classification. Matching is case-insensitive
// and intentionally crude: dependency errors arrive as free-form text from
// providers we do not control.
var (
	terminalPatterns = []string{
		"invalid_request",
		"authentication",
		"authorization",
		"constraint",
		"validation",
	}

	modelRetryablePatterns = []string{
		"rate_limit",
		"timeout",
	}

	storeRetryablePatterns = []string{
		"connection",
		"timeout",
	}

	storeTerminalPatterns = []string{
		"constraint",
		"unique",
	}
)

// DefaultRetryable reports whether an error is worth retrying: anything
// not matching a terminal pattern is treated as transient.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !containsAny(err.Error(), terminalPatterns)
}

// ModelRetryable classifies AI-provider errors: only rate limiting and
// timeouts are retried; everything else is resolved by strategy.
func ModelRetryable(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), modelRetryablePatterns)
}

// StoreRetryable classifies database errors: connection issues and
// timeouts are retried; constraint and unique violations never are.
func StoreRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if containsAny(s, storeTerminalPatterns) {
		return false
	}
	return containsAny(s, storeRetryablePatterns)
}

func containsAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
