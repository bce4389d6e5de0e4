package paths

import (
	"path/filepath"
	"strings"
)

// MatchGlob checks if a path matches a glob pattern
// Supports *, ?, [...] and ** patterns
func MatchGlob(pattern, path string) bool {
	// Handle ** patterns for recursive matching
	if strings.Contains(pattern, "**") {
		return matchParts(splitSegments(pattern), splitSegments(path))
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	return matched
}

// MatchAny reports whether name matches at least one of patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchGlob(p, name) {
			return true
		}
	}
	return false
}

// ValidatePattern rejects malformed glob patterns up front so a typo in a
// --pattern flag is not silently treated as "matches nothing".
func ValidatePattern(pattern string) error {
	for _, part := range splitSegments(pattern) {
		if part == "**" {
			continue
		}
		if _, err := filepath.Match(part, ""); err != nil {
			return &PatternError{Pattern: pattern, Err: err}
		}
	}
	return nil
}

// PatternError reports an invalid glob pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "invalid pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

func matchParts(patternParts, pathParts []string) bool {
	if len(patternParts) == 0 {
		return len(pathParts) == 0
	}

	if len(pathParts) == 0 {
		// Check if remaining pattern parts are all **
		for _, p := range patternParts {
			if p != "**" {
				return false
			}
		}
		return true
	}

	pattern := patternParts[0]
	path := pathParts[0]

	if pattern == "**" {
		// ** can match zero or more path segments
		return matchParts(patternParts[1:], pathParts) || // Skip **
			matchParts(patternParts, pathParts[1:]) // Consume path segment
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil || !matched {
		return false
	}

	return matchParts(patternParts[1:], pathParts[1:])
}

// IsGlobPattern checks if a string contains glob characters
func IsGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// splitSegments splits a slash path into its non-empty segments.
func splitSegments(path string) []string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(path), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
