package logging

import (
	"regexp"
	"strings"
)

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]*`), // JWT
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),                                 // Google API key
	regexp.MustCompile(`(?i)(token|key|password)=[^&\s"']{8,}`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces bearer tokens, JWTs and API keys embedded in s.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactToken keeps a short prefix of a credential so log lines can be
// correlated across a token rotation without exposing the token.
func RedactToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return RedactedValue
	}
	return token[:6] + "…" + RedactedValue
}
