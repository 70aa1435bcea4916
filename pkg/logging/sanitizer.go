package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength is the maximum length of a query or statement to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens and provider-style secret keys (sk-..., sk-ant-...)
	bearerPattern    = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)
	providerKeyPttrn = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)

	// api_key=..., x-api-key: ...
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey)([=:]\s*)[A-Za-z0-9._-]{8,}`)

	// user:pass@host format in URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a connection string or URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError renders err with credentials and API keys removed.
// Use this before logging errors from the record store or the oracle client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeSecrets(err.Error())
}

// SanitizeQuery truncates a natural-language query or SQL statement for
// logging and strips anything that looks like a secret.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	query = strings.Join(strings.Fields(query), " ")
	return sanitizeSecrets(TruncateString(query, MaxQueryLogLength))
}

// TruncateString truncates s to maxLen bytes without splitting a rune and
// adds an ellipsis if anything was cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func sanitizeSecrets(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = providerKeyPttrn.ReplaceAllString(s, RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}${2}"+RedactedText)
	return connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}
