package logging

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 160
	// RedactedText replaces sensitive data in free text
	RedactedText = "[REDACTED]"
	// MaskedValue replaces credential values in structured details
	MaskedValue = "***"
)

var (
	// password=xxx, pwd=xxx, pass=xxx, parola=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass|parola)=[^;&\s]+`)

	// user:pass@host DSNs, with or without scheme (firebirdsql uses the bare form)
	dsnCredentialsPattern = regexp.MustCompile(`(^|://|\s)([^:/@\s]+):([^@\s/][^@\s]*)@`)

	// Detail keys whose values are masked
	sensitiveKeyParts = []string{"pass", "pwd", "parola", "secret"}
)

// IsSensitiveKey reports whether a detail key names a credential.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// MaskDetail returns a copy of detail with credential-like values replaced by
// MaskedValue. Nested maps are masked too. A nil map stays nil.
func MaskDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		if IsSensitiveKey(k) {
			out[k] = MaskedValue
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = MaskDetail(nested)
		case error:
			out[k] = SanitizeError(nested)
		default:
			out[k] = v
		}
	}
	return out
}

// SanitizeDSN removes credentials from a connection string.
// Use this before logging any DSN.
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(dsn, "${1}="+RedactedText)
	return dsnCredentialsPattern.ReplaceAllString(sanitized, "${1}${2}:"+RedactedText+"@")
}

// SanitizeError sanitizes error messages that might contain credentials.
// Use this before logging any error from database operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeDSN(err.Error())
}

// SanitizeQuery truncates a SQL statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := strings.Join(strings.Fields(query), " ")
	sanitized = TruncateString(sanitized, MaxQueryLogLength)
	return passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// FormatArgs renders statement arguments for dry-run logs.
// Arguments are rendered with %v and truncated.
func FormatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			out[i] = "NULL"
			continue
		}
		out[i] = TruncateString(fmt.Sprintf("%v", a), 64)
	}
	return out
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
