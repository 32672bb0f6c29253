// File: internal/observability/redact.go
package observability

// Mask hides the middle of a sensitive value, keeping the first and last four
// characters. Short values are fully replaced.
func Mask(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return ""
		}
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// MaskID redacts a verification identifier for log output, keeping enough of
// the prefix to correlate runs.
func MaskID(id string) string {
	if len(id) <= 6 {
		return "******"
	}
	return id[:6] + "****"
}
