package middleware

import "strings"

// MaskToken masks a session or visitor token for logs.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
