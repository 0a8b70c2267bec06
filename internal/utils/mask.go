package utils

// MaskSecret hides all but a short prefix of s. An empty secret stays empty so
// callers can tell "unset" from "set".
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:2] + "*****"
}
