package davsync

import (
	"encoding/base64"
	"net/url"
	"strings"
)

const (
	manifestName     = "manifest.json"
	remoteNamePrefix = "data_"
	remoteNameSuffix = ".bin"
)

// Every logical path is flattened into one opaque ASCII object name so the
// remote never needs nested collections or unicode-safe names.

// trimBaseURL drops surrounding whitespace and every trailing slash.
func trimBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// ManifestURL is `<base>/manifest.json`.
func ManifestURL(base string) string {
	return trimBaseURL(base) + "/" + manifestName
}

// RemoteName maps a logical path to `data_<base64url-nopad(path)>.bin`.
// Distinct paths never share a name.
func RemoteName(logicalPath string) string {
	return remoteNamePrefix + base64.RawURLEncoding.EncodeToString([]byte(logicalPath)) + remoteNameSuffix
}

// validLogicalPath reports whether a path can be published in a manifest and
// staged again on restore: relative, forward-slash separated, no backslash or
// NUL, and no empty, "." or ".." segments.
func validLogicalPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsAny(p, "\\\x00") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// DataURL is `<base>/<escaped RemoteName(path)>`.
func DataURL(base, logicalPath string) string {
	return trimBaseURL(base) + "/" + escapeSegment(RemoteName(logicalPath))
}

func escapeSegment(seg string) string {
	return strings.ReplaceAll(url.QueryEscape(seg), "+", "%20")
}
