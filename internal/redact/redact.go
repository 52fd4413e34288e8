// Package redact strips credentials from values before they reach logs.
package redact

import "net/url"

// URL masks userinfo in a URL, keeping scheme and host so operators can still
// tell which endpoint is in play. Unparseable input is fully masked.
func URL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "<redacted>"
	}
	if parsed.User != nil {
		parsed.User = url.User("****")
	}
	parsed.RawQuery = ""
	return parsed.String()
}
