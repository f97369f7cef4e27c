package classify

import (
	"log/slog"
	"net/url"
	"strings"
)

// trackingParams are deleted from every URL before canonicalization.
var trackingParams = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"ref",
	"source",
}

// NormalizeURL produces the canonical form used as the dedup key: tracking
// parameters removed, leading "www." stripped, remaining query sorted, and
// YouTube watch URLs reduced to scheme://host/watch?v=<id>. Idempotent. A
// string that does not parse is returned unchanged with a warning.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		slog.Warn("failed to normalize url", "url", rawURL, "error", err)
		return rawURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}

	if host == "youtube.com" && u.Path == "/watch" && q.Get("v") != "" {
		return u.Scheme + "://" + host + "/watch?v=" + q.Get("v")
	}

	out := u.Scheme + "://" + host + u.Path
	if encoded := q.Encode(); encoded != "" {
		// url.Values.Encode sorts by key, which makes re-normalization stable.
		out += "?" + encoded
	}
	return out
}
