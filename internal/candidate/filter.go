// Package candidate decides whether a URL seen on the wire looks like a
// playable media file.
//
// The checks are layered and the order matters: exclusion first, then the
// extension rule, then the contextual rule, then the per-provider rules. A
// false positive ends an extraction race early on a non-media resource, so
// every layer favours precision over recall.
package candidate

import (
	"net/url"
	"strings"

	"github.com/grafana/regexp"

	"github.com/nartya-app/nartya/internal/provider"
)

// Rule names the layer that accepted a URL.
type Rule int

const (
	RuleNone Rule = iota
	RuleExtension
	RuleContextual
	RuleProvider
)

func (r Rule) String() string {
	switch r {
	case RuleExtension:
		return "extension"
	case RuleContextual:
		return "contextual"
	case RuleProvider:
		return "provider"
	default:
		return "none"
	}
}

var excludedHosts = []string{
	"google-analytics", "googletagmanager", "doubleclick",
	"analytics", "trackers", "ads", "pixel", "beacon", "metrics",
}

var nonVideoExtensions = []string{
	".js", ".css", ".json", ".xml", ".html", ".htm",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
	".map", ".txt", ".pdf", ".zip", ".gz",
}

var playerFragments = []string{
	"jwplayer", "player.js", "video.js", "hls.js", "plyr.js",
	"/js/", "/javascript/", "/scripts/",
}

var (
	videoExtension = regexp.MustCompile(`(?i)\.(mp4|m3u8|ts|webm|mkv|avi|mov|flv|mpd)$`)
	videoArea      = regexp.MustCompile(`(?i)/(video|videos|media|stream|embed)/`)
	videoIndicator = regexp.MustCompile(`(?i)\b(mp4|m3u8|ts|webm|playlist|manifest|chunk|segment)\b`)
	mp4OrHLS       = regexp.MustCompile(`(?i)\.(mp4|m3u8)`)
	sibnetFile     = regexp.MustCompile(`(?i)video.*\.(mp4|m3u8)`)
	sibnetMediaID  = regexp.MustCompile(`(?i)/(video|vid)\d+`)
)

// ShouldExclude rejects analytics and ad hosts, non-video file types and
// player library bundles whose names contain "video".
func ShouldExclude(raw string) bool {
	lower := strings.ToLower(raw)
	host, path := split(lower)

	for _, token := range excludedHosts {
		if strings.Contains(host, token) {
			return true
		}
	}
	if strings.Contains(host, "facebook.com") && strings.HasPrefix(path, "/tr") {
		return true
	}

	bare := stripQuery(lower)
	for _, ext := range nonVideoExtensions {
		if strings.HasSuffix(bare, ext) {
			return true
		}
	}
	for _, frag := range playerFragments {
		if strings.Contains(bare, frag) {
			return true
		}
	}
	return false
}

// IsVideoCandidate reports whether raw is likely a direct media URL.
func IsVideoCandidate(raw string) bool {
	_, ok := Match(raw)
	return ok
}

// Match is IsVideoCandidate that also reports which rule accepted the URL.
func Match(raw string) (Rule, bool) {
	if raw == "" || ShouldExclude(raw) {
		return RuleNone, false
	}

	lower := strings.ToLower(raw)
	bare := stripQuery(lower)
	if bare == "" {
		return RuleNone, false
	}

	if videoExtension.MatchString(bare) {
		return RuleExtension, true
	}

	if videoArea.MatchString(lower) && videoIndicator.MatchString(lower) {
		return RuleContextual, true
	}

	switch provider.Detect(lower) {
	case provider.Vidmoly, provider.SendVid:
		if mp4OrHLS.MatchString(lower) {
			return RuleProvider, true
		}
	case provider.Sibnet:
		if sibnetFile.MatchString(lower) || sibnetMediaID.MatchString(lower) {
			return RuleProvider, true
		}
	}

	return RuleNone, false
}

// stripQuery drops the query string and fragment.
func stripQuery(s string) string {
	s, _, _ = strings.Cut(s, "?")
	s, _, _ = strings.Cut(s, "#")
	return s
}

// split returns the hostname and path of s. Partial URLs without a scheme
// are handled by treating everything before the first slash as the host.
func split(s string) (host, path string) {
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return u.Hostname(), u.Path
	}
	bare := stripQuery(s)
	if i := strings.Index(bare, "://"); i >= 0 {
		bare = bare[i+3:]
	}
	host, rest, found := strings.Cut(bare, "/")
	if found {
		path = "/" + rest
	}
	return host, path
}
