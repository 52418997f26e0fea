// Package provider identifies third-party video hosts and the request
// headers they expect.
package provider

import (
	"github.com/grafana/regexp"
)

// Provider identifies a video host. It is always computed from a URL and
// never stored on its own.
type Provider string

const (
	Sibnet      Provider = "sibnet"
	Vidmoly     Provider = "vidmoly"
	SendVid     Provider = "sendvid"
	Vudeo       Provider = "vudeo"
	GoUnlimited Provider = "gounlimited"
	Unknown     Provider = "unknown"
)

type hostPattern struct {
	provider Provider
	re       *regexp.Regexp
}

// patterns is evaluated in order; the first match wins.
var patterns = []hostPattern{
	{Sibnet, regexp.MustCompile(`(?i)sibnet\.ru`)},
	{Vidmoly, regexp.MustCompile(`(?i)vidmoly\.(to|net)`)},
	{SendVid, regexp.MustCompile(`(?i)sendvid\.com`)},
	{Vudeo, regexp.MustCompile(`(?i)vudeo\.net`)},
	{GoUnlimited, regexp.MustCompile(`(?i)gounlimited\.to`)},
}

var (
	slowProviders = map[Provider]bool{Sibnet: true}
	fastProviders = map[Provider]bool{Vidmoly: true, SendVid: true, Vudeo: true}
)

// Detect classifies url by hostname pattern. It accepts any string,
// including empty or partial URLs, and returns Unknown when nothing matches.
func Detect(url string) Provider {
	if url == "" {
		return Unknown
	}
	for _, p := range patterns {
		if p.re.MatchString(url) {
			return p.provider
		}
	}
	return Unknown
}

// Known returns every provider the detector can produce, Unknown last.
func Known() []Provider {
	out := make([]Provider, 0, len(patterns)+1)
	for _, p := range patterns {
		out = append(out, p.provider)
	}
	return append(out, Unknown)
}

// IsSlow reports whether the host is known to rate-limit or serve low bitrate.
func (p Provider) IsSlow() bool { return slowProviders[p] }

// IsFast reports whether the host is preferred when choosing a mirror.
func (p Provider) IsFast() bool { return fastProviders[p] }

func (p Provider) String() string { return string(p) }
