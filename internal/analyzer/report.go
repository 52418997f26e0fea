package analyzer

import (
	"strings"

	"github.com/nartya-app/nartya/internal/provider"
)

// SourceSummary is one mirror line of a Report.
type SourceSummary struct {
	Name          string                    `json:"name"`
	MainProvider  provider.Provider         `json:"mainProvider"`
	TotalEpisodes int                       `json:"totalEpisodes"`
	IsMixed       bool                      `json:"isMixed"`
	IsSlow        bool                      `json:"isSlow"`
	Distribution  map[provider.Provider]int `json:"distribution"`
}

// SourceReport is the readable summary of every mirror of a language.
type SourceReport struct {
	TotalSources int             `json:"totalSources"`
	Sources      []SourceSummary `json:"sources"`
	Recommended  string          `json:"recommended,omitempty"`
}

// Report builds the summary of a, including the recommended mirror.
func Report(a Analyses) SourceReport {
	r := SourceReport{TotalSources: len(a), Sources: make([]SourceSummary, 0, len(a))}
	for _, m := range a {
		r.Sources = append(r.Sources, SourceSummary{
			Name:          m.Mirror,
			MainProvider:  m.MainProvider,
			TotalEpisodes: m.TotalEpisodes,
			IsMixed:       m.IsMixed,
			IsSlow:        m.IsSlow,
			Distribution:  m.Distribution,
		})
	}
	r.Recommended, _ = RecommendBestSource(a)
	return r
}

var extractionErrorPatterns = []string{
	"timeout",
	"network error",
	"failed to fetch",
	"net::err",
	"no video url",
	"could not extract",
	"source_unavailable",
	"page_not_found",
	"no_video_found",
	"network_error",
	"404",
	"403",
	"410",
	"500",
	"not found",
	"forbidden",
	"unavailable",
}

// IsExtractionError reports whether err looks like a failure another
// mirror could fix (unreachable host, missing page, no video, timeout).
func IsExtractionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range extractionErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var invalidHTMLPatterns = []string{
	"404 not found",
	"403 forbidden",
	"page not found",
	"video not found",
	"file not found",
	"maintenance",
	"temporarily unavailable",
	"error occurred",
}

// IsInvalidHTML reports whether an embed page is an error or maintenance
// page rather than a player. Empty input counts as invalid.
func IsInvalidHTML(html string) bool {
	if strings.TrimSpace(html) == "" {
		return true
	}
	lower := strings.ToLower(html)
	for _, p := range invalidHTMLPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
