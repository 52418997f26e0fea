// Package analyzer ranks the mirrors of an episode listing by the video
// hosts they use. It runs offline on the listing alone: no page is
// fetched. Mirrors backed by a slow host are avoided when an alternative
// exists, both for a whole series and for a single episode.
package analyzer

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/nartya-app/nartya/internal/provider"
)

// Listing is the episode listing handed over by the catalogue scraper:
// language → mirror name → embed URLs in episode order. Position N in every
// mirror refers to the same episode.
type Listing map[string]map[string][]string

// Languages returns the listing languages in sorted order.
func (l Listing) Languages() []string {
	langs := lo.Keys(l)
	slices.Sort(langs)
	return langs
}

// Mirrors returns the mirror names of language in natural order, so that
// "eps2" sorts before "eps10".
func (l Listing) Mirrors(language string) []string {
	names := lo.Keys(l[language])
	slices.SortFunc(names, naturalCompare)
	return names
}

// Episodes returns the embed URLs of one mirror.
func (l Listing) Episodes(language, mirror string) []string {
	return l[language][mirror]
}

// EpisodeProvider is the host detected for one episode of a mirror.
type EpisodeProvider struct {
	Index    int               `json:"index"`
	URL      string            `json:"url"`
	Provider provider.Provider `json:"provider"`
}

// SourceAnalysis summarizes the hosts behind one mirror.
type SourceAnalysis struct {
	MainProvider  provider.Provider         `json:"mainProvider"`
	Distribution  map[provider.Provider]int `json:"distribution"`
	IsMixed       bool                      `json:"isMixed"`
	IsSlow        bool                      `json:"isSlow"`
	Episodes      []EpisodeProvider         `json:"episodes"`
	TotalEpisodes int                       `json:"totalEpisodes"`
}

// MirrorAnalysis is a SourceAnalysis tagged with its mirror name.
type MirrorAnalysis struct {
	Mirror string `json:"mirror"`
	SourceAnalysis
}

// Analyses holds one analysis per mirror in listing order. Every ranking
// function scans it in that order, which makes ties deterministic.
type Analyses []MirrorAnalysis

// Get returns the analysis of mirror.
func (a Analyses) Get(mirror string) (SourceAnalysis, bool) {
	for _, m := range a {
		if m.Mirror == mirror {
			return m.SourceAnalysis, true
		}
	}
	return SourceAnalysis{}, false
}

// Names returns the mirror names in order.
func (a Analyses) Names() []string {
	return lo.Map(a, func(m MirrorAnalysis, _ int) string { return m.Mirror })
}

// AnalyzeSource detects the host of every episode URL and derives the
// modal provider. When several providers share the top count, the first
// episode's provider wins, even if it is not one of them.
func AnalyzeSource(urls []string) SourceAnalysis {
	if len(urls) == 0 {
		return SourceAnalysis{
			MainProvider: provider.Unknown,
			Distribution: map[provider.Provider]int{},
			Episodes:     []EpisodeProvider{},
		}
	}

	episodes := lo.Map(urls, func(u string, i int) EpisodeProvider {
		return EpisodeProvider{Index: i, URL: u, Provider: provider.Detect(u)}
	})
	order := lo.Map(episodes, func(e EpisodeProvider, _ int) provider.Provider { return e.Provider })
	distribution := lo.CountValues(order)

	top := lo.Max(lo.Values(distribution))
	leaders := lo.Filter(lo.Uniq(order), func(p provider.Provider, _ int) bool { return distribution[p] == top })
	modal := leaders[0]
	if len(leaders) > 1 {
		modal = order[0]
	}

	return SourceAnalysis{
		MainProvider:  modal,
		Distribution:  distribution,
		IsMixed:       len(distribution) > 1,
		IsSlow:        modal.IsSlow(),
		Episodes:      episodes,
		TotalEpisodes: len(urls),
	}
}

// AnalyzeAll analyzes every mirror of language. An unknown language yields
// no analyses.
func AnalyzeAll(l Listing, language string) Analyses {
	mirrors := l.Mirrors(language)
	out := make(Analyses, 0, len(mirrors))
	for _, name := range mirrors {
		out = append(out, MirrorAnalysis{Mirror: name, SourceAnalysis: AnalyzeSource(l[language][name])})
	}
	return out
}

// RecommendBestSource picks the mirror to start a series with: a fast host
// that is not mixed, then a fast host even if mixed, then any mirror whose
// main host is not slow, and finally the first mirror.
func RecommendBestSource(a Analyses) (string, bool) {
	if len(a) == 0 {
		return "", false
	}

	rules := []func(MirrorAnalysis) bool{
		func(m MirrorAnalysis) bool { return m.MainProvider.IsFast() && !m.IsMixed },
		func(m MirrorAnalysis) bool { return m.MainProvider.IsFast() },
		func(m MirrorAnalysis) bool { return !m.MainProvider.IsSlow() },
	}
	for _, rule := range rules {
		if m, ok := lo.Find(a, rule); ok {
			return m.Mirror, true
		}
	}
	return a[0].Mirror, true
}

// Alternative is one mirror's entry for a given episode.
type Alternative struct {
	Mirror   string            `json:"mirror"`
	Provider provider.Provider `json:"provider"`
	URL      string            `json:"url"`
	IsFast   bool              `json:"isFast"`
	IsSlow   bool              `json:"isSlow"`
}

// alternativesAt lists the entries of every mirror that has episode index,
// in listing order, skipping exclude.
func alternativesAt(index int, a Analyses, exclude string) []Alternative {
	var out []Alternative
	for _, m := range a {
		if m.Mirror == exclude || index < 0 || index >= len(m.Episodes) {
			continue
		}
		ep := m.Episodes[index]
		out = append(out, Alternative{
			Mirror:   m.Mirror,
			Provider: ep.Provider,
			URL:      ep.URL,
			IsFast:   ep.Provider.IsFast(),
			IsSlow:   ep.Provider.IsSlow(),
		})
	}
	return out
}

// FindBestAlternativeForEpisode looks at episode index in every mirror but
// excludeMirror and returns the best one: a fast host first, then any host
// that is not slow, then whatever comes first.
func FindBestAlternativeForEpisode(index int, a Analyses, excludeMirror string) (Alternative, bool) {
	alts := alternativesAt(index, a, excludeMirror)
	if len(alts) == 0 {
		return Alternative{}, false
	}
	if alt, ok := lo.Find(alts, func(x Alternative) bool { return x.IsFast }); ok {
		return alt, true
	}
	if alt, ok := lo.Find(alts, func(x Alternative) bool { return !x.IsSlow }); ok {
		return alt, true
	}
	return alts[0], true
}

// EpisodeChoice is the URL to extract for one episode and where it comes
// from.
type EpisodeChoice struct {
	Alternative
	// IsAlternative is set when the choice leaves currentMirror or changes
	// host.
	IsAlternative    bool              `json:"isAlternative"`
	OriginalMirror   string            `json:"originalMirror,omitempty"`
	OriginalProvider provider.Provider `json:"originalProvider,omitempty"`
}

// priority ranks a host for per-episode selection. Lower is better.
func priority(p provider.Provider) int {
	switch {
	case p == provider.Vidmoly:
		return 1
	case p.IsFast():
		return 2
	case p.IsSlow():
		return 999
	default:
		return 3
	}
}

// BestForEpisode picks the URL to extract for episode index across every
// mirror, vidmoly first, then other fast hosts, then anything but the slow
// host. Ties keep listing order. ok is false when currentMirror has no
// such episode.
func BestForEpisode(index int, a Analyses, currentMirror string) (EpisodeChoice, bool) {
	current, ok := a.Get(currentMirror)
	if !ok || index < 0 || index >= len(current.Episodes) {
		return EpisodeChoice{}, false
	}
	original := current.Episodes[index]

	alts := alternativesAt(index, a, "")
	slices.SortStableFunc(alts, func(x, y Alternative) int {
		return priority(x.Provider) - priority(y.Provider)
	})
	best := alts[0]

	if best.Mirror == currentMirror && best.URL == original.URL {
		return EpisodeChoice{Alternative: best}, true
	}

	choice := EpisodeChoice{
		Alternative:   best,
		IsAlternative: best.Mirror != currentMirror || best.Provider != original.Provider,
	}
	if choice.IsAlternative {
		choice.OriginalMirror = currentMirror
		choice.OriginalProvider = original.Provider
	}
	return choice, true
}

// naturalCompare orders strings with embedded numbers by numeric value.
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return strings.Compare(a[:1], b[:1])
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func leadingNumber(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		n = int(^uint(0) >> 1)
	}
	return n, s[i:]
}
