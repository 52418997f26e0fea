package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/probe"
	"github.com/nartya-app/nartya/internal/provider"
	"github.com/nartya-app/nartya/internal/util"
)

func renderResult(w io.Writer, embedURL string, r extractor.Result) {
	switch v := r.(type) {
	case extractor.Success:
		fmt.Fprintln(w, util.SuccessStyle.Render("✔ Video URL found"))
		fmt.Fprintf(w, "%s %s\n", util.LabelStyle.Render("URL:"), v.VideoURL)
		if v.Note != "" {
			fmt.Fprintln(w, util.MutedStyle.Render(v.Note))
		}
		renderHeaders(w, provider.PlaybackHeaders(v.VideoURL, nil))
	case extractor.Failure:
		fmt.Fprintf(w, "%s %s\n", util.LabelStyle.Render(string(v.Code)+":"), v.UserMessage)
		fmt.Fprintln(w, util.MutedStyle.Render(embedURL))
	}
}

func renderHeaders(w io.Writer, headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fmt.Fprintln(w, util.LabelStyle.Render("Headers:"))
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, headers[k])
	}
}

func describeMirror(m analyzer.MirrorAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main host: %s\n", m.MainProvider)
	fmt.Fprintf(&b, "Episodes: %d\n", m.TotalEpisodes)
	if m.IsSlow {
		b.WriteString("Slow host\n")
	}
	if m.IsMixed {
		providers := make([]string, 0, len(m.Distribution))
		for p, n := range m.Distribution {
			providers = append(providers, fmt.Sprintf("%s×%d", p, n))
		}
		slices.Sort(providers)
		fmt.Fprintf(&b, "Mixed: %s\n", strings.Join(providers, ", "))
	}
	return b.String()
}

func renderReport(w io.Writer, language string, r analyzer.SourceReport) {
	fmt.Fprintln(w, util.TitleStyle.Render(fmt.Sprintf("Sources for %s (%d)", language, r.TotalSources)))
	for _, s := range r.Sources {
		var tags []string
		if s.Name == r.Recommended {
			tags = append(tags, util.SuccessStyle.Render("recommended"))
		}
		if s.IsSlow {
			tags = append(tags, "slow")
		}
		if s.IsMixed {
			tags = append(tags, "mixed")
		}
		line := fmt.Sprintf("%-12s %-10s %3d episodes", s.Name, s.MainProvider, s.TotalEpisodes)
		if len(tags) > 0 {
			line += "  " + util.MutedStyle.Render(strings.Join(tags, ", "))
		}
		fmt.Fprintln(w, line)
	}
}

func renderPlayback(w io.Writer, pb playback.Playback) {
	title := fmt.Sprintf("Episode %d", pb.EpisodeIndex+1)
	if pb.Cached {
		title += " (cached)"
	}
	fmt.Fprintln(w, util.TitleStyle.Render(title))
	fmt.Fprintf(w, "%s %s (%s)\n", util.LabelStyle.Render("Source:"), pb.Mirror, pb.Provider)
	if pb.IsAlternative {
		fmt.Fprintln(w, util.MutedStyle.Render("served from an alternative source"))
	}
	fmt.Fprintf(w, "%s %s\n", util.LabelStyle.Render("URL:"), pb.VideoURL)
	if pb.Note != "" {
		fmt.Fprintln(w, util.MutedStyle.Render(pb.Note))
	}
	renderHeaders(w, pb.Headers)
}

func renderProbe(w io.Writer, r probe.Report) {
	fmt.Fprintf(w, "%s %d %s\n", util.LabelStyle.Render("Status:"), r.Status, r.ContentType)
	fmt.Fprintf(w, "%s %s\n", util.LabelStyle.Render("Kind:"), r.Kind)
	if r.ContentLength > 0 {
		fmt.Fprintf(w, "%s %.1f MiB\n", util.LabelStyle.Render("Size:"), float64(r.ContentLength)/(1<<20))
	}
	switch r.Kind {
	case probe.KindHLSMaster:
		for _, v := range r.Variants {
			fmt.Fprintf(w, "  %-10s %8d bps  %s\n", v.Resolution, v.Bandwidth, v.URI)
		}
	case probe.KindHLSMedia:
		fmt.Fprintf(w, "  %d segments, target %.0fs\n", r.Segments, r.TargetDuration)
	}
}
