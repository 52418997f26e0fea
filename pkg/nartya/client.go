// Package nartya provides a public API for resolving anime embed pages to
// direct video URLs. This package can be used as a library in other Go
// projects.
package nartya

import (
	"context"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/candidate"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/provider"
	"github.com/nartya-app/nartya/pkg/nartya/types"
)

// Options configure a Client
type Options struct {
	// Backend is "playwright" (default) or "rod"
	Backend string
	// ShowBrowser runs the browser with a window
	ShowBrowser bool
	// InstallBrowser downloads the browser when it is missing
	InstallBrowser bool
}

// Client runs extractions. It owns a browser process until Close.
type Client struct {
	launcher browser.Launcher
	engine   *extractor.Engine
}

// NewClient starts a browser and returns a client using default timings.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	launcher, err := browser.Open(opts.Backend, browser.LaunchOptions{
		Headless: !opts.ShowBrowser,
		Install:  opts.InstallBrowser,
	})
	if err != nil {
		return nil, err
	}
	return newClient(launcher, extractor.DefaultConfig()), nil
}

func newClient(l browser.Launcher, cfg extractor.Config) *Client {
	return &Client{launcher: l, engine: extractor.New(l, cfg)}
}

// Close stops the browser.
func (c *Client) Close() error {
	return c.launcher.Close()
}

// ExtractVideoURL resolves one embed URL. Failures are reported in the
// result, never as a Go error.
func (c *Client) ExtractVideoURL(ctx context.Context, embedURL string) types.Result {
	switch r := c.engine.Extract(ctx, embedURL).(type) {
	case extractor.Success:
		return types.Result{Success: true, VideoURL: r.VideoURL, Note: r.Note}
	case extractor.Failure:
		return types.Result{
			ErrorCode:   types.ErrorCode(r.Code),
			Error:       r.RawError,
			UserMessage: r.UserMessage,
		}
	default:
		return types.Result{ErrorCode: types.ErrUnknown}
	}
}

// ExtractMultipleVideoURLs resolves embedURLs one at a time. Failed URLs
// map to nil.
func (c *Client) ExtractMultipleVideoURLs(ctx context.Context, embedURLs []string) map[string]*string {
	return c.engine.ExtractMany(ctx, embedURLs)
}

// DetectProvider returns the host behind url.
func DetectProvider(url string) types.Provider {
	return types.Provider(provider.Detect(url))
}

// IsVideoCandidate reports whether url looks like a direct media URL.
func IsVideoCandidate(url string) bool {
	return candidate.IsVideoCandidate(url)
}

// PlaybackHeaders returns the headers a player needs to fetch videoURL.
func PlaybackHeaders(videoURL string) map[string]string {
	return provider.PlaybackHeaders(videoURL, nil)
}

// AnalyzeSources describes every source of language, in natural name order.
func AnalyzeSources(l types.Listing, language string) []types.Source {
	analyses := analyzer.AnalyzeAll(analyzer.Listing(l), language)
	best, _ := analyzer.RecommendBestSource(analyses)

	out := make([]types.Source, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, types.Source{
			Name:         a.Mirror,
			MainProvider: types.Provider(a.MainProvider),
			Episodes:     a.TotalEpisodes,
			IsMixed:      a.IsMixed,
			IsSlow:       a.IsSlow,
			Recommended:  a.Mirror == best,
		})
	}
	return out
}

// RecommendBestSource returns the source to start language with.
func RecommendBestSource(l types.Listing, language string) (string, bool) {
	return analyzer.RecommendBestSource(analyzer.AnalyzeAll(analyzer.Listing(l), language))
}
