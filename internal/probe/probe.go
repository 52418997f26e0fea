// Package probe checks that an extracted URL is actually playable outside
// the browser: it requests the media with the playback header policy and,
// for HLS, decodes the playlist.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/nartya-app/nartya/internal/provider"
	"github.com/nartya-app/nartya/internal/util"
)

// Kind is what the probed URL turned out to be.
type Kind string

const (
	KindFile      Kind = "file"
	KindHLSMaster Kind = "hls-master"
	KindHLSMedia  Kind = "hls-media"
)

// maxPlaylistSize bounds how much of a playlist is read.
const maxPlaylistSize = 4 << 20

var ErrNotPlayable = errors.New("media not playable")

// Variant is one rendition of an HLS master playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// Report describes the probed media.
type Report struct {
	URL            string            `json:"url"`
	Status         int               `json:"status"`
	ContentType    string            `json:"contentType"`
	ContentLength  int64             `json:"contentLength,omitempty"`
	Kind           Kind              `json:"kind"`
	Headers        map[string]string `json:"headers,omitempty"`
	Variants       []Variant         `json:"variants,omitempty"`
	Segments       int               `json:"segments,omitempty"`
	TargetDuration float64           `json:"targetDuration,omitempty"`
}

// Prober issues the probe requests.
type Prober struct {
	client    *http.Client
	userAgent string
}

// Option customizes a Prober.
type Option func(*Prober)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithChromeTLS sends HTTPS requests with a Chrome TLS fingerprint.
func WithChromeTLS() Option {
	return func(p *Prober) {
		cfg := defaultClientConfig()
		p.client = &http.Client{
			Transport: newChromeRoundTripper(cfg, createTransport(cfg)),
			Timeout:   cfg.timeout,
		}
	}
}

// New returns a Prober using a pooled client.
func New(opts ...Option) *Prober {
	cfg := defaultClientConfig()
	p := &Prober{
		client:    &http.Client{Transport: createTransport(cfg), Timeout: cfg.timeout},
		userAgent: provider.DesktopUserAgent,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe requests rawURL. Files are requested for their first byte only.
// A status of 400 or above yields ErrNotPlayable along with the report.
func (p *Prober) Probe(ctx context.Context, rawURL string) (Report, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Report{}, fmt.Errorf("invalid media URL %q", rawURL)
	}

	headers := provider.PlaybackHeaders(rawURL, map[string]string{"User-Agent": p.userAgent})
	hls := looksLikeHLS(u.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Report{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if !hls {
		req.Header.Set("Range", "bytes=0-0")
	}

	util.Debug("Probing media", "url", rawURL, "hls", hls)
	resp, err := p.client.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("request media: %w", err)
	}
	defer resp.Body.Close()

	report := Report{
		URL:           rawURL,
		Status:        resp.StatusCode,
		ContentType:   mediaType(resp.Header.Get("Content-Type")),
		ContentLength: contentLength(resp),
		Kind:          KindFile,
		Headers:       headers,
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return report, fmt.Errorf("%w: HTTP %d", ErrNotPlayable, resp.StatusCode)
	}

	if hls || isHLSContentType(report.ContentType) {
		if err := decodePlaylist(&report, u, io.LimitReader(resp.Body, maxPlaylistSize)); err != nil {
			return report, err
		}
	}
	return report, nil
}

func decodePlaylist(report *Report, base *url.URL, r io.Reader) error {
	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(r), true)
	if err != nil {
		return fmt.Errorf("%w: decode playlist: %v", ErrNotPlayable, err)
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		report.Kind = KindHLSMaster
		for _, v := range master.Variants {
			if v == nil {
				break
			}
			report.Variants = append(report.Variants, Variant{
				URI:        resolve(base, v.URI),
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		report.Kind = KindHLSMedia
		report.TargetDuration = media.TargetDuration
		for _, s := range media.Segments {
			if s != nil {
				report.Segments++
			}
		}
	}
	return nil
}

func looksLikeHLS(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}

func isHLSContentType(ct string) bool {
	return strings.Contains(ct, "mpegurl")
}

func mediaType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// contentLength prefers the total size from Content-Range, since files are
// requested as a one-byte range.
func contentLength(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if _, total, ok := strings.Cut(cr, "/"); ok && total != "*" {
			if n, err := strconv.ParseInt(total, 10, 64); err == nil {
				return n
			}
		}
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}

func resolve(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
