package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/probe"
)

type fakeEngine struct {
	results map[string]extractor.Result
}

func (f *fakeEngine) Extract(_ context.Context, embedURL string) extractor.Result {
	if r, ok := f.results[embedURL]; ok {
		return r
	}
	return extractor.Success{VideoURL: "https://cdn.example.net/" + strings.TrimPrefix(embedURL, "https://vidmoly.to/") + ".mp4"}
}

func (f *fakeEngine) ExtractMany(ctx context.Context, urls []string) map[string]*string {
	out := make(map[string]*string, len(urls))
	for _, u := range urls {
		if s, ok := f.Extract(ctx, u).(extractor.Success); ok {
			out[u] = &s.VideoURL
		} else {
			out[u] = nil
		}
	}
	return out
}

type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, u string) (probe.Report, error) {
	if strings.HasSuffix(u, ".m3u8") {
		return probe.Report{URL: u, Status: 200, Kind: probe.KindHLSMedia, Segments: 3}, nil
	}
	return probe.Report{URL: u, Status: 404}, fmt.Errorf("%w: HTTP 404", probe.ErrNotPlayable)
}

func vidmoly(n int) string { return fmt.Sprintf("https://vidmoly.to/embed-%d", n) }

func newTestServer(t *testing.T, engine *fakeEngine) (*Server, *cache.Cache) {
	t.Helper()
	c, err := cache.New(nil)
	require.NoError(t, err)
	nv, err := playback.New(engine, c)
	require.NoError(t, err)
	t.Cleanup(nv.Close)
	return New("127.0.0.1:0", Deps{Engine: engine, Navigator: nv, Cache: c, Prober: fakeProber{}}), c
}

func do(t *testing.T, s *Server, method, path string, body any) (int, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

// data re-decodes the envelope payload into out.
func data(t *testing.T, resp Response, out any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})

	code, resp := do(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Message)

	code, resp = do(t, s, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not found", resp.Message)
}

func TestExtract(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{results: map[string]extractor.Result{
		"https://dead.example": extractor.Failure{
			Code:        extractor.CodeSourceUnavailable,
			RawError:    "net::ERR_NAME_NOT_RESOLVED",
			UserMessage: extractor.UserMessage(extractor.CodeSourceUnavailable),
		},
	}})

	code, resp := do(t, s, http.MethodPost, "/api/extract", ExtractRequest{URL: vidmoly(1)})
	require.Equal(t, http.StatusOK, code)
	var got ExtractResponse
	data(t, resp, &got)
	assert.True(t, got.Success)
	assert.Equal(t, "https://cdn.example.net/embed-1.mp4", got.VideoURL)

	_, resp = do(t, s, http.MethodPost, "/api/extract", ExtractRequest{URL: "https://dead.example"})
	got = ExtractResponse{}
	data(t, resp, &got)
	assert.False(t, got.Success)
	assert.Equal(t, extractor.CodeSourceUnavailable, got.ErrorCode)
	assert.NotEmpty(t, got.UserMessage)

	code, _ = do(t, s, http.MethodPost, "/api/extract", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExtractBatch(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{results: map[string]extractor.Result{
		vidmoly(2): extractor.Failure{Code: extractor.CodeTimeout},
	}})

	code, resp := do(t, s, http.MethodPost, "/api/extract/batch", BatchRequest{URLs: []string{vidmoly(1), vidmoly(2)}})
	require.Equal(t, http.StatusOK, code)
	var got map[string]*string
	data(t, resp, &got)
	require.Len(t, got, 2)
	require.NotNil(t, got[vidmoly(1)])
	assert.Nil(t, got[vidmoly(2)])
}

func TestAnalyze(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})

	code, resp := do(t, s, http.MethodPost, "/api/analyze", AnalyzeRequest{
		Language: "vostfr",
		Listing: analyzer.Listing{"vostfr": {
			"eps1": {"https://video.sibnet.ru/shell.php?videoid=1"},
			"eps2": {vidmoly(1)},
		}},
	})
	require.Equal(t, http.StatusOK, code)
	var got AnalyzeResponse
	data(t, resp, &got)
	assert.Equal(t, "eps2", got.Report.Recommended)
	assert.Len(t, got.Analyses, 2)
}

func TestProbeRoute(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})

	code, _ := do(t, s, http.MethodPost, "/api/probe", ProbeRequest{URL: "https://cdn.example.net/a.m3u8"})
	assert.Equal(t, http.StatusOK, code)

	code, resp := do(t, s, http.MethodPost, "/api/probe", ProbeRequest{URL: "https://cdn.example.net/a.mp4"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, resp.Message, "not playable")
}

func TestSeasonFlow(t *testing.T) {
	t.Parallel()
	s, c := newTestServer(t, &fakeEngine{})

	code, _ := do(t, s, http.MethodPost, "/api/season/play", PlayRequest{Index: new(int)})
	assert.Equal(t, http.StatusPreconditionFailed, code)

	code, resp := do(t, s, http.MethodPost, "/api/season", SeasonRequest{
		SeasonID: "s1",
		Language: "vf",
		Listing:  analyzer.Listing{"vf": {"eps1": {vidmoly(0)}}},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "eps1", resp.Data.(map[string]any)["mirror"])

	code, resp = do(t, s, http.MethodPost, "/api/season/play", PlayRequest{Index: new(int)})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var pb playback.Playback
	data(t, resp, &pb)
	assert.Equal(t, "https://cdn.example.net/embed-0.mp4", pb.VideoURL)
	assert.True(t, c.Has("s1", 0))

	idx := 7
	code, _ = do(t, s, http.MethodPost, "/api/season/play", PlayRequest{Index: &idx})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPost, "/api/season/source", SourceRequest{Mirror: "eps9"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPost, "/api/season/language", LanguageRequest{Language: "vf"})
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, c.Len(), "language switch clears the cache")
}

func TestPlayExtractionFailure(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{results: map[string]extractor.Result{
		vidmoly(0): extractor.Failure{
			Code:        extractor.CodeUnknownError,
			RawError:    "renderer crashed",
			UserMessage: extractor.UserMessage(extractor.CodeUnknownError),
		},
	}})

	code, _ := do(t, s, http.MethodPost, "/api/season", SeasonRequest{
		SeasonID: "s1", Language: "vf",
		Listing: analyzer.Listing{"vf": {"eps1": {vidmoly(0)}}},
	})
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, s, http.MethodPost, "/api/season/play", PlayRequest{Index: new(int)})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, extractor.UserMessage(extractor.CodeUnknownError), resp.Message)
}

func TestCacheRoutes(t *testing.T) {
	t.Parallel()
	s, c := newTestServer(t, &fakeEngine{})
	require.NoError(t, c.Put("s1", 0, "https://cdn.example.net/a.mp4", vidmoly(0)))

	code, resp := do(t, s, http.MethodGet, "/api/cache", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["count"])

	code, _ = do(t, s, http.MethodDelete, "/api/cache", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, c.Len())
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nartya_")
}
