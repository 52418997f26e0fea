package playback

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/extractor"
)

func sibnet(n int) string  { return fmt.Sprintf("https://video.sibnet.ru/shell.php?videoid=%d", n) }
func vidmoly(n int) string { return fmt.Sprintf("https://vidmoly.to/embed-%d.html", n) }
func other(n int) string   { return fmt.Sprintf("https://player.example.org/e/%d", n) }

func episodes(n int, fn func(int) string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fn(i)
	}
	return out
}

// fakeEngine answers from a table keyed by embed URL and records calls.
// gate blocks every call, gates only the listed URLs.
type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	results map[string]extractor.Result
	gate    chan struct{}
	gates   map[string]chan struct{}
}

func (f *fakeEngine) Extract(ctx context.Context, embedURL string) extractor.Result {
	f.mu.Lock()
	f.calls = append(f.calls, embedURL)
	res, ok := f.results[embedURL]
	gate := f.gate
	if g, found := f.gates[embedURL]; found {
		gate = g
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return extractor.Failure{Code: extractor.CodeTimeout, RawError: ctx.Err().Error()}
		}
	}
	if ok {
		return res
	}
	return extractor.Success{VideoURL: "https://cdn.example.net/" + slug(embedURL) + ".mp4"}
}

func (f *fakeEngine) wasCalled(embedURL string) func() bool {
	return func() bool { return slices.Contains(f.called(), embedURL) }
}

func (f *fakeEngine) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func slug(u string) string {
	u = strings.TrimPrefix(u, "https://")
	return strings.NewReplacer("/", "_", ".", "_", "?", "_", "=", "_").Replace(u)
}

func newNavigator(t *testing.T, engine *fakeEngine) (*Navigator, *cache.Cache) {
	t.Helper()
	c, err := cache.New(nil)
	require.NoError(t, err)
	nv, err := New(engine, c)
	require.NoError(t, err)
	t.Cleanup(nv.Close)
	return nv, c
}

func waitWarm(t *testing.T, pb Playback) {
	t.Helper()
	select {
	case <-pb.Warmed:
	case <-time.After(2 * time.Second):
		t.Fatal("warming did not finish")
	}
}

func TestNavigator_LoadPicksRecommendedMirror(t *testing.T) {
	t.Parallel()

	nv, _ := newNavigator(t, &fakeEngine{})
	mirror, err := nv.Load("s1", analyzer.Listing{"vostfr": {
		"S1": episodes(3, sibnet),
		"S2": episodes(3, vidmoly),
	}}, "vostfr")
	require.NoError(t, err)
	assert.Equal(t, "S2", mirror)

	lang, cur := nv.Current()
	assert.Equal(t, "vostfr", lang)
	assert.Equal(t, "S2", cur)
	assert.Len(t, nv.Analyses(), 2)

	_, err = nv.Load("s1", analyzer.Listing{"vostfr": {"S1": episodes(1, sibnet)}}, "vf")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestNavigator_PlayCachesAndWarms(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {"eps1": episodes(5, vidmoly)}}, "vf")
	require.NoError(t, err)

	pb, err := nv.Play(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, pb.Cached)
	assert.Equal(t, vidmoly(2), pb.EmbedURL)
	assert.Equal(t, "eps1", pb.Mirror)
	assert.Contains(t, pb.VideoURL, ".mp4")
	waitWarm(t, pb)

	assert.True(t, c.Has("s1", 1))
	assert.True(t, c.Has("s1", 2))
	assert.True(t, c.Has("s1", 3))
	assert.ElementsMatch(t, []string{vidmoly(2), vidmoly(1), vidmoly(3)}, engine.called())

	again, err := nv.Play(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, again.Cached, "warmed neighbour served from cache")
	waitWarm(t, again)
	assert.True(t, c.Has("s1", 4))
}

func TestNavigator_PerEpisodeBestMirror(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	nv, _ := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {
		"eps1": {other(0), other(1), other(2)},
		"eps2": {sibnet(0), vidmoly(1), sibnet(2)},
	}}, "vf")
	require.NoError(t, err)
	require.NoError(t, nv.SwitchSource("eps1"))

	pb, err := nv.Play(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "eps2", pb.Mirror)
	assert.Equal(t, vidmoly(1), pb.EmbedURL)
	assert.True(t, pb.IsAlternative)
	waitWarm(t, pb)
}

func TestNavigator_RetriesOnAlternative(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{results: map[string]extractor.Result{
		vidmoly(0): extractor.Failure{Code: extractor.CodeSourceUnavailable, RawError: "net::ERR_NAME_NOT_RESOLVED"},
	}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {
		"eps1": {vidmoly(0)},
		"eps2": {other(0)},
	}}, "vf")
	require.NoError(t, err)

	pb, err := nv.Play(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "eps2", pb.Mirror)
	assert.True(t, pb.IsAlternative)
	assert.Equal(t, []string{vidmoly(0), other(0)}, engine.called())

	e, ok := c.Get("s1", 0)
	require.True(t, ok, "alternative result is cached")
	assert.Equal(t, other(0), e.SourceEmbedURL)
	waitWarm(t, pb)
}

func TestNavigator_UnrecoverableFailureNotRetried(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{results: map[string]extractor.Result{
		vidmoly(0): extractor.Failure{Code: extractor.CodeUnknownError, RawError: "renderer crashed"},
	}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {
		"eps1": {vidmoly(0)},
		"eps2": {other(0)},
	}}, "vf")
	require.NoError(t, err)

	_, err = nv.Play(context.Background(), 0)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.False(t, extErr.Retried)
	assert.Equal(t, extractor.CodeUnknownError, extErr.Failure.Code)
	assert.Equal(t, []string{vidmoly(0)}, engine.called())
	assert.Zero(t, c.Len())
}

func TestNavigator_AlternativeAlsoFails(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{results: map[string]extractor.Result{
		vidmoly(0): extractor.Failure{Code: extractor.CodeTimeout, RawError: "context deadline exceeded"},
		other(0):   extractor.Failure{Code: extractor.CodeNoVideoFound, RawError: "no video URL found"},
	}}
	nv, _ := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {
		"eps1": {vidmoly(0)},
		"eps2": {other(0)},
	}}, "vf")
	require.NoError(t, err)

	_, err = nv.Play(context.Background(), 0)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.True(t, extErr.Retried)
	assert.Equal(t, "eps2", extErr.Mirror)
	assert.Equal(t, extractor.CodeNoVideoFound, extErr.Failure.Code)

	var failure extractor.Failure
	assert.ErrorAs(t, err, &failure)
}

func TestNavigator_ConcurrentPlayIsBusy(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{gate: make(chan struct{})}
	nv, _ := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {"eps1": episodes(3, vidmoly)}}, "vf")
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := nv.Play(context.Background(), 1)
		first <- err
	}()

	require.Eventually(t, nv.Foreground().Busy, time.Second, 5*time.Millisecond)
	_, err = nv.Play(context.Background(), 0)
	assert.ErrorIs(t, err, cache.ErrForegroundBusy)

	close(engine.gate)
	require.NoError(t, <-first)
	assert.False(t, nv.Foreground().Busy())
}

func TestNavigator_SwitchesClearCache(t *testing.T) {
	t.Parallel()

	nv, c := newNavigator(t, &fakeEngine{})
	_, err := nv.Load("s1", analyzer.Listing{
		"vf":     {"eps1": episodes(2, vidmoly), "eps2": episodes(2, other)},
		"vostfr": {"eps1": episodes(2, sibnet)},
	}, "vf")
	require.NoError(t, err)

	require.NoError(t, c.Put("s1", 0, "https://cdn.example.net/a.mp4", vidmoly(0)))
	require.NoError(t, nv.SwitchSource("eps2"))
	assert.Zero(t, c.Len())

	assert.ErrorIs(t, nv.SwitchSource("eps9"), ErrUnknownMirror)

	require.NoError(t, c.Put("s1", 0, "https://cdn.example.net/a.mp4", vidmoly(0)))
	mirror, err := nv.SwitchLanguage("vostfr")
	require.NoError(t, err)
	assert.Equal(t, "eps1", mirror)
	assert.Zero(t, c.Len())

	_, err = nv.SwitchLanguage("de")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestNavigator_Errors(t *testing.T) {
	t.Parallel()

	nv, _ := newNavigator(t, &fakeEngine{})
	_, err := nv.Play(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, nv.SwitchSource("x"), ErrNotLoaded)

	_, err = nv.Load("s1", analyzer.Listing{"vf": {"eps1": episodes(2, vidmoly)}}, "vf")
	require.NoError(t, err)
	_, err = nv.Play(context.Background(), 2)
	assert.ErrorIs(t, err, ErrEpisodeOutOfRange)
	_, err = nv.Play(context.Background(), -1)
	assert.ErrorIs(t, err, ErrEpisodeOutOfRange)
}

func TestNavigator_BlobResultNotCached(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{results: map[string]extractor.Result{
		vidmoly(0): extractor.Success{VideoURL: "blob:https://vidmoly.net/3f2a", Note: extractor.BlobNote},
	}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {"eps1": episodes(1, vidmoly)}}, "vf")
	require.NoError(t, err)

	pb, err := nv.Play(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, extractor.BlobNote, pb.Note)
	assert.False(t, c.Has("s1", 0))
	waitWarm(t, pb)
}

func TestNavigator_WarmAfterSwitchIsDiscarded(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{gates: map[string]chan struct{}{vidmoly(1): make(chan struct{})}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{
		"vostfr": {"eps1": episodes(2, vidmoly)},
		"vf":     {"eps1": episodes(2, other)},
	}, "vostfr")
	require.NoError(t, err)

	pb, err := nv.Play(context.Background(), 0)
	require.NoError(t, err)
	require.Eventually(t, engine.wasCalled(vidmoly(1)), time.Second, 5*time.Millisecond)

	_, err = nv.SwitchLanguage("vf")
	require.NoError(t, err)
	close(engine.gates[vidmoly(1)])
	waitWarm(t, pb)

	assert.False(t, c.Has("s1", 1), "vostfr neighbour must not land in the vf cache")
	assert.Zero(t, c.Len())
}

func TestNavigator_ForegroundAfterSwitchNotCached(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{gates: map[string]chan struct{}{vidmoly(0): make(chan struct{})}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {
		"eps1": episodes(2, vidmoly),
		"eps2": episodes(2, other),
	}}, "vf")
	require.NoError(t, err)

	type played struct {
		pb  Playback
		err error
	}
	result := make(chan played, 1)
	go func() {
		pb, err := nv.Play(context.Background(), 0)
		result <- played{pb, err}
	}()

	require.Eventually(t, engine.wasCalled(vidmoly(0)), time.Second, 5*time.Millisecond)
	require.NoError(t, nv.SwitchSource("eps2"))
	close(engine.gates[vidmoly(0)])

	got := <-result
	require.NoError(t, got.err)
	assert.Equal(t, vidmoly(0), got.pb.EmbedURL, "the caller still gets its episode")
	waitWarm(t, got.pb)

	assert.Zero(t, c.Len(), "a URL of the previous source is never cached")
	assert.NotContains(t, engine.called(), vidmoly(1), "warming for the old source is cancelled")
}

func TestNavigator_UnexpectedResultIsFailure(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{results: map[string]extractor.Result{vidmoly(0): nil}}
	nv, c := newNavigator(t, engine)
	_, err := nv.Load("s1", analyzer.Listing{"vf": {"eps1": episodes(1, vidmoly)}}, "vf")
	require.NoError(t, err)

	var extErr *ExtractionError
	_, err = nv.Play(context.Background(), 0)
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extractor.CodeUnknownError, extErr.Failure.Code)
	assert.False(t, extErr.Retried)
	assert.Zero(t, c.Len())
}
