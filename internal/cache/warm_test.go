package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	block chan struct{}
}

func (r *extractRecorder) extract(ctx context.Context, embed string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, embed)
	fail := r.fail[embed]
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", errors.New("TIMEOUT: context deadline exceeded")
	}
	return "https://cdn.example.net/warm" + embed[len(embed)-6:len(embed)-5] + ".mp4", nil
}

func (r *extractRecorder) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func pickAll(index int) (string, bool) { return embedURL(index), true }

func newWarmer(t *testing.T, rec *extractRecorder) (*Warmer, *Cache, *Foreground) {
	t.Helper()
	c, err := New(nil)
	require.NoError(t, err)
	fg := NewForeground()
	w, err := NewWarmer(c, fg, rec.extract, 2)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, c, fg
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("warming did not finish")
	}
}

func TestWarmAdjacent_StoresNeighbours(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{}
	w, c, _ := newWarmer(t, rec)

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 4, 10, pickAll))

	assert.ElementsMatch(t, []string{embedURL(3), embedURL(5)}, rec.called())
	assert.True(t, c.Has("s1", 3))
	assert.True(t, c.Has("s1", 5))
	assert.False(t, c.Has("s1", 4))

	e, _ := c.Get("s1", 5)
	assert.Equal(t, embedURL(5), e.SourceEmbedURL)
}

func TestWarmAdjacent_Bounds(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{}
	w, c, _ := newWarmer(t, rec)

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 0, 1, pickAll))
	assert.Empty(t, rec.called(), "single episode has no neighbours")

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 0, 3, pickAll))
	assert.Equal(t, []string{embedURL(1)}, rec.called())
	assert.Equal(t, 1, c.Len())
}

func TestWarmAdjacent_SkipsCached(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{}
	w, c, _ := newWarmer(t, rec)
	require.NoError(t, c.Put("s1", 1, "https://cdn.example.net/already.mp4", embedURL(1)))

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pickAll))

	assert.Equal(t, []string{embedURL(3)}, rec.called())
	e, _ := c.Get("s1", 1)
	assert.Equal(t, "https://cdn.example.net/already.mp4", e.VideoURL)
}

func TestWarmAdjacent_SkipsWhileForegroundBusy(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{}
	w, c, fg := newWarmer(t, rec)

	release, ok := fg.TryAcquire()
	require.True(t, ok)
	defer release()

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pickAll))
	assert.Empty(t, rec.called())
	assert.Zero(t, c.Len())
}

func TestWarmAdjacent_FailuresAreSilent(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{fail: map[string]bool{embedURL(1): true}}
	w, c, _ := newWarmer(t, rec)

	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pickAll))

	assert.False(t, c.Has("s1", 1))
	assert.True(t, c.Has("s1", 3))
}

func TestWarmAdjacent_PickDeclines(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{}
	w, c, _ := newWarmer(t, rec)

	var asked atomic.Int32
	pick := func(int) (string, bool) {
		asked.Add(1)
		return "", false
	}
	waitDone(t, w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pick))

	assert.EqualValues(t, 2, asked.Load())
	assert.Empty(t, rec.called())
	assert.Zero(t, c.Len())
}

func TestWarmAdjacent_RunsConcurrently(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{block: make(chan struct{})}
	w, c, _ := newWarmer(t, rec)

	done := w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pickAll)

	assert.Eventually(t, func() bool { return len(rec.called()) == 2 }, time.Second, 5*time.Millisecond,
		"both neighbours start before either finishes")
	close(rec.block)
	waitDone(t, done)
	assert.Equal(t, 2, c.Len())
}

func TestWarmAdjacent_ClearDiscardsInFlight(t *testing.T) {
	t.Parallel()

	rec := &extractRecorder{block: make(chan struct{})}
	w, c, _ := newWarmer(t, rec)

	done := w.WarmAdjacent(context.Background(), c.Epoch(), "s1", 2, 5, pickAll)
	require.Eventually(t, func() bool { return len(rec.called()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Clear())
	close(rec.block)
	waitDone(t, done)

	assert.Zero(t, c.Len(), "URLs extracted before the clear are dropped")
}
