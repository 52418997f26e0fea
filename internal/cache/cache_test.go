package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func videoURL(season string, i int) string {
	return fmt.Sprintf("https://cdn.example.net/%s/ep%d.mp4", season, i)
}

func embedURL(i int) string {
	return fmt.Sprintf("https://vidmoly.net/embed-%d.html", i)
}

// memStore records what the cache writes through.
type memStore struct {
	mu      sync.Mutex
	entries map[Key]Entry
	saveErr error
	cleared int
	closed  bool
}

func newMemStore(seed ...Entry) *memStore {
	s := &memStore{entries: map[Key]Entry{}}
	for _, e := range seed {
		s.entries[e.Key()] = e
	}
	return s
}

func (s *memStore) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *memStore) Save(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries[e.Key()] = e
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[Key]Entry{}
	s.cleared++
	return nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	require.NoError(t, c.Put("s1", 3, videoURL("s1", 3), embedURL(3)))

	e, ok := c.Get("s1", 3)
	require.True(t, ok)
	assert.Equal(t, Entry{
		SeasonID:       "s1",
		EpisodeIndex:   3,
		VideoURL:       videoURL("s1", 3),
		SourceEmbedURL: embedURL(3),
		Timestamp:      fixed,
	}, e)

	_, ok = c.Get("s1", 4)
	assert.False(t, ok)
}

func TestCache_SeasonIsolation(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, c.Put("s1", 0, videoURL("s1", 0), embedURL(0)))
	require.NoError(t, c.Put("s2", 0, videoURL("s2", 0), embedURL(0)))

	a, _ := c.Get("s1", 0)
	b, _ := c.Get("s2", 0)
	assert.NotEqual(t, a.VideoURL, b.VideoURL)
	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Has("s3", 0))
}

func TestCache_LastWriteWins(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, c.Put("s1", 1, "https://a.example.net/one.mp4", embedURL(1)))
	require.NoError(t, c.Put("s1", 1, "https://b.example.net/two.m3u8", embedURL(1)))

	e, ok := c.Get("s1", 1)
	require.True(t, ok)
	assert.Equal(t, "https://b.example.net/two.m3u8", e.VideoURL)
	assert.Equal(t, 1, c.Len())
}

func TestCache_PutRejectsNonCandidate(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	for _, u := range []string{"", "https://cdn.example.net/app.js", "https://google-analytics.com/collect.mp4"} {
		err := c.Put("s1", 0, u, embedURL(0))
		assert.ErrorIs(t, err, ErrNotCandidate, u)
	}
	assert.Zero(t, c.Len())
}

func TestCache_ClearInvalidates(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	c, err := New(store)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put("s1", i, videoURL("s1", i), embedURL(i)))
	}
	require.NoError(t, c.Clear())

	assert.Zero(t, c.Len())
	assert.False(t, c.Has("s1", 1))
	assert.Equal(t, 1, store.cleared)
	loaded, _ := store.Load()
	assert.Empty(t, loaded)
}

func TestCache_PutAtAfterClearIsStale(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	c, err := New(store)
	require.NoError(t, err)

	epoch := c.Epoch()
	require.NoError(t, c.PutAt(epoch, "s1", 0, videoURL("s1", 0), embedURL(0)))

	require.NoError(t, c.Clear())
	assert.NotEqual(t, epoch, c.Epoch())

	err = c.PutAt(epoch, "s1", 1, videoURL("s1", 1), embedURL(1))
	require.ErrorIs(t, err, ErrStale)
	assert.Zero(t, c.Len())
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded, "stale write never reaches the store")

	require.NoError(t, c.PutAt(c.Epoch(), "s1", 1, videoURL("s1", 1), embedURL(1)))
	assert.True(t, c.Has("s1", 1))
}

func TestCache_LoadsFromStore(t *testing.T) {
	t.Parallel()

	store := newMemStore(
		Entry{SeasonID: "s1", EpisodeIndex: 0, VideoURL: videoURL("s1", 0)},
		Entry{SeasonID: "s1", EpisodeIndex: 1, VideoURL: "https://cdn.example.net/style.css"},
	)
	c, err := New(store)
	require.NoError(t, err)

	assert.True(t, c.Has("s1", 0))
	assert.False(t, c.Has("s1", 1), "stored non-candidates are dropped on load")

	require.NoError(t, c.Close())
	assert.True(t, store.closed)
}

func TestCache_WriteThroughError(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.saveErr = errors.New("disk full")
	c, err := New(store)
	require.NoError(t, err)

	err = c.Put("s1", 0, videoURL("s1", 0), embedURL(0))
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, c.Has("s1", 0), "memory keeps the entry")
}

func TestCache_EntriesSorted(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	require.NoError(t, c.Put("s2", 0, videoURL("s2", 0), embedURL(0)))
	require.NoError(t, c.Put("s1", 2, videoURL("s1", 2), embedURL(2)))
	require.NoError(t, c.Put("s1", 1, videoURL("s1", 1), embedURL(1)))

	var keys []Key
	for _, e := range c.Entries() {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []Key{{"s1", 1}, {"s1", 2}, {"s2", 0}}, keys)
}

func TestCache_ConcurrentPut(t *testing.T) {
	t.Parallel()

	c, err := New(nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Put("s1", i%5, videoURL("s1", i), embedURL(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
	for i := 0; i < 5; i++ {
		e, ok := c.Get("s1", i)
		require.True(t, ok)
		assert.Equal(t, i, e.EpisodeIndex)
		assert.Contains(t, e.VideoURL, "/s1/ep")
	}
}

func TestForeground(t *testing.T) {
	t.Parallel()

	fg := NewForeground()
	assert.False(t, fg.Busy())

	release, ok := fg.TryAcquire()
	require.True(t, ok)
	assert.True(t, fg.Busy())

	_, ok = fg.TryAcquire()
	assert.False(t, ok, "second acquire while held")

	release()
	release()
	assert.False(t, fg.Busy())

	release2, ok := fg.TryAcquire()
	require.True(t, ok, "token is free again after release")
	release2()
}
