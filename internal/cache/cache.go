// Package cache keeps the direct video URLs already extracted for a
// season, keyed by episode index, and warms the neighbours of the episode
// being watched in the background.
//
// The cache is keyed by season and index, not by mirror. Switching mirror or
// language must Clear it, otherwise a URL from the previous mirror would be
// served silently.
package cache

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nartya-app/nartya/internal/candidate"
	"github.com/nartya-app/nartya/internal/util"
)

// ErrNotCandidate is returned by Put for URLs that do not look like media.
var ErrNotCandidate = errors.New("video URL is not a media candidate")

// ErrStale is returned by PutAt when the cache was cleared after the epoch
// was read.
var ErrStale = errors.New("cache cleared since extraction started")

// Key identifies one episode of one season.
type Key struct {
	SeasonID string
	Index    int
}

// Entry is one cached extraction.
type Entry struct {
	SeasonID       string    `json:"seasonId"`
	EpisodeIndex   int       `json:"episodeIndex"`
	VideoURL       string    `json:"videoUrl"`
	SourceEmbedURL string    `json:"sourceEmbedUrl"`
	Timestamp      time.Time `json:"timestamp"`
}

// Key returns the key e is stored under.
func (e Entry) Key() Key {
	return Key{SeasonID: e.SeasonID, Index: e.EpisodeIndex}
}

// Store persists entries across restarts.
type Store interface {
	Load() ([]Entry, error)
	Save(Entry) error
	Clear() error
	Close() error
}

// Cache is safe for concurrent use. Writes are last-write-wins per key and
// every read sees a whole entry.
//
// Every Clear starts a new epoch. Writers that began before a Clear pass the
// epoch they read to PutAt and are dropped instead of resurrecting a URL of
// the previous mirror.
type Cache struct {
	entries *xsync.MapOf[Key, Entry]
	store   Store
	now     func() time.Time

	// clearMu is held shared by writers and exclusively by Clear.
	clearMu sync.RWMutex
	epoch   atomic.Uint64
}

// New returns a cache backed by store, loading what it already holds. A nil
// store keeps the cache in memory only.
func New(store Store) (*Cache, error) {
	c := &Cache{
		entries: xsync.NewMapOf[Key, Entry](),
		store:   store,
		now:     time.Now,
	}
	if store == nil {
		return c, nil
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	for _, e := range loaded {
		if !candidate.IsVideoCandidate(e.VideoURL) {
			continue
		}
		c.entries.Store(e.Key(), e)
	}
	util.Debug("Episode cache loaded", "entries", c.entries.Size())
	return c, nil
}

// Get returns the entry for episode index of seasonID.
func (c *Cache) Get(seasonID string, index int) (Entry, bool) {
	return c.entries.Load(Key{SeasonID: seasonID, Index: index})
}

// Has reports whether episode index of seasonID is cached.
func (c *Cache) Has(seasonID string, index int) bool {
	_, ok := c.Get(seasonID, index)
	return ok
}

// Epoch returns the current epoch.
func (c *Cache) Epoch() uint64 {
	return c.epoch.Load()
}

// Put stores videoURL for episode index of seasonID, replacing any previous
// entry. URLs that fail the candidate filter are rejected with
// ErrNotCandidate. A store failure is returned after the in-memory write.
func (c *Cache) Put(seasonID string, index int, videoURL, embedURL string) error {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()
	return c.put(seasonID, index, videoURL, embedURL)
}

// PutAt is Put for a writer that read epoch before extracting. It fails
// with ErrStale and writes nothing when Clear ran in between.
func (c *Cache) PutAt(epoch uint64, seasonID string, index int, videoURL, embedURL string) error {
	c.clearMu.RLock()
	defer c.clearMu.RUnlock()
	if cur := c.epoch.Load(); cur != epoch {
		return fmt.Errorf("%w: epoch %d, now %d", ErrStale, epoch, cur)
	}
	return c.put(seasonID, index, videoURL, embedURL)
}

func (c *Cache) put(seasonID string, index int, videoURL, embedURL string) error {
	if !candidate.IsVideoCandidate(videoURL) {
		return fmt.Errorf("%w: %s", ErrNotCandidate, videoURL)
	}

	e := Entry{
		SeasonID:       seasonID,
		EpisodeIndex:   index,
		VideoURL:       videoURL,
		SourceEmbedURL: embedURL,
		Timestamp:      c.now(),
	}
	c.entries.Store(e.Key(), e)

	if c.store != nil {
		if err := c.store.Save(e); err != nil {
			return fmt.Errorf("persist cache entry: %w", err)
		}
	}
	return nil
}

// Clear drops every entry and starts a new epoch. It waits for writes in
// progress.
func (c *Cache) Clear() error {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	c.epoch.Add(1)
	c.entries.Clear()
	util.Debug("Episode cache cleared")
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("clear cache store: %w", err)
		}
	}
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.entries.Size()
}

// Entries returns a snapshot ordered by season then episode index.
func (c *Cache) Entries() []Entry {
	out := make([]Entry, 0, c.entries.Size())
	c.entries.Range(func(_ Key, e Entry) bool {
		out = append(out, e)
		return true
	})
	slices.SortFunc(out, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.SeasonID, b.SeasonID), cmp.Compare(a.EpisodeIndex, b.EpisodeIndex))
	})
	return out
}

// Close closes the backing store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
