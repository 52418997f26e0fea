package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/nartya-app/nartya/internal/metrics"
	"github.com/nartya-app/nartya/internal/util"
)

// ExtractFunc resolves an embed URL to a direct video URL.
type ExtractFunc func(ctx context.Context, embedURL string) (string, error)

// PickFunc returns the embed URL to extract for episode index, normally the
// best mirror for that episode.
type PickFunc func(index int) (embedURL string, ok bool)

// Warmer extracts the neighbours of the current episode in the background.
// Failures are logged and dropped; nothing surfaces to the user.
type Warmer struct {
	cache      *Cache
	foreground *Foreground
	extract    ExtractFunc
	pool       *ants.Pool
}

// NewWarmer returns a Warmer running at most workers extractions at once.
func NewWarmer(c *Cache, fg *Foreground, extract ExtractFunc, workers int) (*Warmer, error) {
	if workers <= 0 {
		workers = 2
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		util.Warn("Cache warming panicked", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create warm pool: %w", err)
	}
	return &Warmer{cache: c, foreground: fg, extract: extract, pool: pool}, nil
}

// WarmAdjacent extracts episodes current-1 and current+1 of seasonID
// concurrently, skipping indices outside [0, total) and episodes already
// cached. Nothing runs while the foreground token is held. Results are
// written at epoch, so a Clear during warming discards them. The returned
// channel is closed once every started job has finished.
func (w *Warmer) WarmAdjacent(ctx context.Context, epoch uint64, seasonID string, current, total int, pick PickFunc) <-chan struct{} {
	done := make(chan struct{})
	if w.foreground.Busy() {
		metrics.CacheWarm.WithLabelValues("skipped_busy").Inc()
		util.Debug("Foreground extraction running, warming skipped", "episode", current+1)
		close(done)
		return done
	}

	var wg sync.WaitGroup
	for _, index := range []int{current - 1, current + 1} {
		if index < 0 || index >= total {
			continue
		}
		if w.cache.Has(seasonID, index) {
			metrics.CacheWarm.WithLabelValues("skipped_cached").Inc()
			util.Debug("Episode already cached", "episode", index+1)
			continue
		}

		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			w.warm(ctx, epoch, seasonID, index, pick)
		})
		if err != nil {
			wg.Done()
			util.Debug("Warm job rejected", "episode", index+1, "error", err)
		}
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (w *Warmer) warm(ctx context.Context, epoch uint64, seasonID string, index int, pick PickFunc) {
	// The foreground may have started while this job was queued.
	if w.foreground.Busy() {
		metrics.CacheWarm.WithLabelValues("skipped_busy").Inc()
		return
	}
	if ctx.Err() != nil {
		return
	}

	embedURL, ok := pick(index)
	if !ok {
		return
	}

	util.Debug("Warming episode", "season", seasonID, "episode", index+1)
	videoURL, err := w.extract(ctx, embedURL)
	if err != nil {
		metrics.CacheWarm.WithLabelValues("failed").Inc()
		util.Debug("Warming failed", "episode", index+1, "error", err)
		return
	}
	if err := w.cache.PutAt(epoch, seasonID, index, videoURL, embedURL); err != nil {
		outcome := "failed"
		if errors.Is(err, ErrStale) {
			outcome = "stale"
		}
		metrics.CacheWarm.WithLabelValues(outcome).Inc()
		util.Debug("Warmed URL not cached", "episode", index+1, "error", err)
		return
	}
	metrics.CacheWarm.WithLabelValues("stored").Inc()
	util.Debug("Episode warmed", "episode", index+1)
}

// Close stops the worker pool.
func (w *Warmer) Close() {
	w.pool.Release()
}
