// Package playback drives episode-to-episode navigation over a listing:
// it picks the mirror to start with, extracts the episode the user asks
// for, retries on another mirror when the host is unreachable and keeps
// the neighbouring episodes warm in the cache.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nartya-app/nartya/internal/analyzer"
	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/provider"
	"github.com/nartya-app/nartya/internal/util"
)

var (
	ErrNotLoaded         = errors.New("no listing loaded")
	ErrUnknownLanguage   = errors.New("language not in listing")
	ErrUnknownMirror     = errors.New("mirror not in listing")
	ErrEpisodeOutOfRange = errors.New("episode out of range")
)

// Extractor is the part of the extraction engine the navigator needs.
type Extractor interface {
	Extract(ctx context.Context, embedURL string) extractor.Result
}

// ExtractionError wraps the classified failure of a foreground extraction.
type ExtractionError struct {
	Episode int
	Mirror  string
	Failure extractor.Failure
	// Retried is set when an alternative mirror was tried as well.
	Retried bool
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("episode %d on %s: %s", e.Episode+1, e.Mirror, e.Failure.Error())
}

func (e *ExtractionError) Unwrap() error { return e.Failure }

// Playback is what the player needs to start an episode.
type Playback struct {
	EpisodeIndex  int               `json:"episodeIndex"`
	VideoURL      string            `json:"videoUrl"`
	EmbedURL      string            `json:"embedUrl"`
	Mirror        string            `json:"mirror"`
	Provider      provider.Provider `json:"provider"`
	Headers       map[string]string `json:"headers,omitempty"`
	Note          string            `json:"note,omitempty"`
	Cached        bool              `json:"cached"`
	IsAlternative bool              `json:"isAlternative"`

	// Warmed is closed once the adjacent episodes have been warmed.
	Warmed <-chan struct{} `json:"-"`
}

// Option customizes a Navigator.
type Option func(*Navigator)

// WithWarmWorkers sets how many adjacent episodes are warmed at once.
func WithWarmWorkers(n int) Option {
	return func(nv *Navigator) { nv.warmWorkers = n }
}

// Navigator is safe for concurrent use. Only one foreground Play runs at a
// time; a concurrent call fails with cache.ErrForegroundBusy.
type Navigator struct {
	engine     Extractor
	cache      *cache.Cache
	foreground *cache.Foreground
	warmer     *cache.Warmer

	warmWorkers int

	mu       sync.RWMutex
	warmCtx  context.Context
	stopWarm context.CancelFunc
	listing  analyzer.Listing
	seasonID string
	language string
	mirror   string
	analyses analyzer.Analyses
}

// New returns a Navigator extracting with engine and caching into c.
func New(engine Extractor, c *cache.Cache, opts ...Option) (*Navigator, error) {
	nv := &Navigator{
		engine:      engine,
		cache:       c,
		foreground:  cache.NewForeground(),
		warmWorkers: 2,
	}
	for _, opt := range opts {
		opt(nv)
	}

	warmer, err := cache.NewWarmer(c, nv.foreground, nv.extractURL, nv.warmWorkers)
	if err != nil {
		return nil, err
	}
	nv.warmer = warmer
	nv.warmCtx, nv.stopWarm = context.WithCancel(context.Background())
	return nv, nil
}

// Close cancels pending warming and stops the warm pool.
func (nv *Navigator) Close() {
	nv.mu.Lock()
	nv.stopWarm()
	nv.mu.Unlock()
	nv.warmer.Close()
}

// Foreground exposes the token held while Play extracts.
func (nv *Navigator) Foreground() *cache.Foreground { return nv.foreground }

// Load sets the listing for seasonID and selects language with its
// recommended mirror.
func (nv *Navigator) Load(seasonID string, l analyzer.Listing, language string) (string, error) {
	analyses := analyzer.AnalyzeAll(l, language)
	mirror, ok := analyzer.RecommendBestSource(analyses)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	nv.mu.Lock()
	nv.listing = l
	nv.seasonID = seasonID
	nv.language = language
	nv.mirror = mirror
	nv.analyses = analyses
	nv.mu.Unlock()

	util.Debug("Listing loaded", "season", seasonID, "language", language, "mirror", mirror, "mirrors", len(analyses))
	return mirror, nil
}

// SwitchLanguage re-analyses the listing for language, moves to its
// recommended mirror and clears the cache.
func (nv *Navigator) SwitchLanguage(language string) (string, error) {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	if nv.listing == nil {
		return "", ErrNotLoaded
	}

	analyses := analyzer.AnalyzeAll(nv.listing, language)
	mirror, ok := analyzer.RecommendBestSource(analyses)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	nv.language = language
	nv.mirror = mirror
	nv.analyses = analyses
	util.Debug("Language switched", "language", language, "mirror", mirror)
	return mirror, nv.clearCache()
}

// SwitchSource moves to mirror and clears the cache.
func (nv *Navigator) SwitchSource(mirror string) error {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	if nv.listing == nil {
		return ErrNotLoaded
	}
	if _, ok := nv.analyses.Get(mirror); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMirror, mirror)
	}

	nv.mirror = mirror
	util.Debug("Source switched", "mirror", mirror)
	return nv.clearCache()
}

// clearCache cancels warming started for the previous selection and clears
// the cache. Extractions still in flight hold the old epoch and are not
// stored. Callers hold nv.mu.
func (nv *Navigator) clearCache() error {
	nv.stopWarm()
	nv.warmCtx, nv.stopWarm = context.WithCancel(context.Background())
	if err := nv.cache.Clear(); err != nil {
		return fmt.Errorf("clear episode cache: %w", err)
	}
	return nil
}

// Current returns the selected language and mirror.
func (nv *Navigator) Current() (language, mirror string) {
	nv.mu.RLock()
	defer nv.mu.RUnlock()
	return nv.language, nv.mirror
}

// Analyses returns the analyses of the selected language.
func (nv *Navigator) Analyses() analyzer.Analyses {
	nv.mu.RLock()
	defer nv.mu.RUnlock()
	return nv.analyses
}

// snapshot is the selection a Play works on. epoch and warmCtx tie its
// writes to that selection.
type snapshot struct {
	seasonID string
	mirror   string
	analyses analyzer.Analyses
	total    int
	epoch    uint64
	warmCtx  context.Context
}

func (nv *Navigator) snapshot() (snapshot, error) {
	nv.mu.RLock()
	defer nv.mu.RUnlock()
	if nv.listing == nil {
		return snapshot{}, ErrNotLoaded
	}
	current, _ := nv.analyses.Get(nv.mirror)
	return snapshot{
		seasonID: nv.seasonID,
		mirror:   nv.mirror,
		analyses: nv.analyses,
		total:    current.TotalEpisodes,
		epoch:    nv.cache.Epoch(),
		warmCtx:  nv.warmCtx,
	}, nil
}

// Play returns the direct URL for episode index of the selected mirror.
// A cached URL is returned without extracting. Otherwise the best mirror
// for the episode is extracted, and a recoverable failure is retried once
// on the best alternative mirror. Either way the adjacent episodes are
// warmed in the background.
func (nv *Navigator) Play(ctx context.Context, index int) (Playback, error) {
	snap, err := nv.snapshot()
	if err != nil {
		return Playback{}, err
	}
	if index < 0 || index >= snap.total {
		return Playback{}, fmt.Errorf("%w: %d of %d", ErrEpisodeOutOfRange, index+1, snap.total)
	}

	if e, ok := nv.cache.Get(snap.seasonID, index); ok {
		util.Debug("Episode served from cache", "episode", index+1)
		pb := Playback{
			EpisodeIndex: index,
			VideoURL:     e.VideoURL,
			EmbedURL:     e.SourceEmbedURL,
			Mirror:       snap.mirror,
			Provider:     provider.Detect(e.SourceEmbedURL),
			Headers:      provider.PlaybackHeaders(e.VideoURL, nil),
			Cached:       true,
		}
		pb.Warmed = nv.warm(snap, index)
		return pb, nil
	}

	pb, err := nv.playForeground(ctx, snap, index)
	if err != nil {
		return Playback{}, err
	}
	pb.Warmed = nv.warm(snap, index)
	return pb, nil
}

// playForeground holds the foreground token for the extraction only, so
// warming can start as soon as it returns.
func (nv *Navigator) playForeground(ctx context.Context, snap snapshot, index int) (Playback, error) {
	release, ok := nv.foreground.TryAcquire()
	if !ok {
		return Playback{}, cache.ErrForegroundBusy
	}
	defer release()

	choice, ok := analyzer.BestForEpisode(index, snap.analyses, snap.mirror)
	if !ok {
		return Playback{}, fmt.Errorf("%w: %d", ErrEpisodeOutOfRange, index+1)
	}
	if choice.IsAlternative {
		util.Debug("Using faster mirror for episode", "episode", index+1,
			"mirror", choice.Mirror, "provider", choice.Provider,
			"original", choice.OriginalMirror, "originalProvider", choice.OriginalProvider)
	}

	var failure extractor.Failure
	switch r := nv.engine.Extract(ctx, choice.URL).(type) {
	case extractor.Success:
		return nv.store(snap, index, choice.Alternative, choice.IsAlternative, r), nil
	case extractor.Failure:
		failure = r
	default:
		failure = unexpected(r)
	}

	extErr := &ExtractionError{Episode: index, Mirror: choice.Mirror, Failure: failure}
	if !analyzer.IsExtractionError(failure) || ctx.Err() != nil {
		return Playback{}, extErr
	}

	alt, ok := analyzer.FindBestAlternativeForEpisode(index, snap.analyses, choice.Mirror)
	if !ok {
		util.Debug("No alternative mirror for episode", "episode", index+1, "error", failure.Error())
		return Playback{}, extErr
	}

	util.Info("Retrying on another mirror", "episode", index+1, "mirror", alt.Mirror, "provider", alt.Provider)
	extErr.Retried = true
	extErr.Mirror = alt.Mirror
	switch r := nv.engine.Extract(ctx, alt.URL).(type) {
	case extractor.Success:
		return nv.store(snap, index, alt, true, r), nil
	case extractor.Failure:
		extErr.Failure = r
	default:
		extErr.Failure = unexpected(r)
	}
	return Playback{}, extErr
}

func unexpected(r extractor.Result) extractor.Failure {
	return extractor.Failure{
		Code:        extractor.CodeUnknownError,
		RawError:    fmt.Sprintf("unexpected result %T", r),
		UserMessage: extractor.UserMessage(extractor.CodeUnknownError),
	}
}

func (nv *Navigator) store(snap snapshot, index int, from analyzer.Alternative, alternative bool, s extractor.Success) Playback {
	if err := nv.cache.PutAt(snap.epoch, snap.seasonID, index, s.VideoURL, from.URL); err != nil {
		util.Debug("Episode not cached", "episode", index+1, "error", err)
	}
	return Playback{
		EpisodeIndex:  index,
		VideoURL:      s.VideoURL,
		EmbedURL:      from.URL,
		Mirror:        from.Mirror,
		Provider:      from.Provider,
		Headers:       provider.PlaybackHeaders(s.VideoURL, nil),
		Note:          s.Note,
		IsAlternative: alternative,
	}
}

func (nv *Navigator) warm(snap snapshot, index int) <-chan struct{} {
	pick := func(i int) (string, bool) {
		choice, ok := analyzer.BestForEpisode(i, snap.analyses, snap.mirror)
		return choice.URL, ok
	}
	return nv.warmer.WarmAdjacent(snap.warmCtx, snap.epoch, snap.seasonID, index, snap.total, pick)
}

// extractURL adapts the engine to the warmer.
func (nv *Navigator) extractURL(ctx context.Context, embedURL string) (string, error) {
	switch r := nv.engine.Extract(ctx, embedURL).(type) {
	case extractor.Success:
		return r.VideoURL, nil
	case extractor.Failure:
		return "", r
	default:
		return "", fmt.Errorf("unexpected result %T", r)
	}
}
