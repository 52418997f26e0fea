// Package extractor recovers a direct media URL from a third-party embed
// page. Each extraction opens an isolated browsing session, loads the page
// and races network interception, DOM inspection and in-page API hooks
// against each other; the first candidate that passes the candidate filter
// wins.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/ratelimit"

	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/metrics"
	"github.com/nartya-app/nartya/internal/provider"
	"github.com/nartya-app/nartya/internal/util"
)

// Engine runs extractions against a browser Launcher. It is safe for
// concurrent use; every call gets its own session.
type Engine struct {
	launcher browser.Launcher
	cfg      Config
	limiter  ratelimit.Limiter
	observer Observer
	newID    func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObserver reports every state transition to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New returns an Engine using launcher for browsing sessions.
func New(launcher browser.Launcher, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		launcher: launcher,
		cfg:      cfg,
		newID:    uuid.NewString,
	}
	if cfg.SessionsPerSecond > 0 {
		e.limiter = ratelimit.New(cfg.SessionsPerSecond, ratelimit.WithoutSlack)
	} else {
		e.limiter = ratelimit.NewUnlimited()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the tuning the engine runs with.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) transition(id string, s State) {
	util.Debug("Extraction state", "session", id, "state", s)
	if e.observer != nil {
		e.observer(id, s)
	}
}

// Extract runs one extraction attempt for embedURL. It never returns nil;
// every failure is classified. The browsing session is closed on every
// path, panics included.
func (e *Engine) Extract(ctx context.Context, embedURL string) (res Result) {
	start := time.Now()
	id := e.newID()
	e.transition(id, StateIdle)

	defer func() {
		elapsed := time.Since(start)
		metrics.ExtractionDuration.Observe(elapsed.Seconds())
		switch r := res.(type) {
		case Success:
			metrics.Extractions.WithLabelValues("OK").Inc()
			util.Debug("Extraction succeeded", "session", id, "elapsed", elapsed.Round(time.Millisecond), "url", truncate(r.VideoURL))
		case Failure:
			metrics.Extractions.WithLabelValues(string(r.Code)).Inc()
			util.Debug("Extraction failed", "session", id, "elapsed", elapsed.Round(time.Millisecond), "code", r.Code, "error", r.RawError)
		}
	}()

	e.limiter.Take()
	if err := ctx.Err(); err != nil {
		e.transition(id, StateClosed)
		return fail(classifyError(err), err.Error())
	}

	sess, err := e.launcher.NewSession(ctx, browser.Options{
		ID:             id,
		RewriteHeaders: provider.Apply,
		InitScripts:    []browser.Script{HookScript},
		UserAgent:      e.cfg.UserAgent,
	})
	if err != nil {
		e.transition(id, StateClosed)
		return fail(classifyError(err), fmt.Sprintf("open session: %v", err))
	}
	metrics.ActiveSessions.Inc()

	defer func() {
		if r := recover(); r != nil {
			util.Warn("Extraction panicked", "session", id, "panic", r)
			res = fail(CodeUnknownError, fmt.Sprint(r))
		}
		if err := sess.Close(); err != nil {
			util.Debug("Session close failed", "session", id, "error", err)
		}
		metrics.ActiveSessions.Dec()
		e.transition(id, StateClosed)
	}()
	e.transition(id, StateSessionCreated)

	watch := watchNetwork(sess)
	defer watch.stop()

	target := CorrectEmbedURL(embedURL)
	util.Debug("Loading embed", "session", id, "provider", provider.Detect(target), "url", target)
	e.transition(id, StatePageLoading)

	pageURL, failure := e.load(ctx, sess, target)
	if failure != nil {
		e.transition(id, StateLoadFailed)
		return *failure
	}

	if !sleep(ctx, e.cfg.SettleDelay) {
		e.transition(id, StateTimedOut)
		return fail(classifyError(ctx.Err()), ctx.Err().Error())
	}

	e.transition(id, StateRacing)
	if w, ok := e.race(ctx, sess, pageURL, watch); ok {
		e.transition(id, StateResolved)
		metrics.StrategyWins.WithLabelValues(w.strategy).Inc()
		util.Debug("Race won", "session", id, "strategy", w.strategy, "elapsed", time.Since(start).Round(time.Millisecond))
		return Success{VideoURL: w.url}
	}
	e.transition(id, StateTimedOut)

	if err := ctx.Err(); err != nil {
		return fail(classifyError(err), err.Error())
	}

	finalCtx, cancel := context.WithTimeout(ctx, e.cfg.DOMTimeout)
	defer cancel()
	if src := readFinalVideo(finalCtx, sess); src != "" {
		metrics.StrategyWins.WithLabelValues(StrategyFinal).Inc()
		return Success{VideoURL: src, Note: BlobNote}
	}

	return fail(CodeNoVideoFound, "no video URL found")
}

// load navigates to target. A nil failure means racing may start; aborted
// navigations are tolerated because embed pages often redirect.
func (e *Engine) load(ctx context.Context, sess browser.Session, target string) (string, *Failure) {
	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()

	nav, err := sess.Navigate(navCtx, target)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			f := fail(classifyError(ctxErr), err.Error())
			return "", &f
		}
		code, fatal := classifyNavigation(err)
		if fatal {
			f := fail(code, err.Error())
			return "", &f
		}
		util.Debug("Navigation aborted, racing anyway", "session", sess.ID(), "error", err)
		return target, nil
	}

	if code, fatal := classifyStatus(nav.Status); fatal {
		f := fail(code, fmt.Sprintf("HTTP %d for %s", nav.Status, target))
		return "", &f
	}
	if nav.URL == "" {
		return target, nil
	}
	return nav.URL, nil
}

// ExtractMany extracts every URL one at a time with BatchDelay between
// items. Failed items map to nil. Remaining items are skipped as nil once
// ctx ends.
func (e *Engine) ExtractMany(ctx context.Context, embedURLs []string) map[string]*string {
	out := make(map[string]*string, len(embedURLs))
	start := time.Now()

	for i, embedURL := range embedURLs {
		if ctx.Err() != nil {
			out[embedURL] = nil
			continue
		}

		util.Debug("Batch extraction", "item", i+1, "total", len(embedURLs))
		if s, ok := e.Extract(ctx, embedURL).(Success); ok {
			videoURL := s.VideoURL
			out[embedURL] = &videoURL
		} else {
			out[embedURL] = nil
		}

		if i < len(embedURLs)-1 {
			sleep(ctx, e.cfg.BatchDelay)
		}
	}

	if n := len(embedURLs); n > 0 {
		elapsed := time.Since(start)
		util.Debug("Batch finished", "total", elapsed.Round(time.Millisecond), "avg", (elapsed / time.Duration(n)).Round(time.Millisecond))
	}
	return out
}

// sleep waits d or until ctx ends, reporting whether the full delay passed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
