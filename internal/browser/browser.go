// Package browser defines the isolated browsing session the extraction
// engine drives, with implementations backed by Playwright and go-rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSessionClosed is returned by every Session method after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Stage tells whether a request event was observed before the request was
// sent or after it completed. Some hosts only reveal the final media URL
// once redirects have resolved, so both are reported.
type Stage int

const (
	StageBeforeRequest Stage = iota
	StageCompleted
)

func (s Stage) String() string {
	if s == StageCompleted {
		return "completed"
	}
	return "before-request"
}

// RequestEvent is one outbound request observed in a session.
type RequestEvent struct {
	URL          string
	Stage        Stage
	ResourceType string
	Status       int
}

// HeaderRewriter returns the headers to send for a request to url.
type HeaderRewriter func(url string, headers map[string]string) map[string]string

// Options configure a new isolated session.
type Options struct {
	// ID is unique per session and used for logs.
	ID string
	// RewriteHeaders is applied to every request of the session, not only
	// the top-level navigation.
	RewriteHeaders HeaderRewriter
	// InitScripts run in every document before page scripts.
	InitScripts []Script
	UserAgent   string
}

// Navigation is the outcome of a successful page load.
type Navigation struct {
	URL    string
	Status int
}

// Launcher owns a running browser and hands out isolated sessions.
type Launcher interface {
	NewSession(ctx context.Context, opts Options) (Session, error)
	Close() error
}

// Session is one isolated browsing context with a single page. Sessions are
// never shared between extractions. Close is idempotent and releases the
// context together with every listener installed on it.
type Session interface {
	ID() string
	// Subscribe registers fn for every request event. The returned func
	// removes it.
	Subscribe(fn func(RequestEvent)) (unsubscribe func())
	Navigate(ctx context.Context, url string) (Navigation, error)
	Evaluate(ctx context.Context, script Script) (any, error)
	Content(ctx context.Context) (string, error)
	Close() error
}

// Script is an instrumentation script evaluated inside the page. Source is
// a JavaScript function expression; its (awaited) return value is handed
// back to Go.
type Script struct {
	Name   string
	Source string
}

// Init returns the script as a self-invoking statement, the form init
// scripts are registered in.
func (s Script) Init() string {
	return "(" + strings.TrimSpace(s.Source) + ")();"
}

// LaunchOptions configure a Launcher.
type LaunchOptions struct {
	Headless bool
	// Install downloads the browser binaries when they are missing.
	Install bool
}

// Backend names accepted by Open.
const (
	BackendPlaywright = "playwright"
	BackendRod        = "rod"
)

// Open starts the named backend.
func Open(backend string, opts LaunchOptions) (Launcher, error) {
	switch strings.ToLower(backend) {
	case "", BackendPlaywright:
		return NewPlaywright(opts)
	case BackendRod:
		return NewRod(opts)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", backend)
	}
}

// hub fans request events out to subscribers. Both backends embed it.
type hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(RequestEvent)
}

func (h *hub) Subscribe(fn func(RequestEvent)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(RequestEvent))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *hub) dispatch(ev RequestEvent) {
	h.mu.RLock()
	subs := make([]func(RequestEvent), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (h *hub) reset() {
	h.mu.Lock()
	h.subs = nil
	h.mu.Unlock()
}

// await runs fn on its own goroutine and gives up when ctx ends. Backends
// without context-aware calls use it; the abandoned call finishes on its
// own and its result is dropped.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
