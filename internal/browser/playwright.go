package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/nartya-app/nartya/internal/util"
)

// Playwright is a Launcher backed by a Playwright-driven Chromium. Each
// session is a fresh BrowserContext, so cookies and storage never leak
// between extractions.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	closeOnce sync.Once
	closeErr  error
}

// NewPlaywright starts the Playwright driver and launches Chromium.
func NewPlaywright(opts LaunchOptions) (*Playwright, error) {
	if opts.Install {
		util.Debug("Installing playwright browsers")
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--autoplay-policy=no-user-gesture-required", "--mute-audio"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	util.Debug("Playwright launcher ready", "headless", opts.Headless, "version", b.Version())
	return &Playwright{pw: pw, browser: b}, nil
}

// NewSession opens an isolated browser context with a single page.
func (l *Playwright) NewSession(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	s := &playwrightSession{id: opts.ID, bctx: bctx}

	if opts.RewriteHeaders != nil {
		rewrite := opts.RewriteHeaders
		err = bctx.Route("**/*", func(route playwright.Route) {
			req := route.Request()
			headers := rewrite(req.URL(), req.Headers())
			if err := route.Continue(playwright.RouteContinueOptions{Headers: headers}); err != nil {
				util.Debug("Route continue failed", "session", s.id, "error", err)
			}
		})
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("install header route: %w", err)
		}
	}

	for _, script := range opts.InitScripts {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(script.Init())}); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("add init script %s: %w", script.Name, err)
		}
	}

	bctx.OnRequest(func(req playwright.Request) {
		s.dispatch(RequestEvent{URL: req.URL(), Stage: StageBeforeRequest, ResourceType: req.ResourceType()})
	})
	bctx.OnRequestFinished(func(req playwright.Request) {
		ev := RequestEvent{URL: req.URL(), Stage: StageCompleted, ResourceType: req.ResourceType()}
		if resp, err := req.Response(); err == nil && resp != nil {
			ev.Status = resp.Status()
		}
		s.dispatch(ev)
	})

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	s.page = page

	return s, nil
}

// Close shuts the browser and the driver down.
func (l *Playwright) Close() error {
	l.closeOnce.Do(func() {
		var errs []error
		if l.browser != nil {
			errs = append(errs, l.browser.Close())
		}
		if l.pw != nil {
			errs = append(errs, l.pw.Stop())
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}

type playwrightSession struct {
	hub

	id   string
	bctx playwright.BrowserContext
	page playwright.Page

	mu     sync.Mutex
	closed bool
}

func (s *playwrightSession) ID() string { return s.id }

func (s *playwrightSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) (Navigation, error) {
	if s.isClosed() {
		return Navigation{}, ErrSessionClosed
	}

	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = playwright.Float(float64(time.Until(deadline).Milliseconds()))
	}

	return await(ctx, func() (Navigation, error) {
		resp, err := s.page.Goto(url, opts)
		if err != nil {
			return Navigation{}, err
		}
		nav := Navigation{URL: s.page.URL()}
		if resp != nil {
			nav.Status = resp.Status()
		}
		return nav, nil
	})
}

func (s *playwrightSession) Evaluate(ctx context.Context, script Script) (any, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	return await(ctx, func() (any, error) {
		return s.page.Evaluate(script.Source)
	})
}

func (s *playwrightSession) Content(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return await(ctx, s.page.Content)
}

// Close releases the page and the browser context. Listeners and routes die
// with the context.
func (s *playwrightSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.reset()

	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	errs = append(errs, s.bctx.Close())
	return errors.Join(errs...)
}
