package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/nartya-app/nartya/internal/util"
)

// Rod is a Launcher backed by go-rod. Sessions are incognito contexts with
// stealth patches applied, which some hosts need before they serve media.
type Rod struct {
	browser *rod.Browser
	l       *launcher.Launcher

	closeOnce sync.Once
	closeErr  error
}

// NewRod launches a local Chromium through the rod launcher. Install lets
// the launcher download a browser when none is found.
func NewRod(opts LaunchOptions) (*Rod, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("mute-audio").
		Set("autoplay-policy", "no-user-gesture-required")

	if !opts.Install {
		if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
		} else {
			return nil, errors.New("no local chromium found and install disabled")
		}
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}

	util.Debug("Rod launcher ready", "headless", opts.Headless)
	return &Rod{browser: b, l: l}, nil
}

// NewSession opens an incognito context with a single stealth page.
func (r *Rod) NewSession(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inc, err := r.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := stealth.Page(inc)
	if err != nil {
		_ = inc.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s := &rodSession{
		id:     opts.ID,
		inc:    inc,
		page:   page.Context(sessCtx),
		cancel: cancel,
	}

	if opts.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	if opts.RewriteHeaders != nil {
		rewrite := opts.RewriteHeaders
		router := s.page.HijackRequests()
		err := router.Add("*", "", func(h *rod.Hijack) {
			in := make(map[string]string)
			for k, v := range h.Request.Headers() {
				in[k] = v.Str()
			}
			out := rewrite(h.Request.URL().String(), in)

			entries := make([]*proto.FetchHeaderEntry, 0, len(out))
			for k, v := range out {
				entries = append(entries, &proto.FetchHeaderEntry{Name: k, Value: v})
			}
			h.ContinueRequest(&proto.FetchContinueRequest{Headers: entries})
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("install header route: %w", err)
		}
		s.router = router
		go router.Run()
	}

	for _, script := range opts.InitScripts {
		if _, err := s.page.EvalOnNewDocument(script.Init()); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("add init script %s: %w", script.Name, err)
		}
	}

	wait := s.page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			s.dispatch(RequestEvent{URL: e.Request.URL, Stage: StageBeforeRequest, ResourceType: string(e.Type)})
		},
		func(e *proto.NetworkResponseReceived) {
			if isMainDocument(e, s.page.FrameID) {
				s.setDocumentStatus(e.Response.Status)
			}
			s.dispatch(RequestEvent{
				URL:          e.Response.URL,
				Stage:        StageCompleted,
				ResourceType: string(e.Type),
				Status:       e.Response.Status,
			})
		},
	)
	go wait()

	return s, nil
}

// Close shuts the browser down and kills the launched process.
func (r *Rod) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.browser.Close()
		r.l.Kill()
	})
	return r.closeErr
}

type rodSession struct {
	hub

	id     string
	inc    *rod.Browser
	page   *rod.Page
	router *rod.HijackRouter
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	docStatus int
}

func (s *rodSession) ID() string { return s.id }

func (s *rodSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isMainDocument reports whether e is the top-level document of the page.
// Iframe documents (ads, nested players) must not decide the page status.
func isMainDocument(e *proto.NetworkResponseReceived, main proto.PageFrameID) bool {
	return e.Type == proto.NetworkResourceTypeDocument && e.FrameID == main
}

func (s *rodSession) setDocumentStatus(status int) {
	s.mu.Lock()
	s.docStatus = status
	s.mu.Unlock()
}

func (s *rodSession) Navigate(ctx context.Context, url string) (Navigation, error) {
	if s.isClosed() {
		return Navigation{}, ErrSessionClosed
	}

	p := s.page.Context(ctx)
	waitLoaded := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return Navigation{}, err
	}
	waitLoaded()
	if err := ctx.Err(); err != nil {
		return Navigation{}, err
	}

	info, err := p.Info()
	if err != nil {
		return Navigation{}, err
	}

	s.mu.Lock()
	status := s.docStatus
	s.mu.Unlock()
	return Navigation{URL: info.URL, Status: status}, nil
}

func (s *rodSession) Evaluate(ctx context.Context, script Script) (any, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(script.Source)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.reset()

	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Stop())
	}
	errs = append(errs, s.page.Close(), s.inc.Close())
	s.cancel()
	return errors.Join(errs...)
}
