package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grafana/regexp"

	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/candidate"
	"github.com/nartya-app/nartya/internal/util"
)

// Strategy names, also used as metric labels.
const (
	StrategyNetwork = "network"
	StrategyDOM     = "dom"
	StrategyHook    = "hook"
	StrategyFinal   = "final"
)

// winner is the committed result of a race.
type winner struct {
	strategy string
	url      string
}

// slot accepts the first offered winner and ignores every later one.
// Strategies keep running until their own timeout when the backend cannot
// cancel them, so late offers are expected.
type slot struct {
	once sync.Once
	ch   chan winner
}

func newSlot() *slot {
	return &slot{ch: make(chan winner, 1)}
}

func (s *slot) offer(w winner) bool {
	won := false
	s.once.Do(func() {
		s.ch <- w
		won = true
	})
	return won
}

// netWatch subscribes to the session's request events before navigation so
// that media requested while the page is still loading is not missed.
type netWatch struct {
	found       *slot
	unsubscribe func()
}

func watchNetwork(sess browser.Session) *netWatch {
	w := &netWatch{found: newSlot()}
	w.unsubscribe = sess.Subscribe(func(ev browser.RequestEvent) {
		rule, ok := candidate.Match(ev.URL)
		if !ok {
			return
		}
		if w.found.offer(winner{strategy: StrategyNetwork, url: ev.URL}) {
			util.Debug("Network candidate", "session", sess.ID(), "stage", ev.Stage, "rule", rule, "url", truncate(ev.URL))
		}
	})
	return w
}

func (w *netWatch) stop() {
	w.unsubscribe()
}

// wait returns the first candidate seen on the wire, or "" once timeout
// elapses.
func (w *netWatch) wait(ctx context.Context, timeout time.Duration) string {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case hit := <-w.found.ch:
		// Put it back so a second wait still sees it.
		w.found.ch <- hit
		return hit.url
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

var scriptMediaURL = regexp.MustCompile(`(?i)https?://[^\s'"]+\.(mp4|m3u8)(\?[^'"]*)?`)

// inspectDOM looks for a player element with a real src, then for an
// absolute media URL in inline scripts. The snapshot is parsed with goquery;
// live currentSrc values are read from the page afterwards.
func inspectDOM(ctx context.Context, sess browser.Session, pageURL string) string {
	html, err := sess.Content(ctx)
	if err != nil {
		util.Debug("DOM snapshot failed", "session", sess.ID(), "error", err)
	} else if found := scanDocument(html, pageURL); found != "" {
		return found
	}

	v, err := sess.Evaluate(ctx, DOMScript)
	if err != nil {
		util.Debug("DOM inspection failed", "session", sess.ID(), "error", err)
		return ""
	}
	s, _ := v.(string)
	return s
}

// scanDocument is the static half of the DOM strategy.
func scanDocument(html, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	base, _ := url.Parse(pageURL)
	var found string
	doc.Find("video, source").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.HasPrefix(src, "blob:") {
			return true
		}
		found = resolve(base, src)
		return false
	})
	if found != "" {
		return found
	}

	var scripts strings.Builder
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		scripts.WriteString(sel.Text())
		scripts.WriteByte('\n')
	})
	return scriptMediaURL.FindString(scripts.String())
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// awaitHooks waits for the in-page hooks to report a media URL and returns
// the first hit that passes the candidate filter.
func awaitHooks(ctx context.Context, sess browser.Session, timeout time.Duration) string {
	v, err := sess.Evaluate(ctx, HookWaitScript(timeout.Milliseconds()))
	if err != nil {
		util.Debug("Hook wait failed", "session", sess.ID(), "error", err)
		return ""
	}
	for _, hit := range hookHits(v) {
		if candidate.IsVideoCandidate(hit) {
			return hit
		}
	}
	return ""
}

// hookHits flattens what the hook script resolved with. Backends decode
// the page value into []any of map[string]any; a single hit object or a
// bare string are accepted too.
func hookHits(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case map[string]any:
		if u, ok := t["url"].(string); ok && u != "" {
			return []string{u}
		}
		return nil
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, hookHits(item)...)
		}
		return out
	default:
		return nil
	}
}

// readFinalVideo is the last resort once every strategy came back empty.
func readFinalVideo(ctx context.Context, sess browser.Session) string {
	v, err := sess.Evaluate(ctx, FinalVideoScript)
	if err != nil {
		util.Debug("Final video read failed", "session", sess.ID(), "error", err)
		return ""
	}
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"src", "currentSrc"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// race runs every strategy concurrently and commits to the first one that
// yields a candidate. It returns false when all of them came back empty.
// A strategy that panics or errors counts as having found nothing.
func (e *Engine) race(ctx context.Context, sess browser.Session, pageURL string, watch *netWatch) (winner, bool) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	strategies := []struct {
		name    string
		timeout time.Duration
		run     func(ctx context.Context) string
	}{
		{StrategyNetwork, e.cfg.NetworkTimeout, func(ctx context.Context) string {
			return watch.wait(ctx, e.cfg.NetworkTimeout)
		}},
		{StrategyDOM, e.cfg.DOMTimeout, func(ctx context.Context) string {
			return inspectDOM(ctx, sess, pageURL)
		}},
		{StrategyHook, e.cfg.HookTimeout, func(ctx context.Context) string {
			return awaitHooks(ctx, sess, e.cfg.HookTimeout)
		}},
	}

	result := newSlot()
	var wg sync.WaitGroup
	for _, st := range strategies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					util.Debug("Strategy panicked", "session", sess.ID(), "strategy", st.name, "panic", fmt.Sprint(r))
				}
			}()

			// The in-page wait gets a little headroom over its own timer.
			stCtx, stCancel := context.WithTimeout(raceCtx, st.timeout+250*time.Millisecond)
			defer stCancel()

			found := st.run(stCtx)
			if found == "" || !candidate.IsVideoCandidate(found) {
				util.Debug("Strategy found nothing", "session", sess.ID(), "strategy", st.name)
				return
			}
			result.offer(winner{strategy: st.name, url: found})
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case w := <-result.ch:
		return w, true
	case <-allDone:
		select {
		case w := <-result.ch:
			return w, true
		default:
			return winner{}, false
		}
	case <-ctx.Done():
		return winner{}, false
	}
}

func truncate(s string) string {
	const limit = 100
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
