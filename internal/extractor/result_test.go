package extractor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrectEmbedURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://vidmoly.net/embed-abc.html", CorrectEmbedURL("https://vidmoly.to/embed-abc.html"))
	assert.Equal(t, "https://vidmoly.net/embed-vidmoly.to.html", CorrectEmbedURL("https://vidmoly.to/embed-vidmoly.to.html"),
		"only the first occurrence is rewritten")
	assert.Equal(t, "https://sendvid.com/embed/1", CorrectEmbedURL("https://sendvid.com/embed/1"))
}

func TestClassifyNavigation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err   error
		code  Code
		fatal bool
	}{
		{errors.New("net::ERR_ABORTED"), "", false},
		{errors.New("net::ERR_ADDRESS_UNREACHABLE"), CodeSourceUnavailable, true},
		{errors.New("HTTP 410"), CodePageNotFound, true},
		{fmt.Errorf("goto: %w", context.DeadlineExceeded), CodeTimeout, true},
		{errors.New("Timeout 15000ms exceeded"), CodeTimeout, true},
		{errors.New("net::ERR_HTTP2_PROTOCOL_ERROR"), CodeNetworkError, true},
		{errors.New("weird"), CodeUnknownError, true},
	}
	for _, tt := range tests {
		code, fatal := classifyNavigation(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.fatal, fatal, tt.err.Error())
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{404, 410, 500, 503} {
		code, fatal := classifyStatus(status)
		assert.True(t, fatal, status)
		assert.Equal(t, CodePageNotFound, code)
	}
	for _, status := range []int{0, 200, 301, 403} {
		_, fatal := classifyStatus(status)
		assert.False(t, fatal, status)
	}
}

func TestFailure(t *testing.T) {
	t.Parallel()

	f := fail(CodeTimeout, "deadline")
	assert.Equal(t, "TIMEOUT: deadline", f.Error())
	assert.Equal(t, UserMessage(CodeTimeout), f.UserMessage)
	assert.Equal(t, "NO_VIDEO_FOUND", Failure{Code: CodeNoVideoFound}.Error())
	assert.Equal(t, UserMessage(CodeUnknownError), UserMessage("SOMETHING_ELSE"))

	var err error = f
	var target Failure
	assert.True(t, errors.As(err, &target))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SESSION_CREATED", StateSessionCreated.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestScanDocument(t *testing.T) {
	t.Parallel()

	html := `<video><source src="/media/ep2.mp4"></video>`
	assert.Equal(t, "https://host.example/media/ep2.mp4", scanDocument(html, "https://host.example/embed/2"))

	html = `<video src="blob:https://host.example/1"></video><script>x("https://cdn.example.com/a.m3u8")</script>`
	assert.Equal(t, "https://cdn.example.com/a.m3u8", scanDocument(html, "https://host.example/embed/2"))

	assert.Empty(t, scanDocument(`<p>nothing</p>`, "https://host.example/"))
}

func TestHookHits(t *testing.T) {
	t.Parallel()

	v := []any{
		map[string]any{"type": "fetch", "url": "https://a/1.m3u8"},
		map[string]any{"type": "xhr"},
		"https://b/2.mp4",
	}
	assert.Equal(t, []string{"https://a/1.m3u8", "https://b/2.mp4"}, hookHits(v))
	assert.Nil(t, hookHits(nil))
	assert.Nil(t, hookHits(42))
}

func TestSlotKeepsFirstOffer(t *testing.T) {
	t.Parallel()

	s := newSlot()
	assert.True(t, s.offer(winner{strategy: StrategyDOM, url: "a"}))
	assert.False(t, s.offer(winner{strategy: StrategyHook, url: "b"}))
	assert.Equal(t, "a", (<-s.ch).url)
	select {
	case w := <-s.ch:
		t.Fatalf("second offer leaked: %+v", w)
	default:
	}
}
