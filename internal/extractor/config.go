package extractor

import (
	"time"

	"github.com/nartya-app/nartya/internal/provider"
)

// Config holds the timing knobs of one extraction. They must stay short
// enough for interactive use while leaving a player time to issue its
// first media request.
type Config struct {
	// NetworkTimeout bounds the network interception strategy once racing
	// starts.
	NetworkTimeout time.Duration
	// HookTimeout bounds the in-page fetch/XHR hook strategy.
	HookTimeout time.Duration
	// DOMTimeout bounds the DOM inspection strategy and the final read of
	// the video element.
	DOMTimeout time.Duration
	// SettleDelay is waited after navigation before racing.
	SettleDelay time.Duration
	// NavigationTimeout bounds the page load.
	NavigationTimeout time.Duration
	// BatchDelay separates items of ExtractMany.
	BatchDelay time.Duration
	// SessionsPerSecond caps how fast new browsing sessions are opened.
	// Zero or less disables the cap.
	SessionsPerSecond int
	UserAgent         string
}

// DefaultConfig returns the tuning used by the desktop client.
func DefaultConfig() Config {
	return Config{
		NetworkTimeout:    3 * time.Second,
		HookTimeout:       2 * time.Second,
		DOMTimeout:        2 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		NavigationTimeout: 15 * time.Second,
		BatchDelay:        500 * time.Millisecond,
		SessionsPerSecond: 2,
		UserAgent:         provider.DesktopUserAgent,
	}
}
