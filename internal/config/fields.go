package config

import (
	"strings"

	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/extractor"
)

const (
	KeyDebug             = "debug"
	KeyBrowserBackend    = "browser.backend"
	KeyBrowserHeadless   = "browser.headless"
	KeyBrowserInstall    = "browser.install"
	KeyNetworkTimeout    = "extract.network_timeout"
	KeyHookTimeout       = "extract.hook_timeout"
	KeyDOMTimeout        = "extract.dom_timeout"
	KeySettleDelay       = "extract.settle_delay"
	KeyNavigationTimeout = "extract.navigation_timeout"
	KeyBatchDelay        = "extract.batch_delay"
	KeySessionsPerSecond = "extract.sessions_per_second"
	KeyUserAgent         = "extract.user_agent"
	KeyCachePath         = "cache.path"
	KeyCacheWarmWorkers  = "cache.warm_workers"
	KeyServerAddr        = "server.addr"
	KeyProbeImpersonate  = "probe.impersonate"
)

// Field is one configuration key with its default.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable that overrides the field.
func (f Field) Env() string {
	return envPrefix + "_" + strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
}

// Fields lists every key in display order.
var Fields = defaultFields()

func defaultFields() []Field {
	d := extractor.DefaultConfig()
	return []Field{
		{KeyDebug, false, "Enable debug logging"},
		{KeyBrowserBackend, browser.BackendPlaywright, "Browser backend: playwright or rod"},
		{KeyBrowserHeadless, true, "Run the browser without a window"},
		{KeyBrowserInstall, false, "Download the browser on first launch"},
		{KeyNetworkTimeout, d.NetworkTimeout, "How long network interception waits for a media request"},
		{KeyHookTimeout, d.HookTimeout, "How long in-page API hooks wait for a media URL"},
		{KeyDOMTimeout, d.DOMTimeout, "Budget of DOM inspection and the final video read"},
		{KeySettleDelay, d.SettleDelay, "Pause after the page loads before racing"},
		{KeyNavigationTimeout, d.NavigationTimeout, "Page load timeout"},
		{KeyBatchDelay, d.BatchDelay, "Pause between items of a batch"},
		{KeySessionsPerSecond, d.SessionsPerSecond, "Browser sessions opened per second, 0 for no limit"},
		{KeyUserAgent, d.UserAgent, "User agent of browser sessions"},
		{KeyCachePath, "", "SQLite file persisting the episode cache, empty for memory only"},
		{KeyCacheWarmWorkers, 2, "Adjacent episodes warmed at once"},
		{KeyServerAddr, "127.0.0.1:7878", "Listen address of the local API"},
		{KeyProbeImpersonate, false, "Probe HTTPS media with a Chrome TLS fingerprint"},
	}
}
