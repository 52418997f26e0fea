package cli

import (
	"errors"
	"fmt"

	"github.com/nartya-app/nartya/internal/browser"
	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/config"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/probe"
	"github.com/nartya-app/nartya/internal/util"
)

// runtime holds everything a command that extracts needs. Close releases
// it in reverse order.
type runtime struct {
	launcher  browser.Launcher
	engine    *extractor.Engine
	cache     *cache.Cache
	navigator *playback.Navigator
}

func newRuntime(c *config.Config) (*runtime, error) {
	launcher, err := browser.Open(c.Browser.Backend, c.Browser.LaunchOptions())
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	rt := &runtime{
		launcher: launcher,
		engine:   extractor.New(launcher, c.Extract),
	}

	store, err := openStore(c.Cache.Path)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.cache, err = cache.New(store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		rt.Close()
		return nil, err
	}

	rt.navigator, err = playback.New(rt.engine, rt.cache, playback.WithWarmWorkers(c.Cache.WarmWorkers))
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// openStore returns nil, without error, when persistence is off or
// unavailable in this build.
func openStore(path string) (cache.Store, error) {
	if path == "" {
		return nil, nil
	}
	store, err := cache.OpenSQLite(path)
	if errors.Is(err, cache.ErrCgoDisabled) {
		util.Warn("Episode cache persistence unavailable, keeping it in memory")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open episode cache: %w", err)
	}
	return store, nil
}

func (rt *runtime) Close() {
	if rt.navigator != nil {
		rt.navigator.Close()
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			util.Debug("Cache close failed", "error", err)
		}
	}
	if rt.launcher != nil {
		if err := rt.launcher.Close(); err != nil {
			util.Debug("Browser close failed", "error", err)
		}
	}
}

func newProber(c *config.Config) *probe.Prober {
	if c.Probe.Impersonate {
		return probe.New(probe.WithChromeTLS())
	}
	return probe.New()
}
