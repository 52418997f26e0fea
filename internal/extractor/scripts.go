package extractor

import (
	"fmt"

	"github.com/nartya-app/nartya/internal/browser"
)

// hookSource patches the page's own fetch, XMLHttpRequest.open and
// URL.createObjectURL and watches the DOM for a player element, so that the
// player reveals its media URL while it initializes. Hits are kept on
// window.__nartya and handed to waiters registered by HookWaitScript.
const hookSource = `() => {
	if (window.__nartya) return;
	const state = window.__nartya = { hits: [], blobs: [], waiters: [] };
	const media = /\.(m3u8|mp4|ts|webm)(\?|$)/i;

	const report = (type, url, loose) => {
		if (!url) return;
		url = String(url);
		if (url.startsWith('blob:')) return;
		if (!loose && !media.test(url)) return;
		const hit = { type: type, url: url };
		state.hits.push(hit);
		state.waiters.splice(0).forEach((fn) => fn(state.hits.slice()));
	};

	try {
		const origFetch = window.fetch;
		if (origFetch) {
			window.fetch = function (resource) {
				try {
					report('fetch', typeof resource === 'string' ? resource : resource && resource.url);
				} catch (e) {}
				return origFetch.apply(this, arguments);
			};
		}
	} catch (e) {}

	try {
		const origOpen = XMLHttpRequest.prototype.open;
		XMLHttpRequest.prototype.open = function (method, url) {
			try { report('xhr', url); } catch (e) {}
			return origOpen.apply(this, arguments);
		};
	} catch (e) {}

	try {
		const origCreate = URL.createObjectURL;
		URL.createObjectURL = function () {
			const out = origCreate.apply(this, arguments);
			try { state.blobs.push(String(out)); } catch (e) {}
			return out;
		};
	} catch (e) {}

	const scan = () => {
		const el = document.querySelector('video, source');
		if (!el) return false;
		const src = el.src || el.currentSrc || (el.getAttribute && el.getAttribute('src'));
		if (!src || src.startsWith('blob:')) return false;
		report('dom', src, true);
		return true;
	};
	const obs = new MutationObserver(() => { if (scan()) obs.disconnect(); });
	const watch = () => {
		const root = document.documentElement || document.body;
		if (!root) return;
		obs.observe(root, { childList: true, subtree: true, attributes: true, attributeFilter: ['src'] });
		if (scan()) obs.disconnect();
	};
	if (document.documentElement) watch();
	else document.addEventListener('DOMContentLoaded', watch);
}`

// HookScript installs the page hooks. It is registered as an init script
// so it runs before any page code.
var HookScript = browser.Script{Name: "hook-install", Source: hookSource}

// HookWaitScript resolves with the hits collected by the page hooks, waiting
// up to timeoutMs for the first one. It installs the hooks itself when the
// init script did not run, e.g. on an error page.
func HookWaitScript(timeoutMs int64) browser.Script {
	src := fmt.Sprintf(`() => new Promise((resolve) => {
	if (!window.__nartya) (%s)();
	const state = window.__nartya;
	if (state.hits.length) { resolve(state.hits.slice()); return; }
	let done = false;
	const finish = (hits) => { if (!done) { done = true; resolve(hits); } };
	state.waiters.push(finish);
	setTimeout(() => finish([]), %d);
})`, hookSource, timeoutMs)
	return browser.Script{Name: "hook-wait", Source: src}
}

// DOMScript reads live src/currentSrc of player elements, which a static
// snapshot of the document does not show.
var DOMScript = browser.Script{Name: "dom-inspect", Source: `() => {
	const els = Array.from(document.querySelectorAll('video, source'));
	for (const el of els) {
		const src = el.src || el.currentSrc || (el.getAttribute && el.getAttribute('src'));
		if (src && !src.startsWith('blob:')) return src;
	}
	return null;
}`}

// FinalVideoScript is the last-resort read of the primary video element.
// It may return a blob URL.
var FinalVideoScript = browser.Script{Name: "final-video", Source: `() => {
	const v = document.querySelector('video');
	if (!v) return null;
	return { src: v.src || null, currentSrc: v.currentSrc || null };
}`}
