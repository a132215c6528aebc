// internal/browser/page/scripts.go
package page

import (
	"fmt"

	"github.com/xkilldash9x/pagepilot/internal/browser/dom"
)

// The interaction scripts all return a small JSON object with an "ok" flag so
// element-level failures surface as data instead of thrown exceptions.

func markerIndicesScript() string {
	return fmt.Sprintf(`(() => {
	const els = document.querySelectorAll('[%s]');
	return Array.from(els)
		.map(el => parseInt(el.getAttribute(%q), 10))
		.sort((a, b) => a - b);
})()`, dom.MarkerAttribute, dom.MarkerAttribute)
}

func clickScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return { ok: false, error: 'element not found on page' };
	if (el.disabled === true) return { ok: false, error: 'element is disabled' };
	el.scrollIntoView({ block: 'center', inline: 'center' });
	const targetBlank = el.getAttribute('target') === '_blank';
	el.click();
	return { ok: true, targetBlank: targetBlank };
})()`, jsonEncode(selector))
}

func typeScript(selector, text string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return { ok: false, error: 'element not found on page' };
	if (el.disabled === true || el.readOnly === true) return { ok: false, error: 'element is disabled or read-only' };
	el.scrollIntoView({ block: 'center', inline: 'center' });
	el.focus();
	const text = %s;
	if (el.isContentEditable) {
		el.textContent = text;
	} else {
		el.value = '';
		el.value = text;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return { ok: true };
})()`, jsonEncode(selector), jsonEncode(text))
}

func selectScript(selector, label string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	if (!el) return { ok: false, error: 'element not found on page' };
	if (el.tagName.toLowerCase() !== 'select') return { ok: false, error: 'element is not a <select>' };
	if (el.options.length === 0) return { ok: true, skipped: true };
	el.scrollIntoView({ block: 'center', inline: 'center' });
	const wanted = %s.trim();
	for (const opt of el.options) {
		if (opt.text.trim() === wanted || opt.label.trim() === wanted) {
			el.value = opt.value;
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return { ok: true, selected: opt.text.trim() };
		}
	}
	return { ok: false, error: 'no option with label ' + JSON.stringify(wanted) };
})()`, jsonEncode(selector), jsonEncode(label))
}

// scrollVerticalScript scrolls the element's own scrollTop when a selector is
// given; if that moves it by no more than half a pixel, the window is
// scrolled instead.
func scrollVerticalScript(selector string, amount float64) string {
	return fmt.Sprintf(`(() => {
	const amount = %s;
	const sel = %s;
	if (sel) {
		const el = document.querySelector(sel);
		if (el) {
			const before = el.scrollTop;
			el.scrollTop = before + amount;
			if (Math.abs(el.scrollTop - before) > 0.5) {
				return { ok: true, target: 'element', moved: el.scrollTop - before };
			}
		}
	}
	const before = window.scrollY;
	window.scrollBy(0, amount);
	return { ok: true, target: 'window', moved: window.scrollY - before };
})()`, jsonEncode(amount), jsonEncode(selector))
}

func scrollHorizontalScript(selector string, amount float64) string {
	return fmt.Sprintf(`(() => {
	const amount = %s;
	const sel = %s;
	if (sel) {
		const el = document.querySelector(sel);
		if (el) {
			const before = el.scrollLeft;
			el.scrollLeft = before + amount;
			if (Math.abs(el.scrollLeft - before) > 0.5) {
				return { ok: true, target: 'element', moved: el.scrollLeft - before };
			}
		}
	}
	const before = window.scrollX;
	window.scrollBy(amount, 0);
	return { ok: true, target: 'window', moved: window.scrollX - before };
})()`, jsonEncode(amount), jsonEncode(selector))
}

func pageInfoScript() string {
	return `(() => {
	const de = document.documentElement;
	const body = document.body;
	const vw = window.innerWidth;
	const vh = window.innerHeight;
	const pw = Math.max(de.scrollWidth, body ? body.scrollWidth : 0);
	const ph = Math.max(de.scrollHeight, body ? body.scrollHeight : 0);
	const sx = window.scrollX;
	const sy = window.scrollY;
	const pixelsAbove = Math.max(0, sy);
	const pixelsBelow = Math.max(0, ph - vh - sy);
	return {
		viewport_width: vw,
		viewport_height: vh,
		page_width: pw,
		page_height: ph,
		scroll_x: sx,
		scroll_y: sy,
		pixels_above: pixelsAbove,
		pixels_below: pixelsBelow,
		pages_above: vh > 0 ? pixelsAbove / vh : 0,
		pages_below: vh > 0 ? pixelsBelow / vh : 0,
		total_pages: vh > 0 ? ph / vh : 0,
		current_page_position: ph > vh ? sy / (ph - vh) : 0,
		pixels_left: Math.max(0, sx),
		pixels_right: Math.max(0, pw - vw - sx),
	};
})()`
}

func locationScript() string {
	return `(() => ({ url: location.href, title: document.title }))()`
}

// userScript wraps caller-supplied source in an async IIFE so 'await' and
// 'return' both work at the top level.
func userScript(source string) string {
	return fmt.Sprintf("(async () => { %s })()", source)
}
