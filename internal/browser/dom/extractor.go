// internal/browser/dom/extractor.go
package dom

import "fmt"

// MarkerNamespace is the tag embedded in the marker attribute stamped onto
// live elements. It must not collide with attributes the page itself uses.
const MarkerNamespace = "pagepilot"

// MarkerAttribute is the full attribute name, data-pagepilot-index.
var MarkerAttribute = fmt.Sprintf("data-%s-index", MarkerNamespace)

// extractionScriptTemplate walks the live DOM inside the page's own scripting
// context. It classifies every element, assigns indices to qualifying
// interactive elements in DOM order, stamps the marker attribute on them, and
// returns the flat node map as a JSON string.
//
// Substitutions: %[1]q marker attribute name, %[2]d viewport expansion
// (-1 whole page, 0 viewport only, positive pads the viewport by that many px).
const extractionScriptTemplate = `(() => {
	const ATTR = %[1]q;
	const EXPANSION = %[2]d;

	for (const el of document.querySelectorAll('[' + ATTR + ']')) {
		try { el.removeAttribute(ATTR); } catch (e) {}
	}

	const SKIP_TAGS = new Set(['script', 'style', 'link', 'meta', 'noscript', 'template']);
	const INTERACTIVE_TAGS = new Set(['a', 'button', 'input', 'select', 'textarea', 'details', 'summary', 'label']);
	const INTERACTIVE_ROLES = new Set(['button', 'link', 'menuitem', 'checkbox', 'radio', 'tab', 'switch', 'textbox', 'combobox']);
	const INTERACTIVE_CURSORS = new Set(['pointer', 'text', 'grab', 'grabbing']);

	const vw = window.innerWidth;
	const vh = window.innerHeight;
	let nextIndex = 0;
	let nextId = 0;
	const nodes = {};

	function isVisible(style, rect) {
		return rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none';
	}

	function isTopmost(el, rect) {
		const hit = document.elementFromPoint(rect.left + rect.width / 2, rect.top + rect.height / 2);
		if (!hit) return EXPANSION === -1;
		return hit === el || el.contains(hit) || hit.contains(el);
	}

	function inViewport(rect) {
		if (EXPANSION === -1) return true;
		return rect.bottom >= -EXPANSION && rect.top <= vh + EXPANSION &&
			rect.right >= -EXPANSION && rect.left <= vw + EXPANSION;
	}

	function isInteractive(el, tag, style) {
		if (INTERACTIVE_TAGS.has(tag)) {
			if (el.disabled === true) return false;
			if (el.readOnly === true) return false;
			return true;
		}
		if (INTERACTIVE_CURSORS.has(style.cursor)) return true;
		if (el.isContentEditable) return true;
		const role = el.getAttribute('role');
		if (role && INTERACTIVE_ROLES.has(role)) return true;
		if (el.hasAttribute('onclick') || typeof el.onclick === 'function') return true;
		return false;
	}

	function snapshotAttributes(el, tag) {
		const attrs = {};
		for (const a of el.attributes) {
			if (a.name === ATTR) continue;
			attrs[a.name] = a.value;
		}
		if (tag === 'input' && (el.type === 'checkbox' || el.type === 'radio')) {
			attrs['checked'] = el.checked ? 'true' : 'false';
		}
		return attrs;
	}

	function scrollInfo(el, style) {
		const scrollableX = style.overflowX === 'auto' || style.overflowX === 'scroll';
		const scrollableY = style.overflowY === 'auto' || style.overflowY === 'scroll';
		if (!scrollableX && !scrollableY) return null;
		const overflowX = scrollableX ? el.scrollWidth - el.clientWidth : 0;
		const overflowY = scrollableY ? el.scrollHeight - el.clientHeight : 0;
		if (overflowX < 4 && overflowY < 4) return null;
		return {
			left: scrollableX ? el.scrollLeft : 0,
			top: scrollableY ? el.scrollTop : 0,
			right: scrollableX ? Math.max(0, overflowX - el.scrollLeft) : 0,
			bottom: scrollableY ? Math.max(0, overflowY - el.scrollTop) : 0,
		};
	}

	function walk(el) {
		const tag = el.tagName.toLowerCase();
		if (SKIP_TAGS.has(tag)) return null;

		let node;
		try {
			const style = window.getComputedStyle(el);
			const rect = el.getBoundingClientRect();
			const visible = isVisible(style, rect);
			const topmost = visible ? (EXPANSION === -1 ? true : isTopmost(el, rect)) : false;
			const inView = visible ? inViewport(rect) : false;

			node = {
				kind: 'element',
				tag: tag,
				childIds: [],
				visible: visible,
				topmost: topmost,
				inViewport: inView,
				interactive: false,
			};

			if (visible && topmost && isInteractive(el, tag, style) && (inView || EXPANSION === -1)) {
				node.interactive = true;
				node.index = nextIndex++;
				node.attributes = snapshotAttributes(el, tag);
				el.setAttribute(ATTR, String(node.index));
			}

			const sc = scrollInfo(el, style);
			if (sc) node.scrollInfo = sc;
		} catch (e) {
			return null;
		}

		for (const child of el.childNodes) {
			try {
				if (child.nodeType === Node.TEXT_NODE) {
					const text = (child.textContent || '').trim();
					if (text) {
						const id = 'n' + (nextId++);
						nodes[id] = { kind: 'text', text: text, visible: node.visible };
						node.childIds.push(id);
					}
				} else if (child.nodeType === Node.ELEMENT_NODE) {
					const childId = walk(child);
					if (childId !== null) node.childIds.push(childId);
				}
			} catch (e) {}
		}

		const id = 'n' + (nextId++);
		nodes[id] = node;
		return id;
	}

	const rootId = walk(document.body);
	return JSON.stringify({ rootId: rootId, nodes: nodes });
})()`

// ExtractionScript renders the in-page walk for the given viewport expansion.
func ExtractionScript(viewportExpansion int) string {
	return fmt.Sprintf(extractionScriptTemplate, MarkerAttribute, viewportExpansion)
}
