package browser

import (
	"fmt"

	"github.com/xkilldash9x/scalpel-dispatch/internal/automation"
)

// snapshotScript tags every visible, enabled interactive element with a fresh
// ref and returns them with the page text. Refs from an earlier snapshot are
// cleared first so a ref always names an element of the latest snapshot.
var snapshotScript = fmt.Sprintf(`(() => {
	const attr = %q;
	document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));

	const selector = [
		'a[href]', 'button', 'input:not([type=hidden])', 'select', 'textarea', 'summary',
		'[role=button]', '[role=link]', '[role=checkbox]', '[role=tab]', '[role=menuitem]',
		'[role=option]', '[role=textbox]', '[onclick]', '[contenteditable=""]', '[contenteditable=true]'
	].join(',');

	const isVisible = (el) => {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) return false;
		const style = window.getComputedStyle(el);
		return style.visibility !== 'hidden' && style.display !== 'none';
	};
	const isDisabled = (el) => el.disabled === true || el.getAttribute('aria-disabled') === 'true';
	const clip = (s, n) => (s || '').replace(/\s+/g, ' ').trim().slice(0, n);

	const elements = [];
	let ref = 0;
	for (const el of document.querySelectorAll(selector)) {
		if (!isVisible(el) || isDisabled(el)) continue;
		el.setAttribute(attr, String(ref));
		elements.push({
			ref: ref,
			tag: el.tagName.toLowerCase(),
			role: el.getAttribute('role') || '',
			type: el.getAttribute('type') || '',
			text: clip(el.innerText || el.value || el.getAttribute('aria-label') || el.title, 120),
			placeholder: clip(el.getAttribute('placeholder'), 80),
			href: el.tagName === 'A' ? clip(el.getAttribute('href'), 200) : '',
		});
		ref++;
	}

	return {
		url: location.href,
		title: document.title,
		elements: elements,
		text: document.body ? document.body.innerText : '',
	};
})()`, automation.RefAttribute)

// scrollScript scrolls the viewport by most of a screen; %d is +1 (down) or -1 (up).
const scrollScript = `window.scrollBy(0, %d * Math.round(window.innerHeight * 0.8))`
