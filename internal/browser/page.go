package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the Chrome-backed Surface. It owns the page, the browser
// connection, and the launched process when there is one.
type Page struct {
	id       string
	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher
	attached bool

	actionTimeout time.Duration
	navTimeout    time.Duration
}

var _ Surface = (*Page)(nil)

// ID returns the session id.
func (p *Page) ID() string { return p.id }

func (p *Page) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

func (p *Page) evalInto(ctx context.Context, out interface{}, js string, args ...interface{}) error {
	res, err := p.eval(ctx, js, args...)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("empty evaluation result")
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal evaluation result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

// Count returns how many elements match selector. An invalid selector is an
// error, not zero.
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.evalInto(ctx, &n, `(sel) => document.querySelectorAll(sel).length`, selector)
	return n, err
}

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Timeout(p.actionTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill replaces the content of a textarea or contenteditable element.
func (p *Page) Fill(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Timeout(p.actionTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	if _, err := el.Evaluate(&rod.EvalOptions{
		JS: `function () {
			if ('value' in this) { this.value = ''; } else { this.textContent = ''; }
			this.dispatchEvent(new Event('input', { bubbles: true }));
		}`,
		ByValue: true,
	}); err != nil {
		return fmt.Errorf("clear %q: %w", selector, err)
	}
	return el.Input(text)
}

// PressEnter focuses the element matching selector and sends Enter.
func (p *Page) PressEnter(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Timeout(p.actionTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.Focus(); err != nil {
		return err
	}
	return el.Type(input.Enter)
}

// Enabled reports whether the first element matching selector accepts
// input: no disabled attribute, aria-disabled not "true", and pointer events
// not suppressed.
func (p *Page) Enabled(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.evalInto(ctx, &ok, `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		if (el.hasAttribute('disabled')) return false;
		if (el.getAttribute('aria-disabled') === 'true') return false;
		if (getComputedStyle(el).pointerEvents === 'none') return false;
		return true;
	}`, selector)
	return ok, err
}

// LastBlockState snapshots the last block matching selector. Text and the
// save control are read from the enclosing turn, where the surface renders
// its affordances.
func (p *Page) LastBlockState(ctx context.Context, selector string, saveControls []string) (BlockState, error) {
	var st BlockState
	if saveControls == nil {
		saveControls = []string{}
	}
	err := p.evalInto(ctx, &st, `(sel, saveSel) => {
		const blocks = document.querySelectorAll(sel);
		if (!blocks.length) return { found: false, media: [], text: '', save_control: false };
		const block = blocks[blocks.length - 1];
		const turn = block.closest('article') || block;
		const media = Array.from(block.querySelectorAll('img')).map((img) => {
			const rect = img.getBoundingClientRect();
			return {
				src: img.currentSrc || img.getAttribute('src') || '',
				complete: !!img.complete,
				natural_width: img.naturalWidth || 0,
				natural_height: img.naturalHeight || 0,
				rendered_width: Math.round(rect.width) || 0,
				rendered_height: Math.round(rect.height) || 0,
			};
		});
		let save = false;
		for (const s of saveSel) {
			try {
				if (turn.querySelector(s)) { save = true; break; }
			} catch (e) {}
		}
		return { found: true, media, text: turn.innerText || '', save_control: save };
	}`, selector, saveControls)
	return st, err
}

// LastBlockHTML returns the outer HTML of the last block matching selector,
// or "" when none matches.
func (p *Page) LastBlockHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := p.evalInto(ctx, &html, `(sel) => {
		const blocks = document.querySelectorAll(sel);
		return blocks.length ? blocks[blocks.length - 1].outerHTML : '';
	}`, selector)
	return html, err
}

// InstallMutationProbe attaches a MutationObserver to the last block matching
// selector. The counter lives on window so it survives between evaluations.
func (p *Page) InstallMutationProbe(ctx context.Context, selector string) error {
	var ok bool
	if err := p.evalInto(ctx, &ok, `(sel) => {
		const blocks = document.querySelectorAll(sel);
		if (!blocks.length) return false;
		if (window.__genimgProbe) window.__genimgProbe.disconnect();
		window.__genimgMutations = 0;
		window.__genimgProbe = new MutationObserver((records) => {
			window.__genimgMutations += records.length;
		});
		window.__genimgProbe.observe(blocks[blocks.length - 1], {
			childList: true, attributes: true, characterData: true, subtree: true,
		});
		return true;
	}`, selector); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// MutationCount returns the probe's counter.
func (p *Page) MutationCount(ctx context.Context) (int, error) {
	var n int
	err := p.evalInto(ctx, &n, `() => window.__genimgMutations || 0`)
	return n, err
}

// RemoveMutationProbe disconnects the probe.
func (p *Page) RemoveMutationProbe(ctx context.Context) error {
	_, err := p.eval(ctx, `() => {
		if (window.__genimgProbe) window.__genimgProbe.disconnect();
		window.__genimgProbe = null;
		return true;
	}`)
	return err
}

// URL returns the page's current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	return pg.WaitLoad()
}

// Fetch downloads url from inside the page so the session's cookies apply.
func (p *Page) Fetch(ctx context.Context, url string) (Fetched, error) {
	var out struct {
		ContentType string `json:"content_type"`
		Body        string `json:"body"`
	}
	fctx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()
	err := p.evalInto(fctx, &out, `async (url) => {
		const resp = await fetch(url, { credentials: 'include' });
		if (!resp.ok) throw new Error('HTTP ' + resp.status);
		const bytes = new Uint8Array(await resp.arrayBuffer());
		let bin = '';
		for (let i = 0; i < bytes.length; i += 0x8000) {
			bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
		}
		return { content_type: resp.headers.get('content-type') || '', body: btoa(bin) };
	}`, url)
	if err != nil {
		return Fetched{}, err
	}
	body, err := base64.StdEncoding.DecodeString(out.Body)
	if err != nil {
		return Fetched{}, fmt.Errorf("decode body: %w", err)
	}
	return Fetched{Body: body, ContentType: out.ContentType}, nil
}

// Screenshot captures the viewport, or the whole page when fullPage is set.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(fullPage, nil)
}

// HTML returns the page markup.
func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

// Close closes the page and, unless attached to an external Chrome, the
// browser process. The profile directory is left in place.
func (p *Page) Close() error {
	var firstErr error
	if p.page != nil {
		if err := p.page.Close(); err != nil {
			firstErr = err
		}
	}
	if p.attached {
		return firstErr
	}
	if p.browser != nil {
		if err := p.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.launcher != nil {
		p.launcher.Kill()
	}
	return firstErr
}
