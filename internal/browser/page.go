package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
)

// Page is one Chrome tab
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions in the tab, bounded by the deadline and cancellation
// of the caller's ctx
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, dl)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && runCtx.Err() != nil {
		return runCtx.Err()
	}
	return err
}

// Navigate loads url, waits for the body and scrolls a little so lazy
// widgets render
func (p *Page) Navigate(ctx context.Context, url string) error {
	var scrolled bool
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollBy(0, 500); true`, &scrolled),
	)
}

const clickSelectorJS = `(() => {
  const visible = (el) => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  const el = Array.from(document.querySelectorAll(%s)).find(visible);
  if (!el) return false;
  el.click();
  return true;
})()`

// ClickSelector clicks the first visible element matching selector
func (p *Page) ClickSelector(ctx context.Context, selector string) (bool, error) {
	return p.clickJS(ctx, fmt.Sprintf(clickSelectorJS, jsString(selector)))
}

const clickTextJS = `(() => {
  const label = %s;
  const visible = (el) => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  const el = Array.from(document.querySelectorAll('button, [role="button"], a'))
    .find(n => visible(n) && (n.innerText || '').trim() === label);
  if (!el) return false;
  el.click();
  return true;
})()`

// ClickText clicks the first visible button whose text is label
func (p *Page) ClickText(ctx context.Context, label string) (bool, error) {
	return p.clickJS(ctx, fmt.Sprintf(clickTextJS, jsString(label)))
}

func (p *Page) clickJS(ctx context.Context, js string) (bool, error) {
	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

const scanLinksJS = `(() => {
  const prefix = %s;
  const found = [];
  const push = (v) => {
    if (v === null || v === undefined) return;
    v = String(v);
    if (v.includes(prefix)) found.push(v);
  };
  document.querySelectorAll('input,textarea,[data-copyvalue]').forEach(n => {
    try { push(n.value); } catch (e) {}
    try { push(n.textContent); } catch (e) {}
    try { push(n.getAttribute('data-copyvalue')); } catch (e) {}
  });
  if (found.length === 0) {
    const text = (document.body && document.body.innerText) || '';
    let i = text.indexOf(prefix);
    while (i >= 0) {
      found.push(text.slice(i, i + prefix.length + 64));
      i = text.indexOf(prefix, i + prefix.length);
    }
  }
  return found;
})()`

// ScanLinks returns DOM values that contain prefix
func (p *Page) ScanLinks(ctx context.Context, prefix string) ([]string, error) {
	var found []string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(scanLinksJS, jsString(prefix)), &found)); err != nil {
		return nil, err
	}
	return found, nil
}

// Close closes the tab
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
