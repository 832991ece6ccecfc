package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
)

const copyJS = `async (u) => {
	try {
		await navigator.clipboard.writeText(u);
		return true;
	} catch (e) {
		const t = document.createElement('textarea');
		t.value = u;
		t.style.position = 'fixed';
		t.style.opacity = '0';
		document.body.appendChild(t);
		t.select();
		const ok = document.execCommand('copy');
		t.remove();
		return ok;
	}
}`

// Page performs activations in the tab they came from: copy writes the
// URL to the clipboard, navigate opens it in place.
type Page struct {
	page *rod.Page
}

// NewPage creates a Page sink bound to page.
func NewPage(page *rod.Page) *Page { return &Page{page: page} }

func (p *Page) Deliver(ctx context.Context, a Activation) error {
	if p.page == nil {
		return errors.New("page: no tab")
	}
	page := p.page.Context(ctx)
	switch a.Mode {
	case ModeNavigate:
		if _, err := page.Eval(`(u) => { window.location.assign(u) }`, a.URL); err != nil {
			return fmt.Errorf("page: navigate: %w", err)
		}
		return nil
	case ModeCopy, "":
		v, err := page.Eval(copyJS, a.URL)
		if err != nil {
			return fmt.Errorf("page: copy: %w", err)
		}
		if !v.Value.Bool() {
			return errors.New("page: copy refused")
		}
		return nil
	default:
		return fmt.Errorf("page: unknown mode %q", a.Mode)
	}
}

func (p *Page) Close() error { return nil }
