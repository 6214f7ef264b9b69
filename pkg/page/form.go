// Package page holds the helpers that act on the active page of a browser session:
// form filling, navigation, element waits and link discovery.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/root4loot/pagesnap/pkg/browser"
)

var ErrUnexpectedTag = errors.New("unexpected element tag")

// Snapshot parses the rendered markup of the active page.
func Snapshot(ctx context.Context, s browser.Session) (*goquery.Document, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading page source: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Find returns the first element matching selector in the current page source.
func Find(ctx context.Context, s browser.Session, selector string) (*goquery.Selection, error) {
	doc, err := Snapshot(ctx, s)
	if err != nil {
		return nil, err
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return sel, nil
}

// InputText types value into the input element matching selector.
func InputText(ctx context.Context, s browser.Session, selector, value string) error {
	field, err := Find(ctx, s, selector)
	if err != nil {
		return err
	}

	if tag := goquery.NodeName(field); tag != "input" {
		return fmt.Errorf("%w: %s is <%s>, want <input>", ErrUnexpectedTag, selector, tag)
	}

	return s.Input(ctx, selector, value)
}

// Submit clicks the element matching selector, or submits its form natively when clickToSubmit is false.
func Submit(ctx context.Context, s browser.Session, selector string, clickToSubmit bool) error {
	if _, err := Find(ctx, s, selector); err != nil {
		return err
	}

	if clickToSubmit {
		return s.Click(ctx, selector)
	}
	return s.Submit(ctx, selector)
}
