package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/root4loot/pagesnap/pkg/browser"
)

var ErrMenuItemNotFound = errors.New("menu item not found")

// SearchLinks returns the href of every anchor in the current page that contains keyword, in document order.
func SearchLinks(ctx context.Context, s browser.Session, keyword string) ([]string, error) {
	doc, err := Snapshot(ctx, s)
	if err != nil {
		return nil, err
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href != "" && strings.Contains(href, keyword) {
			links = append(links, href)
		}
	})
	return links, nil
}

// OpenMenuItem clicks the first item matching itemSelector whose text contains name. When the
// first item is hidden the navbar with navbarID is clicked first to expand it.
func OpenMenuItem(ctx context.Context, s browser.Session, navbarID, itemSelector, name string, wait time.Duration) error {
	visible, err := s.Visible(ctx, itemSelector)
	if err != nil {
		return err
	}

	if !visible {
		if err := s.Click(ctx, fmt.Sprintf("[id=%q]", navbarID)); err != nil {
			return fmt.Errorf("error opening navbar %s: %w", navbarID, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	clicked, err := s.ClickText(ctx, itemSelector, name)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %q in %s", ErrMenuItemNotFound, name, itemSelector)
	}
	return nil
}
