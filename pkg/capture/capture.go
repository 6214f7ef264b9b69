// Package capture saves a screenshot, the rendered text and the prettified markup of a page
// region as one artifact set sharing a base filename.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/root4loot/goutils/log"

	"github.com/root4loot/pagesnap/pkg/browser"
	"github.com/root4loot/pagesnap/pkg/page"
)

var ErrNoDirectory = errors.New("no output directory given")

// FallbackSelector is captured when the requested selector matches nothing.
const FallbackSelector = "body"

const (
	ImageExt  = ".png"
	TextExt   = ".txt"
	MarkupExt = ".html.txt"
)

func init() {
	log.Init("pagesnap")
}

// Request describes a single capture.
type Request struct {
	URL       string        // page to open, relative to the current origin; empty keeps the current page
	Filename  string        // base filename; derived from URL when empty
	Directory string        // output directory, required
	Selector  string        // element to capture; body when empty or unmatched
	MinWait   time.Duration // settle time before capturing
	Imprint   bool          // add the page URL and capture time below the screenshot
}

// Result is a captured artifact set.
type Result struct {
	URL      string
	Base     string
	Selector string // selector that was captured
	FellBack bool   // requested selector matched nothing
	Image    Image
	Text     string
	Markup   string

	ImagePath  string
	TextPath   string
	MarkupPath string
}

// Capture runs one capture against the active page and writes its artifacts to req.Directory.
func Capture(ctx context.Context, s browser.Session, req Request) (*Result, error) {
	if req.Directory == "" {
		return nil, ErrNoDirectory
	}

	result, err := Take(ctx, s, req)
	if err != nil {
		return nil, err
	}

	if err := result.WriteToFolder(req.Directory); err != nil {
		return nil, err
	}

	log.Resultf("Captured %s to %s", result.URL, result.ImagePath)
	return result, nil
}

// Take opens the requested page, resizes the viewport to the full document and captures the
// target element without writing anything to disk.
func Take(ctx context.Context, s browser.Session, req Request) (*Result, error) {
	if req.URL != "" {
		if err := page.MoveTo(ctx, s, req.URL, req.MinWait); err != nil {
			return nil, err
		}
	} else if err := page.Settle(ctx, req.MinWait); err != nil {
		return nil, err
	}

	current, err := s.URL(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{URL: current, Base: req.Filename}

	if result.Base == "" {
		source := req.URL
		if source == "" {
			source = current
		}
		if result.Base, err = FilenameFromURL(source); err != nil {
			return nil, err
		}
	}

	doc, err := page.Snapshot(ctx, s)
	if err != nil {
		return nil, err
	}

	result.Selector = req.Selector
	var target *goquery.Selection
	if req.Selector != "" {
		target = doc.Find(req.Selector).First()
	}
	if target == nil || target.Length() == 0 {
		if req.Selector != "" {
			log.Warnf("Selector %s matched nothing on %s, capturing %s", req.Selector, current, FallbackSelector)
			result.FellBack = true
		}
		result.Selector = FallbackSelector
		target = doc.Find(FallbackSelector).First()
	}

	width, height, err := s.ScrollSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("error measuring page: %w", err)
	}
	if err := s.SetViewport(ctx, width, height); err != nil {
		return nil, fmt.Errorf("error resizing viewport to %dx%d: %w", width, height, err)
	}

	shot, err := s.Screenshot(ctx, result.Selector)
	if err != nil {
		return nil, fmt.Errorf("error capturing screenshot for %s: %w", current, err)
	}
	result.Image = shot

	if req.Imprint {
		caption := fmt.Sprintf("%s  %s", current, time.Now().Format(time.RFC3339))
		if result.Image, err = result.Image.Imprint(caption); err != nil {
			return nil, err
		}
	}

	result.Text = Text(target)
	result.Markup = Prettify(target)

	return result, nil
}

// WriteToFolder writes the image, text and markup files under dir, creating it when needed.
// When one write fails the files already written are removed, so a set is complete or absent.
func (r *Result) WriteToFolder(dir string) (err error) {
	if dir == "" {
		return ErrNoDirectory
	}

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	base := filepath.Join(dir, r.Base)
	files := []struct {
		path *string
		ext  string
		data []byte
	}{
		{&r.ImagePath, ImageExt, r.Image},
		{&r.TextPath, TextExt, []byte(r.Text)},
		{&r.MarkupPath, MarkupExt, []byte(r.Markup)},
	}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, path := range written {
			if rmErr := os.Remove(path); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
		}
		r.ImagePath, r.TextPath, r.MarkupPath = "", "", ""
	}()

	for _, f := range files {
		path := base + f.ext
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return fmt.Errorf("error writing %s: %w", path, err)
		}
		written = append(written, path)
		*f.path = path
	}

	return nil
}
