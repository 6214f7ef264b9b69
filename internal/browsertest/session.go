// Package browsertest provides an in-memory browser.Session for tests that must not start a real browser.
package browsertest

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/root4loot/pagesnap/pkg/browser"
)

const blankPage = "<html><head></head><body></body></html>"

// Session serves static HTML keyed by absolute URL and records every interaction.
type Session struct {
	Pages map[string]string
	// Transitions maps a clicked or submitted selector to the URL the page moves to.
	Transitions map[string]string
	// Errors makes the named method (e.g. "Screenshot") fail with the given error.
	Errors map[string]error

	ScrollWidth  int
	ScrollHeight int

	Current     string
	Inputs      map[string]string
	Clicks      []string
	Submits     []string
	Navigations []string
	Screenshots []string
	Viewport    [2]int
	Closed      int
}

var _ browser.Session = (*Session)(nil)

// New returns a session positioned at start.
func New(start string, pages map[string]string) *Session {
	return &Session{
		Pages:        pages,
		Transitions:  map[string]string{},
		Errors:       map[string]error{},
		ScrollWidth:  1280,
		ScrollHeight: 2400,
		Current:      start,
		Inputs:       map[string]string{},
	}
}

// Launcher returns a LaunchFunc that hands out s and records the options it was given.
func (s *Session) Launcher(got *browser.Options) browser.LaunchFunc {
	return func(_ context.Context, options browser.Options) (browser.Session, error) {
		if got != nil {
			*got = options
		}
		if err := s.Errors["Launch"]; err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (s *Session) document() (*goquery.Document, error) {
	html, ok := s.Pages[s.Current]
	if !ok {
		html = blankPage
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *Session) find(selector string) (*goquery.Selection, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return sel, nil
}

func (s *Session) URL(context.Context) (string, error) {
	if err := s.Errors["URL"]; err != nil {
		return "", err
	}
	return s.Current, nil
}

func (s *Session) HTML(context.Context) (string, error) {
	if err := s.Errors["HTML"]; err != nil {
		return "", err
	}
	if html, ok := s.Pages[s.Current]; ok {
		return html, nil
	}
	return blankPage, nil
}

func (s *Session) Navigate(_ context.Context, target string) error {
	if err := s.Errors["Navigate"]; err != nil {
		return err
	}
	s.Navigations = append(s.Navigations, target)
	s.Current = target
	return nil
}

func (s *Session) Input(_ context.Context, selector, value string) error {
	if _, err := s.find(selector); err != nil {
		return err
	}
	s.Inputs[selector] = s.Inputs[selector] + value
	return nil
}

func (s *Session) transition(selector string) {
	if next, ok := s.Transitions[selector]; ok {
		s.Current = next
	}
}

func (s *Session) Click(_ context.Context, selector string) error {
	if _, err := s.find(selector); err != nil {
		return err
	}
	s.Clicks = append(s.Clicks, selector)
	s.transition(selector)
	return nil
}

func (s *Session) Submit(_ context.Context, selector string) error {
	if _, err := s.find(selector); err != nil {
		return err
	}
	s.Submits = append(s.Submits, selector)
	s.transition(selector)
	return nil
}

// Visible treats elements with a hidden attribute or display:none style as invisible.
func (s *Session) Visible(_ context.Context, selector string) (bool, error) {
	sel, err := s.find(selector)
	if err != nil {
		return false, err
	}
	first := sel.First()
	if _, hidden := first.Attr("hidden"); hidden {
		return false, nil
	}
	style, _ := first.Attr("style")
	return !strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none"), nil
}

// ClickText follows the href of the matched element, if any.
func (s *Session) ClickText(_ context.Context, selector, text string) (bool, error) {
	doc, err := s.document()
	if err != nil {
		return false, err
	}

	var clicked *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if strings.Contains(el.Text(), text) {
			clicked = el
			return false
		}
		return true
	})
	if clicked == nil {
		return false, nil
	}

	s.Clicks = append(s.Clicks, selector+":"+text)
	if href, ok := clicked.Attr("href"); ok {
		base, err := url.Parse(s.Current)
		if err != nil {
			return true, err
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true, err
		}
		s.Current = base.ResolveReference(ref).String()
	}
	return true, nil
}

// WaitID returns at once when the element exists and otherwise blocks until ctx is done.
func (s *Session) WaitID(ctx context.Context, id string) error {
	doc, err := s.document()
	if err != nil {
		return err
	}
	if doc.Find(fmt.Sprintf("[id=%q]", id)).Length() > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *Session) ScrollSize(context.Context) (int, int, error) {
	if err := s.Errors["ScrollSize"]; err != nil {
		return 0, 0, err
	}
	return s.ScrollWidth, s.ScrollHeight, nil
}

func (s *Session) SetViewport(_ context.Context, width, height int) error {
	s.Viewport = [2]int{width, height}
	return nil
}

// Screenshot returns a small PNG whose colour depends on the page and selector.
func (s *Session) Screenshot(_ context.Context, selector string) ([]byte, error) {
	if err := s.Errors["Screenshot"]; err != nil {
		return nil, err
	}
	if _, err := s.find(selector); err != nil {
		return nil, err
	}
	s.Screenshots = append(s.Screenshots, selector)
	return Image(s.Current + selector)
}

func (s *Session) Close() error {
	s.Closed++
	return s.Errors["Close"]
}

// Image renders a 64x48 PNG filled with a colour derived from seed.
func Image(seed string) ([]byte, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
