package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
)

type rodSession struct {
	launcher     *launcher.Launcher
	browser      *rod.Browser
	page         *rod.Page
	implicitWait time.Duration
	tempProfile  bool

	closeOnce sync.Once
	closeErr  error
}

func launchRod(ctx context.Context, options Options) (Session, error) {
	bin := options.ExecPath
	if bin == "" {
		bin, _ = launcher.LookPath()
	}

	l := launcher.New().
		Bin(bin).
		Headless(options.Headless)

	for _, f := range options.Flags() {
		if f.Name == "headless" {
			continue
		}
		if f.Value == "" {
			l.Set(flags.Flag(f.Name))
		} else {
			l.Set(flags.Flag(f.Name), f.Value)
		}
	}

	controlURL, err := l.Context(context.WithoutCancel(ctx)).Launch()
	if err != nil {
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("error connecting to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("error opening page: %w", err)
	}

	return &rodSession{
		launcher:     l,
		browser:      browser,
		page:         page,
		implicitWait: options.ImplicitWait,
		tempProfile:  options.ProfilePath == "",
	}, nil
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("error navigating to %s: %w", url, err)
	}
	return page.WaitLoad()
}

// element looks up selector, retrying for the implicit wait when one is configured.
func (s *rodSession) element(ctx context.Context, selector string) (*rod.Element, error) {
	page := s.page.Context(ctx)

	if s.implicitWait > 0 {
		el, err := page.Timeout(s.implicitWait).Element(selector)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
			}
			return nil, err
		}
		return el.CancelTimeout(), nil
	}

	has, el, err := page.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return el, nil
}

func (s *rodSession) Input(ctx context.Context, selector, value string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *rodSession) Submit(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	_, err = el.Eval(`() => (this.form || this).submit()`)
	return err
}

func (s *rodSession) Visible(ctx context.Context, selector string) (bool, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return false, err
	}
	return el.Visible()
}

func (s *rodSession) ClickText(ctx context.Context, selector, text string) (bool, error) {
	elements, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return false, err
	}

	for _, el := range elements {
		elText, err := el.Text()
		if err != nil {
			log.Debugf("Could not read text of %s: %v", selector, err)
			continue
		}
		if strings.Contains(elText, text) {
			return true, el.Click(proto.InputMouseButtonLeft, 1)
		}
	}

	return false, nil
}

func (s *rodSession) WaitID(ctx context.Context, id string) error {
	_, err := s.page.Context(ctx).Element(idSelector(id))
	return err
}

func (s *rodSession) ScrollSize(ctx context.Context) (int, int, error) {
	page := s.page.Context(ctx)

	width, err := page.Eval(`() => document.body.scrollWidth`)
	if err != nil {
		return 0, 0, err
	}

	height, err := page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, 0, err
	}

	return width.Value.Int(), height.Value.Int(), nil
}

func (s *rodSession) SetViewport(ctx context.Context, width, height int) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

func (s *rodSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return nil, err
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		if s.tempProfile {
			s.launcher.Cleanup()
		}
		log.Debug("Browser closed")
	})
	return s.closeErr
}
