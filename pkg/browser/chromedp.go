package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

type chromedpSession struct {
	ctx          context.Context // tab context, owns the browser
	cancelTab    context.CancelFunc
	cancelAlloc  context.CancelFunc
	implicitWait time.Duration

	closeOnce sync.Once
	closeErr  error
}

// allocatorOptions composes the chromedp defaults with the flags derived from options.
func allocatorOptions(options Options) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", options.Headless))

	if options.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(options.ExecPath))
	}

	for _, f := range options.Flags() {
		if f.Value == "" {
			opts = append(opts, chromedp.Flag(f.Name, true))
		} else {
			opts = append(opts, chromedp.Flag(f.Name, f.Value))
		}
	}

	return opts
}

func launchChromedp(ctx context.Context, options Options) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(options)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithErrorf(log.Debugf))

	// Run without actions starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("error launching browser: %w", err)
	}

	return &chromedpSession{
		ctx:          tabCtx,
		cancelTab:    cancelTab,
		cancelAlloc:  cancelAlloc,
		implicitWait: options.ImplicitWait,
	}, nil
}

// run executes actions on the tab, bounded by the caller's ctx.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// lookup fails with ErrElementNotFound unless selector matches within the implicit wait.
func (s *chromedpSession) lookup(ctx context.Context, selector string) error {
	if s.implicitWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, s.implicitWait)
		defer cancel()
		if err := s.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
			}
			return err
		}
		return nil
	}

	var found bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", strconv.Quote(selector))
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (s *chromedpSession) URL(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, chromedp.Location(&location))
	return location, err
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("error navigating to %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) Input(ctx context.Context, selector, value string) error {
	if err := s.lookup(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	if err := s.lookup(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromedpSession) Submit(ctx context.Context, selector string) error {
	if err := s.lookup(ctx, selector); err != nil {
		return err
	}
	return s.run(ctx, chromedp.Submit(selector, chromedp.ByQuery))
}

const visibleJS = `(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const style = window.getComputedStyle(el);
	return style.visibility !== 'hidden' && style.display !== 'none' && el.getClientRects().length > 0;
})()`

func (s *chromedpSession) Visible(ctx context.Context, selector string) (bool, error) {
	if err := s.lookup(ctx, selector); err != nil {
		return false, err
	}
	var visible bool
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleJS, strconv.Quote(selector)), &visible))
	return visible, err
}

func (s *chromedpSession) ClickText(ctx context.Context, selector, text string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return false, err
	}

	for _, node := range nodes {
		var nodeText string
		if err := s.run(ctx, chromedp.Text([]cdp.NodeID{node.NodeID}, &nodeText, chromedp.ByNodeID)); err != nil {
			log.Debugf("Could not read text of %s: %v", selector, err)
			continue
		}
		if strings.Contains(nodeText, text) {
			return true, s.run(ctx, chromedp.MouseClickNode(node))
		}
	}

	return false, nil
}

func (s *chromedpSession) WaitID(ctx context.Context, id string) error {
	return s.run(ctx, chromedp.WaitReady(idSelector(id), chromedp.ByQuery))
}

func (s *chromedpSession) ScrollSize(ctx context.Context) (int, int, error) {
	var size []int
	if err := s.run(ctx, chromedp.Evaluate(`[document.body.scrollWidth, document.body.scrollHeight]`, &size)); err != nil {
		return 0, 0, err
	}
	if len(size) != 2 {
		return 0, 0, fmt.Errorf("unexpected scroll size %v", size)
	}
	return size[0], size[1], nil
}

func (s *chromedpSession) SetViewport(ctx context.Context, width, height int) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false).Do(ctx)
	}))
}

func (s *chromedpSession) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := s.lookup(ctx, selector); err != nil {
		return nil, err
	}
	var buf []byte
	err := s.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery))
	return buf, err
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancelTab()
		s.cancelAlloc()
		log.Debug("Browser closed")
	})
	return s.closeErr
}
