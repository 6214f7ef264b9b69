// Package browser launches and drives a single browser page for scripted captures.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/root4loot/goutils/log"
)

var (
	// ErrPathNotFound is returned by Launch when a supplied executable or profile path does not exist.
	ErrPathNotFound    = fmt.Errorf("path not found: %w", fs.ErrNotExist)
	ErrElementNotFound = errors.New("element not found")
	ErrUnknownEngine   = errors.New("unknown browser engine")
)

func init() {
	log.Init("pagesnap")
}

const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
)

// Session is one running browser process with one active page.
type Session interface {
	// URL returns the address of the active page.
	URL(ctx context.Context) (string, error)
	// HTML returns the rendered markup of the active page.
	HTML(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	// Input types value into the first element matching selector.
	Input(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// Submit submits the form owning the first element matching selector.
	Submit(ctx context.Context, selector string) error
	Visible(ctx context.Context, selector string) (bool, error)
	// ClickText clicks the first element matching selector whose text contains text.
	// It reports false when no element matched.
	ClickText(ctx context.Context, selector, text string) (bool, error)
	// WaitID blocks until an element with the given id is present or ctx is done.
	WaitID(ctx context.Context, id string) error
	// ScrollSize returns the scrollable width and height of the document body.
	ScrollSize(ctx context.Context) (width, height int, err error)
	SetViewport(ctx context.Context, width, height int) error
	// Screenshot captures the region of the first element matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	// Close terminates the browser process. Calling it more than once is safe.
	Close() error
}

// Options describes how the browser is launched.
type Options struct {
	Engine       string        // rod or chromedp
	ExecPath     string        // browser executable, looked up when empty
	ProfilePath  string        // user data directory, temporary when empty
	Headless     bool          // run without a window
	NoSandbox    bool          // disable the chrome sandbox (containers)
	ImplicitWait time.Duration // how long element lookups retry before failing
}

// Flag is a command line switch passed to the browser. An empty Value means a bare switch.
type Flag struct {
	Name  string
	Value string
}

// Flags returns the browser switches derived from the options.
func (o Options) Flags() []Flag {
	var flags []Flag

	if o.ProfilePath != "" {
		flags = append(flags, Flag{Name: "user-data-dir", Value: o.ProfilePath})
	}

	if o.Headless {
		flags = append(flags, Flag{Name: "start-maximized"}, Flag{Name: "headless"})
	}

	if o.NoSandbox {
		flags = append(flags, Flag{Name: "no-sandbox"})
	}

	return flags
}

// LaunchFunc starts a browser session.
type LaunchFunc func(ctx context.Context, options Options) (Session, error)

// Launch validates the configured paths and starts a browser with the selected engine.
func Launch(ctx context.Context, options Options) (Session, error) {
	if err := ValidatePaths(options.ExecPath, options.ProfilePath); err != nil {
		return nil, err
	}

	log.Debugf("Launching %s browser (headless: %v)", engineName(options.Engine), options.Headless)

	switch options.Engine {
	case "", EngineRod:
		return launchRod(ctx, options)
	case EngineChromedp:
		return launchChromedp(ctx, options)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, options.Engine)
	}
}

// ValidatePaths checks that every non-empty path exists.
func ValidatePaths(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
	}
	return nil
}

// Scoped launches a session, hands it to fn and closes the browser on every exit path,
// including panics. An error returned by fn is logged and returned unchanged.
func Scoped(ctx context.Context, launch LaunchFunc, options Options, fn func(Session) error) (err error) {
	if launch == nil {
		launch = Launch
	}

	session, err := launch(ctx, options)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			log.Errorf("Browser session failed: %v", err)
		}
		if closeErr := session.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing browser: %w", closeErr))
		}
	}()

	return fn(session)
}

func engineName(engine string) string {
	if engine == "" {
		return EngineRod
	}
	return engine
}

func idSelector(id string) string {
	return fmt.Sprintf("[id=%q]", id)
}
