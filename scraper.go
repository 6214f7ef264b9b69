package pagesnap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/root4loot/goutils/log"

	"github.com/root4loot/pagesnap/pkg/browser"
	"github.com/root4loot/pagesnap/pkg/capture"
	"github.com/root4loot/pagesnap/pkg/config"
	"github.com/root4loot/pagesnap/pkg/page"
)

var ErrLoginFailed = errors.New("login did not leave the login page")

// Scraper logs into the configured site and captures pages from it. Every capture call runs in
// its own browser session which is closed before the call returns.
type Scraper struct {
	Config  *config.Config
	Options *Options
	launch  browser.LaunchFunc
}

// Options contains options for the scraper
type Options struct {
	Headless           bool          // Run the browser without a window
	NoSandbox          bool          // Disable the chrome sandbox
	LoginTimeout       time.Duration // Time allowed for the login form to navigate away
	LandmarkTimeout    time.Duration // Time allowed for the landmark element to appear
	MinWait            time.Duration // Minimum settle time before each capture
	Selector           string        // Element to capture, body when empty
	NativeSubmit       bool          // Submit the login form natively instead of clicking
	Imprint            bool          // Add URL and capture time below screenshots
	AvoidDuplicates    bool          // Skip near-identical screenshots in link captures
	DuplicateThreshold int           // Similarity score (1-100) at which screenshots count as duplicates
	Silence            bool          // Silence output
	Verbose            bool          // Verbose logging
}

func init() {
	log.Init("pagesnap")
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	return &Options{
		LoginTimeout:       10 * time.Second,
		LandmarkTimeout:    10 * time.Second,
		MinWait:            3 * time.Second,
		DuplicateThreshold: 96,
	}
}

// NewScraper loads the configuration at configPath and returns a scraper with default options.
func NewScraper(configPath string) (*Scraper, error) {
	return NewScraperWithOptions(configPath, *DefaultOptions())
}

// NewScraperWithOptions loads the configuration at configPath. Options are used as given; start
// from DefaultOptions to change only some of them.
func NewScraperWithOptions(configPath string, options Options) (*Scraper, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return New(cfg, options)
}

// New returns a scraper for an already loaded configuration.
func New(cfg *config.Config, options Options) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	SetLogLevel(&options)

	return &Scraper{
		Config:  cfg,
		Options: &options,
		launch:  browser.Launch,
	}, nil
}

func (s *Scraper) browserOptions() browser.Options {
	return browser.Options{
		Engine:       s.Config.Chrome.Engine,
		ExecPath:     s.Config.Chrome.ChromedriverPath,
		ProfilePath:  s.Config.Chrome.ProfilePath,
		Headless:     s.Options.Headless,
		NoSandbox:    s.Options.NoSandbox,
		ImplicitWait: time.Duration(s.Config.Chrome.ImplicitWait),
	}
}

// GetScreenshot logs in, waits for the element with id landmarkID and captures the whole page
// into directory. The filename is derived from the landing page URL when empty.
func (s *Scraper) GetScreenshot(ctx context.Context, filename, directory, landmarkID string, wait time.Duration) (*capture.Result, error) {
	if directory == "" {
		return nil, capture.ErrNoDirectory
	}

	var result *capture.Result
	err := browser.Scoped(ctx, s.launch, s.browserOptions(), func(session browser.Session) error {
		if err := s.login(ctx, session, landmarkID); err != nil {
			return err
		}

		var err error
		result, err = capture.Capture(ctx, session, capture.Request{
			Filename:  filename,
			Directory: directory,
			Selector:  s.Options.Selector,
			MinWait:   wait,
			Imprint:   s.Options.Imprint,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// login submits the login form and waits until the browser has left the login page and the
// landmark element, if any, is present.
func (s *Scraper) login(ctx context.Context, session browser.Session, landmarkID string) error {
	login := s.Config.Login
	secret := s.Config.Secret

	log.Debugf("Logging in at %s", login.URL)
	if err := session.Navigate(ctx, login.URL); err != nil {
		return err
	}

	loginPage, err := session.URL(ctx)
	if err != nil {
		return err
	}

	if err := page.InputText(ctx, session, login.Selector.Mail, secret.Mail); err != nil {
		return err
	}
	if err := page.InputText(ctx, session, login.Selector.Password, secret.Password); err != nil {
		return err
	}
	if err := page.Submit(ctx, session, login.Selector.Signin, !s.Options.NativeSubmit); err != nil {
		return err
	}

	landing, err := page.WaitForURLChange(ctx, session, loginPage, s.Options.LoginTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	log.Debugf("Logged in, landed on %s", landing)

	if landmarkID == "" {
		return nil
	}
	return page.WaitForID(ctx, session, landmarkID, s.Options.LandmarkTimeout)
}

// SetLogLevel sets the log level based on the options
func SetLogLevel(options *Options) {
	if options.Silence {
		log.SetLevel(log.FatalLevel)
	} else if options.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
