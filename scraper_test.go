package pagesnap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root4loot/pagesnap/internal/browsertest"
	"github.com/root4loot/pagesnap/pkg/browser"
	"github.com/root4loot/pagesnap/pkg/capture"
	"github.com/root4loot/pagesnap/pkg/config"
	"github.com/root4loot/pagesnap/pkg/page"
)

const (
	origin   = "https://app.example.com"
	loginURL = origin + "/users/sign_in"
	homeURL  = origin + "/dashboard/100200"
)

const loginHTML = `<html><body>
<form>
  <input id="mail" type="email">
  <input id="password" type="password">
  <textarea id="note"></textarea>
  <button id="signin">Sign in</button>
</form>
</body></html>`

const homeHTML = `<html><body>
<div id="dashboard"><h1>Welcome back</h1></div>
<a href="/pages/04821">Lesson one</a>
<a href="/pages/04822">Lesson two</a>
<a href="/pages/04821">Lesson one again</a>
<a href="/pages/about">About pages</a>
<a href="/settings">Settings</a>
</body></html>`

func init() {
	page.Jitter = func() time.Duration { return 0 }
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Login.URL = loginURL
	cfg.Login.Selector.Mail = "#mail"
	cfg.Login.Selector.Password = "#password"
	cfg.Login.Selector.Signin = "#signin"
	cfg.Secret.Mail = "user@example.com"
	cfg.Secret.Password = "hunter2"
	cfg.Chrome.Engine = browser.EngineRod
	return cfg
}

func lessonHTML(title string) string {
	return `<html><body><main><h1>` + title + `</h1></main></body></html>`
}

// newTestScraper returns a scraper with default options and no settle wait, driving a fake session.
func newTestScraper(t *testing.T, configure ...func(*Options)) (*Scraper, *browsertest.Session) {
	t.Helper()

	options := *DefaultOptions()
	options.MinWait = 0
	for _, fn := range configure {
		fn(&options)
	}

	s, err := New(testConfig(), options)
	require.NoError(t, err)

	session := browsertest.New("about:blank", map[string]string{
		loginURL:                loginHTML,
		homeURL:                 homeHTML,
		origin + "/pages/04821": lessonHTML("Lesson one"),
		origin + "/pages/04822": lessonHTML("Lesson two"),
	})
	session.Transitions["#signin"] = homeURL
	s.launch = session.Launcher(nil)
	return s, session
}

func TestNewKeepsOptions(t *testing.T) {
	s, err := New(testConfig(), Options{MinWait: 0, Headless: true, LoginTimeout: time.Second})
	require.NoError(t, err)

	assert.Zero(t, s.Options.MinWait)
	assert.True(t, s.Options.Headless)
	assert.Equal(t, time.Second, s.Options.LoginTimeout)
	assert.Zero(t, s.Options.LandmarkTimeout)
}

func TestNewScraperUsesDefaultOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
login:
  url: https://app.example.com/users/sign_in
  selector: {mail: "#mail", password: "#password", signin: "#signin"}
secret: {mail: user@example.com, password: hunter2}
`), 0o644))

	s, err := NewScraper(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), s.Options)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Login.URL = ""

	_, err := New(cfg, Options{})
	assert.ErrorIs(t, err, config.ErrMissingKey)
}

func TestNewScraperWithOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
login:
  url: https://app.example.com/users/sign_in
  selector:
    mail: "#mail"
    password: "#password"
    signin: "#signin"
secret:
  mail: user@example.com
  password: hunter2
chrome:
  engine: chromedp
`), 0o644))

	s, err := NewScraperWithOptions(path, Options{NoSandbox: true})
	require.NoError(t, err)

	options := s.browserOptions()
	assert.Equal(t, browser.EngineChromedp, options.Engine)
	assert.True(t, options.NoSandbox)

	_, err = NewScraper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGetScreenshot(t *testing.T) {
	dir := t.TempDir()
	s, session := newTestScraper(t)

	var launched browser.Options
	s.launch = session.Launcher(&launched)
	s.Options.Headless = true

	result, err := s.GetScreenshot(context.Background(), "dashboard", dir, "dashboard", 0)
	require.NoError(t, err)

	assert.True(t, launched.Headless)
	assert.Equal(t, []string{loginURL}, session.Navigations)
	assert.Equal(t, "user@example.com", session.Inputs["#mail"])
	assert.Equal(t, "hunter2", session.Inputs["#password"])
	assert.Equal(t, []string{"#signin"}, session.Clicks)
	assert.Equal(t, 1, session.Closed)

	assert.Equal(t, homeURL, result.URL)
	assert.NotEqual(t, loginURL, result.URL)
	assert.Equal(t, capture.FallbackSelector, result.Selector)
	assert.False(t, result.FellBack)

	for _, path := range []string{result.ImagePath, result.TextPath, result.MarkupPath} {
		assert.FileExists(t, path)
	}
	assert.Equal(t, filepath.Join(dir, "dashboard.png"), result.ImagePath)
	assert.Contains(t, result.Text, "Welcome back")
}

func TestGetScreenshotDerivesFilename(t *testing.T) {
	dir := t.TempDir()
	s, session := newTestScraper(t, func(o *Options) { o.NativeSubmit = true })

	result, err := s.GetScreenshot(context.Background(), "", dir, "", 0)
	require.NoError(t, err)

	assert.Equal(t, "100200", result.Base)
	assert.Equal(t, []string{"#signin"}, session.Submits)
	assert.Empty(t, session.Clicks)
}

func TestGetScreenshotErrorsCloseSession(t *testing.T) {
	tests := []struct {
		name     string
		landmark string
		prepare  func(s *Scraper, session *browsertest.Session)
		wantErr  error
	}{
		{
			name:     "landmark timeout",
			landmark: "course_list",
			prepare: func(s *Scraper, _ *browsertest.Session) {
				s.Options.LandmarkTimeout = 20 * time.Millisecond
			},
			wantErr: page.ErrTimeout,
		},
		{
			name: "wrong tag",
			prepare: func(s *Scraper, _ *browsertest.Session) {
				s.Config.Login.Selector.Password = "#note"
			},
			wantErr: page.ErrUnexpectedTag,
		},
		{
			name: "missing field",
			prepare: func(s *Scraper, _ *browsertest.Session) {
				s.Config.Login.Selector.Mail = "#email"
			},
			wantErr: browser.ErrElementNotFound,
		},
		{
			name: "login rejected",
			prepare: func(s *Scraper, session *browsertest.Session) {
				delete(session.Transitions, "#signin")
				s.Options.LoginTimeout = 10 * time.Millisecond
			},
			wantErr: ErrLoginFailed,
		},
		{
			name: "screenshot failure",
			prepare: func(_ *Scraper, session *browsertest.Session) {
				session.Errors["Screenshot"] = errors.New("target closed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, session := newTestScraper(t)
			tt.prepare(s, session)

			landmark := tt.landmark
			if landmark == "" {
				landmark = "dashboard"
			}

			result, err := s.GetScreenshot(context.Background(), "dashboard", dir, landmark, 0)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Nil(t, result)
			assert.Equal(t, 1, session.Closed)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestGetScreenshotRequiresDirectory(t *testing.T) {
	s, session := newTestScraper(t)

	_, err := s.GetScreenshot(context.Background(), "dashboard", "", "dashboard", 0)
	assert.ErrorIs(t, err, capture.ErrNoDirectory)
	assert.Zero(t, session.Closed)
	assert.Empty(t, session.Navigations)
}

func TestGetScreenshotLaunchFailure(t *testing.T) {
	s, session := newTestScraper(t)
	session.Errors["Launch"] = browser.ErrPathNotFound

	_, err := s.GetScreenshot(context.Background(), "dashboard", t.TempDir(), "dashboard", 0)
	assert.ErrorIs(t, err, browser.ErrPathNotFound)
	assert.Empty(t, session.Navigations)
	assert.Zero(t, session.Closed)
}

func TestCaptureLinks(t *testing.T) {
	dir := t.TempDir()
	s, session := newTestScraper(t, func(o *Options) { o.Selector = "main" })

	results, err := s.CaptureLinks(context.Background(), dir, "dashboard", "/pages/")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Closed)

	var bases []string
	for _, r := range results {
		bases = append(bases, r.Base)
	}
	assert.Equal(t, []string{"04821", "04822", "04821"}, bases)
	assert.Equal(t, "Lesson two", results[1].Text)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestCaptureLinksAvoidDuplicates(t *testing.T) {
	dir := t.TempDir()
	s, session := newTestScraper(t, func(o *Options) {
		o.AvoidDuplicates = true
		o.Imprint = true
	})

	results, err := s.CaptureLinks(context.Background(), dir, "dashboard", "/pages/")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Closed)
	require.Len(t, results, 2)
	assert.Equal(t, "04821", results[0].Base)
	assert.Equal(t, "04822", results[1].Base)
}

func TestCaptureLinksRequiresDirectory(t *testing.T) {
	s, session := newTestScraper(t)

	_, err := s.CaptureLinks(context.Background(), "", "dashboard", "/pages/")
	assert.ErrorIs(t, err, capture.ErrNoDirectory)
	assert.Zero(t, session.Closed)
}
