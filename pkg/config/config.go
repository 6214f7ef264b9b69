package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the parsed configuration file. It is read once and not modified afterwards.
type Config struct {
	Login  Login  `yaml:"login"`
	Secret Secret `yaml:"secret"`
	Chrome Chrome `yaml:"chrome"`
}

type Login struct {
	URL      string        `yaml:"url"`
	Selector LoginSelector `yaml:"selector"`
}

// LoginSelector holds the CSS selectors of the login form fields.
type LoginSelector struct {
	Mail     string `yaml:"mail"`
	Password string `yaml:"password"`
	Signin   string `yaml:"signin"`
}

type Secret struct {
	Mail     string `yaml:"mail"`
	Password string `yaml:"password"`
}

// Chrome describes the browser to launch. ChromedriverPath is the browser executable; it is
// looked up on the system when empty.
type Chrome struct {
	ChromedriverPath string   `yaml:"chromedriver_path"`
	ProfilePath      string   `yaml:"profile_path"`
	Engine           string   `yaml:"engine"`
	ImplicitWait     Duration `yaml:"implicit_wait"`
}

// Duration is a time.Duration read from strings such as "1500ms" or "3s". A bare number is
// a count of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if seconds, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

var ErrMissingKey = errors.New("missing configuration key")

// Defaults returns the values used for keys absent from the configuration file.
func Defaults() Config {
	return Config{
		Chrome: Chrome{
			Engine: "rod",
		},
	}
}

// Load reads the configuration at path. A sibling file named <name>.local.<ext> is merged over
// it when present, so credentials can be kept out of the shared file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := readInto(path, &cfg); err != nil {
		return nil, err
	}

	localPath := LocalPath(path)
	if _, err := os.Stat(localPath); err == nil {
		var override Config
		if err := readInto(localPath, &override); err != nil {
			return nil, err
		}
		if err := mergo.Merge(&cfg, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging %s: %w", localPath, err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	return &cfg, nil
}

// LocalPath returns the override file path for path, e.g. config.yaml -> config.local.yaml.
func LocalPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate reports every required key that is empty.
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"login.url":               c.Login.URL,
		"login.selector.mail":     c.Login.Selector.Mail,
		"login.selector.password": c.Login.Selector.Password,
		"login.selector.signin":   c.Login.Selector.Signin,
		"secret.mail":             c.Secret.Mail,
		"secret.password":         c.Secret.Password,
	}
	for _, key := range []string{
		"login.url",
		"login.selector.mail",
		"login.selector.password",
		"login.selector.signin",
		"secret.mail",
		"secret.password",
	} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingKey, key))
		}
	}

	switch c.Chrome.Engine {
	case "", "rod", "chromedp":
	default:
		errs = append(errs, fmt.Errorf("unknown chrome.engine %q", c.Chrome.Engine))
	}

	return errors.Join(errs...)
}
