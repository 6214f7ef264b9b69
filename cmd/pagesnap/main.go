package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/root4loot/goutils/log"

	"github.com/root4loot/pagesnap"
	"github.com/root4loot/pagesnap/pkg/capture"
	"github.com/root4loot/pagesnap/pkg/config"
)

const (
	author = "@danielantonsen"
	usage  = `USAGE:
  pagesnap [options] -o <folder>

INPUT:
  -c,   --config                 configuration file                                      (Default: config.yaml)
  -lm,  --landmark               id of the element that marks a loaded landing page
  -k,   --links                  capture every linked page whose href contains keyword

CONFIGURATIONS:
  -e,   --engine                 browser engine (rod, chromedp)                          (Default: from config)
  -hl,  --headless               run the browser without a window                        (Default: false)
  -ns,  --no-sandbox             disable the browser sandbox                             (Default: false)
  -s,   --selector               element to capture                                      (Default: body)
  -w,   --wait                   minimum wait before capturing (seconds)                 (Default: 3)
  -to,  --timeout                login and landmark timeout (seconds)                    (Default: 10)
  -ad,  --avoid-duplicates       skip near-identical screenshots with --links            (Default: false)
  -dt,  --duplicate-threshold    threshold for similarity percentage (1-100)             (Default: 96)
                                 Applicable only when --avoid-duplicates is enabled. Pages
                                 with a similarity score greater than or equal to this value
                                 will be considered duplicates and will not be saved.

OUTPUT:
  -o,   --outfolder              save outputs to specified folder                        (required)
  -f,   --filename               base filename                                           (Default: from URL)
  -ni,  --no-imprint             do not add URL and time to output images                (Default: false)
        --silence                silence output
        --debug                  enable debug mode
        --version                display version
`
)

type cli struct {
	ConfigPath string
	Outfolder  string
	Filename   string
	Landmark   string
	Keyword    string
	Engine     string
	Wait       int
	Timeout    int
	NoImprint  bool
	Help       bool
	Version    bool
	Options    pagesnap.Options
}

func init() {
	log.Init("pagesnap")
}

func main() {
	c := &cli{}
	if err := c.parseFlags(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if c.Help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if c.Version {
		fmt.Println("pagesnap", pagesnap.Version, "by", author)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.run(ctx); err != nil {
		if errors.Is(err, capture.ErrNoDirectory) {
			log.Error("No output folder specified")
			fmt.Print(usage)
			os.Exit(1)
		}
		log.Fatalf("%v", err)
	}
}

func (c *cli) parseFlags(args []string) error {
	var debug bool
	defaults := pagesnap.DefaultOptions()

	fs := flag.NewFlagSet("pagesnap", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Print(usage)
	}

	// INPUT
	fs.StringVar(&c.ConfigPath, "config", "config.yaml", "")
	fs.StringVar(&c.ConfigPath, "c", "config.yaml", "")
	fs.StringVar(&c.Landmark, "landmark", "", "")
	fs.StringVar(&c.Landmark, "lm", "", "")
	fs.StringVar(&c.Keyword, "links", "", "")
	fs.StringVar(&c.Keyword, "k", "", "")

	// CONFIGURATIONS
	fs.StringVar(&c.Engine, "engine", "", "")
	fs.StringVar(&c.Engine, "e", "", "")
	fs.BoolVar(&c.Options.Headless, "headless", false, "")
	fs.BoolVar(&c.Options.Headless, "hl", false, "")
	fs.BoolVar(&c.Options.NoSandbox, "no-sandbox", false, "")
	fs.BoolVar(&c.Options.NoSandbox, "ns", false, "")
	fs.StringVar(&c.Options.Selector, "selector", "", "")
	fs.StringVar(&c.Options.Selector, "s", "", "")
	fs.IntVar(&c.Wait, "wait", int(defaults.MinWait/time.Second), "")
	fs.IntVar(&c.Wait, "w", int(defaults.MinWait/time.Second), "")
	fs.IntVar(&c.Timeout, "timeout", int(defaults.LandmarkTimeout/time.Second), "")
	fs.IntVar(&c.Timeout, "to", int(defaults.LandmarkTimeout/time.Second), "")
	fs.BoolVar(&c.Options.AvoidDuplicates, "avoid-duplicates", false, "")
	fs.BoolVar(&c.Options.AvoidDuplicates, "ad", false, "")
	fs.IntVar(&c.Options.DuplicateThreshold, "duplicate-threshold", defaults.DuplicateThreshold, "")
	fs.IntVar(&c.Options.DuplicateThreshold, "dt", defaults.DuplicateThreshold, "")

	// OUTPUT
	fs.StringVar(&c.Outfolder, "outfolder", "", "")
	fs.StringVar(&c.Outfolder, "o", "", "")
	fs.StringVar(&c.Filename, "filename", "", "")
	fs.StringVar(&c.Filename, "f", "", "")
	fs.BoolVar(&c.NoImprint, "no-imprint", false, "")
	fs.BoolVar(&c.NoImprint, "ni", false, "")
	fs.BoolVar(&c.Options.Silence, "silence", false, "")
	fs.BoolVar(&debug, "debug", false, "")
	fs.BoolVar(&c.Help, "help", false, "")
	fs.BoolVar(&c.Help, "h", false, "")
	fs.BoolVar(&c.Version, "version", false, "")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.Options.Verbose = debug
	c.Options.Imprint = !c.NoImprint
	c.Options.MinWait = time.Duration(c.Wait) * time.Second
	c.Options.LoginTimeout = time.Duration(c.Timeout) * time.Second
	c.Options.LandmarkTimeout = time.Duration(c.Timeout) * time.Second

	if debug {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func (c *cli) newScraper() (*pagesnap.Scraper, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}

	if c.Engine != "" {
		cfg.Chrome.Engine = c.Engine
	}

	return pagesnap.New(cfg, c.Options)
}

func (c *cli) run(ctx context.Context) error {
	if c.Outfolder == "" {
		return capture.ErrNoDirectory
	}

	s, err := c.newScraper()
	if err != nil {
		return err
	}

	if c.Keyword != "" {
		results, err := s.CaptureLinks(ctx, c.Outfolder, c.Landmark, c.Keyword)
		if err != nil {
			return err
		}
		log.Resultf("Saved %d pages to %s", len(results), c.Outfolder)
		return nil
	}

	result, err := s.GetScreenshot(ctx, c.Filename, c.Outfolder, c.Landmark, s.Options.MinWait)
	if err != nil {
		return err
	}

	log.Resultf("Screenshot saved to %s", result.ImagePath)
	return nil
}
