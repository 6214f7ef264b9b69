package page

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/root4loot/goutils/log"

	"github.com/root4loot/pagesnap/pkg/browser"
)

// MaxJitter is the upper bound of the random delay added to every settle wait.
const MaxJitter = 2 * time.Second

// Jitter returns the random part of a settle wait.
var Jitter = func() time.Duration { return time.Duration(rand.Int63n(int64(MaxJitter))) }

var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func init() {
	log.Init("pagesnap")
}

// Resolve joins target with the scheme and host of current.
func Resolve(current, target string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("error parsing current URL %s: %w", current, err)
	}

	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("error parsing target %s: %w", target, err)
	}

	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(ref).String(), nil
}

// MoveTo navigates to target relative to the origin of the active page, then settles.
func MoveTo(ctx context.Context, s browser.Session, target string, minWait time.Duration) error {
	current, err := s.URL(ctx)
	if err != nil {
		return err
	}

	absolute, err := Resolve(current, target)
	if err != nil {
		return err
	}

	log.Debugf("Navigating to %s", absolute)
	if err := s.Navigate(ctx, absolute); err != nil {
		return err
	}

	return Settle(ctx, minWait)
}

// Settle waits minWait plus a random jitter of up to MaxJitter so client side rendering can finish.
func Settle(ctx context.Context, minWait time.Duration) error {
	return sleep(ctx, minWait+Jitter())
}
