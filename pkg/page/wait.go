package page

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/root4loot/pagesnap/pkg/browser"
)

var ErrTimeout = errors.New("timed out waiting for element")

// WaitForID blocks until an element with the given id is present, for at most timeout.
func WaitForID(ctx context.Context, s browser.Session, id string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.WaitID(waitCtx, id)
	if err == nil {
		return nil
	}

	if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: #%s after %v", ErrTimeout, id, timeout)
	}
	return err
}

// WaitForURLChange polls until the active page's URL differs from from, for at most timeout.
func WaitForURLChange(ctx context.Context, s browser.Session, from string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		current, err := s.URL(ctx)
		if err != nil {
			return "", err
		}
		if current != from {
			return current, nil
		}
		if time.Now().After(deadline) {
			return current, fmt.Errorf("%w: still at %s after %v", ErrTimeout, from, timeout)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return "", err
		}
	}
}

const pollInterval = 250 * time.Millisecond
