package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/utils"
)

// Condition is a predicate evaluated against page state by Session.WaitFor.
// Returning an error wrapping ErrNotFound is treated as "not yet".
type Condition func(ctx context.Context, s Session) (bool, error)

const (
	pollInitialInterval = 100 * time.Millisecond
	pollMaxInterval     = time.Second
)

// Present holds once an element matching loc exists
func Present(loc Locator) Condition {
	return func(ctx context.Context, s Session) (bool, error) {
		_, err := s.Find(ctx, loc)
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// Absent holds once no element matches loc
func Absent(loc Locator) Condition {
	return func(ctx context.Context, s Session) (bool, error) {
		_, err := s.Find(ctx, loc)
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, err
	}
}

// TextContains holds once the element matching loc contains any of subs,
// compared case-insensitively
func TextContains(loc Locator, subs ...string) Condition {
	return func(ctx context.Context, s Session) (bool, error) {
		el, err := s.Find(ctx, loc)
		if err != nil {
			return false, err
		}
		text, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		return ContainsAny(text, subs...), nil
	}
}

// URLIs holds while the current document address equals url
func URLIs(url string) Condition {
	return func(ctx context.Context, s Session) (bool, error) {
		current, err := s.URL(ctx)
		if err != nil {
			return false, err
		}
		return current == url, nil
	}
}

// WaitElement waits until an element matching loc is present and returns it
func WaitElement(ctx context.Context, s Session, loc Locator, timeout time.Duration) (Element, error) {
	var found Element
	err := s.WaitFor(ctx, func(ctx context.Context, s Session) (bool, error) {
		el, err := s.Find(ctx, loc)
		if err != nil {
			return false, err
		}
		found = el
		return true, nil
	}, timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", loc, err)
	}
	return found, nil
}

// ContainsAny reports whether text contains any of subs, ignoring case
func ContainsAny(text string, subs ...string) bool {
	lower := strings.ToLower(text)
	for _, sub := range subs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// poll evaluates cond with rod's backoff sleeper until it holds, fails, or
// the timeout elapses.
func poll(ctx context.Context, s Session, cond Condition, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sleeper := utils.BackoffSleeper(pollInitialInterval, pollMaxInterval, func(d time.Duration) time.Duration {
		return d * 2
	})

	var lastErr error
	err := utils.Retry(ctx, sleeper, func() (bool, error) {
		ok, err := cond(ctx, s)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				lastErr = err
				return false, nil
			}
			return true, err
		}
		return ok, nil
	})
	return timeoutError(err, timeout, lastErr)
}

// timeoutError maps context expiry from a poller to ErrTimeout
func timeoutError(err error, timeout time.Duration, lastErr error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if lastErr != nil {
			return fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, lastErr)
		}
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}
