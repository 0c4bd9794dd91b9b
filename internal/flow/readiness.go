package flow

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is the result of a bounded wait.
type Outcome string

const (
	Ready    Outcome = "ready"
	TimedOut Outcome = "timed_out"
)

const DefaultPollInterval = 250 * time.Millisecond

// Condition is a readiness predicate re-evaluated until it holds.
// Errors from Satisfied are treated as "not yet". A condition with a
// positive Delay is a plain wait and Satisfied is not consulted.
type Condition struct {
	Name      string
	Satisfied func(ctx context.Context) (bool, error)
	Delay     time.Duration
}

// Waiter polls conditions at a fixed interval under a hard deadline.
type Waiter struct {
	Interval time.Duration
}

// NewWaiter returns a Waiter polling at interval, or DefaultPollInterval if
// interval is not positive.
func NewWaiter(interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{Interval: interval}
}

// Await blocks until cond holds or timeout elapses. It never returns an
// error; a canceled parent context yields TimedOut.
func (w *Waiter) Await(ctx context.Context, cond Condition, timeout time.Duration) Outcome {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if cond.Delay > 0 {
		if err := sleepCtx(ctx, cond.Delay); err != nil {
			slog.Debug("readiness wait timed out", "condition", cond.Name, "timeout", timeout)
			return TimedOut
		}
		return Ready
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond.Satisfied(ctx)
		if err == nil && ok {
			return Ready
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			attrs := []any{"condition", cond.Name, "timeout", timeout}
			if lastErr != nil {
				attrs = append(attrs, "last_error", lastErr)
			}
			slog.Debug("readiness wait timed out", attrs...)
			return TimedOut
		case <-ticker.C:
		}
	}
}

// ElementVisible holds once the locator's match is rendered.
func ElementVisible(page Page, loc Locator) Condition {
	return Condition{
		Name: "visible " + loc.String(),
		Satisfied: func(ctx context.Context) (bool, error) {
			return page.IsVisible(ctx, loc)
		},
	}
}

// ElementPresent holds once at least loc.Nth+1 elements match.
func ElementPresent(page Page, loc Locator) Condition {
	return Condition{
		Name: "present " + loc.String(),
		Satisfied: func(ctx context.Context) (bool, error) {
			n, err := page.Count(ctx, loc)
			if err != nil {
				return false, err
			}
			return n > loc.Nth, nil
		},
	}
}

// Absent holds once nothing matches loc.
func Absent(page Page, loc Locator) Condition {
	return Condition{
		Name: "absent " + loc.String(),
		Satisfied: func(ctx context.Context) (bool, error) {
			n, err := page.Count(ctx, loc)
			if err != nil {
				return false, err
			}
			return n == 0, nil
		},
	}
}

// AnyVisible holds once any of locs is visible.
func AnyVisible(page Page, locs ...Locator) Condition {
	name := "any visible"
	for _, l := range locs {
		name += " " + l.String()
	}
	return Condition{
		Name: name,
		Satisfied: func(ctx context.Context) (bool, error) {
			var firstErr error
			for _, l := range locs {
				ok, err := page.IsVisible(ctx, l)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if ok {
					return true, nil
				}
			}
			return false, firstErr
		},
	}
}

// NetworkIdle holds once no requests are in flight and none has started or
// finished within quiet.
func NetworkIdle(mon NetworkMonitor, quiet time.Duration) Condition {
	return Condition{
		Name: "network idle",
		Satisfied: func(context.Context) (bool, error) {
			if mon.InFlight() > 0 {
				return false, nil
			}
			return time.Since(mon.LastActivity()) >= quiet, nil
		},
	}
}

// FixedDelay holds once d has elapsed from the start of the wait. Use it
// only where the page exposes no observable completion signal.
func FixedDelay(d time.Duration) Condition {
	return Condition{Name: "fixed delay " + d.String(), Delay: d}
}
