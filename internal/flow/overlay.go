package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultCloseControls are known close-button selectors in priority order.
var DefaultCloseControls = []Locator{
	CSS(".ssc-dialog-header .ssc-dialog-close-icon-wrapper"),
	CSS(".ssc-dialog-close-icon-wrapper"),
	CSS("svg.ssc-dialog-close"),
	CSS(".ant-modal-close"),
	CSS(".ant-modal-close-x"),
	CSS("[aria-label='Close']"),
}

// DefaultMasks are known backdrop selectors in priority order.
var DefaultMasks = []Locator{
	CSS(".ant-modal-mask"),
	CSS(".ssc-dialog-mask"),
	CSS(".ssc-modal-mask"),
}

// StrategyResult records one dismissal attempt.
type StrategyResult struct {
	Strategy string `json:"strategy"`
	Success  bool   `json:"success"`
	Target   string `json:"target,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// DismissalStrategy is one way of closing a blocking overlay. Attempt must
// not panic or return errors; failures are reported in the result.
type DismissalStrategy interface {
	Name() string
	Attempt(ctx context.Context, page Page) StrategyResult
}

// overlayVisible reports whether any of locs currently matches a visible
// element. Closed dialogs often stay in the DOM hidden, so counts are not used.
func overlayVisible(ctx context.Context, page Page, locs []Locator) (bool, error) {
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
}

// EscapeStrategy focuses the page with a neutral centre click and sends
// Escape. It is best-effort: delivery without error counts as success and the
// page is not re-queried.
type EscapeStrategy struct {
	Settle time.Duration
}

func (s *EscapeStrategy) Name() string { return "escape" }

func (s *EscapeStrategy) Attempt(ctx context.Context, page Page) StrategyResult {
	res := StrategyResult{Strategy: s.Name(), Target: "Escape"}
	w, h, err := page.Viewport(ctx)
	if err != nil {
		res.Detail = "viewport: " + err.Error()
		return res
	}
	if err := page.ClickAt(ctx, float64(w)/2, float64(h)/2); err != nil {
		res.Detail = "focus click: " + err.Error()
		return res
	}
	if err := page.PressKey(ctx, "Escape"); err != nil {
		res.Detail = "key: " + err.Error()
		return res
	}
	if err := sleepCtx(ctx, s.Settle); err != nil {
		res.Detail = err.Error()
		return res
	}
	res.Success = true
	res.Detail = "delivered"
	return res
}

// CloseControlStrategy clicks the first present close control, programmatically
// first and with a forced trusted click if that fails.
type CloseControlStrategy struct {
	Controls []Locator
}

func (s *CloseControlStrategy) Name() string { return "close_control" }

func (s *CloseControlStrategy) Attempt(ctx context.Context, page Page) StrategyResult {
	res := StrategyResult{Strategy: s.Name()}
	var errs []error
	for _, loc := range s.Controls {
		n, err := page.Count(ctx, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n == 0 {
			continue
		}
		res.Target = loc.String()
		err = page.Activate(ctx, loc)
		if err == nil {
			res.Success = true
			res.Detail = "activated"
			return res
		}
		errs = append(errs, err)
		err = page.ForceClick(ctx, loc, nil)
		if err == nil {
			res.Success = true
			res.Detail = "forced click"
			return res
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		res.Detail = errors.Join(errs...).Error()
	} else {
		res.Detail = "no close control present"
	}
	return res
}

// MaskClickStrategy clicks near the corner of the first present backdrop.
type MaskClickStrategy struct {
	Masks  []Locator
	Offset Point
}

func (s *MaskClickStrategy) Name() string { return "mask_click" }

func (s *MaskClickStrategy) Attempt(ctx context.Context, page Page) StrategyResult {
	res := StrategyResult{Strategy: s.Name()}
	offset := s.Offset
	for _, loc := range s.Masks {
		n, err := page.Count(ctx, loc)
		if err != nil || n == 0 {
			continue
		}
		res.Target = loc.String()
		if err := page.ForceClick(ctx, loc, &offset); err != nil {
			res.Detail = err.Error()
			continue
		}
		res.Success = true
		return res
	}
	if res.Detail == "" {
		res.Detail = "no mask present"
	}
	return res
}

// Dismisser runs strategies in order and stops at the first success.
type Dismisser struct {
	Strategies []DismissalStrategy
	// Overlays is used to detect whether a visible overlay needed dismissing.
	Overlays []Locator
}

// NewDismisser builds the escape, close-control, mask-click chain.
func NewDismisser(controls, masks []Locator, settle time.Duration) *Dismisser {
	overlays := make([]Locator, 0, len(controls)+len(masks))
	overlays = append(overlays, controls...)
	overlays = append(overlays, masks...)
	return &Dismisser{
		Overlays: overlays,
		Strategies: []DismissalStrategy{
			&EscapeStrategy{Settle: settle},
			&CloseControlStrategy{Controls: controls},
			&MaskClickStrategy{Masks: masks, Offset: Point{X: 10, Y: 10}},
		},
	}
}

// Dismiss reports closed=true only when an overlay was detected and a
// strategy succeeded. It never fails the caller.
func (d *Dismisser) Dismiss(ctx context.Context, page Page) (bool, []StrategyResult) {
	detected, err := overlayVisible(ctx, page, d.Overlays)
	if err != nil {
		slog.Debug("overlay detection failed", "error", err)
	}

	results := make([]StrategyResult, 0, len(d.Strategies))
	for _, s := range d.Strategies {
		res := s.Attempt(ctx, page)
		results = append(results, res)
		slog.Debug("dismissal attempt", "strategy", res.Strategy, "success", res.Success, "target", res.Target, "detail", res.Detail)
		if res.Success {
			return detected, results
		}
		if ctx.Err() != nil {
			break
		}
	}
	if detected {
		slog.Warn("overlay dismissal exhausted", "code", CodeDismissalExhausted, "attempts", len(results))
	}
	return false, results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
