package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakePage is an in-memory Page. Locators are keyed by their String form
// with Nth cleared.
type fakePage struct {
	mu sync.Mutex

	width, height int
	counts        map[string]int
	visible       map[string]bool
	activateErr   map[string]error
	forceErr      map[string]error
	keyErr        error
	// escapeClears removes every counted element when Escape is pressed.
	escapeClears bool
	// escapeHides hides every element on Escape but leaves it in the DOM.
	escapeHides bool

	calls []string
}

func newFakePage() *fakePage {
	return &fakePage{
		width:       1366,
		height:      768,
		counts:      make(map[string]int),
		visible:     make(map[string]bool),
		activateErr: make(map[string]error),
		forceErr:    make(map[string]error),
	}
}

func key(l Locator) string { return l.At(0).String() }

func (p *fakePage) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) set(l Locator, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[key(l)] = n
	p.visible[key(l)] = n > 0
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Viewport(context.Context) (int, int, error) {
	return p.width, p.height, nil
}

func (p *fakePage) ClickAt(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("click %.0f,%.0f", x, y)
	return nil
}

func (p *fakePage) PressKey(_ context.Context, k string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key %s", k)
	if p.keyErr != nil {
		return p.keyErr
	}
	if k == "Escape" && p.escapeClears {
		for name := range p.counts {
			p.counts[name] = 0
			p.visible[name] = false
		}
	}
	if k == "Escape" && p.escapeHides {
		for name := range p.visible {
			p.visible[name] = false
		}
	}
	return nil
}

func (p *fakePage) Count(_ context.Context, l Locator) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[key(l)], nil
}

func (p *fakePage) IsVisible(_ context.Context, l Locator) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[key(l)] && p.counts[key(l)] > l.Nth, nil
}

func (p *fakePage) Activate(_ context.Context, l Locator) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("activate %s", l)
	if err := p.activateErr[key(l)]; err != nil {
		return err
	}
	if p.counts[key(l)] <= l.Nth {
		return errors.New("no element")
	}
	return nil
}

func (p *fakePage) ForceClick(_ context.Context, l Locator, offset *Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset != nil {
		p.record("force %s @%.0f,%.0f", l, offset.X, offset.Y)
	} else {
		p.record("force %s", l)
	}
	if err := p.forceErr[key(l)]; err != nil {
		return err
	}
	if p.counts[key(l)] <= l.Nth {
		return errors.New("no element")
	}
	for name := range p.counts {
		p.counts[name] = 0
		p.visible[name] = false
	}
	return nil
}
