package selection

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrUpdateInProgress rejects toggles while a stock update is running.
var ErrUpdateInProgress = errors.New("selection: stock update in progress")

// DefaultTimeout bounds one stock update.
const DefaultTimeout = 10 * time.Second

// Direction labels a stock mutation.
type Direction string

const (
	DirectionOutOfStock Direction = "out_of_stock"
	DirectionInStock    Direction = "in_stock"
)

// StockMutator issues stock status calls against the inventory API.
type StockMutator interface {
	MarkOutOfStock(ctx context.Context, id int64) error
	MarkInStock(ctx context.Context, id int64) error
}

// Guard is the single in-progress flag. Acquire fails with ErrUpdateInProgress when held.
type Guard interface {
	Acquire(ctx context.Context) (release func(), err error)
	Held(ctx context.Context) bool
}

// Refresher reloads the catalog after a mutation settles.
type Refresher func(ctx context.Context) error

// Observer is told the outcome of every individual stock call.
type Observer func(direction Direction, err error)

// HeaderState is the tri-state of the page checkbox.
type HeaderState string

const (
	HeaderUnchecked HeaderState = "unchecked"
	HeaderChecked   HeaderState = "checked"
	HeaderMixed     HeaderState = "mixed"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGuard replaces the in-process flag.
func WithGuard(guard Guard) Option {
	return func(c *Coordinator) {
		if guard != nil {
			c.guard = guard
		}
	}
}

// WithRefresher sets the catalog refresh run after every mutation.
func WithRefresher(refresh Refresher) Option {
	return func(c *Coordinator) { c.refresh = refresh }
}

// WithTimeout bounds each stock update.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithObserver reports each stock call.
func WithObserver(observe Observer) Option {
	return func(c *Coordinator) { c.observe = observe }
}

// Coordinator tracks selected products and drives stock status changes.
type Coordinator struct {
	mutator   StockMutator
	guard     Guard
	refresh   Refresher
	observe   Observer
	timeout   time.Duration
	selected  Set
	lastError error
}

// NewCoordinator starts from an existing selection.
func NewCoordinator(mutator StockMutator, selected Set, opts ...Option) *Coordinator {
	c := &Coordinator{
		mutator:  mutator,
		guard:    &FlagGuard{},
		timeout:  DefaultTimeout,
		selected: selected.Clone(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Selected returns a copy of the selection.
func (c *Coordinator) Selected() Set {
	return c.selected.Clone()
}

func (c *Coordinator) IsSelected(id int64) bool {
	return c.selected.Has(id)
}

// LastError is the failure of the most recent mutation, if any.
func (c *Coordinator) LastError() error {
	return c.lastError
}

// IsUpdating reports whether a stock update holds the guard.
func (c *Coordinator) IsUpdating(ctx context.Context) bool {
	return c.guard.Held(ctx)
}

// Clear empties the selection.
func (c *Coordinator) Clear() {
	c.selected = Set{}
	c.lastError = nil
}

// HeaderState computes the page checkbox from the selection and the ids on the page.
func (c *Coordinator) HeaderState(idsOnPage []int64) HeaderState {
	selected := 0
	for _, id := range idsOnPage {
		if c.selected.Has(id) {
			selected++
		}
	}
	switch {
	case selected == 0:
		return HeaderUnchecked
	case selected == len(idsOnPage):
		return HeaderChecked
	default:
		return HeaderMixed
	}
}

// ToggleOne selects id and marks it out of stock, or deselects it and marks it in
// stock. Membership changes only when the call succeeds.
func (c *Coordinator) ToggleOne(ctx context.Context, id int64) error {
	return c.run(ctx, func(ctx context.Context) error {
		if c.selected.Has(id) {
			if err := c.call(ctx, DirectionInStock, id); err != nil {
				return err
			}
			c.selected.Remove(id)
			return nil
		}
		if err := c.call(ctx, DirectionOutOfStock, id); err != nil {
			return err
		}
		c.selected.Add(id)
		return nil
	})
}

// ToggleAllOnPage deselects the page and marks it in stock when every id is
// already selected. Otherwise it adds the page to the selection and marks the
// newly selected ids out of stock. Calls run concurrently and are all awaited.
func (c *Coordinator) ToggleAllOnPage(ctx context.Context, idsOnPage []int64) error {
	if len(idsOnPage) == 0 {
		return nil
	}
	return c.run(ctx, func(ctx context.Context) error {
		direction := DirectionInStock
		var targets []int64
		if c.HeaderState(idsOnPage) == HeaderChecked {
			for _, id := range idsOnPage {
				c.selected.Remove(id)
				targets = append(targets, id)
			}
		} else {
			direction = DirectionOutOfStock
			for _, id := range idsOnPage {
				if !c.selected.Has(id) {
					targets = append(targets, id)
					c.selected.Add(id)
				}
			}
		}

		// A failed call does not cancel its siblings; every call settles first.
		var g errgroup.Group
		for _, id := range targets {
			id := id
			g.Go(func() error {
				return c.call(ctx, direction, id)
			})
		}
		return g.Wait()
	})
}

// run holds the guard for the mutation and refreshes the catalog once it settles.
func (c *Coordinator) run(ctx context.Context, mutate func(context.Context) error) error {
	release, err := c.guard.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = mutate(opCtx)
	cancel()
	c.lastError = err

	if c.refresh != nil {
		if refreshErr := c.refresh(ctx); refreshErr != nil && err == nil {
			return refreshErr
		}
	}
	return err
}

func (c *Coordinator) call(ctx context.Context, direction Direction, id int64) error {
	var err error
	if direction == DirectionInStock {
		err = c.mutator.MarkInStock(ctx, id)
	} else {
		err = c.mutator.MarkOutOfStock(ctx, id)
	}
	if c.observe != nil {
		c.observe(direction, err)
	}
	return err
}

// FlagGuard is an in-process Guard backed by an atomic flag.
type FlagGuard struct {
	busy atomic.Bool
}

func (g *FlagGuard) Acquire(context.Context) (func(), error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrUpdateInProgress
	}
	return func() { g.busy.Store(false) }, nil
}

func (g *FlagGuard) Held(context.Context) bool {
	return g.busy.Load()
}
