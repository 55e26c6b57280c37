package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/stockroom/internal/selection"
	"github.com/odyssey-erp/stockroom/internal/shared"
)

// lockMargin keeps the lock alive slightly past the stock timeout.
const lockMargin = 5 * time.Second

// sessionGuard holds the stock update flag of one session in Redis, so two
// tabs of the same session share it.
type sessionGuard struct {
	locker *shared.Locker
	key    string
	ttl    time.Duration
}

func (g sessionGuard) Acquire(ctx context.Context) (func(), error) {
	release, err := g.locker.Acquire(ctx, g.key, g.ttl)
	if errors.Is(err, shared.ErrLockHeld) {
		return nil, selection.ErrUpdateInProgress
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (g sessionGuard) Held(ctx context.Context) bool {
	held, err := g.locker.Held(ctx, g.key)
	return err == nil && held
}

func (h *Handler) coordinator(sess *shared.Session, selected selection.Set) *selection.Coordinator {
	opts := []selection.Option{
		selection.WithTimeout(h.opts.StockTimeout),
		selection.WithObserver(func(direction selection.Direction, err error) {
			h.metrics.ObserveStockMutation(string(direction), err)
		}),
	}
	if h.locker != nil && sess != nil {
		opts = append(opts, selection.WithGuard(sessionGuard{
			locker: h.locker,
			key:    shared.StockLockKey(sess.ID),
			ttl:    h.opts.StockTimeout + lockMargin,
		}))
	}
	return selection.NewCoordinator(h.api, selected, opts...)
}
