package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

const CancelReasonUnpaid = "system: not paid within the allowed time"

var errNotDue = fmt.Errorf("%w: order is not yet due", domain.ErrInvalidState)

const (
	jobCancelUnpaid = "cancel_unpaid"
	jobAutoReceive  = "auto_receive"
)

// Locker grants a short-lived claim on key so that only one sweeper instance
// runs a job per tick.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

type Sweeper struct {
	svc     *Service
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

type SweeperOption func(*Sweeper)

func WithLocker(l Locker, ttl time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		sw.locker = l
		sw.lockTTL = ttl
	}
}

func NewSweeper(svc *Service, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	sw := &Sweeper{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// CancelUnpaid cancels every unpaid order older than the configured cancel
// window and returns how many it cancelled. One order failing does not stop
// the rest.
func (sw *Sweeper) CancelUnpaid(ctx context.Context) (int, error) {
	cfg, err := sw.svc.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	window := cfg.CancelWindow()
	if window <= 0 {
		sw.logger.Debug("unpaid order cancellation disabled")
		return 0, nil
	}
	cutoff := sw.svc.now().Add(-window)

	var due []domain.Order
	err = sw.svc.uow.Do(ctx, func(tx Stores) error {
		var err error
		due, err = tx.Orders.ListUnpaidBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	return sw.each(ctx, jobCancelUnpaid, due, func(o domain.Order) error {
		return sw.svc.expireUnpaid(ctx, o.OrderNo, cutoff)
	}), nil
}

// AutoReceive completes every shipped order whose confirm window has passed.
func (sw *Sweeper) AutoReceive(ctx context.Context) (int, error) {
	cfg, err := sw.svc.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	window := cfg.ConfirmWindow()
	if window <= 0 {
		sw.logger.Debug("automatic receipt disabled")
		return 0, nil
	}
	cutoff := sw.svc.now().Add(-window)

	var due []domain.Order
	err = sw.svc.uow.Do(ctx, func(tx Stores) error {
		var err error
		due, err = tx.Orders.ListShippedBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	return sw.each(ctx, jobAutoReceive, due, func(o domain.Order) error {
		return sw.svc.autoReceive(ctx, o.OrderNo, cutoff)
	}), nil
}

func (sw *Sweeper) each(ctx context.Context, job string, due []domain.Order, apply func(o domain.Order) error) int {
	done := 0
	for _, o := range due {
		if ctx.Err() != nil {
			break
		}
		err := apply(o)
		switch {
		case err == nil:
			done++
		case errors.Is(err, domain.ErrInvalidState):
			// Someone else moved the order between listing and locking.
			sw.logger.Debug("order no longer due", "job", job, "order_no", o.OrderNo, "error", err)
			continue
		default:
			sw.logger.Error("sweeper failed on order", "job", job, "order_no", o.OrderNo, "error", err)
		}
		sw.svc.metrics.Swept(ctx, job, err)
	}
	if done > 0 {
		sw.logger.Info("sweep finished", "job", job, "due", len(due), "processed", done)
	}
	return done
}

// Run executes both jobs every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	for _, job := range []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{jobCancelUnpaid, sw.CancelUnpaid},
		{jobAutoReceive, sw.AutoReceive},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sw.tick(ctx, job.name, job.fn)
				}
			}
		}()
	}
	wg.Wait()
}

func (sw *Sweeper) tick(ctx context.Context, job string, fn func(context.Context) (int, error)) {
	if sw.locker != nil {
		unlock, ok, err := sw.locker.TryLock(ctx, "shopflow:sweeper:"+job, sw.lockTTL)
		if err != nil {
			sw.logger.Error("failed to acquire sweeper lock", "job", job, "error", err)
			return
		}
		if !ok {
			sw.logger.Debug("sweeper lock held elsewhere", "job", job)
			return
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				sw.logger.Warn("failed to release sweeper lock", "job", job, "error", err)
			}
		}()
	}

	if _, err := fn(ctx); err != nil {
		sw.logger.Error("sweep failed", "job", job, "error", err)
	}
}
