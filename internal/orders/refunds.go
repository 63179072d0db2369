package orders

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

func newRefundNo() string {
	return "RF" + ulid.Make().String()
}

// ApplyRefund opens a refund request on a paid order and moves the order to
// refunding. At most one active request may exist per order.
func (s *Service) ApplyRefund(ctx context.Context, userID, orderID int64, amount decimal.Decimal, reason string) (*domain.Refund, error) {
	var refund *domain.Refund
	err := s.uow.Do(ctx, func(tx Stores) error {
		o, err := tx.Orders.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.ErrOrderNotFound
		}
		if err := requireOwner(o, userID); err != nil {
			return err
		}

		active, err := tx.Refunds.CountActiveRefunds(ctx, o.ID)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrDuplicateRefund
		}

		if err := requireStatus("refund", o,
			domain.OrderStatusPendingShipment,
			domain.OrderStatusPendingReceipt,
			domain.OrderStatusCompleted,
		); err != nil {
			return err
		}
		if !amount.IsPositive() || amount.GreaterThan(o.TotalAmount) {
			return domain.ErrInvalidAmount
		}

		refund = &domain.Refund{
			OrderID:   o.ID,
			RefundNo:  newRefundNo(),
			Amount:    amount,
			Reason:    reason,
			Status:    domain.RefundStatusRequested,
			CreatedAt: s.now(),
		}
		if err := tx.Refunds.CreateRefund(ctx, refund); err != nil {
			return err
		}

		o.Status = domain.OrderStatusRefunding
		return tx.Orders.UpdateOrder(ctx, o)
	})
	s.metrics.Refund(ctx, "apply", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund requested",
		"refund_no", refund.RefundNo,
		"order_id", orderID,
		"amount", refund.Amount.StringFixed(2),
	)
	return refund, nil
}

// ReviewRefund approves or rejects a pending request. Approval returns the
// order's stock and closes the order; rejection puts the order back where
// its shipment timestamps say it was.
func (s *Service) ReviewRefund(ctx context.Context, refundID int64, approve bool) (*domain.Refund, error) {
	op := "reject"
	if approve {
		op = "approve"
	}

	var refund *domain.Refund
	err := s.uow.Do(ctx, func(tx Stores) error {
		rf, o, err := s.lockRefund(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if err := requirePending(rf); err != nil {
			return err
		}

		now := s.now()
		rf.HandledAt = &now
		if approve {
			if err := restoreStock(ctx, tx.Stock, o); err != nil {
				return err
			}
			rf.Status = domain.RefundStatusApproved
			o.Status = domain.OrderStatusRefundComplete
		} else {
			rf.Status = domain.RefundStatusRejected
			o.Status = domain.OrderStatusPendingShipment
			if o.ShipTime != nil {
				o.Status = domain.OrderStatusPendingReceipt
			}
		}

		if err := tx.Refunds.UpdateRefund(ctx, rf); err != nil {
			return err
		}
		if err := tx.Orders.UpdateOrder(ctx, o); err != nil {
			return err
		}
		refund = rf
		return nil
	})
	s.metrics.Refund(ctx, op, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund reviewed", "refund_no", refund.RefundNo, "decision", op)
	return refund, nil
}

// CancelRefund withdraws the owner's pending request and restores the order
// to the furthest point its timestamps show it reached.
func (s *Service) CancelRefund(ctx context.Context, refundID, userID int64) (*domain.Refund, error) {
	var refund *domain.Refund
	err := s.uow.Do(ctx, func(tx Stores) error {
		rf, o, err := s.lockRefund(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if err := requireOwner(o, userID); err != nil {
			return err
		}
		if err := requirePending(rf); err != nil {
			return err
		}

		now := s.now()
		rf.HandledAt = &now
		rf.Status = domain.RefundStatusCancelled
		switch {
		case o.ReceiveTime != nil:
			o.Status = domain.OrderStatusCompleted
		case o.ShipTime != nil:
			o.Status = domain.OrderStatusPendingReceipt
		default:
			o.Status = domain.OrderStatusPendingShipment
		}

		if err := tx.Refunds.UpdateRefund(ctx, rf); err != nil {
			return err
		}
		if err := tx.Orders.UpdateOrder(ctx, o); err != nil {
			return err
		}
		refund = rf
		return nil
	})
	s.metrics.Refund(ctx, "cancel", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund cancelled", "refund_no", refund.RefundNo, "user_id", userID)
	return refund, nil
}

// lockRefund loads a refund and its order, both locked.
func (s *Service) lockRefund(ctx context.Context, tx Stores, refundID int64) (*domain.Refund, *domain.Order, error) {
	rf, err := tx.Refunds.LockRefund(ctx, refundID)
	if err != nil {
		return nil, nil, err
	}
	if rf == nil {
		return nil, nil, domain.ErrRefundNotFound
	}

	o, err := tx.Orders.LockByID(ctx, rf.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if o == nil {
		return nil, nil, domain.ErrOrderNotFound
	}

	return rf, o, nil
}

func requirePending(rf *domain.Refund) error {
	if rf.Status != domain.RefundStatusRequested {
		return fmt.Errorf("refund %s is %s: %w", rf.RefundNo, rf.Status, domain.ErrRefundAlreadyHandled)
	}
	return nil
}

func (s *Service) GetRefund(ctx context.Context, refundID int64, viewer Viewer) (*domain.Refund, error) {
	var refund *domain.Refund
	err := s.uow.Do(ctx, func(tx Stores) error {
		rf, err := tx.Refunds.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if rf == nil {
			return domain.ErrRefundNotFound
		}
		if err := s.checkOrderVisible(ctx, tx, rf.OrderID, viewer); err != nil {
			return err
		}
		refund = rf
		return nil
	})
	return refund, err
}

// LatestRefund returns the most recent refund request on an order.
func (s *Service) LatestRefund(ctx context.Context, orderID int64, viewer Viewer) (*domain.Refund, error) {
	var refund *domain.Refund
	err := s.uow.Do(ctx, func(tx Stores) error {
		if err := s.checkOrderVisible(ctx, tx, orderID, viewer); err != nil {
			return err
		}
		rf, err := tx.Refunds.LatestRefund(ctx, orderID)
		if err != nil {
			return err
		}
		if rf == nil {
			return domain.ErrRefundNotFound
		}
		refund = rf
		return nil
	})
	return refund, err
}

func (s *Service) checkOrderVisible(ctx context.Context, tx Stores, orderID int64, viewer Viewer) error {
	if viewer.Admin {
		return nil
	}
	o, err := tx.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return domain.ErrOrderNotFound
	}
	return viewer.canSee(o)
}
