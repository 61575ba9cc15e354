// Package ledger holds the order money arithmetic. Everything is in integer
// minor units; decimal conversion happens at the API and provider edges.
package ledger

import (
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/types"
)

// Balance is what is still owed, never negative.
func Balance(total, amountPaid int64) int64 {
	if b := total - amountPaid; b > 0 {
		return b
	}
	return 0
}

// RecomputeStatus derives the order status from its balance. The fully paid
// check runs first so an overpaid order never reads as partly paid.
func RecomputeStatus(balance, total int64) types.OrderStatus {
	switch {
	case balance <= 0:
		return types.OrderStatusProcessing
	case balance < total:
		return types.OrderStatusPartlyPaid
	default:
		return types.OrderStatusPending
	}
}

// NewOrderAmounts returns the ledger columns of a freshly created order.
func NewOrderAmounts(total int64) (balance, amountPaid int64, status types.OrderStatus) {
	return total, 0, RecomputeStatus(total, total)
}

// Credit applies a settled payment to o. Finalized orders (cancelled,
// refunded, completed) take the money but keep their status; the returned
// bool is false in that case.
func Credit(o *models.Order, amount int64) bool {
	o.AmountPaid += amount
	o.Balance = Balance(o.Total, o.AmountPaid)
	o.Version++
	if o.Status.Finalized() {
		return false
	}
	o.Status = RecomputeStatus(o.Balance, o.Total)
	return true
}

// Fail marks an order failed unless money was already taken or the order
// is finalized.
func Fail(o *models.Order) bool {
	if o.AmountPaid > 0 || o.Status.Finalized() || o.Status == types.OrderStatusFailed {
		return false
	}
	o.Status = types.OrderStatusFailed
	o.Version++
	return true
}

// FullyPaid reports whether o has nothing left to pay.
func FullyPaid(o *models.Order) bool {
	return o.Balance <= 0
}
