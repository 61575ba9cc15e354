package types

import (
	"fmt"
	"strings"
)

// CheckoutStatus is the lifecycle of a pending checkout.
// Allowed moves: pending->processing, pending->expired, pending->cancelled,
// processing->paid, processing->cancelled. Everything else is rejected.
type CheckoutStatus string

const (
	CheckoutStatusPending    CheckoutStatus = "pending"
	CheckoutStatusProcessing CheckoutStatus = "processing"
	CheckoutStatusPaid       CheckoutStatus = "paid"
	CheckoutStatusExpired    CheckoutStatus = "expired"
	CheckoutStatusCancelled  CheckoutStatus = "cancelled"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusPending:    {CheckoutStatusProcessing, CheckoutStatusExpired, CheckoutStatusCancelled},
	CheckoutStatusProcessing: {CheckoutStatusPaid, CheckoutStatusCancelled},
}

func (s CheckoutStatus) Valid() bool {
	switch s {
	case CheckoutStatusPending, CheckoutStatusProcessing, CheckoutStatusPaid, CheckoutStatusExpired, CheckoutStatusCancelled:
		return true
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusPaid || s == CheckoutStatusExpired || s == CheckoutStatusCancelled
}

// CanTransitionTo reports whether s may move to next.
func (s CheckoutStatus) CanTransitionTo(next CheckoutStatus) bool {
	for _, it := range checkoutTransitions[s] {
		if it == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may legally move to target.
func SourcesOf(target CheckoutStatus) []CheckoutStatus {
	var res []CheckoutStatus
	for from, tos := range checkoutTransitions {
		for _, to := range tos {
			if to == target {
				res = append(res, from)
			}
		}
	}
	return res
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPartlyPaid OrderStatus = "PARTLY_PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPartlyPaid, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	}
	return false
}

// Finalized orders never have their status re-derived from the ledger.
func (s OrderStatus) Finalized() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded || s == OrderStatusCompleted
}

// ParseOrderStatus accepts the stored upper-case form as well as lower-case input.
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status: %q", s)
	}
	return st, nil
}

type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "pending"
	ReceiptStatusPaid     ReceiptStatus = "paid"
	ReceiptStatusFailed   ReceiptStatus = "failed"
	ReceiptStatusRefunded ReceiptStatus = "refunded"
)

func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptStatusPending, ReceiptStatusPaid, ReceiptStatusFailed, ReceiptStatusRefunded:
		return true
	}
	return false
}

// MobilePaymentStatus is the normalized status of a mobile money push.
type MobilePaymentStatus string

const (
	MobilePaymentStatusPending   MobilePaymentStatus = "PENDING"
	MobilePaymentStatusPushed    MobilePaymentStatus = "PUSHED"
	MobilePaymentStatusPaid      MobilePaymentStatus = "PAID"
	MobilePaymentStatusFailed    MobilePaymentStatus = "FAILED"
	MobilePaymentStatusCancelled MobilePaymentStatus = "CANCELLED"
)

func (s MobilePaymentStatus) IsTerminal() bool {
	return s == MobilePaymentStatusPaid || s == MobilePaymentStatusFailed || s == MobilePaymentStatusCancelled
}

var mobileStatusAliases = map[string]MobilePaymentStatus{
	"created":           MobilePaymentStatusPending,
	"pending":           MobilePaymentStatusPending,
	"ok":                MobilePaymentStatusPushed,
	"sent":              MobilePaymentStatusPushed,
	"pushed":            MobilePaymentStatusPushed,
	"awaiting delivery": MobilePaymentStatusPaid,
	"delivered":         MobilePaymentStatusPaid,
	"paid":              MobilePaymentStatusPaid,
	"cancelled":         MobilePaymentStatusCancelled,
	"canceled":          MobilePaymentStatusCancelled,
	"failed":            MobilePaymentStatusFailed,
	"disputed":          MobilePaymentStatusFailed,
	"refunded":          MobilePaymentStatusFailed,
}

// NormalizeMobilePaymentStatus maps a free-form provider status string onto
// the closed set. Unknown strings normalize to PENDING with ok=false.
func NormalizeMobilePaymentStatus(raw string) (MobilePaymentStatus, bool) {
	st, ok := mobileStatusAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return MobilePaymentStatusPending, false
	}
	return st, true
}

// OrderChangeReason is recorded in order_log for every order mutation.
type OrderChangeReason string

const (
	OrderChangeReasonCreated        OrderChangeReason = "created"
	OrderChangeReasonPaymentSettled OrderChangeReason = "payment_settled"
	OrderChangeReasonLatePayment    OrderChangeReason = "late_payment"
	OrderChangeReasonPaymentFailed  OrderChangeReason = "payment_failed"
	OrderChangeReasonSynced         OrderChangeReason = "synced"
	OrderChangeReasonSyncFailed     OrderChangeReason = "sync_failed"
	OrderChangeReasonResync         OrderChangeReason = "resync_requested"
	// provider took money for a receipt already failed here; needs a refund
	OrderChangeReasonPaidAfterFailed OrderChangeReason = "paid_after_failed"
)
