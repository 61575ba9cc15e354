package reconciliation

import (
	"context"
	"time"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/events"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/types"
)

type OrderSettledEvent struct {
	OrderID    string            `json:"order_id"`
	CheckoutID string            `json:"checkout_id"`
	Reference  string            `json:"reference"`
	Status     types.OrderStatus `json:"status"`
	Currency   string            `json:"currency"`
	Total      int64             `json:"total"`
	AmountPaid int64             `json:"amount_paid"`
	Balance    int64             `json:"balance"`
	Provider   string            `json:"provider"`
	SettledAt  time.Time         `json:"settled_at"`
}

type PaymentFailedEvent struct {
	Reference  string    `json:"reference"`
	CheckoutID string    `json:"checkout_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Provider   string    `json:"provider"`
	Reason     string    `json:"reason,omitempty"`
	FailedAt   time.Time `json:"failed_at"`
}

func (e *Engine) publish(ctx context.Context, subject string, v any) {
	if e.events == nil {
		return
	}
	// a lost event must not fail a committed settlement
	if err := e.events.Publish(ctx, subject, v); err != nil {
		logctx.FromCtx(ctx, e.log).Warnw("publish domain event failed", "subject", subject, "err", err)
	}
}

func (e *Engine) publishSettled(ctx context.Context, o *models.Order, reference string) {
	e.publish(ctx, events.SubjectOrderSettled, OrderSettledEvent{
		OrderID:    o.ID,
		CheckoutID: o.CheckoutID,
		Reference:  reference,
		Status:     o.Status,
		Currency:   o.Currency,
		Total:      o.Total,
		AmountPaid: o.AmountPaid,
		Balance:    o.Balance,
		Provider:   string(o.PaymentProvider),
		SettledAt:  e.now(),
	})
}

func (e *Engine) publishFailed(ctx context.Context, checkoutID, orderID, reference string, provider types.PaymentProvider, reason string) {
	e.publish(ctx, events.SubjectPaymentFailed, PaymentFailedEvent{
		Reference:  reference,
		CheckoutID: checkoutID,
		OrderID:    orderID,
		Provider:   string(provider),
		Reason:     reason,
		FailedAt:   e.now(),
	})
}
