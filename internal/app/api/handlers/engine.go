package handlers

import (
	"context"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/types"
)

// PaymentEngine is the part of reconciliation.Engine the HTTP layer uses.
type PaymentEngine interface {
	CreateCheckout(ctx context.Context, req reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error)
	InitiatePayment(ctx context.Context, ref string, opts reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error)
	GetCheckout(ctx context.Context, ref string, refresh bool) (*reconciliation.CheckoutView, error)
	Cancel(ctx context.Context, ref string) (*models.PendingCheckout, error)
	PayBalance(ctx context.Context, orderID string, provider types.PaymentProvider, opts reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error)
	HandleCallback(ctx context.Context, provider types.PaymentProvider, cb gateway.Callback, source reconciliation.Source) (*reconciliation.ApplyOutcome, error)
	ConfirmManualPayment(ctx context.Context, ref string) (*reconciliation.ApplyOutcome, error)
}

var _ PaymentEngine = (*reconciliation.Engine)(nil)
