package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

// PayBalance starts a payment for the outstanding balance of a partly paid
// order. The new receipt is inserted under the order row lock, so two
// concurrent requests cannot both start a charge.
func (e *Engine) PayBalance(ctx context.Context, orderID string, provider types.PaymentProvider, opts InitiateOptions) (*InitiateOutcome, error) {
	log := logctx.FromCtx(ctx, e.log)
	if !provider.Valid() {
		return nil, invalid("provider", "unknown provider %q", provider)
	}
	gw, err := e.gateways.Get(provider)
	if err != nil {
		return nil, invalid("provider", "%s is not available", provider)
	}

	var (
		order   *models.Order
		receipt *models.PaymentReceipt
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, orderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if o.Status != types.OrderStatusPartlyPaid || o.Balance <= 0 {
			return fmt.Errorf("%w: order is %s", ErrConflict, o.Status)
		}
		var pending int64
		if err := tx.Model(&models.PaymentReceipt{}).
			Where("order_id = ? AND status = ?", o.ID, types.ReceiptStatusPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("count pending receipts: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: a payment for this order is already in progress", ErrConflict)
		}
		ref, err := e.codec.Generate(o.CheckoutID)
		if err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		receipt = &models.PaymentReceipt{
			ID:        tool.GenerateUUIDV7(),
			OrderID:   o.ID,
			Provider:  provider,
			Reference: ref,
			Amount:    o.Balance,
			Currency:  o.Currency,
			Status:    types.ReceiptStatusPending,
		}
		if err := tx.Create(receipt).Error; err != nil {
			return fmt.Errorf("create balance receipt: %w", err)
		}
		o.PaymentReference = ref
		if err := tx.Model(o).Update("payment_reference", ref).Error; err != nil {
			return fmt.Errorf("update order reference: %w", err)
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = logctx.WithReference(ctx, receipt.Reference)
	c, err := e.store.FindByID(ctx, order.CheckoutID)
	if err != nil {
		return nil, err
	}
	res, err := gw.Initiate(ctx, e.initiateRequest(c, receipt.Reference, receipt.Amount, opts))
	if err != nil || res == nil || !res.Success {
		reason := initiateFailure(res, err)
		log.Warnw("balance payment initiate failed", "order_id", order.ID, "provider", provider, "reason", reason)
		if ferr := e.db.WithContext(ctx).Model(&models.PaymentReceipt{}).
			Where("id = ? AND status = ?", receipt.ID, types.ReceiptStatusPending).
			Updates(map[string]any{"status": types.ReceiptStatusFailed, "updated_at": e.now()}).Error; ferr != nil {
			log.Errorw("fail balance receipt", "err", ferr)
		}
		e.publishFailed(ctx, c.ID, order.ID, receipt.Reference, provider, reason)
		return nil, fmt.Errorf("%w: %s", ErrProviderInitiate, reason)
	}

	upd := map[string]any{"poll_url": res.PollURL, "updated_at": e.now()}
	if len(res.Raw) > 0 {
		upd["metadata"] = datatypes.JSONMap(res.Raw)
	}
	if err := e.db.WithContext(ctx).Model(&models.PaymentReceipt{}).Where("id = ?", receipt.ID).Updates(upd).Error; err != nil {
		log.Errorw("store balance receipt details", "err", err)
	}
	receipt.PollURL = res.PollURL
	if res.ProviderReference != "" {
		if _, err := e.pending(ctx, &target{receipt: receipt}, StatusUpdate{ProviderReference: res.ProviderReference}); err != nil {
			log.Errorw("store provider reference", "err", err)
		}
	}

	out := &InitiateOutcome{
		Checkout:     c,
		Order:        order,
		Receipt:      receipt,
		RedirectURL:  res.RedirectURL,
		PollURL:      res.PollURL,
		Instructions: res.Instructions,
	}
	if res.Outcome.Terminal() {
		applied, err := e.Apply(ctx, StatusUpdate{
			Provider:          provider,
			Reference:         receipt.Reference,
			ProviderReference: res.ProviderReference,
			Outcome:           res.Outcome,
			Amount:            res.Amount,
			Raw:               res.Raw,
			Source:            SourceInitiate,
		})
		if err != nil {
			return nil, err
		}
		out.Settled = applied.Result == ResultApplied && res.Outcome == gateway.OutcomePaid
		if applied.Order != nil {
			out.Order = applied.Order
		}
	}
	return out, nil
}

// ConfirmManualPayment settles a cash receipt after an operator collected
// the money.
func (e *Engine) ConfirmManualPayment(ctx context.Context, ref string) (*ApplyOutcome, error) {
	t, err := e.resolve(ctx, ref, "")
	if errors.Is(err, ErrUnrecognizedCallback) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.provider() != types.PaymentProviderCash {
		return nil, invalid("reference", "%s is a %s payment, only cash is confirmed manually", ref, t.provider())
	}
	return e.Apply(ctx, StatusUpdate{
		Provider:  types.PaymentProviderCash,
		Reference: t.ref,
		Outcome:   gateway.OutcomePaid,
		Source:    SourceManual,
	})
}

// PollReceipt asks the provider for the current state of a pending receipt
// and applies the answer. Providers without a status API report
// gateway.ErrUnsupported.
func (e *Engine) PollReceipt(ctx context.Context, rec *models.PaymentReceipt) (*ApplyOutcome, error) {
	gw, err := e.gateways.Get(rec.Provider)
	if err != nil {
		return nil, err
	}
	q := gateway.StatusQuery{Reference: rec.Reference, PollURL: rec.PollURL}
	if rec.ProviderReference != nil {
		q.ProviderReference = *rec.ProviderReference
	}
	res, err := gw.CheckStatus(ctx, q)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, StatusUpdate{
		Provider:          rec.Provider,
		Reference:         rec.Reference,
		ProviderReference: res.ProviderReference,
		Outcome:           res.Outcome,
		Amount:            res.Amount,
		RawStatus:         res.RawStatus,
		Raw:               res.Raw,
		Source:            SourcePoll,
	})
}
