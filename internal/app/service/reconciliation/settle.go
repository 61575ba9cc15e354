package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/app/service/checkout"
	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/ledger"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/metrics"
	"github.com/fatflowers/dropship/pkg/types"
)

// Source names where a status update came from.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceReturn   Source = "return"
	SourcePoll     Source = "poll"
	SourceInitiate Source = "initiate"
	SourceManual   Source = "manual"
)

type Result string

const (
	ResultApplied     Result = "applied"
	ResultDuplicate   Result = "duplicate"
	ResultLatePayment Result = "late_payment"
	ResultFailed      Result = "failed"
	ResultPending     Result = "pending"
	ResultIgnored     Result = "ignored"
)

// StatusUpdate is a verified provider report about one payment attempt.
type StatusUpdate struct {
	Provider          types.PaymentProvider
	Reference         string
	ProviderReference string
	Outcome           gateway.Outcome
	Amount            int64
	RawStatus         string
	Raw               map[string]any
	Source            Source
}

type ApplyOutcome struct {
	Result    Result
	Reference string
	Order     *models.Order
	Receipt   *models.PaymentReceipt
}

type target struct {
	checkout *models.PendingCheckout
	order    *models.Order
	receipt  *models.PaymentReceipt
	ref      string
}

func (t *target) provider() types.PaymentProvider {
	if t.receipt != nil {
		return t.receipt.Provider
	}
	return t.checkout.Provider
}

// HandleCallback verifies a provider notification and applies it.
func (e *Engine) HandleCallback(ctx context.Context, provider types.PaymentProvider, cb gateway.Callback, source Source) (*ApplyOutcome, error) {
	log := logctx.FromCtx(ctx, e.log)
	gw, err := e.gateways.Get(provider)
	if err != nil {
		return nil, invalid("provider", "%s is not available", provider)
	}
	res, err := gw.HandleCallback(ctx, cb)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrAuthenticity):
			metrics.IncPaymentCallback(string(provider), "rejected")
			log.Errorw("payment callback failed authenticity check", "provider", provider, "source", source, "err", err)
		case errors.Is(err, gateway.ErrUnsupported):
			return nil, invalid("provider", "%s does not accept callbacks", provider)
		default:
			metrics.IncPaymentCallback(string(provider), "malformed")
			log.Warnw("payment callback could not be parsed", "provider", provider, "source", source, "err", err)
		}
		return nil, err
	}
	return e.Apply(ctx, StatusUpdate{
		Provider:          provider,
		Reference:         res.Reference,
		ProviderReference: res.ProviderReference,
		Outcome:           res.Outcome,
		Amount:            res.Amount,
		RawStatus:         res.RawStatus,
		Raw:               res.Raw,
		Source:            source,
	})
}

// Apply routes a verified status update to its receipt and moves the
// ledger. Applying the same update twice changes nothing the second time.
func (e *Engine) Apply(ctx context.Context, u StatusUpdate) (*ApplyOutcome, error) {
	if u.Reference != "" {
		ctx = logctx.WithReference(ctx, u.Reference)
	}
	log := logctx.FromCtx(ctx, e.log)

	t, err := e.resolve(ctx, u.Reference, u.ProviderReference)
	if errors.Is(err, ErrUnrecognizedCallback) {
		metrics.IncPaymentCallback(string(u.Provider), "unrecognized")
		log.Warnw("payment update matches no receipt or checkout", "provider", u.Provider,
			"provider_reference", u.ProviderReference, "outcome", u.Outcome, "source", u.Source)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if u.Provider != "" && t.provider() != u.Provider {
		metrics.IncPaymentCallback(string(u.Provider), "unrecognized")
		log.Errorw("payment update provider does not match receipt", "provider", u.Provider, "expected", t.provider())
		return nil, fmt.Errorf("%w: provider mismatch", ErrUnrecognizedCallback)
	}

	var out *ApplyOutcome
	switch u.Outcome {
	case gateway.OutcomePaid:
		out, err = e.settle(ctx, t, u)
	case gateway.OutcomeFailed, gateway.OutcomeCancelled:
		out, err = e.fail(ctx, t, u)
	default:
		out, err = e.pending(ctx, t, u)
	}
	if err != nil {
		return nil, err
	}
	metrics.IncPaymentCallback(string(t.provider()), string(out.Result))
	log.Infow("payment update applied", "provider", t.provider(), "outcome", u.Outcome,
		"result", out.Result, "source", u.Source)
	return out, nil
}

// resolve finds what a callback refers to. The reference is decoded first,
// then matched against receipts and checkouts, and finally the provider's
// own transaction id is tried.
func (e *Engine) resolve(ctx context.Context, ref, providerRef string) (*target, error) {
	db := e.db.WithContext(ctx)
	if ref != "" {
		if id, ok := e.codec.Parse(ref); ok {
			c, err := e.store.FindByID(ctx, id)
			switch {
			case err == nil:
				rec, err := findReceipt(db, "reference = ?", ref)
				if err != nil {
					return nil, err
				}
				if rec != nil {
					return e.fromReceipt(ctx, rec)
				}
				if c.Reference == ref {
					order, err := e.orderByCheckout(db, c.ID)
					if err != nil {
						return nil, err
					}
					return &target{checkout: c, order: order, ref: ref}, nil
				}
			case !errors.Is(err, checkout.ErrNotFound):
				return nil, err
			}
		}
		rec, err := findReceipt(db, "reference = ?", ref)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return e.fromReceipt(ctx, rec)
		}
		c, err := e.store.FindByReference(ctx, ref)
		if err == nil {
			order, err := e.orderByCheckout(db, c.ID)
			if err != nil {
				return nil, err
			}
			return &target{checkout: c, order: order, ref: ref}, nil
		}
		if !errors.Is(err, checkout.ErrNotFound) {
			return nil, err
		}
	}
	// some providers only echo their own transaction id
	pr := lo.Ternary(providerRef != "", providerRef, ref)
	if pr != "" {
		rec, err := findReceipt(db, "provider_reference = ?", pr)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return e.fromReceipt(ctx, rec)
		}
	}
	return nil, ErrUnrecognizedCallback
}

func (e *Engine) fromReceipt(ctx context.Context, rec *models.PaymentReceipt) (*target, error) {
	var o models.Order
	if err := e.db.WithContext(ctx).Where("id = ?", rec.OrderID).First(&o).Error; err != nil {
		return nil, fmt.Errorf("load order of receipt %s: %w", rec.Reference, err)
	}
	c, err := e.store.FindByID(ctx, o.CheckoutID)
	if err != nil {
		return nil, fmt.Errorf("load checkout of order %s: %w", o.ID, err)
	}
	return &target{checkout: c, order: &o, receipt: rec, ref: rec.Reference}, nil
}

func (e *Engine) reloadReceipt(ctx context.Context, rec *models.PaymentReceipt) *models.PaymentReceipt {
	cur, err := findReceipt(e.db.WithContext(ctx), "id = ?", rec.ID)
	if err != nil || cur == nil {
		return rec
	}
	return cur
}

func findReceipt(db *gorm.DB, query string, args ...any) (*models.PaymentReceipt, error) {
	var rec models.PaymentReceipt
	err := db.Where(query, args...).Order("created_at").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	return &rec, nil
}

// recoverOrder creates the order for a checkout whose provider reported
// back before the initiating request persisted anything.
func (e *Engine) recoverOrder(ctx context.Context, t *target, u StatusUpdate) error {
	c := t.checkout
	switch c.Status {
	case types.CheckoutStatusProcessing:
	case types.CheckoutStatusPending:
		won, err := e.store.Claim(ctx, c)
		if err != nil {
			return err
		}
		if !won {
			cur, err := e.store.FindByID(ctx, c.ID)
			if err != nil {
				return err
			}
			if cur.Status != types.CheckoutStatusProcessing {
				return nil
			}
			t.checkout = cur
		}
	default:
		return nil
	}
	order, rec, err := e.createOrder(ctx, t.checkout, t.ref, &gateway.InitiateResult{
		ProviderReference: u.ProviderReference,
		Raw:               u.Raw,
	})
	if err != nil {
		return err
	}
	logctx.FromCtx(ctx, e.log).Warnw("order recovered from provider update", "order_id", order.ID, "source", u.Source)
	t.order, t.receipt = order, rec
	return nil
}

func (e *Engine) settle(ctx context.Context, t *target, u StatusUpdate) (*ApplyOutcome, error) {
	log := logctx.FromCtx(ctx, e.log)
	if t.receipt == nil {
		if err := e.recoverOrder(ctx, t, u); err != nil {
			return nil, err
		}
		if t.receipt == nil {
			// nothing to credit; the money has to be refunded by hand
			log.Errorw("payment reported for closed checkout without order", "checkout_status", t.checkout.Status,
				"provider_reference", u.ProviderReference, "amount", u.Amount)
			return &ApplyOutcome{Result: ResultLatePayment, Reference: t.ref}, nil
		}
	}

	rec := t.receipt
	amount := rec.Amount
	extra := datatypes.JSONMap{
		"receipt_id": rec.ID,
		"provider":   string(rec.Provider),
		"amount":     amount,
		"source":     string(u.Source),
	}
	if u.ProviderReference != "" {
		extra["provider_reference"] = u.ProviderReference
	}
	if u.Amount > 0 && u.Amount != rec.Amount {
		log.Warnw("reported amount differs from receipt", "receipt_amount", rec.Amount, "reported_amount", u.Amount)
		extra["reported_amount"] = u.Amount
	}

	var (
		order    *models.Order
		applied  bool
		credited bool
	)
	now := e.now()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentReceipt{}).
			Where("id = ? AND status = ?", rec.ID, types.ReceiptStatusPending).
			Updates(map[string]any{"status": types.ReceiptStatusPaid, "paid_at": now, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("mark receipt paid: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if u.ProviderReference != "" {
			if err := tx.Model(&models.PaymentReceipt{}).
				Where("id = ? AND provider_reference IS NULL", rec.ID).
				Update("provider_reference", u.ProviderReference).Error; err != nil {
				return fmt.Errorf("set provider reference: %w", err)
			}
		}
		o, err := lockOrder(tx, rec.OrderID)
		if err != nil {
			return err
		}
		before := o.Snapshot()
		credited = ledger.Credit(o, amount)
		o.Pushed = false
		if credited && ledger.FullyPaid(o) && o.PaidAt == nil {
			o.PaidAt = &now
		}
		if err := saveLedger(tx, o); err != nil {
			return err
		}
		reason := lo.Ternary(credited, types.OrderChangeReasonPaymentSettled, types.OrderChangeReasonLatePayment)
		if err := writeOrderLog(tx, o.ID, rec.Reference, reason, before, o, extra); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		rec = e.reloadReceipt(ctx, rec)
		if rec.Status == types.ReceiptStatusFailed {
			e.paidAfterFailed(ctx, rec, extra)
		} else {
			log.Infow("paid update for settled receipt ignored", "receipt_id", rec.ID, "receipt_status", rec.Status)
		}
		return &ApplyOutcome{Result: ResultDuplicate, Reference: rec.Reference, Order: t.order, Receipt: rec}, nil
	}
	rec.Status = types.ReceiptStatusPaid
	rec.PaidAt = &now

	result := ResultApplied
	if credited {
		if err := e.store.MarkPaid(ctx, t.checkout.ID); err != nil {
			log.Warnw("mark checkout paid", "checkout_id", t.checkout.ID, "err", err)
		}
		e.publishSettled(ctx, order, rec.Reference)
	} else {
		result = ResultLatePayment
		log.Warnw("late payment credited to finalized order", "order_id", order.ID, "order_status", order.Status,
			"amount", amount)
	}
	// local state is committed; the external system catches up on its own
	e.sync.Enqueue(order.ID)
	return &ApplyOutcome{Result: result, Reference: rec.Reference, Order: order, Receipt: rec}, nil
}

// paidAfterFailed records money the provider took for a receipt already
// failed locally. The ledger is left alone.
func (e *Engine) paidAfterFailed(ctx context.Context, rec *models.PaymentReceipt, extra datatypes.JSONMap) {
	log := logctx.FromCtx(ctx, e.log)
	metrics.IncPaymentCallback(string(rec.Provider), "paid_after_failed")
	log.Errorw("paid update for failed receipt, refund required", "receipt_id", rec.ID, "order_id", rec.OrderID,
		"amount", rec.Amount)

	db := e.db.WithContext(ctx)
	var o models.Order
	if err := db.Where("id = ?", rec.OrderID).First(&o).Error; err != nil {
		log.Errorw("load order for paid after failed", "order_id", rec.OrderID, "err", err)
		return
	}
	if err := writeOrderLog(db, o.ID, rec.Reference, types.OrderChangeReasonPaidAfterFailed, &o, &o, extra); err != nil {
		log.Errorw("record paid after failed", "order_id", o.ID, "err", err)
	}
}

func (e *Engine) fail(ctx context.Context, t *target, u StatusUpdate) (*ApplyOutcome, error) {
	log := logctx.FromCtx(ctx, e.log)
	reason := lo.Ternary(u.RawStatus != "", u.RawStatus, string(u.Outcome))
	if t.receipt == nil {
		if t.order == nil && t.checkout.Status == types.CheckoutStatusProcessing {
			if err := e.store.MarkCancelled(ctx, t.checkout.ID); err != nil {
				return nil, err
			}
			e.publishFailed(ctx, t.checkout.ID, "", t.ref, t.checkout.Provider, reason)
			return &ApplyOutcome{Result: ResultFailed, Reference: t.ref}, nil
		}
		return &ApplyOutcome{Result: ResultIgnored, Reference: t.ref}, nil
	}

	rec := t.receipt
	var (
		order       *models.Order
		applied     bool
		orderFailed bool
	)
	now := e.now()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentReceipt{}).
			Where("id = ? AND status = ?", rec.ID, types.ReceiptStatusPending).
			Updates(map[string]any{"status": types.ReceiptStatusFailed, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("mark receipt failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		var others int64
		if err := tx.Model(&models.PaymentReceipt{}).
			Where("order_id = ? AND status = ? AND id <> ?", rec.OrderID, types.ReceiptStatusPending, rec.ID).
			Count(&others).Error; err != nil {
			return fmt.Errorf("count pending receipts: %w", err)
		}
		o, err := lockOrder(tx, rec.OrderID)
		if err != nil {
			return err
		}
		order = o
		if others > 0 {
			return nil
		}
		before := o.Snapshot()
		if !ledger.Fail(o) {
			return nil
		}
		orderFailed = true
		if o.ExternalOrderID != nil {
			o.Pushed = false
		}
		if err := saveLedger(tx, o); err != nil {
			return err
		}
		return writeOrderLog(tx, o.ID, rec.Reference, types.OrderChangeReasonPaymentFailed, before, o, datatypes.JSONMap{
			"receipt_id": rec.ID,
			"provider":   string(rec.Provider),
			"reason":     reason,
			"source":     string(u.Source),
		})
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		rec = e.reloadReceipt(ctx, rec)
		if rec.Status == types.ReceiptStatusPaid {
			log.Errorw("failure reported for a paid receipt", "receipt_id", rec.ID)
		}
		return &ApplyOutcome{Result: ResultDuplicate, Reference: rec.Reference, Order: t.order, Receipt: rec}, nil
	}
	rec.Status = types.ReceiptStatusFailed
	if orderFailed {
		if err := e.store.MarkCancelled(ctx, t.checkout.ID); err != nil && !errors.Is(err, checkout.ErrInvalidTransition) {
			log.Warnw("cancel checkout of failed order", "checkout_id", t.checkout.ID, "err", err)
		}
		if order.ExternalOrderID != nil {
			e.sync.Enqueue(order.ID)
		}
	}
	e.publishFailed(ctx, t.checkout.ID, order.ID, rec.Reference, rec.Provider, reason)
	return &ApplyOutcome{Result: ResultFailed, Reference: rec.Reference, Order: order, Receipt: rec}, nil
}

func (e *Engine) pending(ctx context.Context, t *target, u StatusUpdate) (*ApplyOutcome, error) {
	rec := t.receipt
	if rec != nil && rec.ProviderReference == nil && u.ProviderReference != "" {
		if err := e.db.WithContext(ctx).Model(&models.PaymentReceipt{}).
			Where("id = ? AND provider_reference IS NULL", rec.ID).
			Update("provider_reference", u.ProviderReference).Error; err != nil {
			return nil, fmt.Errorf("set provider reference: %w", err)
		}
		rec.ProviderReference = &u.ProviderReference
	}
	return &ApplyOutcome{Result: ResultPending, Reference: t.ref, Order: t.order, Receipt: rec}, nil
}
