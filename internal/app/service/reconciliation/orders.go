package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/ledger"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/tool"
	"github.com/fatflowers/dropship/pkg/types"
)

// createOrder persists the order and its first receipt together. If an
// order already exists for the checkout (a callback recovered it first) the
// existing rows are returned.
func (e *Engine) createOrder(ctx context.Context, c *models.PendingCheckout, ref string, res *gateway.InitiateResult) (*models.Order, *models.PaymentReceipt, error) {
	balance, paid, status := ledger.NewOrderAmounts(c.Total)
	order := &models.Order{
		ID:               tool.GenerateUUIDV7(),
		CheckoutID:       c.ID,
		UserID:           c.UserID,
		Currency:         c.Currency,
		Total:            c.Total,
		Balance:          balance,
		AmountPaid:       paid,
		Status:           status,
		PaymentProvider:  c.Provider,
		PaymentReference: ref,
		Version:          1,
	}
	receipt := &models.PaymentReceipt{
		ID:        tool.GenerateUUIDV7(),
		OrderID:   order.ID,
		Provider:  c.Provider,
		Reference: ref,
		Amount:    c.Amount,
		Currency:  c.Currency,
		Status:    types.ReceiptStatusPending,
	}
	if res != nil {
		receipt.ProviderReference = nonEmpty(res.ProviderReference)
		receipt.PollURL = res.PollURL
		if len(res.Raw) > 0 {
			receipt.Metadata = datatypes.JSONMap(res.Raw)
		}
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if err := tx.Create(receipt).Error; err != nil {
			return err
		}
		return writeOrderLog(tx, order.ID, ref, types.OrderChangeReasonCreated, nil, order, datatypes.JSONMap{
			"receipt_id": receipt.ID,
			"provider":   string(c.Provider),
			"amount":     receipt.Amount,
		})
	})
	if err == nil {
		return order, receipt, nil
	}
	existing, ferr := e.orderByCheckout(e.db.WithContext(ctx), c.ID)
	if ferr != nil || existing == nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}
	var rec models.PaymentReceipt
	if ferr := e.db.WithContext(ctx).Where("reference = ?", ref).First(&rec).Error; ferr != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}
	return existing, &rec, nil
}

func (e *Engine) orderByCheckout(db *gorm.DB, checkoutID string) (*models.Order, error) {
	var o models.Order
	err := db.Where("checkout_id = ?", checkoutID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load order by checkout: %w", err)
	}
	return &o, nil
}

// lockOrder reads the order row for update inside tx.
func lockOrder(tx *gorm.DB, id string) (*models.Order, error) {
	var o models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, fmt.Errorf("lock order %s: %w", id, err)
	}
	return &o, nil
}

var ledgerColumns = []string{"amount_paid", "balance", "status", "version", "pushed", "paid_at", "payment_reference", "updated_at"}

func saveLedger(tx *gorm.DB, o *models.Order) error {
	if err := tx.Model(o).Select(ledgerColumns).Updates(o).Error; err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return nil
}

func writeOrderLog(tx *gorm.DB, orderID, ref string, reason types.OrderChangeReason, before, after *models.Order, extra datatypes.JSONMap) error {
	entry := &models.OrderLog{
		ID:        tool.GenerateUUIDV7(),
		OrderID:   orderID,
		Reference: ref,
		Reason:    reason,
		Before:    datatypes.NewJSONType(before),
		After:     datatypes.NewJSONType(after),
		Extra:     extra,
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("write order log: %w", err)
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
