package handlers

import (
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

// Money leaves the API as fixed two-digit major-unit strings.

type CheckoutItemView struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderView struct {
	ID               string            `json:"id"`
	Status           types.OrderStatus `json:"status"`
	Currency         string            `json:"currency"`
	Total            string            `json:"total"`
	AmountPaid       string            `json:"amount_paid"`
	Balance          string            `json:"balance"`
	PaymentReference string            `json:"payment_reference"`
	ExternalOrderID  *string           `json:"external_order_id,omitempty"`
	Pushed           bool              `json:"pushed"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

type ReceiptView struct {
	Reference string                `json:"reference"`
	Provider  types.PaymentProvider `json:"provider"`
	Status    types.ReceiptStatus   `json:"status"`
	Amount    string                `json:"amount"`
	PaidAt    *time.Time            `json:"paid_at,omitempty"`
}

type PaymentView struct {
	RedirectURL  string `json:"redirect_url,omitempty"`
	PollURL      string `json:"poll_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Settled      bool   `json:"settled"`
}

type CheckoutView struct {
	Reference         string                `json:"reference"`
	Status            types.CheckoutStatus  `json:"status"`
	Provider          types.PaymentProvider `json:"provider"`
	Currency          string                `json:"currency"`
	Total             string                `json:"total"`
	Amount            string                `json:"amount"`
	PaymentPercentage int                   `json:"payment_percentage"`
	ExpiresAt         time.Time             `json:"expires_at"`
	Items             []CheckoutItemView    `json:"items"`
	Order             *OrderView            `json:"order,omitempty"`
	Receipts          []ReceiptView         `json:"receipts,omitempty"`
	Payment           *PaymentView          `json:"payment,omitempty"`
}

func toOrderView(o *models.Order) *OrderView {
	if o == nil {
		return nil
	}
	return &OrderView{
		ID:               o.ID,
		Status:           o.Status,
		Currency:         o.Currency,
		Total:            money.FormatMajor(o.Total),
		AmountPaid:       money.FormatMajor(o.AmountPaid),
		Balance:          money.FormatMajor(o.Balance),
		PaymentReference: o.PaymentReference,
		ExternalOrderID:  o.ExternalOrderID,
		Pushed:           o.Pushed,
		PaidAt:           o.PaidAt,
		CreatedAt:        o.CreatedAt,
	}
}

func toReceiptView(r models.PaymentReceipt, _ int) ReceiptView {
	return ReceiptView{
		Reference: r.Reference,
		Provider:  r.Provider,
		Status:    r.Status,
		Amount:    money.FormatMajor(r.Amount),
		PaidAt:    r.PaidAt,
	}
}

func toCheckoutView(c *models.PendingCheckout) *CheckoutView {
	return &CheckoutView{
		Reference:         c.Reference,
		Status:            c.Status,
		Provider:          c.Provider,
		Currency:          c.Currency,
		Total:             money.FormatMajor(c.Total),
		Amount:            money.FormatMajor(c.Amount),
		PaymentPercentage: c.PaymentPercentage,
		ExpiresAt:         c.ExpiresAt,
		Items: lo.Map(c.Data().Items, func(it models.CheckoutItem, _ int) CheckoutItemView {
			return CheckoutItemView{
				ProductID: it.ProductID,
				Title:     it.Title,
				Quantity:  it.Quantity,
				UnitPrice: money.FormatMajor(it.UnitPrice),
				LineTotal: money.FormatMajor(it.LineTotal()),
			}
		}),
	}
}

func fromEngineView(v *reconciliation.CheckoutView) *CheckoutView {
	out := toCheckoutView(v.Checkout)
	out.Order = toOrderView(v.Order)
	out.Receipts = lo.Map(v.Receipts, toReceiptView)
	return out
}

func fromInitiate(out *reconciliation.InitiateOutcome) *CheckoutView {
	view := toCheckoutView(out.Checkout)
	view.Order = toOrderView(out.Order)
	if out.Receipt != nil {
		view.Receipts = []ReceiptView{toReceiptView(*out.Receipt, 0)}
	}
	view.Payment = &PaymentView{
		RedirectURL:  out.RedirectURL,
		PollURL:      out.PollURL,
		Instructions: out.Instructions,
		Settled:      out.Settled,
	}
	return view
}
