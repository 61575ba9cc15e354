// Package reconciliation drives a checkout from cart to settled order. It
// owns the claim before provider initiation, order creation, and the
// idempotent application of provider status updates to the ledger.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/dropship/internal/app/service/catalog"
	"github.com/fatflowers/dropship/internal/app/service/checkout"
	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/reference"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/internal/platform/events"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/metrics"
	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

const maxItemQuantity = 100

// SyncQueue schedules an order for propagation to the external order system.
type SyncQueue interface {
	Enqueue(orderID string)
}

type Engine struct {
	db       *gorm.DB
	store    *checkout.Store
	codec    *reference.Codec
	gateways *gateway.Registry
	catalog  catalog.Provider
	sync     SyncQueue
	events   events.Publisher
	cfg      config.CheckoutConfig
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewEngine(
	db *gorm.DB,
	store *checkout.Store,
	codec *reference.Codec,
	gateways *gateway.Registry,
	products catalog.Provider,
	sync SyncQueue,
	pub events.Publisher,
	cfg *config.Config,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		db:       db,
		store:    store,
		codec:    codec,
		gateways: gateways,
		catalog:  products,
		sync:     sync,
		events:   pub,
		cfg:      cfg.Checkout,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateCheckoutRequest struct {
	UserID   *string
	Provider types.PaymentProvider
	// Percentage of the cart paid now, 0 means 100.
	Percentage int
	Items      []CartItem
	Shipping   models.Address
	Billing    models.Address
	Phone      string
	Note       string
	Extras     map[string]any
}

// CreateCheckout prices the cart from the catalog and stores a pending
// checkout. Client supplied prices are never trusted.
func (e *Engine) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*models.PendingCheckout, error) {
	start := time.Now()
	defer metrics.ObserveProcess("checkout", "create", start)

	if !req.Provider.Valid() {
		return nil, invalid("provider", "unknown provider %q", req.Provider)
	}
	if _, err := e.gateways.Get(req.Provider); err != nil {
		return nil, invalid("provider", "%s is not available", req.Provider)
	}
	pct := req.Percentage
	if pct == 0 {
		pct = 100
	}
	if pct < 1 || pct > 100 {
		return nil, invalid("percentage", "must be between 1 and 100")
	}
	if minPct := e.cfg.MinPercentageFor(req.Provider); pct < minPct {
		return nil, invalid("percentage", "%s requires at least %d%%", req.Provider, minPct)
	}
	if len(req.Items) == 0 {
		return nil, invalid("items", "cart is empty")
	}

	items := make([]models.CheckoutItem, 0, len(req.Items))
	var total int64
	for i, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, invalid("items", "item %d has no product_id", i)
		}
		if it.Quantity < 1 || it.Quantity > maxItemQuantity {
			return nil, invalid("items", "item %s quantity must be between 1 and %d", it.ProductID, maxItemQuantity)
		}
		p, err := e.catalog.Resolve(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, invalid("items", "product %s not found", it.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", it.ProductID, err)
		}
		if !p.Available || p.Price <= 0 {
			return nil, invalid("items", "product %s is not available", it.ProductID)
		}
		item := models.CheckoutItem{
			ProductID: p.ID,
			Title:     p.Title,
			ImageURL:  p.ImageURL,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		}
		total += item.LineTotal()
		items = append(items, item)
	}

	amount := money.Percent(total, pct)
	if amount <= 0 {
		return nil, invalid("percentage", "amount due rounds to zero")
	}
	return e.store.Create(ctx, checkout.CreateParams{
		UserID:     req.UserID,
		Provider:   req.Provider,
		Currency:   e.cfg.Currency,
		Total:      total,
		Amount:     amount,
		Percentage: pct,
		Data: &models.CheckoutData{
			Items:    items,
			Shipping: req.Shipping,
			Billing:  req.Billing,
			Phone:    req.Phone,
			Note:     req.Note,
			Extras:   req.Extras,
		},
		TTL: e.cfg.TTL,
	})
}

// InitiateOptions carries per-attempt inputs that are never persisted.
type InitiateOptions struct {
	PaymentToken string
	Phone        string
	Method       string
}

type InitiateOutcome struct {
	Checkout     *models.PendingCheckout
	Order        *models.Order
	Receipt      *models.PaymentReceipt
	RedirectURL  string
	PollURL      string
	Instructions string
	// Settled is true when the provider captured the payment synchronously.
	Settled bool
}

// InitiatePayment claims the checkout and starts the provider payment.
// Exactly one caller wins the claim; every other caller gets ErrClaimLost
// and must not create an order. No lock is held across the provider call.
func (e *Engine) InitiatePayment(ctx context.Context, ref string, opts InitiateOptions) (*InitiateOutcome, error) {
	start := time.Now()
	ctx = logctx.WithReference(ctx, ref)
	log := logctx.FromCtx(ctx, e.log)

	c, err := e.store.FindByReference(ctx, ref)
	if errors.Is(err, checkout.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	gw, err := e.gateways.Get(c.Provider)
	if err != nil {
		return nil, invalid("provider", "%s is not available", c.Provider)
	}
	switch {
	case c.Status == types.CheckoutStatusProcessing || c.Status == types.CheckoutStatusPaid:
		return nil, ErrClaimLost
	case c.Status != types.CheckoutStatusPending || c.IsExpired(e.now()):
		return nil, ErrCheckoutClosed
	}

	won, err := e.store.Claim(ctx, c)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrClaimLost
	}

	res, err := gw.Initiate(ctx, e.initiateRequest(c, c.Reference, c.Amount, opts))
	metrics.ObserveProcess("initiate", string(c.Provider), start)
	if err != nil || res == nil || !res.Success {
		reason := initiateFailure(res, err)
		log.Warnw("provider initiate failed, cancelling checkout", "provider", c.Provider, "reason", reason)
		if cerr := e.store.MarkCancelled(ctx, c.ID); cerr != nil {
			log.Errorw("cancel checkout after failed initiate", "err", cerr)
		}
		e.publishFailed(ctx, c.ID, "", c.Reference, c.Provider, reason)
		return nil, fmt.Errorf("%w: %s", ErrProviderInitiate, reason)
	}

	order, receipt, err := e.createOrder(ctx, c, c.Reference, res)
	if err != nil {
		// the provider holds a live payment; the callback recovery path
		// creates the order when it reports back
		log.Errorw("persist order after successful initiate", "provider", c.Provider, "err", err)
		return nil, fmt.Errorf("persist order: %w", err)
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
			Provider:          c.Provider,
			Reference:         c.Reference,
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

func (e *Engine) initiateRequest(c *models.PendingCheckout, ref string, amount int64, opts InitiateOptions) gateway.InitiateRequest {
	data := c.Data()
	phone := lo.Ternary(opts.Phone != "", opts.Phone, data.Phone)
	method := opts.Method
	if method == "" {
		if m, ok := data.Extras["mobile_method"].(string); ok {
			method = m
		}
	}
	return gateway.InitiateRequest{
		Reference:    ref,
		Amount:       amount,
		Currency:     c.Currency,
		Description:  "Order " + ref,
		Email:        data.Billing.Email,
		Phone:        phone,
		Method:       method,
		PaymentToken: opts.PaymentToken,
		ReturnURL:    e.returnURL(c.Provider),
		Items:        data.Items,
	}
}

func (e *Engine) returnURL(p types.PaymentProvider) string {
	if e.cfg.PublicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(e.cfg.PublicBaseURL, "/") + "/api/v1/payment/return/" + string(p)
}

func initiateFailure(res *gateway.InitiateResult, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case res == nil:
		return "empty provider response"
	case res.Error != "":
		return res.Error
	}
	return "provider declined"
}

// Cancel abandons a checkout nobody has started paying yet.
func (e *Engine) Cancel(ctx context.Context, ref string) (*models.PendingCheckout, error) {
	c, err := e.store.FindByReference(ctx, ref)
	if errors.Is(err, checkout.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Status == types.CheckoutStatusCancelled {
		return c, nil
	}
	ok, err := e.store.CancelPending(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: checkout is %s", ErrConflict, c.Status)
	}
	c.Status = types.CheckoutStatusCancelled
	logctx.FromCtx(logctx.WithReference(ctx, ref), e.log).Infow("checkout cancelled by customer")
	return c, nil
}

type CheckoutView struct {
	Checkout *models.PendingCheckout
	Order    *models.Order
	Receipts []models.PaymentReceipt
}

// GetCheckout returns the checkout with its order and receipts. With refresh
// set, pending receipts are polled from their provider first.
func (e *Engine) GetCheckout(ctx context.Context, ref string, refresh bool) (*CheckoutView, error) {
	c, err := e.checkoutForReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	view, err := e.loadView(ctx, c)
	if err != nil || !refresh {
		return view, err
	}
	polled := false
	for i := range view.Receipts {
		if view.Receipts[i].Status != types.ReceiptStatusPending {
			continue
		}
		if _, err := e.PollReceipt(ctx, &view.Receipts[i]); err != nil {
			logctx.FromCtx(ctx, e.log).Warnw("refresh receipt status", "reference", view.Receipts[i].Reference, "err", err)
			continue
		}
		polled = true
	}
	if !polled {
		return view, nil
	}
	if c, err = e.store.FindByID(ctx, c.ID); err != nil {
		return nil, err
	}
	return e.loadView(ctx, c)
}

func (e *Engine) checkoutForReference(ctx context.Context, ref string) (*models.PendingCheckout, error) {
	c, err := e.store.FindByReference(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, checkout.ErrNotFound) {
		return nil, err
	}
	// balance payments carry their own reference
	if id, ok := e.codec.Parse(ref); ok {
		c, err = e.store.FindByID(ctx, id)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, checkout.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (e *Engine) loadView(ctx context.Context, c *models.PendingCheckout) (*CheckoutView, error) {
	view := &CheckoutView{Checkout: c}
	order, err := e.orderByCheckout(e.db.WithContext(ctx), c.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return view, nil
	}
	view.Order = order
	if err := e.db.WithContext(ctx).Where("order_id = ?", order.ID).
		Order("created_at").Find(&view.Receipts).Error; err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	return view, nil
}
