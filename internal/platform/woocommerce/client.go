// Package woocommerce pushes order state to a WooCommerce REST API (v3).
package woocommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/httpclient"
	"github.com/fatflowers/dropship/pkg/money"
)

const (
	ordersPath = "/wp-json/wc/v3/orders"
	// referenceKey tags every remote order with our payment reference.
	referenceKey = "_dropship_reference"
)

// ErrRejected means the store refused the payload; resending it unchanged
// will not help.
var ErrRejected = errors.New("order rejected by external order system")

// OrderState is the current, already computed state of a local order.
type OrderState struct {
	Reference         string
	Status            string
	SetPaid           bool
	TransactionID     string
	Currency          string
	Total             int64
	AmountPaid        int64
	Balance           int64
	Provider          string
	ProviderReference string
	PaidAt            *time.Time
	// Checkout is only sent when the order is created remotely.
	Checkout *models.CheckoutData
}

type Client struct {
	baseURL string
	key     string
	secret  string
	http    *httpclient.Client
}

func NewClient(cfg config.SyncConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.ConsumerKey,
		secret:  cfg.ConsumerSecret,
		http:    httpclient.NewClient(cfg.Timeout),
	}
}

type metaData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type lineItem struct {
	Name     string     `json:"name"`
	SKU      string     `json:"sku,omitempty"`
	Quantity int        `json:"quantity"`
	Total    string     `json:"total"`
	MetaData []metaData `json:"meta_data,omitempty"`
}

type address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type orderBody struct {
	Status             string     `json:"status"`
	SetPaid            bool       `json:"set_paid,omitempty"`
	TransactionID      string     `json:"transaction_id,omitempty"`
	PaymentMethod      string     `json:"payment_method,omitempty"`
	PaymentMethodTitle string     `json:"payment_method_title,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	CustomerNote       string     `json:"customer_note,omitempty"`
	Billing            *address   `json:"billing,omitempty"`
	Shipping           *address   `json:"shipping,omitempty"`
	LineItems          []lineItem `json:"line_items,omitempty"`
	MetaData           []metaData `json:"meta_data"`
}

type orderResponse struct {
	ID int64 `json:"id"`
}

func toAddress(a models.Address) *address {
	out := address(a)
	return &out
}

func buildBody(s OrderState, create bool) orderBody {
	b := orderBody{
		Status:        s.Status,
		SetPaid:       s.SetPaid,
		TransactionID: s.TransactionID,
		PaymentMethod: s.Provider,
		MetaData: []metaData{
			{Key: referenceKey, Value: s.Reference},
			{Key: "_dropship_amount_paid", Value: money.FormatMajor(s.AmountPaid)},
			{Key: "_dropship_balance", Value: money.FormatMajor(s.Balance)},
			{Key: "_dropship_provider", Value: s.Provider},
			{Key: "_dropship_provider_reference", Value: s.ProviderReference},
		},
	}
	if s.PaidAt != nil {
		b.MetaData = append(b.MetaData, metaData{Key: "_dropship_paid_at", Value: s.PaidAt.UTC().Format(time.RFC3339)})
	}
	if create && s.Checkout != nil {
		b.Currency = s.Currency
		b.PaymentMethodTitle = s.Provider
		b.CustomerNote = s.Checkout.Note
		b.Billing = toAddress(s.Checkout.Billing)
		b.Shipping = toAddress(s.Checkout.Shipping)
		for _, it := range s.Checkout.Items {
			b.LineItems = append(b.LineItems, lineItem{
				Name:     it.Title,
				SKU:      it.ProductID,
				Quantity: it.Quantity,
				Total:    money.FormatMajor(it.LineTotal()),
			})
		}
	}
	return b
}

func (c *Client) do(ctx context.Context, req httpclient.Request, out any) error {
	req.BasicID, req.BasicSecret = c.key, c.secret
	err := c.http.DoJSON(ctx, req, out)
	if err == nil {
		return nil
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) && !httpclient.IsRetryable(err) {
		return fmt.Errorf("%w: %d %s", ErrRejected, se.StatusCode, se.Body)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, endpoint string, body orderBody) (string, error) {
	var out orderResponse
	if err := c.do(ctx, httpclient.Request{Method: method, URL: endpoint, JSON: body}, &out); err != nil {
		return "", err
	}
	return strconv.FormatInt(out.ID, 10), nil
}

type remoteMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type remoteOrder struct {
	ID       int64        `json:"id"`
	MetaData []remoteMeta `json:"meta_data"`
}

// FindByReference returns the id of the remote order tagged with reference,
// or "" when the store has none. The store's order search has to cover the
// reference meta key.
func (c *Client) FindByReference(ctx context.Context, reference string) (string, error) {
	if reference == "" {
		return "", nil
	}
	q := url.Values{"search": {reference}, "per_page": {"20"}}
	var found []remoteOrder
	if err := c.do(ctx, httpclient.Request{Method: http.MethodGet, URL: c.baseURL + ordersPath + "?" + q.Encode()}, &found); err != nil {
		return "", fmt.Errorf("search order %s: %w", reference, err)
	}
	for _, o := range found {
		for _, m := range o.MetaData {
			if m.Key == referenceKey && m.Value == reference {
				return strconv.FormatInt(o.ID, 10), nil
			}
		}
	}
	return "", nil
}

// Push creates the remote order when externalID is nil and updates it
// otherwise. Before creating, the store is searched for an order already
// carrying the reference, since an earlier create may have landed without
// its response reaching us. Sending the same state twice is harmless.
func (c *Client) Push(ctx context.Context, externalID *string, state OrderState) (string, error) {
	if externalID == nil || *externalID == "" {
		existing, err := c.FindByReference(ctx, state.Reference)
		if err != nil {
			return "", err
		}
		if existing == "" {
			return c.send(ctx, http.MethodPost, c.baseURL+ordersPath, buildBody(state, true))
		}
		externalID = &existing
	}
	id, err := c.send(ctx, http.MethodPut, c.baseURL+ordersPath+"/"+*externalID, buildBody(state, false))
	if err != nil {
		return "", err
	}
	if id == "0" {
		id = *externalID
	}
	return id, nil
}
