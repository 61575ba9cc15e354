// Package gateway is the uniform contract over payment providers. Every
// implementation verifies callback authenticity itself before any field of
// the payload is trusted.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/types"
)

var (
	// ErrAuthenticity means the callback signature or hash did not verify.
	ErrAuthenticity = errors.New("payment callback failed authenticity check")
	// ErrUnsupported is returned by operations a provider does not offer.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrMalformed means the payload could not be parsed at all.
	ErrMalformed = errors.New("malformed provider payload")
	// ErrNotConfigured is returned for a provider that is disabled.
	ErrNotConfigured = errors.New("payment provider not configured")
)

// Outcome is the provider-neutral state of one payment attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Terminal reports whether no further provider update is expected.
func (o Outcome) Terminal() bool {
	return o == OutcomePaid || o == OutcomeFailed || o == OutcomeCancelled
}

type InitiateRequest struct {
	Reference   string
	Amount      int64
	Currency    string
	Description string
	Email       string
	Phone       string
	// Method selects the mobile wallet (ecocash, onemoney, ...).
	Method string
	// PaymentToken is a tokenized card for direct capture.
	PaymentToken string
	ReturnURL    string
	Items        []models.CheckoutItem
}

type InitiateResult struct {
	Success           bool
	RedirectURL       string
	PollURL           string
	ProviderReference string
	Instructions      string
	// Outcome is set when the provider already settled the payment
	// synchronously, e.g. a captured card charge.
	Outcome Outcome
	Amount  int64
	Error   string
	Raw     map[string]any
}

type StatusQuery struct {
	Reference         string
	PollURL           string
	ProviderReference string
}

type StatusResult struct {
	Outcome           Outcome
	Amount            int64
	ProviderReference string
	RawStatus         string
	Raw               map[string]any
}

// Callback is an inbound webhook or return-URL hit, unparsed.
type Callback struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

type CallbackResult struct {
	Reference         string
	ProviderReference string
	Outcome           Outcome
	// Amount is zero when the provider did not report one.
	Amount    int64
	RawStatus string
	Raw       map[string]any
}

type Gateway interface {
	Identifier() types.PaymentProvider
	SupportsMobilePush() bool
	RequiresRedirect() bool
	// Initiate starts a payment. Callers guarantee it runs at most once per
	// claimed checkout.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, q StatusQuery) (*StatusResult, error)
	// HandleCallback verifies and parses a provider notification.
	HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error)
}
