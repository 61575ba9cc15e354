package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/httpclient"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/types"
)

// CardSignatureHeader carries "t=<unix>,v1=<hex hmac-sha256(t.body)>".
const CardSignatureHeader = "X-Signature"

// Card captures a tokenized card directly. The charge usually settles in the
// initiate call; webhooks cover 3-D Secure and async declines.
type Card struct {
	cfg    config.CardGatewayConfig
	client *httpclient.Client
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewCard(cfg config.CardGatewayConfig, log *zap.SugaredLogger) *Card {
	if cfg.SignatureTolerance <= 0 {
		cfg.SignatureTolerance = 5 * time.Minute
	}
	return &Card{cfg: cfg, client: httpclient.NewClient(cfg.Timeout), log: log, now: time.Now}
}

func (c *Card) Identifier() types.PaymentProvider { return types.PaymentProviderCard }
func (c *Card) SupportsMobilePush() bool          { return false }
func (c *Card) RequiresRedirect() bool            { return false }

type cardCharge struct {
	ID             string `json:"id"`
	Reference      string `json:"reference"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	NextActionURL  string `json:"next_action_url"`
	FailureMessage string `json:"failure_message"`
}

type cardEvent struct {
	Type string     `json:"type"`
	Data cardCharge `json:"data"`
}

func cardOutcome(status string) Outcome {
	switch strings.ToLower(status) {
	case "succeeded", "captured", "paid":
		return OutcomePaid
	case "failed", "declined":
		return OutcomeFailed
	case "canceled", "cancelled", "voided":
		return OutcomeCancelled
	default:
		return OutcomePending
	}
}

func (c *Card) header(idempotencyKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

func (c *Card) chargeRaw(ch cardCharge) map[string]any {
	return map[string]any{"id": ch.ID, "status": ch.Status, "amount": ch.Amount, "reference": ch.Reference}
}

func (c *Card) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.PaymentToken == "" {
		return &InitiateResult{Success: false, Error: "missing card token"}, nil
	}
	var ch cardCharge
	err := c.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/charges",
		// the reference doubles as idempotency key so a resent initiate
		// cannot charge twice
		Header: c.header(req.Reference),
		JSON: map[string]any{
			"amount":        req.Amount,
			"currency":      strings.ToLower(req.Currency),
			"source":        req.PaymentToken,
			"reference":     req.Reference,
			"description":   req.Description,
			"receipt_email": req.Email,
			"return_url":    req.ReturnURL,
		},
	}, &ch)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			return &InitiateResult{Success: false, Error: se.Body}, nil
		}
		return nil, fmt.Errorf("card charge: %w", err)
	}
	outcome := cardOutcome(ch.Status)
	if outcome == OutcomeFailed || outcome == OutcomeCancelled {
		logctx.FromCtx(ctx, c.log).Infow("card charge declined", "reference", req.Reference, "reason", ch.FailureMessage)
		return &InitiateResult{Success: false, Error: ch.FailureMessage, ProviderReference: ch.ID, Raw: c.chargeRaw(ch)}, nil
	}
	return &InitiateResult{
		Success:           true,
		RedirectURL:       ch.NextActionURL,
		ProviderReference: ch.ID,
		Outcome:           outcome,
		Amount:            ch.Amount,
		Raw:               c.chargeRaw(ch),
	}, nil
}

func (c *Card) CheckStatus(ctx context.Context, q StatusQuery) (*StatusResult, error) {
	if q.ProviderReference == "" {
		return nil, fmt.Errorf("%w: charge id required", ErrUnsupported)
	}
	var ch cardCharge
	err := c.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/charges/" + url.PathEscape(q.ProviderReference),
		Header: c.header(""),
	}, &ch)
	if err != nil {
		return nil, fmt.Errorf("card status: %w", err)
	}
	return &StatusResult{
		Outcome:           cardOutcome(ch.Status),
		Amount:            ch.Amount,
		ProviderReference: ch.ID,
		RawStatus:         ch.Status,
		Raw:               c.chargeRaw(ch),
	}, nil
}

// SignCardPayload computes the signature header value for body at ts.
func SignCardPayload(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + cardMAC(secret, t, body)
}

func cardMAC(secret, t string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Card) verify(header string, body []byte) error {
	var t, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			t = v
		case "v1":
			sig = v
		}
	}
	if t == "" || sig == "" {
		return fmt.Errorf("%w: missing signature", ErrAuthenticity)
	}
	ts, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrAuthenticity)
	}
	if d := c.now().Sub(time.Unix(ts, 0)); d > c.cfg.SignatureTolerance || d < -c.cfg.SignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrAuthenticity)
	}
	if !hmac.Equal([]byte(sig), []byte(cardMAC(c.cfg.WebhookSecret, t, body))) {
		return ErrAuthenticity
	}
	return nil
}

func (c *Card) HandleCallback(_ context.Context, cb Callback) (*CallbackResult, error) {
	if err := c.verify(cb.Header.Get(CardSignatureHeader), cb.Body); err != nil {
		return nil, err
	}
	var ev cardEvent
	if err := json.Unmarshal(cb.Body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Data.Reference == "" && ev.Data.ID == "" {
		return nil, fmt.Errorf("%w: event without charge", ErrMalformed)
	}
	status := ev.Data.Status
	if status == "" {
		// charge.succeeded -> succeeded
		_, status, _ = strings.Cut(ev.Type, ".")
	}
	raw := c.chargeRaw(ev.Data)
	raw["type"] = ev.Type
	return &CallbackResult{
		Reference:         ev.Data.Reference,
		ProviderReference: ev.Data.ID,
		Outcome:           cardOutcome(status),
		Amount:            ev.Data.Amount,
		RawStatus:         status,
		Raw:               raw,
	}, nil
}
