package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/httpclient"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

// Redirect sends the payer to a hosted page. The provider comes back to our
// return URL with a `payload` JWT signed with the shared secret.
type Redirect struct {
	cfg    config.RedirectGatewayConfig
	client *httpclient.Client
	log    *zap.SugaredLogger
}

func NewRedirect(cfg config.RedirectGatewayConfig, log *zap.SugaredLogger) *Redirect {
	return &Redirect{cfg: cfg, client: httpclient.NewClient(cfg.Timeout), log: log}
}

func (r *Redirect) Identifier() types.PaymentProvider { return types.PaymentProviderRedirect }
func (r *Redirect) SupportsMobilePush() bool          { return false }
func (r *Redirect) RequiresRedirect() bool            { return true }

type redirectPayment struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	RedirectURL string `json:"redirect_url"`
	Error       string `json:"error"`
}

// RedirectClaims is the signed body of a return-URL payload.
type RedirectClaims struct {
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	jwt.StandardClaims
}

func redirectOutcome(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "success", "successful", "completed":
		return OutcomePaid
	case "failed", "declined", "error":
		return OutcomeFailed
	case "cancelled", "canceled", "abandoned":
		return OutcomeCancelled
	default:
		return OutcomePending
	}
}

func (r *Redirect) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+r.cfg.APIKey)
	return h
}

func (r *Redirect) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	returnURL := r.cfg.ReturnURL
	if returnURL == "" {
		returnURL = req.ReturnURL
	}
	var out redirectPayment
	err := r.client.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(r.cfg.BaseURL, "/") + "/v1/payments",
		Header: r.authHeader(),
		JSON: map[string]any{
			"reference":      req.Reference,
			"amount":         money.FormatMajor(req.Amount),
			"currency":       req.Currency,
			"description":    req.Description,
			"return_url":     returnURL,
			"customer_email": req.Email,
		},
	}, &out)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			return &InitiateResult{Success: false, Error: se.Body}, nil
		}
		return nil, fmt.Errorf("redirect initiate: %w", err)
	}
	if out.RedirectURL == "" {
		logctx.FromCtx(ctx, r.log).Warnw("redirect initiate without url", "reference", req.Reference, "error", out.Error)
		return &InitiateResult{Success: false, Error: out.Error}, nil
	}
	return &InitiateResult{
		Success:           true,
		RedirectURL:       out.RedirectURL,
		ProviderReference: out.ID,
		Outcome:           OutcomePending,
		Raw:               map[string]any{"id": out.ID, "status": out.Status},
	}, nil
}

func (r *Redirect) CheckStatus(ctx context.Context, q StatusQuery) (*StatusResult, error) {
	endpoint := strings.TrimRight(r.cfg.BaseURL, "/") + "/v1/payments"
	switch {
	case q.ProviderReference != "":
		endpoint += "/" + url.PathEscape(q.ProviderReference)
	case q.Reference != "":
		endpoint += "?reference=" + url.QueryEscape(q.Reference)
	default:
		return nil, fmt.Errorf("%w: nothing to look up", ErrUnsupported)
	}
	var out redirectPayment
	if err := r.client.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, URL: endpoint, Header: r.authHeader()}, &out); err != nil {
		return nil, fmt.Errorf("redirect status: %w", err)
	}
	amount, err := parseOptionalMajor(out.Amount)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Outcome:           redirectOutcome(out.Status),
		Amount:            amount,
		ProviderReference: out.ID,
		RawStatus:         out.Status,
		Raw:               map[string]any{"id": out.ID, "status": out.Status, "amount": out.Amount, "reference": out.Reference},
	}, nil
}

func (r *Redirect) HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	token := cb.Query.Get("payload")
	if token == "" && len(cb.Body) > 0 {
		var body struct {
			Payload string `json:"payload"`
		}
		if err := json.Unmarshal(cb.Body, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		token = body.Payload
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformed)
	}

	claims := &RedirectClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(r.cfg.SigningSecret), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorMalformed != 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}
	if claims.Reference == "" {
		return nil, fmt.Errorf("%w: payload without reference", ErrMalformed)
	}
	amount, err := parseOptionalMajor(claims.Amount)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{
		Reference:         claims.Reference,
		ProviderReference: claims.ProviderReference,
		Outcome:           redirectOutcome(claims.Status),
		Amount:            amount,
		RawStatus:         claims.Status,
		Raw: map[string]any{
			"reference":          claims.Reference,
			"provider_reference": claims.ProviderReference,
			"status":             claims.Status,
			"amount":             claims.Amount,
		},
	}, nil
}

// SignRedirectPayload builds a return payload the way the provider does.
func SignRedirectPayload(secret string, claims RedirectClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseOptionalMajor(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	v, err := money.ParseMajor(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrMalformed, s)
	}
	return v, nil
}
