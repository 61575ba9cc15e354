package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
	"github.com/fatflowers/dropship/pkg/httpclient"
	"github.com/fatflowers/dropship/pkg/logctx"
	"github.com/fatflowers/dropship/pkg/money"
	"github.com/fatflowers/dropship/pkg/types"
)

const (
	mmInitiatePath  = "/interface/initiatetransaction"
	mmRemotePath    = "/interface/remotetransaction"
	mmDefaultWallet = "ecocash"
)

// MobileMoney talks to a Paynow-style API: urlencoded bodies whose field
// values, in order, plus the integration key hash to an uppercase SHA512.
type MobileMoney struct {
	cfg    config.MobileMoneyGatewayConfig
	client *httpclient.Client
	store  *MobilePaymentStore
	log    *zap.SugaredLogger
}

func NewMobileMoney(cfg config.MobileMoneyGatewayConfig, store *MobilePaymentStore, log *zap.SugaredLogger) *MobileMoney {
	return &MobileMoney{cfg: cfg, client: httpclient.NewClient(cfg.Timeout), store: store, log: log}
}

func (m *MobileMoney) Identifier() types.PaymentProvider { return types.PaymentProviderMobileMoney }
func (m *MobileMoney) SupportsMobilePush() bool          { return true }
func (m *MobileMoney) RequiresRedirect() bool            { return false }

type formField struct {
	Key   string
	Value string
}

type orderedForm []formField

func (f orderedForm) Get(key string) string {
	for _, it := range f {
		if strings.EqualFold(it.Key, key) {
			return it.Value
		}
	}
	return ""
}

func (f orderedForm) Encode() string {
	parts := make([]string, 0, len(f))
	for _, it := range f {
		parts = append(parts, url.QueryEscape(it.Key)+"="+url.QueryEscape(it.Value))
	}
	return strings.Join(parts, "&")
}

func (f orderedForm) Map() map[string]any {
	out := make(map[string]any, len(f))
	for _, it := range f {
		out[it.Key] = it.Value
	}
	return out
}

// parseOrderedForm keeps field order, which url.ParseQuery loses and the
// hash depends on.
func parseOrderedForm(body string) (orderedForm, error) {
	var out orderedForm
	for _, part := range strings.Split(strings.TrimSpace(body), "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = append(out, formField{Key: key, Value: val})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	return out, nil
}

func mobileMoneyHash(fields orderedForm, integrationKey string) string {
	var b strings.Builder
	for _, it := range fields {
		if strings.EqualFold(it.Key, "hash") {
			continue
		}
		b.WriteString(it.Value)
	}
	b.WriteString(integrationKey)
	sum := sha512.Sum512([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (m *MobileMoney) verify(fields orderedForm) error {
	got := strings.ToUpper(fields.Get("hash"))
	if got == "" {
		return fmt.Errorf("%w: missing hash", ErrAuthenticity)
	}
	want := mobileMoneyHash(fields, m.cfg.IntegrationKey)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrAuthenticity
	}
	return nil
}

func (m *MobileMoney) sign(fields orderedForm) orderedForm {
	return append(fields, formField{Key: "hash", Value: mobileMoneyHash(fields, m.cfg.IntegrationKey)})
}

func (m *MobileMoney) post(ctx context.Context, endpoint string, fields orderedForm) (orderedForm, error) {
	var body []byte
	if fields != nil {
		body = []byte(fields.Encode())
	}
	raw, err := m.client.Do(ctx, httpclient.Request{
		Method:      "POST",
		URL:         endpoint,
		Body:        body,
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	return parseOrderedForm(string(raw))
}

func outcomeFromMobile(st types.MobilePaymentStatus) Outcome {
	switch st {
	case types.MobilePaymentStatusPaid:
		return OutcomePaid
	case types.MobilePaymentStatusFailed:
		return OutcomeFailed
	case types.MobilePaymentStatusCancelled:
		return OutcomeCancelled
	default:
		return OutcomePending
	}
}

func (m *MobileMoney) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	log := logctx.FromCtx(ctx, m.log)
	wallet := req.Method
	if wallet == "" {
		wallet = mmDefaultWallet
	}
	if _, err := m.store.Ensure(ctx, req.Reference, req.Phone, wallet, req.Amount); err != nil {
		return nil, err
	}

	fields := orderedForm{
		{"id", m.cfg.IntegrationID},
		{"reference", req.Reference},
		{"amount", money.FormatMajor(req.Amount)},
		{"additionalinfo", req.Description},
		{"returnurl", m.cfg.ReturnURL},
		{"resulturl", m.cfg.ResultURL},
	}
	authEmail := req.Email
	if authEmail == "" {
		authEmail = m.cfg.AuthEmail
	}
	fields = append(fields, formField{"authemail", authEmail})
	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + mmInitiatePath
	if req.Phone != "" {
		endpoint = strings.TrimRight(m.cfg.BaseURL, "/") + mmRemotePath
		fields = append(fields, formField{"phone", req.Phone}, formField{"method", wallet})
	}
	fields = append(fields, formField{"status", "Message"})

	resp, err := m.post(ctx, endpoint, m.sign(fields))
	if err != nil {
		return nil, fmt.Errorf("mobile money initiate: %w", err)
	}
	if !strings.EqualFold(resp.Get("status"), "ok") {
		msg := resp.Get("error")
		log.Warnw("mobile money initiate rejected", "reference", req.Reference, "error", msg)
		if _, err := m.store.Advance(ctx, req.Reference, MobilePaymentUpdate{
			Status: types.MobilePaymentStatusFailed, RawStatus: resp.Get("status"),
		}); err != nil {
			log.Errorw("mobile payment update failed", "reference", req.Reference, "err", err)
		}
		return &InitiateResult{Success: false, Error: msg, Raw: resp.Map()}, nil
	}
	if err := m.verify(resp); err != nil {
		return nil, fmt.Errorf("mobile money initiate response: %w", err)
	}

	st := types.MobilePaymentStatusPending
	if req.Phone != "" {
		st = types.MobilePaymentStatusPushed
	}
	providerRef := resp.Get("paynowreference")
	pollURL := resp.Get("pollurl")
	if _, err := m.store.Advance(ctx, req.Reference, MobilePaymentUpdate{
		Status: st, RawStatus: resp.Get("status"), ProviderReference: providerRef, PollURL: pollURL, Hash: resp.Get("hash"),
	}); err != nil {
		return nil, err
	}
	return &InitiateResult{
		Success:           true,
		RedirectURL:       resp.Get("browserurl"),
		PollURL:           pollURL,
		ProviderReference: providerRef,
		Instructions:      resp.Get("instructions"),
		Outcome:           OutcomePending,
		Raw:               resp.Map(),
	}, nil
}

// statusFromFields verifies a status message (poll response or result
// callback) and records it on the mobile payment row.
func (m *MobileMoney) statusFromFields(ctx context.Context, fields orderedForm) (*CallbackResult, error) {
	if fields.Get("reference") == "" || fields.Get("status") == "" {
		return nil, fmt.Errorf("%w: reference and status are required", ErrMalformed)
	}
	if err := m.verify(fields); err != nil {
		return nil, err
	}
	rawStatus := fields.Get("status")
	st, known := types.NormalizeMobilePaymentStatus(rawStatus)
	if !known {
		logctx.FromCtx(ctx, m.log).Warnw("unknown mobile money status", "status", rawStatus, "reference", fields.Get("reference"))
	}
	var amount int64
	if a := fields.Get("amount"); a != "" {
		v, err := money.ParseMajor(a)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrMalformed, a)
		}
		amount = v
	}
	res := &CallbackResult{
		Reference:         fields.Get("reference"),
		ProviderReference: fields.Get("paynowreference"),
		Outcome:           outcomeFromMobile(st),
		Amount:            amount,
		RawStatus:         rawStatus,
		Raw:               fields.Map(),
	}
	if _, err := m.store.Advance(ctx, res.Reference, MobilePaymentUpdate{
		Status: st, RawStatus: rawStatus, ProviderReference: res.ProviderReference,
		PollURL: fields.Get("pollurl"), Hash: fields.Get("hash"),
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *MobileMoney) CheckStatus(ctx context.Context, q StatusQuery) (*StatusResult, error) {
	pollURL := q.PollURL
	if pollURL == "" && q.Reference != "" {
		if mp, err := m.store.Get(ctx, q.Reference); err == nil {
			pollURL = mp.PollURL
		}
	}
	if pollURL == "" {
		return nil, fmt.Errorf("%w: no poll url for %s", ErrUnsupported, q.Reference)
	}
	fields, err := m.post(ctx, pollURL, nil)
	if err != nil {
		return nil, fmt.Errorf("mobile money poll: %w", err)
	}
	res, err := m.statusFromFields(ctx, fields)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Outcome:           res.Outcome,
		Amount:            res.Amount,
		ProviderReference: res.ProviderReference,
		RawStatus:         res.RawStatus,
		Raw:               res.Raw,
	}, nil
}

func (m *MobileMoney) HandleCallback(ctx context.Context, cb Callback) (*CallbackResult, error) {
	fields, err := parseOrderedForm(string(cb.Body))
	if err != nil {
		return nil, err
	}
	return m.statusFromFields(ctx, fields)
}
