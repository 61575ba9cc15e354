package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/dropship/internal/app/service/gateway"
	"github.com/fatflowers/dropship/internal/app/service/reconciliation"
	"github.com/fatflowers/dropship/internal/app/service/statistics"
	"github.com/fatflowers/dropship/internal/models"
	"github.com/fatflowers/dropship/pkg/response"
	"github.com/fatflowers/dropship/pkg/types"
)

type stubEngine struct {
	create   func(reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error)
	initiate func(string, reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error)
	get      func(string, bool) (*reconciliation.CheckoutView, error)
	cancel   func(string) (*models.PendingCheckout, error)
	balance  func(string, types.PaymentProvider) (*reconciliation.InitiateOutcome, error)
	callback func(types.PaymentProvider, gateway.Callback, reconciliation.Source) (*reconciliation.ApplyOutcome, error)
	confirm  func(string) (*reconciliation.ApplyOutcome, error)
}

func (s *stubEngine) CreateCheckout(_ context.Context, req reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error) {
	return s.create(req)
}

func (s *stubEngine) InitiatePayment(_ context.Context, ref string, opts reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error) {
	return s.initiate(ref, opts)
}

func (s *stubEngine) GetCheckout(_ context.Context, ref string, refresh bool) (*reconciliation.CheckoutView, error) {
	return s.get(ref, refresh)
}

func (s *stubEngine) Cancel(_ context.Context, ref string) (*models.PendingCheckout, error) {
	return s.cancel(ref)
}

func (s *stubEngine) PayBalance(_ context.Context, orderID string, p types.PaymentProvider, _ reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error) {
	return s.balance(orderID, p)
}

func (s *stubEngine) HandleCallback(_ context.Context, p types.PaymentProvider, cb gateway.Callback, src reconciliation.Source) (*reconciliation.ApplyOutcome, error) {
	return s.callback(p, cb, src)
}

func (s *stubEngine) ConfirmManualPayment(_ context.Context, ref string) (*reconciliation.ApplyOutcome, error) {
	return s.confirm(ref)
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []models.PaymentNotificationLog
}

func (m *memoryAudit) Save(_ context.Context, e *models.PaymentNotificationLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
}

func (m *memoryAudit) last() models.PaymentNotificationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func sampleCheckout(status types.CheckoutStatus) *models.PendingCheckout {
	return &models.PendingCheckout{
		ID:                "c1",
		Reference:         "DS-c1",
		Provider:          types.PaymentProviderCard,
		Currency:          "USD",
		Total:             15000,
		Amount:            15000,
		PaymentPercentage: 100,
		CheckoutData: datatypes.NewJSONType(&models.CheckoutData{Items: []models.CheckoutItem{
			{ProductID: "B01", Title: "Lamp", Quantity: 3, UnitPrice: 5000},
		}}),
		Status:    status,
		ExpiresAt: time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC),
	}
}

func newRouter(eng PaymentEngine, audit AuditLog) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := zap.NewNop().Sugar()
	api := r.Group("/api/v1")
	RegisterCheckoutRoutes(api.Group("/checkout"), eng, log)
	RegisterOrderRoutes(api.Group("/orders"), eng, log)
	RegisterPaymentCallbackRoutes(api.Group("/payment"), eng, audit, log)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func code(out map[string]any) response.APIResponseCode {
	return response.APIResponseCode(out["code"].(float64))
}

func TestRoutes_Registered(t *testing.T) {
	r := newRouter(&stubEngine{}, &memoryAudit{})
	routes := lo.Map(r.Routes(), func(rt gin.RouteInfo, _ int) string { return rt.Method + " " + rt.Path })
	for _, want := range []string{
		"POST /api/v1/checkout",
		"GET /api/v1/checkout/:reference",
		"POST /api/v1/checkout/:reference/initiate",
		"POST /api/v1/checkout/:reference/cancel",
		"POST /api/v1/orders/:order_id/pay-balance",
		"POST /api/v1/payment/webhook/:provider",
		"GET /api/v1/payment/return/:provider",
	} {
		require.Contains(t, routes, want)
	}
}

func TestCreateCheckout_InitiatesAndFormatsMoney(t *testing.T) {
	var gotReq reconciliation.CreateCheckoutRequest
	var gotOpts reconciliation.InitiateOptions
	eng := &stubEngine{
		create: func(req reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error) {
			gotReq = req
			return sampleCheckout(types.CheckoutStatusPending), nil
		},
		initiate: func(ref string, opts reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error) {
			gotOpts = opts
			assert.Equal(t, "DS-c1", ref)
			chk := sampleCheckout(types.CheckoutStatusProcessing)
			return &reconciliation.InitiateOutcome{
				Checkout:    chk,
				Order:       &models.Order{ID: "o1", Status: types.OrderStatusPending, Total: 15000, Balance: 15000, Currency: "USD"},
				RedirectURL: "https://pay.test/x",
			}, nil
		},
	}
	_, out := do(t, newRouter(eng, &memoryAudit{}), http.MethodPost, "/api/v1/checkout", map[string]any{
		"user_id":       " u1 ",
		"provider":      "mobile_money",
		"items":         []map[string]any{{"product_id": "B01", "quantity": 3}},
		"method":        "ecocash",
		"phone":         "0771111111",
		"payment_token": "tok",
	})
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.Equal(t, types.PaymentProviderMobileMoney, gotReq.Provider)
	require.Equal(t, "u1", *gotReq.UserID)
	require.Equal(t, "ecocash", gotReq.Extras["mobile_method"])
	require.Equal(t, reconciliation.InitiateOptions{PaymentToken: "tok", Phone: "0771111111", Method: "ecocash"}, gotOpts)

	data := out["data"].(map[string]any)
	require.Equal(t, "150.00", data["total"])
	require.Equal(t, string(types.CheckoutStatusProcessing), data["status"])
	require.Equal(t, "https://pay.test/x", data["payment"].(map[string]any)["redirect_url"])
	require.Equal(t, "50.00", data["items"].([]any)[0].(map[string]any)["unit_price"])
	require.Equal(t, "150.00", data["order"].(map[string]any)["balance"])
}

func TestCreateCheckout_SkipInitiate(t *testing.T) {
	eng := &stubEngine{
		create: func(reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error) {
			return sampleCheckout(types.CheckoutStatusPending), nil
		},
	}
	_, out := do(t, newRouter(eng, &memoryAudit{}), http.MethodPost, "/api/v1/checkout", map[string]any{
		"provider": "card", "items": []map[string]any{{"product_id": "B01", "quantity": 1}}, "skip_initiate": true,
	})
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.Nil(t, out["data"].(map[string]any)["payment"])
}

func TestCreateCheckout_Errors(t *testing.T) {
	eng := &stubEngine{
		create: func(reconciliation.CreateCheckoutRequest) (*models.PendingCheckout, error) {
			return nil, &reconciliation.ValidationError{Field: "items", Reason: "product OOS is unavailable"}
		},
	}
	r := newRouter(eng, &memoryAudit{})

	_, out := do(t, r, http.MethodPost, "/api/v1/checkout", map[string]any{"provider": "bitcoin", "items": []map[string]any{{"product_id": "B01", "quantity": 1}}})
	require.Equal(t, response.APIResponseCodeBadRequest, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/checkout", map[string]any{"provider": "card"})
	require.Equal(t, response.APIResponseCodeBadRequest, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/checkout", map[string]any{"provider": "card", "items": []map[string]any{{"product_id": "OOS", "quantity": 1}}})
	require.Equal(t, response.APIResponseCodeBadRequest, code(out))
	require.Contains(t, out["message"], "unavailable")
}

func TestInitiate_ClaimLostReturnsCurrentState(t *testing.T) {
	eng := &stubEngine{
		initiate: func(string, reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error) {
			return nil, reconciliation.ErrClaimLost
		},
		get: func(ref string, refresh bool) (*reconciliation.CheckoutView, error) {
			assert.False(t, refresh)
			return &reconciliation.CheckoutView{Checkout: sampleCheckout(types.CheckoutStatusProcessing)}, nil
		},
	}
	_, out := do(t, newRouter(eng, &memoryAudit{}), http.MethodPost, "/api/v1/checkout/DS-c1/initiate", nil)
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.Equal(t, string(types.CheckoutStatusProcessing), out["data"].(map[string]any)["status"])
}

func TestInitiate_ProviderFailureHidesDetails(t *testing.T) {
	eng := &stubEngine{
		initiate: func(string, reconciliation.InitiateOptions) (*reconciliation.InitiateOutcome, error) {
			return nil, fmt.Errorf("%w: card declined by issuer 05", reconciliation.ErrProviderInitiate)
		},
	}
	_, out := do(t, newRouter(eng, &memoryAudit{}), http.MethodPost, "/api/v1/checkout/DS-c1/initiate", nil)
	require.Equal(t, response.APIResponseCodeError, code(out))
	require.Equal(t, msgPaymentNotStarted, out["message"])
}

func TestGetAndCancelCheckout(t *testing.T) {
	var refreshed bool
	eng := &stubEngine{
		get: func(ref string, refresh bool) (*reconciliation.CheckoutView, error) {
			refreshed = refresh
			if ref == "missing" {
				return nil, reconciliation.ErrNotFound
			}
			return &reconciliation.CheckoutView{
				Checkout: sampleCheckout(types.CheckoutStatusPaid),
				Receipts: []models.PaymentReceipt{{Reference: "DS-c1", Amount: 15000, Status: types.ReceiptStatusPaid}},
			}, nil
		},
		cancel: func(string) (*models.PendingCheckout, error) {
			return nil, fmt.Errorf("%w: checkout is processing", reconciliation.ErrConflict)
		},
	}
	r := newRouter(eng, &memoryAudit{})

	_, out := do(t, r, http.MethodGet, "/api/v1/checkout/DS-c1?refresh=true", nil)
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.True(t, refreshed)
	require.Equal(t, "150.00", out["data"].(map[string]any)["receipts"].([]any)[0].(map[string]any)["amount"])

	_, out = do(t, r, http.MethodGet, "/api/v1/checkout/missing", nil)
	require.Equal(t, response.APIResponseCodeNotFound, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/checkout/DS-c1/cancel", nil)
	require.Equal(t, response.APIResponseCodeConflict, code(out))
}

func TestPayBalance(t *testing.T) {
	eng := &stubEngine{
		balance: func(orderID string, p types.PaymentProvider) (*reconciliation.InitiateOutcome, error) {
			if orderID == "busy" {
				return nil, fmt.Errorf("%w: a payment for this order is already in progress", reconciliation.ErrConflict)
			}
			return &reconciliation.InitiateOutcome{
				Checkout:     sampleCheckout(types.CheckoutStatusPaid),
				Order:        &models.Order{ID: orderID, Status: types.OrderStatusPartlyPaid, Balance: 7500},
				Receipt:      &models.PaymentReceipt{Reference: "DS-c1-b", Provider: p, Amount: 7500, Status: types.ReceiptStatusPending},
				Instructions: "Approve on your phone",
			}, nil
		},
	}
	r := newRouter(eng, &memoryAudit{})

	_, out := do(t, r, http.MethodPost, "/api/v1/orders/o1/pay-balance", map[string]any{"provider": "mobile_money", "phone": "0771"})
	require.Equal(t, response.APIResponseCodeOK, code(out))
	data := out["data"].(map[string]any)
	require.Equal(t, "75.00", data["receipts"].([]any)[0].(map[string]any)["amount"])
	require.Equal(t, "Approve on your phone", data["payment"].(map[string]any)["instructions"])

	_, out = do(t, r, http.MethodPost, "/api/v1/orders/busy/pay-balance", map[string]any{"provider": "mobile_money"})
	require.Equal(t, response.APIResponseCodeConflict, code(out))
}

func TestWebhook_Policy(t *testing.T) {
	audit := &memoryAudit{}
	var lastErr error
	var lastSource reconciliation.Source
	eng := &stubEngine{
		callback: func(p types.PaymentProvider, cb gateway.Callback, src reconciliation.Source) (*reconciliation.ApplyOutcome, error) {
			lastSource = src
			if lastErr != nil {
				return nil, lastErr
			}
			return &reconciliation.ApplyOutcome{Result: reconciliation.ResultApplied, Reference: "DS-c1",
				Order: &models.Order{ID: "o1", Status: types.OrderStatusProcessing}}, nil
		},
	}
	r := newRouter(eng, audit)

	cases := []struct {
		name       string
		err        error
		httpStatus int
		code       response.APIResponseCode
		logStatus  models.PaymentNotificationLogStatus
	}{
		{"applied", nil, http.StatusOK, response.APIResponseCodeOK, models.PaymentNotificationLogStatusHandled},
		{"forged", fmt.Errorf("%w: bad hash", reconciliation.ErrAuthenticity), http.StatusOK, response.APIResponseCodeUnauthorized, models.PaymentNotificationLogStatusRejected},
		{"unknown reference", reconciliation.ErrUnrecognizedCallback, http.StatusOK, response.APIResponseCodeOK, models.PaymentNotificationLogStatusUnrecognized},
		{"malformed", fmt.Errorf("%w: not json", gateway.ErrMalformed), http.StatusBadRequest, response.APIResponseCodeBadRequest, models.PaymentNotificationLogStatusRejected},
		{"disabled provider", &reconciliation.ValidationError{Field: "provider", Reason: "card is not available"}, http.StatusNotFound, response.APIResponseCodeNotFound, models.PaymentNotificationLogStatusRejected},
		{"db down", errors.New("connection refused"), http.StatusInternalServerError, response.APIResponseCodeError, models.PaymentNotificationLogStatusHandleFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lastErr = tc.err
			w, out := do(t, r, http.MethodPost, "/api/v1/payment/webhook/card", `{"id":"evt_1"}`)
			require.Equal(t, tc.httpStatus, w.Code)
			require.Equal(t, tc.code, code(out))
			require.Equal(t, tc.logStatus, audit.last().Status)
			require.Equal(t, reconciliation.SourceWebhook, lastSource)
		})
	}

	w, _ := do(t, r, http.MethodPost, "/api/v1/payment/webhook/bitcoin", `{}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReturn_UsesQueryAsAuditPayload(t *testing.T) {
	audit := &memoryAudit{}
	eng := &stubEngine{
		callback: func(p types.PaymentProvider, cb gateway.Callback, src reconciliation.Source) (*reconciliation.ApplyOutcome, error) {
			assert.Equal(t, reconciliation.SourceReturn, src)
			assert.Equal(t, "DS-c1", cb.Query.Get("reference"))
			return &reconciliation.ApplyOutcome{Result: reconciliation.ResultDuplicate, Reference: "DS-c1"}, nil
		},
	}
	r := newRouter(eng, audit)
	w, out := do(t, r, http.MethodGet, "/api/v1/payment/return/redirect?reference=DS-c1&status=paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(reconciliation.ResultDuplicate), out["data"].(map[string]any)["result"])
	require.Equal(t, "DS-c1", audit.last().Reference)
	require.Contains(t, string(audit.last().Data), "reference=DS-c1")
}

type stubReporting struct{}

func (stubReporting) ScanOrders(_ context.Context, req *statistics.ScanOrdersRequest) (*statistics.ScanOrdersResponse, error) {
	if req.SortBy == "bad" {
		return nil, errors.New("sort field not allowed: bad")
	}
	return &statistics.ScanOrdersResponse{Items: []*models.Order{{ID: "o1", Total: 999}}, Total: 1}, nil
}

func (stubReporting) GetStatistic(context.Context, *statistics.StatisticRequest) (*statistics.StatisticResponse, error) {
	return &statistics.StatisticResponse{DataItems: map[statistics.StatisticType][]statistics.StatisticResponseDataItem{
		statistics.StatisticTypeUnsyncedOrderCount: {{Value: 2}},
	}}, nil
}

type stubResyncer struct{ ids []string }

func (s *stubResyncer) Resync(_ context.Context, id string) error {
	s.ids = append(s.ids, id)
	return nil
}

func TestAdminRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	eng := &stubEngine{
		confirm: func(ref string) (*reconciliation.ApplyOutcome, error) {
			if ref == "DS-card" {
				return nil, &reconciliation.ValidationError{Field: "reference", Reason: "only cash is confirmed manually"}
			}
			return &reconciliation.ApplyOutcome{Result: reconciliation.ResultApplied, Reference: ref}, nil
		},
	}
	rs := &stubResyncer{}
	RegisterAdminRoutes(r.Group("/api/v1/admin"), eng, stubReporting{}, rs, zap.NewNop().Sugar())

	_, out := do(t, r, http.MethodPost, "/api/v1/admin/orders/list", map[string]any{"size": 10})
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.Equal(t, "9.99", out["data"].(map[string]any)["items"].([]any)[0].(map[string]any)["total"])

	_, out = do(t, r, http.MethodPost, "/api/v1/admin/orders/list", map[string]any{"sort_by": "bad"})
	require.Equal(t, response.APIResponseCodeBadRequest, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{"data_items": []map[string]any{{"id": "unsynced_order_count"}}})
	require.Equal(t, response.APIResponseCodeOK, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/admin/payments/DS-cash/confirm", nil)
	require.Equal(t, response.APIResponseCodeOK, code(out))
	_, out = do(t, r, http.MethodPost, "/api/v1/admin/payments/DS-card/confirm", nil)
	require.Equal(t, response.APIResponseCodeBadRequest, code(out))

	_, out = do(t, r, http.MethodPost, "/api/v1/admin/orders/o1/resync", nil)
	require.Equal(t, response.APIResponseCodeOK, code(out))
	require.Equal(t, []string{"o1"}, rs.ids)
}
