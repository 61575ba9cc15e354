package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/dropship/pkg/config"
)

const testRedirectSecret = "redirect-secret"

func newTestRedirect(baseURL string) *Redirect {
	return NewRedirect(config.RedirectGatewayConfig{
		BaseURL:       baseURL,
		APIKey:        "api-key",
		SigningSecret: testRedirectSecret,
		Timeout:       time.Second,
	}, zap.NewNop().Sugar())
}

func TestRedirect_Initiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer api-key", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "75.00", body["amount"])
		assert.Equal(t, "https://shop.example.com/api/v1/payment/return/redirect", body["return_url"])
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rp_1", "status": "created", "redirect_url": "https://pay.example.com/rp_1"})
	}))
	defer srv.Close()

	r := newTestRedirect(srv.URL)
	res, err := r.Initiate(context.Background(), InitiateRequest{
		Reference: "DS-r-1", Amount: 7500, Currency: "USD",
		ReturnURL: "https://shop.example.com/api/v1/payment/return/redirect",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "https://pay.example.com/rp_1", res.RedirectURL)
	require.Equal(t, "rp_1", res.ProviderReference)
	require.True(t, r.RequiresRedirect())
}

func TestRedirect_InitiateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"currency not supported"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	res, err := newTestRedirect(srv.URL).Initiate(context.Background(), InitiateRequest{Reference: "DS-r-2", Amount: 1})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "currency not supported")
}

func TestRedirect_HandleCallback(t *testing.T) {
	r := newTestRedirect("http://unused")
	token, err := SignRedirectPayload(testRedirectSecret, RedirectClaims{
		Reference: "DS-r-3", ProviderReference: "rp_3", Status: "success", Amount: "100.00",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	})
	require.NoError(t, err)

	res, err := r.HandleCallback(context.Background(), Callback{Query: url.Values{"payload": {token}}})
	require.NoError(t, err)
	require.Equal(t, OutcomePaid, res.Outcome)
	require.Equal(t, int64(10000), res.Amount)
	require.Equal(t, "rp_3", res.ProviderReference)

	body, _ := json.Marshal(map[string]string{"payload": token})
	res, err = r.HandleCallback(context.Background(), Callback{Body: body})
	require.NoError(t, err)
	require.Equal(t, "DS-r-3", res.Reference)
}

func TestRedirect_HandleCallbackRejects(t *testing.T) {
	r := newTestRedirect("http://unused")

	forged, err := SignRedirectPayload("other-secret", RedirectClaims{Reference: "DS-r-4", Status: "success"})
	require.NoError(t, err)
	_, err = r.HandleCallback(context.Background(), Callback{Query: url.Values{"payload": {forged}}})
	require.ErrorIs(t, err, ErrAuthenticity)

	expired, err := SignRedirectPayload(testRedirectSecret, RedirectClaims{
		Reference: "DS-r-4", Status: "success",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Hour).Unix()},
	})
	require.NoError(t, err)
	_, err = r.HandleCallback(context.Background(), Callback{Query: url.Values{"payload": {expired}}})
	require.ErrorIs(t, err, ErrAuthenticity)

	_, err = r.HandleCallback(context.Background(), Callback{Query: url.Values{"payload": {"not-a-jwt"}}})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = r.HandleCallback(context.Background(), Callback{})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRedirect_CheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/rp_5", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rp_5", "status": "declined", "amount": "10.00"})
	}))
	defer srv.Close()

	res, err := newTestRedirect(srv.URL).CheckStatus(context.Background(), StatusQuery{ProviderReference: "rp_5"})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, int64(1000), res.Amount)
}
