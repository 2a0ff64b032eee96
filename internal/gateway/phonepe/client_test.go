package phonepe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.PhonePe{
		Enabled:     true,
		MerchantID:  "PGTESTPAYUAT",
		SaltKey:     testSaltKey,
		SaltIndex:   testSaltIndex,
		BaseURL:     baseURL,
		RedirectURL: "https://shop.example/payment-callback",
		CallbackURL: "https://api.example/api/payment/callback/phonepe",
	}, config.Gateway{
		Timeout:             2 * time.Second,
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      time.Minute,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.6,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestInitiateSignsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pg/v1/pay", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, RequestChecksum(body["request"], "/pg/v1/pay", testSaltKey, testSaltIndex), r.Header.Get("X-VERIFY"))

		var pay PayRequest
		require.NoError(t, DecodePayload(body["request"], &pay))
		assert.Equal(t, "PGTESTPAYUAT", pay.MerchantID)
		assert.Equal(t, "MT1", pay.MerchantTransactionID)
		assert.Equal(t, "USER_ORD-1A2B3C4D", pay.MerchantUserID)
		assert.EqualValues(t, 49917, pay.Amount)
		assert.Equal(t, "PAY_PAGE", pay.PaymentInstrument.Type)
		assert.Equal(t, "https://shop.example/payment-callback?order_id=ORD-1A2B3C4D", pay.RedirectURL)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"code":    "PAYMENT_INITIATED",
			"data": map[string]any{
				"merchantTransactionId": "MT1",
				"instrumentResponse": map[string]any{
					"type":         "PAY_PAGE",
					"redirectInfo": map[string]string{"url": "https://mercury.example/pay/abc", "method": "GET"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got, err := c.Initiate(context.Background(), gateway.InitiateRequest{
		OrderID:       "ORD-1A2B3C4D",
		MerchantTxnID: "MT1",
		AmountPaise:   49917,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://mercury.example/pay/abc", got.RedirectURL)
	assert.Equal(t, gateway.PhonePe, got.Provider)
}

func TestInitiateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "code": "KEY_NOT_CONFIGURED", "message": "Key not found"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Initiate(context.Background(), gateway.InitiateRequest{OrderID: "ORD-1", MerchantTxnID: "MT1", AmountPaise: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrRejected)
	assert.NotErrorIs(t, err, gateway.ErrUpstream)
}

func TestInitiateUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Initiate(context.Background(), gateway.InitiateRequest{OrderID: "ORD-1", MerchantTxnID: "MT1", AmountPaise: 100})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrUpstream)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pg/v1/status/PGTESTPAYUAT/MT9", r.URL.Path)
		assert.Equal(t, "PGTESTPAYUAT", r.Header.Get("X-MERCHANT-ID"))
		assert.Equal(t, StatusChecksum("/pg/v1/status/PGTESTPAYUAT/MT9", testSaltKey, testSaltIndex), r.Header.Get("X-VERIFY"))

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"code":    "PAYMENT_SUCCESS",
			"data": map[string]any{
				"merchantTransactionId": "MT9",
				"transactionId":         "T2401",
				"amount":                49917,
				"state":                 "COMPLETED",
			},
		})
	}))
	defer srv.Close()

	ev, err := newTestClient(srv.URL).Status(context.Background(), "MT9")
	require.NoError(t, err)
	assert.Equal(t, gateway.StateSuccess, ev.State)
	assert.Equal(t, "MT9", ev.MerchantTxnID)
	assert.Equal(t, "T2401", ev.GatewayTxnID)
	assert.EqualValues(t, 49917, ev.AmountPaise)
	require.NoError(t, ev.Response.Validate())
	assert.Equal(t, "COMPLETED", ev.Response.PhonePe.State)
}

func TestParseCallback(t *testing.T) {
	c := newTestClient("http://unused.invalid")
	b64, err := EncodePayload(map[string]any{
		"success": false,
		"code":    "PAYMENT_DECLINED",
		"data":    map[string]any{"merchantTransactionId": "MT5", "amount": 1000},
	})
	require.NoError(t, err)

	ev, err := c.ParseCallback(b64, ResponseChecksum(b64, testSaltKey, testSaltIndex))
	require.NoError(t, err)
	assert.Equal(t, gateway.StateFailed, ev.State)
	assert.Equal(t, "MT5", ev.MerchantTxnID)

	ev, err = c.ParseCallback(b64, ResponseChecksum(b64, "forged", testSaltIndex))
	assert.ErrorIs(t, err, gateway.ErrSignature)
	assert.Equal(t, "MT5", ev.MerchantTxnID)
	assert.Empty(t, ev.State)
}

func TestStateFromCode(t *testing.T) {
	cases := map[string]gateway.State{
		"PAYMENT_SUCCESS":       gateway.StateSuccess,
		"PAYMENT_ERROR":         gateway.StateFailed,
		"PAYMENT_DECLINED":      gateway.StateFailed,
		"TIMED_OUT":             gateway.StateFailed,
		"AUTHORIZATION_FAILED":  gateway.StateFailed,
		"PAYMENT_PENDING":       gateway.StatePending,
		"INTERNAL_SERVER_ERROR": gateway.StatePending,
		"SOMETHING_NEW":         gateway.StatePending,
	}
	for code, want := range cases {
		assert.Equal(t, want, StateFromCode(code), code)
	}
}
