package phonepe

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

const (
	payEndpoint    = "/pg/v1/pay"
	statusEndpoint = "/pg/v1/status"
)

// PayRequest is the JSON document base64-encoded into the pay call.
type PayRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     PaymentInstrument `json:"paymentInstrument"`
}

type PaymentInstrument struct {
	Type string `json:"type"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		InstrumentResponse    struct {
			Type         string `json:"type"`
			RedirectInfo struct {
				URL    string `json:"url"`
				Method string `json:"method"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// transactionResponse is shared by the status API and the decoded callback.
type transactionResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
		PaymentInstrument     struct {
			Type string `json:"type"`
		} `json:"paymentInstrument"`
	} `json:"data"`
}

// Client talks to the PhonePe PG API.
type Client struct {
	cfg     config.PhonePe
	http    *resty.Client
	breaker *gateway.Breaker
}

func NewClient(cfg config.PhonePe, gw config.Gateway) *Client {
	return &Client{
		cfg:     cfg,
		http:    gateway.NewHTTPClient(cfg.BaseURL, gw.Timeout),
		breaker: gateway.NewBreaker(gateway.PhonePe, gw),
	}
}

func (c *Client) Provider() gateway.Provider { return gateway.PhonePe }

// Pay creates a PAY_PAGE transaction and returns the redirect URL.
func (c *Client) Pay(ctx context.Context, req PayRequest) (string, error) {
	b64, err := EncodePayload(req)
	if err != nil {
		return "", err
	}
	checksum := RequestChecksum(b64, payEndpoint, c.cfg.SaltKey, c.cfg.SaltIndex)

	var out payResponse
	err = c.breaker.Do("pay", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-VERIFY", checksum).
			SetBody(map[string]string{"request": b64}).
			SetResult(&out).
			Post(payEndpoint)
		return gateway.CheckResponse(resp, err)
	})
	if err != nil {
		return "", fmt.Errorf("phonepe pay %s: %w", req.MerchantTransactionID, err)
	}

	redirect := out.Data.InstrumentResponse.RedirectInfo.URL
	if !out.Success || redirect == "" {
		return "", fmt.Errorf("phonepe pay %s: %w: %s %s", req.MerchantTransactionID, gateway.ErrRejected, out.Code, out.Message)
	}
	return redirect, nil
}

// Initiate implements gateway.Gateway.
func (c *Client) Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.Initiation, error) {
	redirectURL := c.cfg.RedirectURL
	if u, err := url.Parse(redirectURL); err == nil && redirectURL != "" {
		q := u.Query()
		q.Set("order_id", req.OrderID)
		u.RawQuery = q.Encode()
		redirectURL = u.String()
	}

	pay := PayRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: req.MerchantTxnID,
		MerchantUserID:        "USER_" + req.OrderID,
		Amount:                req.AmountPaise,
		RedirectURL:           redirectURL,
		RedirectMode:          "POST",
		CallbackURL:           c.cfg.CallbackURL,
		MobileNumber:          req.Mobile,
		PaymentInstrument:     PaymentInstrument{Type: "PAY_PAGE"},
	}
	redirect, err := c.Pay(ctx, pay)
	if err != nil {
		return gateway.Initiation{}, err
	}
	return gateway.Initiation{
		Provider:      gateway.PhonePe,
		MerchantTxnID: req.MerchantTxnID,
		RedirectURL:   redirect,
		MerchantID:    c.cfg.MerchantID,
	}, nil
}

// Status queries the current state of merchantTxnID.
func (c *Client) Status(ctx context.Context, merchantTxnID string) (gateway.Evidence, error) {
	path := fmt.Sprintf("%s/%s/%s", statusEndpoint, c.cfg.MerchantID, merchantTxnID)
	checksum := StatusChecksum(path, c.cfg.SaltKey, c.cfg.SaltIndex)

	var out transactionResponse
	err := c.breaker.Do("status", func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-VERIFY", checksum).
			SetHeader("X-MERCHANT-ID", c.cfg.MerchantID).
			SetResult(&out).
			Get(path)
		return gateway.CheckResponse(resp, err)
	})
	if err != nil {
		return gateway.Evidence{}, fmt.Errorf("phonepe status %s: %w", merchantTxnID, err)
	}
	if out.Data.MerchantTransactionID == "" {
		out.Data.MerchantTransactionID = merchantTxnID
	}
	return out.evidence(), nil
}

// ParseCallback verifies the X-VERIFY header against the base64 response and decodes it.
func (c *Client) ParseCallback(payloadB64, xVerify string) (gateway.Evidence, error) {
	var out transactionResponse
	decodeErr := DecodePayload(payloadB64, &out)

	if !VerifyResponse(payloadB64, xVerify, c.cfg.SaltKey, c.cfg.SaltIndex) {
		ev := gateway.Evidence{Provider: gateway.PhonePe}
		if decodeErr == nil {
			ev.MerchantTxnID = out.Data.MerchantTransactionID
		}
		log.WithFields(log.Fields{
			"provider":        gateway.PhonePe,
			"merchant_txn_id": ev.MerchantTxnID,
		}).Error("phonepe callback checksum mismatch")
		return ev, gateway.ErrSignature
	}
	if decodeErr != nil {
		return gateway.Evidence{}, fmt.Errorf("phonepe callback: %w", decodeErr)
	}
	if out.Data.MerchantTransactionID == "" {
		return gateway.Evidence{}, errors.New("phonepe callback: missing merchantTransactionId")
	}
	return out.evidence(), nil
}

// VerifyCallback implements gateway.Gateway.
func (c *Client) VerifyCallback(cb gateway.Callback) (gateway.Evidence, error) {
	return c.ParseCallback(cb.Payload, cb.Signature)
}

func (t transactionResponse) evidence() gateway.Evidence {
	return gateway.Evidence{
		Provider:      gateway.PhonePe,
		MerchantTxnID: t.Data.MerchantTransactionID,
		GatewayTxnID:  t.Data.TransactionID,
		State:         StateFromCode(t.Code),
		AmountPaise:   t.Data.Amount,
		Code:          t.Code,
		Response: gateway.Response{
			Provider: gateway.PhonePe,
			PhonePe: &gateway.PhonePeResponse{
				Success:               t.Success,
				Code:                  t.Code,
				Message:               t.Message,
				MerchantID:            t.Data.MerchantID,
				MerchantTransactionID: t.Data.MerchantTransactionID,
				TransactionID:         t.Data.TransactionID,
				AmountPaise:           t.Data.Amount,
				State:                 t.Data.State,
				ResponseCode:          t.Data.ResponseCode,
				InstrumentType:        t.Data.PaymentInstrument.Type,
			},
		},
	}
}

// StateFromCode maps a PhonePe response code to a gateway state.
// Unknown codes stay pending so a later poll can settle them.
func StateFromCode(code string) gateway.State {
	switch code {
	case "PAYMENT_SUCCESS":
		return gateway.StateSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "AUTHORIZATION_FAILED":
		return gateway.StateFailed
	default:
		return gateway.StatePending
	}
}

var _ gateway.Gateway = (*Client)(nil)
