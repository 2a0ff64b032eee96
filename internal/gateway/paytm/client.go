package paytm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

const (
	initiateEndpoint    = "/theia/api/v1/initiateTransaction"
	showPaymentEndpoint = "/theia/api/v1/showPaymentPage"
	statusEndpoint      = "/v3/order/status"
)

// Money is Paytm's amount object.
type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type UserInfo struct {
	CustID string `json:"custId"`
	Mobile string `json:"mobile,omitempty"`
}

// InitiateBody is the signed body of initiateTransaction.
type InitiateBody struct {
	RequestType string   `json:"requestType"`
	MID         string   `json:"mid"`
	WebsiteName string   `json:"websiteName"`
	OrderID     string   `json:"orderId"`
	CallbackURL string   `json:"callbackUrl"`
	TxnAmount   Money    `json:"txnAmount"`
	UserInfo    UserInfo `json:"userInfo"`
}

type resultInfo struct {
	ResultStatus string `json:"resultStatus"`
	ResultCode   string `json:"resultCode"`
	ResultMsg    string `json:"resultMsg"`
}

type envelope struct {
	Head struct {
		Signature string `json:"signature"`
	} `json:"head"`
	Body json.RawMessage `json:"body"`
}

type initiateResult struct {
	ResultInfo resultInfo `json:"resultInfo"`
	TxnToken   string     `json:"txnToken"`
}

type statusResult struct {
	ResultInfo  resultInfo `json:"resultInfo"`
	TxnID       string     `json:"txnId"`
	BankTxnID   string     `json:"bankTxnId"`
	OrderID     string     `json:"orderId"`
	TxnAmount   string     `json:"txnAmount"`
	PaymentMode string     `json:"paymentMode"`
	GatewayName string     `json:"gatewayName"`
	TxnDate     string     `json:"txnDate"`
}

// Client talks to the Paytm payments API.
type Client struct {
	cfg     config.Paytm
	http    *resty.Client
	breaker *gateway.Breaker
}

func NewClient(cfg config.Paytm, gw config.Gateway) *Client {
	return &Client{
		cfg:     cfg,
		http:    gateway.NewHTTPClient(cfg.BaseURL, gw.Timeout),
		breaker: gateway.NewBreaker(gateway.Paytm, gw),
	}
}

func (c *Client) Provider() gateway.Provider { return gateway.Paytm }

// InitiateTransaction obtains a transaction token for body.OrderID.
func (c *Client) InitiateTransaction(ctx context.Context, body InitiateBody) (string, error) {
	var out initiateResult
	q := url.Values{"mid": {c.cfg.MID}, "orderId": {body.OrderID}}
	if err := c.call(ctx, "initiate", initiateEndpoint+"?"+q.Encode(), body, &out); err != nil {
		return "", fmt.Errorf("paytm initiate %s: %w", body.OrderID, err)
	}
	if out.ResultInfo.ResultStatus != "S" || out.TxnToken == "" {
		return "", fmt.Errorf("paytm initiate %s: %w: %s %s", body.OrderID, gateway.ErrRejected,
			out.ResultInfo.ResultCode, out.ResultInfo.ResultMsg)
	}
	return out.TxnToken, nil
}

// Initiate implements gateway.Gateway.
func (c *Client) Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.Initiation, error) {
	token, err := c.InitiateTransaction(ctx, InitiateBody{
		RequestType: "Payment",
		MID:         c.cfg.MID,
		WebsiteName: c.cfg.Website,
		OrderID:     req.MerchantTxnID,
		CallbackURL: c.cfg.CallbackURL,
		TxnAmount:   Money{Value: amount.FromPaise(req.AmountPaise).String(), Currency: "INR"},
		UserInfo:    UserInfo{CustID: customerID(req), Mobile: req.Mobile},
	})
	if err != nil {
		return gateway.Initiation{}, err
	}
	q := url.Values{"mid": {c.cfg.MID}, "orderId": {req.MerchantTxnID}}
	return gateway.Initiation{
		Provider:      gateway.Paytm,
		MerchantTxnID: req.MerchantTxnID,
		TxnToken:      token,
		MerchantID:    c.cfg.MID,
		RedirectURL:   c.cfg.BaseURL + showPaymentEndpoint + "?" + q.Encode(),
	}, nil
}

func customerID(req gateway.InitiateRequest) string {
	if req.CustomerID != "" {
		return req.CustomerID
	}
	return "CUST_" + req.OrderID
}

// Status queries the order status API for merchantTxnID.
func (c *Client) Status(ctx context.Context, merchantTxnID string) (gateway.Evidence, error) {
	var out statusResult
	body := map[string]string{"mid": c.cfg.MID, "orderId": merchantTxnID}
	if err := c.call(ctx, "status", statusEndpoint, body, &out); err != nil {
		return gateway.Evidence{}, fmt.Errorf("paytm status %s: %w", merchantTxnID, err)
	}
	if out.OrderID == "" {
		out.OrderID = merchantTxnID
	}
	return evidence(gateway.PaytmResponse{
		OrderID:     out.OrderID,
		TxnID:       out.TxnID,
		BankTxnID:   out.BankTxnID,
		Status:      out.ResultInfo.ResultStatus,
		RespCode:    out.ResultInfo.ResultCode,
		RespMsg:     out.ResultInfo.ResultMsg,
		TxnAmount:   out.TxnAmount,
		PaymentMode: out.PaymentMode,
		GatewayName: out.GatewayName,
		TxnDate:     out.TxnDate,
	}), nil
}

// VerifyCallbackForm checks CHECKSUMHASH on the posted form and decodes it.
func (c *Client) VerifyCallbackForm(form map[string]string) (gateway.Evidence, error) {
	if !VerifyForm(form, c.cfg.MerchantKey) {
		log.WithFields(log.Fields{
			"provider":        gateway.Paytm,
			"merchant_txn_id": form["ORDERID"],
		}).Error("paytm callback checksum mismatch")
		return gateway.Evidence{Provider: gateway.Paytm, MerchantTxnID: form["ORDERID"]}, gateway.ErrSignature
	}
	if form["ORDERID"] == "" {
		return gateway.Evidence{}, fmt.Errorf("paytm callback: missing ORDERID")
	}
	return evidence(gateway.PaytmResponse{
		OrderID:     form["ORDERID"],
		TxnID:       form["TXNID"],
		BankTxnID:   form["BANKTXNID"],
		Status:      form["STATUS"],
		RespCode:    form["RESPCODE"],
		RespMsg:     form["RESPMSG"],
		TxnAmount:   form["TXNAMOUNT"],
		PaymentMode: form["PAYMENTMODE"],
		GatewayName: form["GATEWAYNAME"],
		TxnDate:     form["TXNDATE"],
	}), nil
}

// VerifyCallback implements gateway.Gateway.
func (c *Client) VerifyCallback(cb gateway.Callback) (gateway.Evidence, error) {
	return c.VerifyCallbackForm(cb.Form)
}

// call signs body, posts {"body","head"} and verifies the signed response body when present.
func (c *Client) call(ctx context.Context, operation, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	sig, err := GenerateSignature(string(raw), c.cfg.MerchantKey)
	if err != nil {
		return err
	}
	req := map[string]any{
		"body": json.RawMessage(raw),
		"head": map[string]string{"tokenType": "CHECKSUM", "signature": sig},
	}

	var env envelope
	err = c.breaker.Do(operation, func() error {
		resp, err := c.http.R().SetContext(ctx).SetBody(req).Post(path)
		if err := gateway.CheckResponse(resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return fmt.Errorf("%w: decode response: %v", gateway.ErrRejected, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if env.Head.Signature != "" && !VerifySignature(string(env.Body), c.cfg.MerchantKey, env.Head.Signature) {
		return fmt.Errorf("response body: %w", gateway.ErrSignature)
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("%w: decode body: %v", gateway.ErrRejected, err)
	}
	return nil
}

func evidence(r gateway.PaytmResponse) gateway.Evidence {
	var paise int64
	if m, err := amount.Parse(r.TxnAmount); err == nil {
		paise = m.Paise()
	}
	return gateway.Evidence{
		Provider:      gateway.Paytm,
		MerchantTxnID: r.OrderID,
		GatewayTxnID:  r.TxnID,
		State:         StateFromStatus(r.Status),
		AmountPaise:   paise,
		Code:          r.RespCode,
		Response:      gateway.Response{Provider: gateway.Paytm, Paytm: &r},
	}
}

// StateFromStatus maps a Paytm STATUS / resultStatus value to a gateway state.
func StateFromStatus(status string) gateway.State {
	switch status {
	case "TXN_SUCCESS":
		return gateway.StateSuccess
	case "TXN_FAILURE":
		return gateway.StateFailed
	default:
		return gateway.StatePending
	}
}

var _ gateway.Gateway = (*Client)(nil)
