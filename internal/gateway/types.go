// Package gateway holds the provider-neutral types shared by the PhonePe and Paytm integrations.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

type Provider string

const (
	PhonePe Provider = "phonepe"
	Paytm   Provider = "paytm"
)

// ParseProvider accepts the lower-case provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case PhonePe, Paytm:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment provider %q", s)
}

// State is the payment state a provider reports for one transaction.
type State string

const (
	StateSuccess State = "success"
	StateFailed  State = "failed"
	StatePending State = "pending"
)

var (
	// ErrSignature means a checksum did not verify. Always an authentication failure.
	ErrSignature = errors.New("gateway: checksum mismatch")
	// ErrUpstream covers timeouts, transport errors, 5xx answers and an open breaker. Retryable.
	ErrUpstream = errors.New("gateway: upstream unavailable")
	// ErrRejected means the provider answered but refused the request.
	ErrRejected = errors.New("gateway: request rejected")
)

// PhonePeResponse is the decoded PhonePe callback or status payload.
type PhonePeResponse struct {
	Success               bool   `json:"success" dynamodbav:"success"`
	Code                  string `json:"code" dynamodbav:"code"`
	Message               string `json:"message,omitempty" dynamodbav:"message,omitempty"`
	MerchantID            string `json:"merchant_id,omitempty" dynamodbav:"merchant_id,omitempty"`
	MerchantTransactionID string `json:"merchant_transaction_id" dynamodbav:"merchant_transaction_id"`
	TransactionID         string `json:"transaction_id,omitempty" dynamodbav:"transaction_id,omitempty"`
	AmountPaise           int64  `json:"amount" dynamodbav:"amount"`
	State                 string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	ResponseCode          string `json:"response_code,omitempty" dynamodbav:"response_code,omitempty"`
	InstrumentType        string `json:"instrument_type,omitempty" dynamodbav:"instrument_type,omitempty"`
}

// PaytmResponse is the posted Paytm callback form or the order status body.
type PaytmResponse struct {
	OrderID     string `json:"order_id" dynamodbav:"order_id"`
	TxnID       string `json:"txn_id,omitempty" dynamodbav:"txn_id,omitempty"`
	BankTxnID   string `json:"bank_txn_id,omitempty" dynamodbav:"bank_txn_id,omitempty"`
	Status      string `json:"status" dynamodbav:"status"`
	RespCode    string `json:"resp_code,omitempty" dynamodbav:"resp_code,omitempty"`
	RespMsg     string `json:"resp_msg,omitempty" dynamodbav:"resp_msg,omitempty"`
	TxnAmount   string `json:"txn_amount,omitempty" dynamodbav:"txn_amount,omitempty"`
	PaymentMode string `json:"payment_mode,omitempty" dynamodbav:"payment_mode,omitempty"`
	GatewayName string `json:"gateway_name,omitempty" dynamodbav:"gateway_name,omitempty"`
	TxnDate     string `json:"txn_date,omitempty" dynamodbav:"txn_date,omitempty"`
}

// Response is the raw provider answer stored on the order. Exactly one member is set.
type Response struct {
	Provider Provider         `json:"provider" dynamodbav:"provider"`
	PhonePe  *PhonePeResponse `json:"phonepe,omitempty" dynamodbav:"phonepe,omitempty"`
	Paytm    *PaytmResponse   `json:"paytm,omitempty" dynamodbav:"paytm,omitempty"`
}

// Validate requires the member matching Provider and nothing else.
func (r Response) Validate() error {
	switch r.Provider {
	case PhonePe:
		if r.PhonePe == nil || r.Paytm != nil {
			return errors.New("gateway response: phonepe payload required")
		}
	case Paytm:
		if r.Paytm == nil || r.PhonePe != nil {
			return errors.New("gateway response: paytm payload required")
		}
	default:
		return fmt.Errorf("gateway response: unknown provider %q", r.Provider)
	}
	return nil
}

// Evidence is what a callback or a status poll says about one gateway transaction.
type Evidence struct {
	Provider      Provider
	MerchantTxnID string
	GatewayTxnID  string
	State         State
	AmountPaise   int64
	Code          string
	Response      Response
}

// InitiateRequest is the provider-neutral initiation input.
type InitiateRequest struct {
	OrderID       string
	MerchantTxnID string
	AmountPaise   int64
	CustomerID    string
	Mobile        string
}

// Initiation is what the client needs to continue on the provider's side.
type Initiation struct {
	Provider      Provider
	MerchantTxnID string
	RedirectURL   string
	TxnToken      string
	MerchantID    string
}

// Callback carries the provider-specific signed callback fields.
type Callback struct {
	// Payload is the base64 response body (PhonePe).
	Payload string
	// Signature is the X-VERIFY header (PhonePe).
	Signature string
	// Form holds the posted fields including CHECKSUMHASH (Paytm).
	Form map[string]string
}

// Gateway is implemented by each provider client.
//
// VerifyCallback returns ErrSignature on a checksum mismatch; the Evidence it returns
// alongside then only carries the MerchantTxnID named by the unverified payload, if any.
type Gateway interface {
	Provider() Provider
	Initiate(ctx context.Context, req InitiateRequest) (Initiation, error)
	Status(ctx context.Context, merchantTxnID string) (Evidence, error)
	VerifyCallback(cb Callback) (Evidence, error)
}
