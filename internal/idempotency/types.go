package idempotency

import (
	"errors"
	"strings"
	"time"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

// Record kinds sharing the idempotency table.
const (
	KindReference  = "reference"
	KindDuplicate  = "duplicate"
	KindGatewayTxn = "gateway_txn"
	KindCallback   = "callback"
)

// AttemptStatus is the outcome recorded against a bank reference.
type AttemptStatus string

const (
	AttemptVerified      AttemptStatus = "verified"
	AttemptDuplicate     AttemptStatus = "duplicate"
	AttemptInvalid       AttemptStatus = "invalid"
	AttemptPendingReview AttemptStatus = "pending_review"
)

// ErrConditionFailed indicates a conditional write failed (e.g., attribute_not_exists)
var ErrConditionFailed = errors.New("conditional check failed")

// ReferenceKey is the canonical claim on a UTR. Once written it is never released.
func ReferenceKey(utr string) string { return "ref#" + utr }

// DuplicateKey records one rejected reuse of utr.
func DuplicateKey(utr, id string) string { return "dup#" + utr + "#" + id }

// TxnKey maps a merchant transaction id back to its order.
func TxnKey(merchantTxnID string) string { return "txn#" + merchantTxnID }

// CallbackKey identifies one (provider, transaction, state) callback delivery.
func CallbackKey(provider gateway.Provider, merchantTxnID string, state gateway.State) string {
	return strings.Join([]string{"cb", string(provider), merchantTxnID, string(state)}, "#")
}

// Attempt is a manual payment report keyed by its bank reference.
type Attempt struct {
	IdempotencyKey  string        `dynamodbav:"idempotency_key" json:"-"` // PK
	Kind            string        `dynamodbav:"kind" json:"-"`
	UTR             string        `dynamodbav:"utr" json:"utr"`
	OrderID         string        `dynamodbav:"order_id" json:"order_id"`
	PaidAmount      amount.Money  `dynamodbav:"paid_amount" json:"paid_amount"`
	Status          AttemptStatus `dynamodbav:"status" json:"status"`
	ConfidenceScore int           `dynamodbav:"confidence_score" json:"confidence_score"`
	Verified        bool          `dynamodbav:"verified" json:"verified"`
	CreatedAt       time.Time     `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `dynamodbav:"updated_at" json:"updated_at"`
}

// GatewayTxn links a merchant transaction id to the order it was initiated for.
type GatewayTxn struct {
	IdempotencyKey string           `dynamodbav:"idempotency_key"` // PK
	Kind           string           `dynamodbav:"kind"`
	MerchantTxnID  string           `dynamodbav:"merchant_txn_id"`
	OrderID        string           `dynamodbav:"order_id"`
	Provider       gateway.Provider `dynamodbav:"provider"`
	TxnToken       string           `dynamodbav:"txn_token,omitempty"`
	CreatedAt      time.Time        `dynamodbav:"created_at"`
}

// CallbackReceipt marks a callback as seen. Expires via the table TTL.
type CallbackReceipt struct {
	IdempotencyKey string           `dynamodbav:"idempotency_key"` // PK
	Kind           string           `dynamodbav:"kind"`
	Provider       gateway.Provider `dynamodbav:"provider"`
	MerchantTxnID  string           `dynamodbav:"merchant_txn_id"`
	State          gateway.State    `dynamodbav:"state"`
	OrderID        string           `dynamodbav:"order_id,omitempty"`
	CreatedAt      time.Time        `dynamodbav:"created_at"`
	ExpiresAt      int64            `dynamodbav:"expires_at"` // TTL epoch seconds
}
