package orders

import (
	"errors"
	"time"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

// Status is the order/payment lifecycle state.
type Status string

// Order statuses
const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusSuccess       Status = "success"
	StatusVerified      Status = "verified"
	StatusPendingReview Status = "pending_review"
	StatusFailed        Status = "failed"
	StatusExpired       Status = "expired"
)

// ParseStatus accepts any known status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusSuccess, StatusVerified,
		StatusPendingReview, StatusFailed, StatusExpired:
		return st, true
	}
	return "", false
}

var (
	// ErrStatusMismatch means the conditional status update lost to another writer.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrNotFound is returned by ledgers for an unknown order id.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyExists is returned when an order id is reused.
	ErrAlreadyExists = errors.New("order already exists")
)

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string            `dynamodbav:"order_id" json:"order_id"` // PK
	ProductID       string            `dynamodbav:"product_id" json:"product_id"`
	ProductName     string            `dynamodbav:"product_name" json:"product_name"`
	BaseAmount      amount.Money      `dynamodbav:"base_amount" json:"base_amount"`
	UniqueAmount    amount.Money      `dynamodbav:"unique_amount" json:"unique_amount"` // set once at creation
	Status          Status            `dynamodbav:"status" json:"status"`
	WindowExpiresAt time.Time         `dynamodbav:"window_expires_at" json:"window_expires_at"`
	CreatedAt       time.Time         `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `dynamodbav:"updated_at" json:"updated_at"`
	VerifiedAt      *time.Time        `dynamodbav:"verified_at,omitempty" json:"verified_at,omitempty"`
	UserAgent       string            `dynamodbav:"user_agent,omitempty" json:"user_agent,omitempty"`
	IPAddress       string            `dynamodbav:"ip_address,omitempty" json:"ip_address,omitempty"`
	UTR             string            `dynamodbav:"utr,omitempty" json:"utr,omitempty"`
	ConfidenceScore *int              `dynamodbav:"confidence_score,omitempty" json:"confidence_score,omitempty"`
	Provider        gateway.Provider  `dynamodbav:"provider,omitempty" json:"provider,omitempty"`
	MerchantTxnID   string            `dynamodbav:"merchant_txn_id,omitempty" json:"merchant_txn_id,omitempty"`
	GatewayTxnID    string            `dynamodbav:"gateway_txn_id,omitempty" json:"gateway_txn_id,omitempty"`
	GatewayResponse *gateway.Response `dynamodbav:"gateway_response,omitempty" json:"gateway_response,omitempty"`
	FailureReason   string            `dynamodbav:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Polls           int               `dynamodbav:"polls,omitempty" json:"polls,omitempty"`
}

// Transition is a compare-and-swap of an order's status plus the fields set alongside it.
// Zero-valued optional fields are left untouched.
type Transition struct {
	OrderID         string
	From            Status
	To              Status
	At              time.Time
	VerifiedAt      *time.Time
	Score           *int
	UTR             string
	Provider        gateway.Provider
	MerchantTxnID   string
	GatewayTxnID    string
	GatewayResponse *gateway.Response
	Reason          string
}

// Apply returns o with t applied, for in-memory ledgers and tests.
func (t Transition) Apply(o Order) Order {
	o.Status = t.To
	o.UpdatedAt = t.At
	if t.VerifiedAt != nil {
		v := *t.VerifiedAt
		o.VerifiedAt = &v
	}
	if t.Score != nil {
		s := *t.Score
		o.ConfidenceScore = &s
	}
	if t.UTR != "" {
		o.UTR = t.UTR
	}
	if t.Provider != "" {
		o.Provider = t.Provider
	}
	if t.MerchantTxnID != "" {
		o.MerchantTxnID = t.MerchantTxnID
	}
	if t.GatewayTxnID != "" {
		o.GatewayTxnID = t.GatewayTxnID
	}
	if t.GatewayResponse != nil {
		r := *t.GatewayResponse
		o.GatewayResponse = &r
	}
	if t.Reason != "" {
		o.FailureReason = t.Reason
	}
	return o
}
