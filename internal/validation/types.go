package validation

import "github.com/imrishuroy/go-payment-reconciler/internal/amount"

// CreateOrderRequest is the payload for POST /api/orders.
// UserAgent and IPAddress default to the request's own headers when empty.
type CreateOrderRequest struct {
	ProductID   string       `json:"product_id" validate:"required,max=64"`
	ProductName string       `json:"product_name" validate:"required,max=200"`
	Amount      amount.Money `json:"amount" validate:"money"` // base price
	UserAgent   string       `json:"user_agent,omitempty" validate:"omitempty,max=512"`
	IPAddress   string       `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

// VerifyPaymentRequest is the payload for POST /api/verify-payment.
type VerifyPaymentRequest struct {
	OrderID    string       `json:"order_id" validate:"required"`
	UTR        string       `json:"utr" validate:"utr"`
	PaidAmount amount.Money `json:"paid_amount" validate:"amount"`
}

// InitiatePaymentRequest is the payload for POST /api/payment/initiate.
type InitiatePaymentRequest struct {
	OrderID    string `json:"order_id" validate:"required"`
	Provider   string `json:"provider,omitempty" validate:"omitempty,oneof=phonepe paytm"`
	CustomerID string `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	Mobile     string `json:"mobile,omitempty" validate:"omitempty,len=10,numeric"`
}
