// Package upi builds UPI collect links for the manual bank-transfer path.
package upi

import (
	"net/url"
	"strings"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
)

const defaultPayeeName = "Merchant"

// Link returns upi://pay?pa=&pn=&am=&cu=INR&tn= for amt. Parameters keep that order
// since some payer apps read them positionally.
func Link(payee config.UPI, amt amount.Money, note string) string {
	name := payee.PayeeName
	if name == "" {
		name = defaultPayeeName
	}
	params := [][2]string{
		{"pa", payee.PayeeVPA},
		{"pn", name},
		{"am", amt.String()},
		{"cu", "INR"},
		{"tn", note},
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p[0]+"="+url.QueryEscape(p[1]))
	}
	return "upi://pay?" + strings.Join(parts, "&")
}

// OrderNote is the transaction note shown in the payer's app.
func OrderNote(orderID string) string {
	return "Order " + orderID
}
