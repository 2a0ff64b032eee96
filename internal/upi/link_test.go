package upi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
)

func TestLink(t *testing.T) {
	payee := config.UPI{PayeeVPA: "shop@oksbi", PayeeName: "Gadget Shop"}
	got := Link(payee, amount.MustParse("499.17"), OrderNote("ORD-1A2B3C4D"))
	assert.Equal(t, "upi://pay?pa=shop%40oksbi&pn=Gadget+Shop&am=499.17&cu=INR&tn=Order+ORD-1A2B3C4D", got)
}

func TestLinkDefaultsPayeeName(t *testing.T) {
	got := Link(config.UPI{PayeeVPA: "shop@ibl"}, amount.MustParse("10"), "x")
	assert.Equal(t, "upi://pay?pa=shop%40ibl&pn=Merchant&am=10.00&cu=INR&tn=x", got)
}
