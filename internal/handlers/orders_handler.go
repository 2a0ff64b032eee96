package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-payment-reconciler/internal/upi"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

type orderResponse struct {
	*orders.Order
	UPILink string `json:"upi_link,omitempty"`
}

func (h *handler) withLink(o *orders.Order) orderResponse {
	resp := orderResponse{Order: o}
	if h.UPI.PayeeVPA != "" {
		resp.UPILink = upi.Link(h.UPI, o.UniqueAmount, upi.OrderNote(o.OrderID))
	}
	return resp
}

func (h *handler) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	// fingerprint falls back to the creating request
	ua, ip := req.UserAgent, req.IPAddress
	if ua == "" {
		ua = c.Request.UserAgent()
	}
	if ip == "" {
		ip = c.ClientIP()
	}

	o, err := h.Engine.CreateOrder(c.Request.Context(), reconcile.NewOrder{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		BaseAmount:  req.Amount,
		UserAgent:   ua,
		IPAddress:   ip,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/api/orders/"+o.OrderID)
	c.JSON(http.StatusCreated, h.withLink(o))
}

func (h *handler) getOrder(c *gin.Context) {
	o, err := h.Engine.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.withLink(o))
}

func (h *handler) verifyPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	res, err := h.Engine.ReportPayment(c.Request.Context(), reconcile.PaymentReport{
		OrderID:    req.OrderID,
		UTR:        req.UTR,
		PaidAmount: req.PaidAmount,
		UserAgent:  c.Request.UserAgent(),
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"success":          res.Verified,
		"message":          res.Message,
		"order_id":         res.Order.OrderID,
		"utr":              res.UTR,
		"status":           res.Status,
		"confidence_score": res.Score,
	}
	if res.Order.VerifiedAt != nil {
		body["verified_at"] = res.Order.VerifiedAt
	}
	c.JSON(http.StatusOK, body)
}
