package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

func (h *handler) initiatePayment(c *gin.Context) {
	var req validation.InitiatePaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	res, err := h.Engine.InitiatePayment(c.Request.Context(), reconcile.InitiateInput{
		OrderID:    req.OrderID,
		Provider:   req.Provider,
		CustomerID: req.CustomerID,
		Mobile:     req.Mobile,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"order_id":        res.Order.OrderID,
		"status":          res.Order.Status,
		"provider":        res.Initiation.Provider,
		"merchant_txn_id": res.Initiation.MerchantTxnID,
		"amount":          res.Order.UniqueAmount,
		"redirect_url":    res.Initiation.RedirectURL,
	}
	if res.Initiation.TxnToken != "" {
		body["txn_token"] = res.Initiation.TxnToken
		body["mid"] = res.Initiation.MerchantID
	}
	c.JSON(http.StatusOK, body)
}

type phonePeNotification struct {
	Response string `json:"response" binding:"required"`
}

// phonePeCallback is the server-to-server notification; PhonePe expects a 2xx ack.
func (h *handler) phonePeCallback(c *gin.Context) {
	var req phonePeNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	o, err := h.Engine.HandleCallback(c.Request.Context(), string(gateway.PhonePe), gateway.Callback{
		Payload:   req.Response,
		Signature: c.GetHeader("X-VERIFY"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order_id": o.OrderID, "status": o.Status})
}

// paytmCallback receives the customer's browser form post and redirects it to the shop.
func (h *handler) paytmCallback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	form := make(map[string]string, len(c.Request.PostForm))
	for k, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			form[k] = vs[0]
		}
	}

	o, err := h.Engine.HandleCallback(c.Request.Context(), string(gateway.Paytm), gateway.Callback{Form: form})
	if err != nil {
		log.WithFields(log.Fields{
			"provider":        gateway.Paytm,
			"merchant_txn_id": form["ORDERID"],
			"error":           err.Error(),
		}).Warn("paytm callback not applied")
		_ = c.Error(err)
		c.Redirect(http.StatusSeeOther, redirectURL(h.Frontend.FailureURL, url.Values{"reason": {reconcile.KindOf(err).String()}}))
		return
	}

	target := h.Frontend.FailureURL
	if reconcile.IsPaid(o.Status) || o.Status == orders.StatusProcessing {
		target = h.Frontend.SuccessURL
	}
	c.Redirect(http.StatusSeeOther, redirectURL(target, url.Values{"order_id": {o.OrderID}}))
}

func (h *handler) paymentStatus(c *gin.Context) {
	o, err := h.Engine.PollStatus(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// redirectURL appends q to base, keeping any query base already carries.
func redirectURL(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
