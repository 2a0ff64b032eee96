package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/middleware"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
)

func (h *handler) listOrders(c *gin.Context) {
	out, err := h.Engine.ListOrders(c.Request.Context(), c.DefaultQuery("status", string(orders.StatusPendingReview)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(out), "count": len(out)})
}

func (h *handler) pendingReviews(c *gin.Context) {
	out, err := h.Engine.PendingReviews(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": nonNil(out), "count": len(out)})
}

func (h *handler) approvePayment(c *gin.Context) {
	h.review(c, "approve", h.Engine.ApprovePayment)
}

func (h *handler) rejectPayment(c *gin.Context) {
	h.review(c, "reject", h.Engine.RejectPayment)
}

func (h *handler) review(c *gin.Context, action string, fn func(ctx context.Context, orderID string) (*reconcile.AdminResult, error)) {
	orderID := c.Param("order_id")
	res, err := fn(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	log.WithFields(log.Fields{
		"order_id": orderID,
		"action":   action,
		"admin":    c.GetString(middleware.ContextSubject),
	}).Info("review resolved")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message, "order": res.Order})
}

func nonNil(o []orders.Order) []orders.Order {
	if o == nil {
		return []orders.Order{}
	}
	return o
}
