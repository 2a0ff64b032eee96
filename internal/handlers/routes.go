package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
	"github.com/imrishuroy/go-payment-reconciler/internal/middleware"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-payment-reconciler/internal/validation"
)

// Reconciler is the engine surface the routes drive.
type Reconciler interface {
	CreateOrder(ctx context.Context, in reconcile.NewOrder) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ReportPayment(ctx context.Context, rep reconcile.PaymentReport) (*reconcile.ReportResult, error)
	InitiatePayment(ctx context.Context, in reconcile.InitiateInput) (*reconcile.InitiateResult, error)
	HandleCallback(ctx context.Context, provider string, cb gateway.Callback) (*orders.Order, error)
	PollStatus(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, status string) ([]orders.Order, error)
	PendingReviews(ctx context.Context) ([]orders.Order, error)
	ApprovePayment(ctx context.Context, orderID string) (*reconcile.AdminResult, error)
	RejectPayment(ctx context.Context, orderID string) (*reconcile.AdminResult, error)
}

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Engine   Reconciler
	UPI      config.UPI
	Frontend config.Frontend
	Admin    config.Admin
}

type handler struct {
	HandlerConfig
	v *validatorv10.Validate
}

// RegisterRoutes registers the public, gateway callback and admin routes under /api.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{HandlerConfig: cfg, v: validation.New()}

	api := r.Group("/api")
	api.POST("/orders", h.createOrder)
	api.GET("/orders/:order_id", h.getOrder)
	api.POST("/verify-payment", h.verifyPayment)

	api.POST("/payment/initiate", h.initiatePayment)
	api.POST("/payment/callback/phonepe", h.phonePeCallback)
	api.POST("/payment/callback/paytm", h.paytmCallback)
	api.GET("/payment/status/:order_id", h.paymentStatus)

	admin := api.Group("/admin", middleware.AdminAuth(cfg.Admin.JWTSecret))
	admin.GET("/orders", h.listOrders)
	admin.GET("/pending-reviews", h.pendingReviews)
	admin.POST("/approve-payment/:order_id", h.approvePayment)
	admin.POST("/reject-payment/:order_id", h.rejectPayment)
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(k reconcile.Kind) int {
	switch k {
	case reconcile.KindValidation:
		return http.StatusBadRequest
	case reconcile.KindNotFound:
		return http.StatusNotFound
	case reconcile.KindConflict, reconcile.KindAlreadyVerified, reconcile.KindDuplicateReference:
		return http.StatusConflict
	case reconcile.KindSignature:
		return http.StatusUnauthorized
	case reconcile.KindUpstream:
		return http.StatusServiceUnavailable
	case reconcile.KindRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := reconcile.KindOf(err)
	status := statusFor(kind)
	body := gin.H{"error": kind.String(), "msg": reconcile.Message(err)}
	if reconcile.Retryable(err) {
		body["retryable"] = true
	}
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, body)
}
