// Package reconcile is the order/payment state machine. It alone decides and applies
// status changes; the ledger stores them and strategies only propose outcomes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/metrics"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/scoring"
)

const (
	collisionRerolls = 5
	createAttempts   = 3
)

// Ledger is the persistent store the engine reads from and writes to.
// Conditional failures surface as orders.ErrStatusMismatch (order moved) or
// idempotency.ErrConditionFailed (key already recorded).
type Ledger interface {
	CreateOrder(ctx context.Context, o orders.Order) error
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error)
	Transition(ctx context.Context, t orders.Transition) error
	RecordAttempt(ctx context.Context, a idempotency.Attempt, t orders.Transition) error
	GetAttempt(ctx context.Context, utr string) (*idempotency.Attempt, error)
	RecordDuplicate(ctx context.Context, a idempotency.Attempt) error
	ResolveAttempt(ctx context.Context, utr string, status idempotency.AttemptStatus, verified bool, t orders.Transition) error
	BeginGatewayTxn(ctx context.Context, txn idempotency.GatewayTxn, t orders.Transition) error
	GetGatewayTxn(ctx context.Context, merchantTxnID string) (*idempotency.GatewayTxn, error)
	RecordCallback(ctx context.Context, r idempotency.CallbackReceipt) (bool, error)
	RecordPoll(ctx context.Context, orderID string) error
}

// PollScheduler enqueues a delayed gateway status poll.
type PollScheduler interface {
	SchedulePoll(ctx context.Context, orderID, merchantTxnID string, attempt int) error
}

// Engine applies reconciliation outcomes to orders.
type Engine struct {
	payment         config.Payment
	gatewayTimeout  time.Duration
	ledger          Ledger
	amounts         *amount.Disambiguator
	manual          ManualStrategy
	gateways        map[gateway.Provider]*GatewayStrategy
	defaultProvider gateway.Provider
	scheduler       PollScheduler
	nowFunc         func() time.Time
	newOrderID      func() string
	newTxnID        func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithGateway registers a provider client.
func WithGateway(gw gateway.Gateway) Option {
	return func(e *Engine) { e.gateways[gw.Provider()] = NewGatewayStrategy(gw) }
}

// WithPollScheduler enqueues a status poll after each gateway initiation.
func WithPollScheduler(s PollScheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.nowFunc = now }
}

// WithDisambiguator replaces the crypto/rand backed amount source.
func WithDisambiguator(d *amount.Disambiguator) Option {
	return func(e *Engine) { e.amounts = d }
}

// WithIDs overrides order and merchant transaction id generation.
func WithIDs(orderID, txnID func() string) Option {
	return func(e *Engine) {
		e.newOrderID = orderID
		e.newTxnID = txnID
	}
}

// NewEngine builds an engine from the payment policy in cfg and the ledger l.
func NewEngine(cfg *config.Config, l Ledger, opts ...Option) *Engine {
	e := &Engine{
		payment:        cfg.Payment,
		gatewayTimeout: cfg.Gateway.Timeout,
		ledger:         l,
		amounts:        amount.NewDisambiguator(nil),
		manual: ManualStrategy{Thresholds: scoring.Thresholds{
			Verify: cfg.Payment.VerifyThreshold,
			Review: cfg.Payment.ReviewThreshold,
		}},
		gateways:        map[gateway.Provider]*GatewayStrategy{},
		defaultProvider: gateway.Provider(cfg.Payment.DefaultProvider),
		nowFunc:         time.Now,
		newOrderID:      NewOrderID,
		newTxnID:        NewMerchantTxnID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOrderID returns "ORD-" plus 8 upper-case hex characters.
func NewOrderID() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// NewMerchantTxnID returns a 34-character id accepted by both providers.
func NewMerchantTxnID() string {
	return "MT" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewOrder is the input to CreateOrder.
type NewOrder struct {
	ProductID   string
	ProductName string
	BaseAmount  amount.Money
	UserAgent   string
	IPAddress   string
}

// CreateOrder opens a pending order with a freshly disambiguated amount.
func (e *Engine) CreateOrder(ctx context.Context, in NewOrder) (*orders.Order, error) {
	const op = "create order"
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, newError(KindValidation, op, "", "product_id is required", nil)
	}

	unique, err := e.uniqueAmount(ctx, in.BaseAmount)
	if err != nil {
		if errors.Is(err, amount.ErrNonPositive) || errors.Is(err, amount.ErrPrecision) {
			return nil, newError(KindValidation, op, "", err.Error(), err)
		}
		return nil, newError(KindInternal, op, "", "", err)
	}

	now := e.nowFunc()
	o := orders.Order{
		ProductID:       in.ProductID,
		ProductName:     in.ProductName,
		BaseAmount:      in.BaseAmount,
		UniqueAmount:    unique,
		Status:          orders.StatusPending,
		WindowExpiresAt: now.Add(e.payment.Window),
		CreatedAt:       now,
		UpdatedAt:       now,
		UserAgent:       in.UserAgent,
		IPAddress:       in.IPAddress,
	}
	for i := 0; ; i++ {
		o.OrderID = e.newOrderID()
		err = e.ledger.CreateOrder(ctx, o)
		if err == nil {
			break
		}
		if !errors.Is(err, orders.ErrAlreadyExists) || i+1 == createAttempts {
			return nil, newError(KindInternal, op, o.OrderID, "", err)
		}
	}

	metrics.PaymentAmount.Observe(unique.Float64())
	log.WithFields(log.Fields{
		"order_id":      o.OrderID,
		"product_id":    o.ProductID,
		"base_amount":   o.BaseAmount.String(),
		"unique_amount": o.UniqueAmount.String(),
		"expires_at":    o.WindowExpiresAt.Format(time.RFC3339),
	}).Info("order created")
	return &o, nil
}

func (e *Engine) uniqueAmount(ctx context.Context, base amount.Money) (amount.Money, error) {
	if !e.payment.CollisionCheck {
		return e.amounts.Unique(base)
	}
	open, err := e.ledger.ListOrders(ctx, orders.StatusPending)
	if err != nil {
		return amount.Zero, fmt.Errorf("list open orders: %w", err)
	}
	taken := make(map[int64]bool, len(open))
	for _, o := range open {
		taken[o.UniqueAmount.Paise()] = true
	}
	u, err := e.amounts.UniqueAvoiding(base, func(m amount.Money) bool { return taken[m.Paise()] }, collisionRerolls)
	if err == nil && taken[u.Paise()] {
		log.WithFields(log.Fields{
			"base_amount":   base.String(),
			"unique_amount": u.String(),
			"open_orders":   len(open),
		}).Warn("unique amount collides with an open order")
	}
	return u, err
}

// GetOrder returns the order after applying lazy expiry.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.load(ctx, "get order", orderID)
}

// ListOrders returns orders in the named status.
func (e *Engine) ListOrders(ctx context.Context, status string) ([]orders.Order, error) {
	const op = "list orders"
	st, ok := orders.ParseStatus(status)
	if !ok {
		return nil, newError(KindValidation, op, "", fmt.Sprintf("unknown status %q", status), nil)
	}
	out, err := e.ledger.ListOrders(ctx, st)
	if err != nil {
		return nil, newError(KindInternal, op, "", "", err)
	}
	return out, nil
}

// PendingReviews lists orders held for manual review.
func (e *Engine) PendingReviews(ctx context.Context) ([]orders.Order, error) {
	return e.ListOrders(ctx, string(orders.StatusPendingReview))
}

// load fetches an order and persists expiry when its window plus grace has passed.
func (e *Engine) load(ctx context.Context, op, orderID string) (*orders.Order, error) {
	o, err := e.ledger.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, newError(KindNotFound, op, orderID, "order not found", err)
	}
	if err != nil {
		return nil, newError(KindInternal, op, orderID, "", err)
	}
	if o.Status != orders.StatusPending || !e.nowFunc().After(o.WindowExpiresAt.Add(e.payment.ExpiryGrace)) {
		return o, nil
	}

	t := orders.Transition{
		OrderID: o.OrderID,
		From:    orders.StatusPending,
		To:      orders.StatusExpired,
		At:      e.nowFunc(),
		Reason:  "payment_window_elapsed",
	}
	switch err := e.ledger.Transition(ctx, t); {
	case err == nil:
		e.observe("expiry", t)
		updated := t.Apply(*o)
		return &updated, nil
	case errors.Is(err, orders.ErrStatusMismatch):
		return e.reload(ctx, op, orderID)
	default:
		return nil, newError(KindInternal, op, orderID, "", err)
	}
}

func (e *Engine) reload(ctx context.Context, op, orderID string) (*orders.Order, error) {
	o, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, newError(KindInternal, op, orderID, "", err)
	}
	return o, nil
}

func (e *Engine) observe(path string, t orders.Transition) {
	metrics.TransitionsTotal.WithLabelValues(path, string(t.From), string(t.To)).Inc()
	fields := log.Fields{
		"order_id": t.OrderID,
		"path":     path,
		"from":     t.From,
		"to":       t.To,
	}
	if t.Reason != "" {
		fields["reason"] = t.Reason
	}
	if t.Score != nil {
		fields["confidence_score"] = *t.Score
	}
	log.WithFields(fields).Info("order transitioned")
}

// conflictFor describes why an order in status cannot take the requested action.
func conflictFor(op string, o *orders.Order) *Error {
	if IsPaid(o.Status) {
		return newError(KindAlreadyVerified, op, o.OrderID, "This order has already been verified with a payment", nil)
	}
	return newError(KindConflict, op, o.OrderID, fmt.Sprintf("order is %s", o.Status), nil)
}
