package reconcile

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/metrics"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
)

const reasonSignature = "signature_mismatch"

// InitiateInput starts a gateway payment for an order.
type InitiateInput struct {
	OrderID    string
	Provider   string // empty selects the configured default
	CustomerID string
	Mobile     string
}

// InitiateResult is the order in processing plus what the client needs to pay.
type InitiateResult struct {
	Order      *orders.Order
	Initiation gateway.Initiation
}

func (e *Engine) strategy(op, orderID, name string) (*GatewayStrategy, error) {
	p := e.defaultProvider
	if name != "" {
		parsed, err := gateway.ParseProvider(name)
		if err != nil {
			return nil, newError(KindValidation, op, orderID, err.Error(), err)
		}
		p = parsed
	}
	s, ok := e.gateways[p]
	if !ok {
		return nil, newError(KindValidation, op, orderID, fmt.Sprintf("payment provider %q is not enabled", p), nil)
	}
	return s, nil
}

// gatewayError classifies a failed provider call. The order is never touched here.
func gatewayError(op, orderID string, err error) error {
	switch {
	case errors.Is(err, gateway.ErrUpstream), errors.Is(err, context.DeadlineExceeded):
		return newError(KindUpstream, op, orderID, "payment gateway unavailable, retry later", err)
	case errors.Is(err, gateway.ErrRejected):
		return newError(KindRejected, op, orderID, "payment gateway rejected the request", err)
	case errors.Is(err, gateway.ErrSignature):
		return newError(KindSignature, op, orderID, "gateway response signature mismatch", err)
	default:
		return newError(KindInternal, op, orderID, "", err)
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.gatewayTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.gatewayTimeout)
}

// InitiatePayment registers a transaction with the provider and moves the order to processing.
// Any provider failure leaves the order pending.
func (e *Engine) InitiatePayment(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	const op = "initiate payment"
	s, err := e.strategy(op, in.OrderID, in.Provider)
	if err != nil {
		return nil, err
	}
	o, err := e.load(ctx, op, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusPending {
		return nil, conflictFor(op, o)
	}
	if e.nowFunc().After(o.WindowExpiresAt) {
		return nil, newError(KindConflict, op, o.OrderID, "payment window has closed", nil)
	}

	txnID := e.newTxnID()
	callCtx, cancel := e.withTimeout(ctx)
	init, err := s.Initiate(callCtx, gateway.InitiateRequest{
		OrderID:       o.OrderID,
		MerchantTxnID: txnID,
		AmountPaise:   o.UniqueAmount.Paise(),
		CustomerID:    in.CustomerID,
		Mobile:        in.Mobile,
	})
	cancel()
	if err != nil {
		log.WithFields(log.Fields{
			"order_id":        o.OrderID,
			"provider":        s.Provider(),
			"merchant_txn_id": txnID,
		}).WithError(err).Warn("gateway initiation failed")
		return nil, gatewayError(op, o.OrderID, err)
	}

	now := e.nowFunc()
	t := orders.Transition{
		OrderID:       o.OrderID,
		From:          orders.StatusPending,
		To:            orders.StatusProcessing,
		At:            now,
		Provider:      s.Provider(),
		MerchantTxnID: txnID,
	}
	err = e.ledger.BeginGatewayTxn(ctx, idempotency.GatewayTxn{
		MerchantTxnID: txnID,
		OrderID:       o.OrderID,
		Provider:      s.Provider(),
		TxnToken:      init.TxnToken,
		CreatedAt:     now,
	}, t)
	switch {
	case err == nil:
	case errors.Is(err, orders.ErrStatusMismatch):
		cur, rerr := e.reload(ctx, op, o.OrderID)
		if rerr != nil {
			return nil, rerr
		}
		return nil, conflictFor(op, cur)
	default:
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}
	e.observe("initiate", t)

	if e.scheduler != nil {
		if err := e.scheduler.SchedulePoll(ctx, o.OrderID, txnID, 1); err != nil {
			log.WithFields(log.Fields{
				"order_id":        o.OrderID,
				"merchant_txn_id": txnID,
			}).WithError(err).Error("failed to schedule status poll")
		}
	}

	updated := t.Apply(*o)
	return &InitiateResult{Order: &updated, Initiation: init}, nil
}

// HandleCallback verifies a provider callback and applies it. Replays of an applied
// callback return the current order unchanged.
func (e *Engine) HandleCallback(ctx context.Context, provider string, cb gateway.Callback) (*orders.Order, error) {
	const op = "handle callback"
	s, err := e.strategy(op, "", provider)
	if err != nil {
		return nil, err
	}
	p := s.Provider()

	ev, err := s.VerifyCallback(cb)
	if errors.Is(err, gateway.ErrSignature) {
		metrics.SignatureFailures.WithLabelValues(string(p)).Inc()
		log.WithFields(log.Fields{
			"provider":        p,
			"merchant_txn_id": ev.MerchantTxnID,
		}).WithError(err).Error("callback signature verification failed")
		e.failOnSignature(ctx, ev.MerchantTxnID)
		return nil, newError(KindSignature, op, "", "invalid callback signature", err)
	}
	if err != nil {
		return nil, newError(KindValidation, op, "", "malformed callback", err)
	}

	txn, err := e.ledger.GetGatewayTxn(ctx, ev.MerchantTxnID)
	if err != nil {
		return nil, newError(KindInternal, op, "", "", err)
	}
	if txn == nil {
		return nil, newError(KindNotFound, op, "", fmt.Sprintf("unknown transaction %s", ev.MerchantTxnID), nil)
	}
	if txn.Provider != p {
		return nil, newError(KindValidation, op, txn.OrderID, fmt.Sprintf("transaction was initiated with %s", txn.Provider), nil)
	}

	fresh, err := e.ledger.RecordCallback(ctx, idempotency.CallbackReceipt{
		Provider:      p,
		MerchantTxnID: ev.MerchantTxnID,
		State:         ev.State,
		OrderID:       txn.OrderID,
	})
	if err != nil {
		return nil, newError(KindInternal, op, txn.OrderID, "", err)
	}
	if !fresh {
		log.WithFields(log.Fields{
			"order_id":        txn.OrderID,
			"provider":        p,
			"merchant_txn_id": ev.MerchantTxnID,
			"state":           ev.State,
		}).Info("callback replay")
	}

	return e.apply(ctx, op, "callback", txn.OrderID, s, ev)
}

// failOnSignature fails the processing order an unverified callback names, if any.
func (e *Engine) failOnSignature(ctx context.Context, merchantTxnID string) {
	if merchantTxnID == "" {
		return
	}
	txn, err := e.ledger.GetGatewayTxn(ctx, merchantTxnID)
	if err != nil || txn == nil {
		if err != nil {
			log.WithField("merchant_txn_id", merchantTxnID).WithError(err).
				Error("failed to look up transaction after signature failure")
		}
		return
	}
	e.failProcessing(ctx, "callback", txn.OrderID)
}

// failProcessing moves a processing order to failed after a checksum mismatch.
// Orders in any other status are left alone.
func (e *Engine) failProcessing(ctx context.Context, path, orderID string) {
	o, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil || o.Status != orders.StatusProcessing {
		return
	}
	t := orders.Transition{
		OrderID: o.OrderID,
		From:    orders.StatusProcessing,
		To:      orders.StatusFailed,
		At:      e.nowFunc(),
		Reason:  reasonSignature,
	}
	if err := e.ledger.Transition(ctx, t); err != nil {
		if !errors.Is(err, orders.ErrStatusMismatch) {
			log.WithField("order_id", orderID).WithError(err).Error("failed to fail order after signature failure")
		}
		return
	}
	e.observe(path, t)
}

// PollStatus asks the provider for the state of a processing order. Orders in any
// other status are returned as they are without an upstream call.
func (e *Engine) PollStatus(ctx context.Context, orderID string) (*orders.Order, error) {
	const op = "poll status"
	o, err := e.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusProcessing {
		return o, nil
	}
	s, ok := e.gateways[o.Provider]
	if !ok {
		return nil, newError(KindInternal, op, o.OrderID, fmt.Sprintf("no client for provider %q", o.Provider), nil)
	}
	if err := e.ledger.RecordPoll(ctx, o.OrderID); err != nil {
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}

	callCtx, cancel := e.withTimeout(ctx)
	ev, err := s.Status(callCtx, o.MerchantTxnID)
	cancel()
	if err != nil {
		entry := log.WithFields(log.Fields{
			"order_id":        o.OrderID,
			"provider":        o.Provider,
			"merchant_txn_id": o.MerchantTxnID,
		}).WithError(err)
		if errors.Is(err, gateway.ErrSignature) {
			metrics.SignatureFailures.WithLabelValues(string(o.Provider)).Inc()
			entry.Error("status response signature verification failed")
			e.failProcessing(ctx, "poll", o.OrderID)
		} else {
			entry.Warn("gateway status poll failed")
		}
		return nil, gatewayError(op, o.OrderID, err)
	}
	if ev.MerchantTxnID == "" {
		ev.MerchantTxnID = o.MerchantTxnID
	}
	return e.apply(ctx, op, "poll", o.OrderID, s, ev)
}

// apply resolves gateway evidence against the order and persists the outcome.
func (e *Engine) apply(ctx context.Context, op, path, orderID string, s *GatewayStrategy, ev gateway.Evidence) (*orders.Order, error) {
	o, err := e.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	out, err := s.Resolve(ctx, *o, GatewayEvidence{Evidence: ev})
	if err != nil {
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}
	if ev.State == gateway.StatePending || out.To == o.Status {
		return o, nil
	}
	if o.Status != orders.StatusProcessing || !CanTransition(o.Status, out.To) {
		return nil, newError(KindConflict, op, o.OrderID,
			fmt.Sprintf("order is %s, gateway reports %s", o.Status, ev.State), nil)
	}

	now := e.nowFunc()
	t := orders.Transition{
		OrderID:      o.OrderID,
		From:         orders.StatusProcessing,
		To:           out.To,
		At:           now,
		GatewayTxnID: ev.GatewayTxnID,
		Reason:       out.Reason,
	}
	if ev.Response.Provider != "" {
		r := ev.Response
		t.GatewayResponse = &r
	}
	if out.To == orders.StatusSuccess {
		t.VerifiedAt = &now
	}

	switch err := e.ledger.Transition(ctx, t); {
	case err == nil:
	case errors.Is(err, orders.ErrStatusMismatch):
		cur, rerr := e.reload(ctx, op, o.OrderID)
		if rerr != nil {
			return nil, rerr
		}
		if cur.Status == out.To {
			return cur, nil
		}
		return nil, newError(KindConflict, op, o.OrderID,
			fmt.Sprintf("order is %s, gateway reports %s", cur.Status, ev.State), nil)
	default:
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}

	e.observe(path, t)
	updated := t.Apply(*o)
	return &updated, nil
}
