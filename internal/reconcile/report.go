package reconcile

import (
	"context"
	"errors"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/metrics"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/scoring"
)

const (
	msgVerified       = "Payment verified successfully! Your order has been confirmed."
	msgUnderReview    = "Payment received! Your payment is being reviewed and will be confirmed shortly."
	msgFailed         = "Payment verification failed. Please check the amount and try again, or contact support."
	msgDuplicate      = "This UTR has already been used for another payment. Each UTR can only be used once."
	msgApproved       = "Payment approved successfully"
	msgRejected       = "Payment rejected"
	referenceLength   = 12
	reasonAdminReject = "rejected_by_admin"
)

// PaymentReport is a customer's claim to have paid an order by bank transfer.
type PaymentReport struct {
	OrderID    string
	UTR        string
	PaidAmount amount.Money
	UserAgent  string
	IPAddress  string
}

// ReportResult is the decision taken on a report.
type ReportResult struct {
	Order     *orders.Order
	UTR       string
	Score     int
	Breakdown scoring.Breakdown
	Status    orders.Status
	Verified  bool
	Message   string
}

// AdminResult is returned by ApprovePayment and RejectPayment.
type AdminResult struct {
	Order   *orders.Order
	Message string
}

// NormalizeReference strips whitespace and checks for exactly 12 ASCII digits.
func NormalizeReference(utr string) (string, bool) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, utr)
	if len(clean) != referenceLength {
		return clean, false
	}
	for i := 0; i < len(clean); i++ {
		if clean[i] < '0' || clean[i] > '9' {
			return clean, false
		}
	}
	return clean, true
}

// MaskReference keeps the last four characters for logging.
func MaskReference(utr string) string {
	if len(utr) <= 4 {
		return utr
	}
	return strings.Repeat("*", len(utr)-4) + utr[len(utr)-4:]
}

// ReportPayment scores a manual bank-transfer report and moves the order to verified,
// pending_review or failed. The reference is claimed in the same atomic write as the
// order update, so a reference can back at most one order.
func (e *Engine) ReportPayment(ctx context.Context, rep PaymentReport) (*ReportResult, error) {
	const op = "report payment"
	utr, ok := NormalizeReference(rep.UTR)
	if !ok {
		return nil, newError(KindValidation, op, rep.OrderID, "UTR must be exactly 12 digits", nil)
	}
	if !rep.PaidAmount.IsPositive() {
		return nil, newError(KindValidation, op, rep.OrderID, "paid_amount must be positive", nil)
	}

	o, err := e.load(ctx, op, rep.OrderID)
	if err != nil {
		return nil, err
	}
	if IsPaid(o.Status) {
		return nil, conflictFor(op, o)
	}

	// a reused reference is audited whatever state the order is in
	existing, err := e.ledger.GetAttempt(ctx, utr)
	if err != nil {
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}
	if existing != nil {
		return nil, e.duplicate(ctx, op, utr, rep)
	}
	if o.Status != orders.StatusPending {
		return nil, conflictFor(op, o)
	}

	now := e.nowFunc()
	out, err := e.manual.Resolve(ctx, *o, ManualEvidence{Report: scoring.Report{
		PaidAmount: rep.PaidAmount,
		UserAgent:  rep.UserAgent,
		IPAddress:  rep.IPAddress,
		At:         now,
	}})
	if err != nil {
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}

	res := &ReportResult{UTR: utr, Score: *out.Score, Breakdown: *out.Breakdown, Status: out.To}
	attempt := idempotency.Attempt{
		UTR:             utr,
		OrderID:         o.OrderID,
		PaidAmount:      rep.PaidAmount,
		ConfidenceScore: res.Score,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t := orders.Transition{
		OrderID: o.OrderID,
		From:    orders.StatusPending,
		To:      out.To,
		At:      now,
		Score:   out.Score,
		UTR:     utr,
		Reason:  out.Reason,
	}
	switch out.To {
	case orders.StatusVerified:
		attempt.Status = idempotency.AttemptVerified
		attempt.Verified = true
		t.VerifiedAt = &now
		res.Verified = true
		res.Message = msgVerified
	case orders.StatusPendingReview:
		attempt.Status = idempotency.AttemptPendingReview
		res.Message = msgUnderReview
	default:
		attempt.Status = idempotency.AttemptInvalid
		res.Message = msgFailed
	}

	switch err := e.ledger.RecordAttempt(ctx, attempt, t); {
	case err == nil:
	case errors.Is(err, idempotency.ErrConditionFailed):
		return nil, e.duplicate(ctx, op, utr, rep)
	case errors.Is(err, orders.ErrStatusMismatch):
		cur, rerr := e.reload(ctx, op, o.OrderID)
		if rerr != nil {
			return nil, rerr
		}
		return nil, conflictFor(op, cur)
	default:
		return nil, newError(KindInternal, op, o.OrderID, "", err)
	}

	metrics.ConfidenceScore.Observe(float64(res.Score))
	e.observe("manual", t)
	log.WithFields(log.Fields{
		"order_id":  o.OrderID,
		"reference": MaskReference(utr),
		"score":     res.Score,
		"to":        out.To,
	}).Info("payment report resolved")

	updated := t.Apply(*o)
	res.Order = &updated
	return res, nil
}

// duplicate records a rejected reuse of utr with score 0 and returns DuplicateReference.
func (e *Engine) duplicate(ctx context.Context, op, utr string, rep PaymentReport) error {
	metrics.DuplicateReferences.Inc()
	entry := log.WithFields(log.Fields{
		"order_id":  rep.OrderID,
		"reference": MaskReference(utr),
	})
	err := e.ledger.RecordDuplicate(ctx, idempotency.Attempt{
		UTR:        utr,
		OrderID:    rep.OrderID,
		PaidAmount: rep.PaidAmount,
	})
	if err != nil {
		entry.WithError(err).Error("failed to record duplicate reference")
		return newError(KindInternal, op, rep.OrderID, "", err)
	}
	entry.Warn("duplicate payment reference")
	return newError(KindDuplicateReference, op, rep.OrderID, msgDuplicate, idempotency.ErrConditionFailed)
}

// ApprovePayment confirms a report held for review.
func (e *Engine) ApprovePayment(ctx context.Context, orderID string) (*AdminResult, error) {
	const op = "approve payment"
	return e.review(ctx, op, orderID, orders.StatusVerified, idempotency.AttemptVerified, msgApproved)
}

// RejectPayment fails a report held for review. The reference stays claimed.
func (e *Engine) RejectPayment(ctx context.Context, orderID string) (*AdminResult, error) {
	const op = "reject payment"
	return e.review(ctx, op, orderID, orders.StatusFailed, idempotency.AttemptInvalid, msgRejected)
}

func (e *Engine) review(ctx context.Context, op, orderID string, to orders.Status, status idempotency.AttemptStatus, msg string) (*AdminResult, error) {
	o, err := e.load(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusPendingReview {
		return nil, conflictFor(op, o)
	}

	now := e.nowFunc()
	t := orders.Transition{OrderID: o.OrderID, From: orders.StatusPendingReview, To: to, At: now}
	verified := to == orders.StatusVerified
	if verified {
		t.VerifiedAt = &now
	} else {
		t.Reason = reasonAdminReject
	}

	switch err := e.ledger.ResolveAttempt(ctx, o.UTR, status, verified, t); {
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

	e.observe("admin", t)
	updated := t.Apply(*o)
	return &AdminResult{Order: &updated, Message: msg}, nil
}
