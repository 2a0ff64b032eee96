package reconcile

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/scoring"
)

// Evidence is what a strategy resolves an order against.
type Evidence interface {
	evidence()
}

// ManualEvidence is a customer-reported bank transfer.
type ManualEvidence struct {
	Report scoring.Report
}

// GatewayEvidence is a verified callback or status poll result.
type GatewayEvidence struct {
	gateway.Evidence
}

func (ManualEvidence) evidence()  {}
func (GatewayEvidence) evidence() {}

// Outcome is the status a strategy wants the order in. To equal to the current
// status means no change.
type Outcome struct {
	To        orders.Status
	Score     *int
	Breakdown *scoring.Breakdown
	Reason    string
}

// Strategy turns evidence about a payment into an outcome. Strategies never touch the ledger.
type Strategy interface {
	Resolve(ctx context.Context, order orders.Order, ev Evidence) (Outcome, error)
}

// ManualStrategy scores reported bank transfers.
type ManualStrategy struct {
	Thresholds scoring.Thresholds
}

func (s ManualStrategy) Resolve(_ context.Context, o orders.Order, ev Evidence) (Outcome, error) {
	me, ok := ev.(ManualEvidence)
	if !ok {
		return Outcome{}, fmt.Errorf("manual strategy: unexpected evidence %T", ev)
	}
	b := scoring.Score(scoring.Expectation{
		Amount:        o.UniqueAmount,
		WindowExpires: o.WindowExpiresAt,
		UserAgent:     o.UserAgent,
		IPAddress:     o.IPAddress,
	}, me.Report)

	out := Outcome{Score: &b.Total, Breakdown: &b}
	switch s.Thresholds.Decide(b.Total) {
	case scoring.Verify:
		out.To = orders.StatusVerified
	case scoring.Review:
		out.To = orders.StatusPendingReview
	default:
		out.To = orders.StatusFailed
		out.Reason = "low_confidence"
		if b.Amount == 0 {
			out.Reason = "amount_mismatch"
		}
	}
	return out, nil
}

// GatewayStrategy resolves gateway evidence and fronts one provider client.
type GatewayStrategy struct {
	gw gateway.Gateway
}

func NewGatewayStrategy(gw gateway.Gateway) *GatewayStrategy {
	return &GatewayStrategy{gw: gw}
}

func (s *GatewayStrategy) Provider() gateway.Provider { return s.gw.Provider() }

func (s *GatewayStrategy) Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.Initiation, error) {
	return s.gw.Initiate(ctx, req)
}

func (s *GatewayStrategy) VerifyCallback(cb gateway.Callback) (gateway.Evidence, error) {
	return s.gw.VerifyCallback(cb)
}

func (s *GatewayStrategy) Status(ctx context.Context, merchantTxnID string) (gateway.Evidence, error) {
	return s.gw.Status(ctx, merchantTxnID)
}

// Resolve maps a provider state onto the order. A reported success for a different
// amount than the order's unique amount fails the order.
func (s *GatewayStrategy) Resolve(_ context.Context, o orders.Order, ev Evidence) (Outcome, error) {
	ge, ok := ev.(GatewayEvidence)
	if !ok {
		return Outcome{}, fmt.Errorf("gateway strategy: unexpected evidence %T", ev)
	}
	if ge.Provider != s.gw.Provider() {
		return Outcome{}, fmt.Errorf("gateway strategy %s: evidence from %s", s.gw.Provider(), ge.Provider)
	}
	switch ge.State {
	case gateway.StateSuccess:
		if ge.AmountPaise != o.UniqueAmount.Paise() {
			return Outcome{To: orders.StatusFailed, Reason: "amount_mismatch"}, nil
		}
		return Outcome{To: orders.StatusSuccess}, nil
	case gateway.StateFailed:
		reason := "gateway_failed"
		if ge.Code != "" {
			reason += ":" + ge.Code
		}
		return Outcome{To: orders.StatusFailed, Reason: reason}, nil
	default:
		return Outcome{To: o.Status}, nil
	}
}

var (
	_ Strategy = ManualStrategy{}
	_ Strategy = (*GatewayStrategy)(nil)
)
