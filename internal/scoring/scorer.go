// Package scoring computes a 0-100 trust score for a manually reported payment.
package scoring

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
)

// Signal weights.
const (
	AmountPoints = 50

	WindowOnTime       = 30
	WindowSlightlyLate = 20
	WindowLate         = 10

	UserAgentExact  = 10
	UserAgentPrefix = 5
	NetworkExact    = 10
	NetworkSubnet   = 5

	MaxScore = 100
)

const (
	slightlyLate = 5 * time.Minute
	late         = 15 * time.Minute
	uaPrefixLen  = 50
)

var amountTolerance = decimal.New(1, -2)

// Expectation is what the order says the payment should look like.
type Expectation struct {
	Amount        amount.Money
	WindowExpires time.Time
	UserAgent     string
	IPAddress     string
}

// Report is the claimed payment plus the reporting client's fingerprint.
type Report struct {
	PaidAmount amount.Money
	UserAgent  string
	IPAddress  string
	At         time.Time
}

// Breakdown keeps per-signal points for logging and review.
type Breakdown struct {
	Amount    int `json:"amount"`
	Window    int `json:"window"`
	UserAgent int `json:"user_agent"`
	Network   int `json:"network"`
	Total     int `json:"total"`
}

// Score computes the additive confidence score. An amount mismatch short-circuits to zero.
func Score(exp Expectation, rep Report) Breakdown {
	var b Breakdown
	if rep.PaidAmount.Sub(exp.Amount.Decimal).Abs().GreaterThanOrEqual(amountTolerance) {
		return b
	}
	b.Amount = AmountPoints
	b.Window = windowPoints(exp.WindowExpires, rep.At)
	b.UserAgent = userAgentPoints(exp.UserAgent, rep.UserAgent)
	b.Network = networkPoints(exp.IPAddress, rep.IPAddress)

	b.Total = b.Amount + b.Window + b.UserAgent + b.Network
	if b.Total > MaxScore {
		b.Total = MaxScore
	}
	return b
}

func windowPoints(expires, at time.Time) int {
	if !at.After(expires) {
		return WindowOnTime
	}
	switch lateness := at.Sub(expires); {
	case lateness <= slightlyLate:
		return WindowSlightlyLate
	case lateness <= late:
		return WindowLate
	default:
		return 0
	}
}

func userAgentPoints(expected, observed string) int {
	if expected == "" || observed == "" {
		return 0
	}
	if expected == observed {
		return UserAgentExact
	}
	if prefix(expected, uaPrefixLen) == prefix(observed, uaPrefixLen) {
		return UserAgentPrefix
	}
	return 0
}

func networkPoints(expected, observed string) int {
	if expected == "" || observed == "" {
		return 0
	}
	if expected == observed {
		return NetworkExact
	}
	e, o := strings.Split(expected, "."), strings.Split(observed, ".")
	if len(e) == 4 && len(o) == 4 && e[0] == o[0] && e[1] == o[1] {
		return NetworkSubnet
	}
	return 0
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
