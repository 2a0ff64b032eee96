package reconcile

import "github.com/imrishuroy/go-payment-reconciler/internal/orders"

// transitions lists every allowed move. Terminal states have no entry.
var transitions = map[orders.Status][]orders.Status{
	orders.StatusPending: {
		orders.StatusProcessing,
		orders.StatusVerified,
		orders.StatusPendingReview,
		orders.StatusFailed,
		orders.StatusExpired,
	},
	orders.StatusProcessing:    {orders.StatusSuccess, orders.StatusFailed},
	orders.StatusPendingReview: {orders.StatusVerified, orders.StatusFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to orders.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s orders.Status) bool {
	switch s {
	case orders.StatusSuccess, orders.StatusVerified, orders.StatusFailed, orders.StatusExpired:
		return true
	}
	return false
}

// IsPaid reports whether s is a terminal success.
func IsPaid(s orders.Status) bool {
	return s == orders.StatusSuccess || s == orders.StatusVerified
}
