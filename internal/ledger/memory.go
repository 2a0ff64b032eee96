package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
)

// Memory is an in-process ledger with the same conditional semantics as Dynamo.
// One mutex serializes every operation, which gives the atomicity the engine relies on.
type Memory struct {
	mu         sync.Mutex
	orders     map[string]orders.Order
	attempts   map[string]idempotency.Attempt
	duplicates []idempotency.Attempt
	txns       map[string]idempotency.GatewayTxn
	callbacks  map[string]idempotency.CallbackReceipt
	nowFunc    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders:    map[string]orders.Order{},
		attempts:  map[string]idempotency.Attempt{},
		txns:      map[string]idempotency.GatewayTxn{},
		callbacks: map[string]idempotency.CallbackReceipt{},
		nowFunc:   time.Now,
	}
}

func (m *Memory) CreateOrder(ctx context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.OrderID]; ok {
		return orders.ErrAlreadyExists
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.nowFunc()
	}
	o.UpdatedAt = o.CreatedAt
	m.orders[o.OrderID] = cloneOrder(o)
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

// ListOrders returns matches ordered by creation time.
func (m *Memory) ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Transition(ctx context.Context, t orders.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkTransition(t); err != nil {
		return err
	}
	m.applyTransition(t)
	return nil
}

func (m *Memory) RecordAttempt(ctx context.Context, a idempotency.Attempt, t orders.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.UTR]; ok {
		return idempotency.ErrConditionFailed
	}
	if err := m.checkTransition(t); err != nil {
		return err
	}
	a.IdempotencyKey = idempotency.ReferenceKey(a.UTR)
	a.Kind = idempotency.KindReference
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.nowFunc()
	}
	a.UpdatedAt = a.CreatedAt
	m.attempts[a.UTR] = a
	m.applyTransition(t)
	return nil
}

func (m *Memory) GetAttempt(ctx context.Context, utr string) (*idempotency.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[utr]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) RecordDuplicate(ctx context.Context, a idempotency.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.IdempotencyKey = idempotency.DuplicateKey(a.UTR, uuid.NewString())
	a.Kind = idempotency.KindDuplicate
	a.Status = idempotency.AttemptDuplicate
	a.ConfidenceScore = 0
	a.Verified = false
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.nowFunc()
	}
	a.UpdatedAt = a.CreatedAt
	m.duplicates = append(m.duplicates, a)
	return nil
}

// Duplicates returns the audit entries recorded for utr.
func (m *Memory) Duplicates(utr string) []idempotency.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []idempotency.Attempt
	for _, d := range m.duplicates {
		if d.UTR == utr {
			out = append(out, d)
		}
	}
	return out
}

func (m *Memory) ResolveAttempt(ctx context.Context, utr string, status idempotency.AttemptStatus, verified bool, t orders.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkTransition(t); err != nil {
		return err
	}
	a, ok := m.attempts[utr]
	if !ok || a.Status != idempotency.AttemptPendingReview {
		return idempotency.ErrConditionFailed
	}
	a.Status = status
	a.Verified = verified
	a.UpdatedAt = t.At
	m.attempts[utr] = a
	m.applyTransition(t)
	return nil
}

func (m *Memory) BeginGatewayTxn(ctx context.Context, txn idempotency.GatewayTxn, t orders.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[txn.MerchantTxnID]; ok {
		return idempotency.ErrConditionFailed
	}
	if err := m.checkTransition(t); err != nil {
		return err
	}
	txn.IdempotencyKey = idempotency.TxnKey(txn.MerchantTxnID)
	txn.Kind = idempotency.KindGatewayTxn
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = m.nowFunc()
	}
	m.txns[txn.MerchantTxnID] = txn
	m.applyTransition(t)
	return nil
}

func (m *Memory) GetGatewayTxn(ctx context.Context, merchantTxnID string) (*idempotency.GatewayTxn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[merchantTxnID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) RecordCallback(ctx context.Context, r idempotency.CallbackReceipt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := idempotency.CallbackKey(r.Provider, r.MerchantTxnID, r.State)
	if _, ok := m.callbacks[key]; ok {
		return false, nil
	}
	r.IdempotencyKey = key
	r.Kind = idempotency.KindCallback
	r.CreatedAt = m.nowFunc()
	m.callbacks[key] = r
	return true, nil
}

func (m *Memory) RecordPoll(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return orders.ErrNotFound
	}
	o.Polls++
	o.UpdatedAt = m.nowFunc()
	m.orders[orderID] = o
	return nil
}

func (m *Memory) checkTransition(t orders.Transition) error {
	o, ok := m.orders[t.OrderID]
	if !ok || o.Status != t.From {
		return orders.ErrStatusMismatch
	}
	return nil
}

func (m *Memory) applyTransition(t orders.Transition) {
	if t.At.IsZero() {
		t.At = m.nowFunc()
	}
	m.orders[t.OrderID] = cloneOrder(t.Apply(m.orders[t.OrderID]))
}

func cloneOrder(o orders.Order) orders.Order {
	if o.VerifiedAt != nil {
		v := *o.VerifiedAt
		o.VerifiedAt = &v
	}
	if o.ConfidenceScore != nil {
		s := *o.ConfidenceScore
		o.ConfidenceScore = &s
	}
	if o.GatewayResponse != nil {
		r := *o.GatewayResponse
		o.GatewayResponse = &r
	}
	return o
}
