// Package ledger composes the orders and idempotency tables into the atomic
// operations the reconciliation engine needs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
	"github.com/imrishuroy/go-payment-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
)

// Dynamo is the DynamoDB-backed ledger.
type Dynamo struct {
	client aws.DynamoDBAPI
	orders *orders.Store
	idem   *idempotency.Store
}

func NewDynamo(client aws.DynamoDBAPI, ordersTable, idempotencyTable string, callbackTTL time.Duration) *Dynamo {
	return &Dynamo{
		client: client,
		orders: orders.NewStore(client, ordersTable),
		idem:   idempotency.NewStore(client, idempotencyTable, callbackTTL),
	}
}

func (d *Dynamo) CreateOrder(ctx context.Context, o orders.Order) error {
	return d.orders.Create(ctx, o)
}

// GetOrder returns orders.ErrNotFound for an unknown id.
func (d *Dynamo) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (d *Dynamo) ListOrders(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	return d.orders.ListByStatus(ctx, status)
}

func (d *Dynamo) Transition(ctx context.Context, t orders.Transition) error {
	return d.orders.Transition(ctx, t)
}

// RecordAttempt claims a.UTR and applies t in one transaction.
// Returns idempotency.ErrConditionFailed if the reference was already claimed,
// orders.ErrStatusMismatch if the order moved underneath.
func (d *Dynamo) RecordAttempt(ctx context.Context, a idempotency.Attempt, t orders.Transition) error {
	claim, err := d.idem.ClaimItem(a)
	if err != nil {
		return err
	}
	update, err := d.orders.TransitionItem(t)
	if err != nil {
		return err
	}
	return d.transact(ctx, []types.TransactWriteItem{claim, update},
		idempotency.ErrConditionFailed, orders.ErrStatusMismatch)
}

func (d *Dynamo) GetAttempt(ctx context.Context, utr string) (*idempotency.Attempt, error) {
	return d.idem.GetAttempt(ctx, utr)
}

func (d *Dynamo) RecordDuplicate(ctx context.Context, a idempotency.Attempt) error {
	return d.idem.RecordDuplicate(ctx, a)
}

// ResolveAttempt applies an administrative decision to a held order and its attempt together.
func (d *Dynamo) ResolveAttempt(ctx context.Context, utr string, status idempotency.AttemptStatus, verified bool, t orders.Transition) error {
	update, err := d.orders.TransitionItem(t)
	if err != nil {
		return err
	}
	resolve, err := d.idem.ResolveAttemptItem(utr, status, verified, t.At)
	if err != nil {
		return err
	}
	return d.transact(ctx, []types.TransactWriteItem{update, resolve},
		orders.ErrStatusMismatch, idempotency.ErrConditionFailed)
}

// BeginGatewayTxn records the merchant transaction and moves the order to processing together.
func (d *Dynamo) BeginGatewayTxn(ctx context.Context, txn idempotency.GatewayTxn, t orders.Transition) error {
	put, err := d.idem.GatewayTxnItem(txn)
	if err != nil {
		return err
	}
	update, err := d.orders.TransitionItem(t)
	if err != nil {
		return err
	}
	return d.transact(ctx, []types.TransactWriteItem{put, update},
		idempotency.ErrConditionFailed, orders.ErrStatusMismatch)
}

func (d *Dynamo) GetGatewayTxn(ctx context.Context, merchantTxnID string) (*idempotency.GatewayTxn, error) {
	return d.idem.GetGatewayTxn(ctx, merchantTxnID)
}

func (d *Dynamo) RecordCallback(ctx context.Context, r idempotency.CallbackReceipt) (bool, error) {
	return d.idem.RecordCallback(ctx, r)
}

func (d *Dynamo) RecordPoll(ctx context.Context, orderID string) error {
	return d.orders.IncrementPolls(ctx, orderID)
}

// transact runs items and maps a conditional cancellation of item i to reasons[i].
func (d *Dynamo) transact(ctx context.Context, items []types.TransactWriteItem, reasons ...error) error {
	_, err := d.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write: %w", err)
	}
	for i, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" && i < len(reasons) {
			return reasons[i]
		}
	}
	return fmt.Errorf("transaction canceled: %w", err)
}
