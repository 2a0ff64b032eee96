package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TableName is used by ledgers composing transactions across tables.
func (s *Store) TableName() string { return s.tableName }

// Create writes a new order, failing with ErrAlreadyExists if order_id is taken.
func (s *Store) Create(ctx context.Context, o Order) error {
	now := s.nowFunc()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition conditionally moves the order from t.From to t.To.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) Transition(ctx context.Context, t Transition) error {
	u, err := s.transitionUpdate(t)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// TransitionItem builds the same conditional update for a TransactWriteItems call.
func (s *Store) TransitionItem(t Transition) (types.TransactWriteItem, error) {
	u, err := s.transitionUpdate(t)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Update: u}, nil
}

func (s *Store) transitionUpdate(t Transition) (*types.Update, error) {
	if t.OrderID == "" || t.From == "" || t.To == "" {
		return nil, errors.New("transition: order id, from and to are required")
	}
	at := t.At
	if at.IsZero() {
		at = s.nowFunc()
	}

	sets := []string{"#s = :new", "updated_at = :ua"}
	values := map[string]any{
		":new":      t.To,
		":expected": t.From,
		":ua":       at,
	}
	add := func(attr, placeholder string, v any) {
		sets = append(sets, attr+" = "+placeholder)
		values[placeholder] = v
	}
	if t.VerifiedAt != nil {
		add("verified_at", ":va", *t.VerifiedAt)
	}
	if t.Score != nil {
		add("confidence_score", ":sc", *t.Score)
	}
	if t.UTR != "" {
		add("utr", ":utr", t.UTR)
	}
	if t.Provider != "" {
		add("provider", ":pv", t.Provider)
	}
	if t.MerchantTxnID != "" {
		add("merchant_txn_id", ":mt", t.MerchantTxnID)
	}
	if t.GatewayTxnID != "" {
		add("gateway_txn_id", ":gt", t.GatewayTxnID)
	}
	if t.GatewayResponse != nil {
		add("gateway_response", ":gr", t.GatewayResponse)
	}
	if t.Reason != "" {
		add("failure_reason", ":fr", t.Reason)
	}

	av := make(map[string]types.AttributeValue, len(values))
	for k, v := range values {
		m, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", k, err)
		}
		av[k] = m
	}

	return &types.Update{
		TableName:                 &s.tableName,
		Key:                       orderKey(t.OrderID),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: av,
	}, nil
}

// IncrementPolls increases the polls counter by 1 (one per gateway status query)
func (s *Store) IncrementPolls(ctx context.Context, orderID string) error {
	now := s.nowFunc()
	ua, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal updated_at: %w", err)
	}
	input := &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET polls = if_not_exists(polls, :zero) + :inc, updated_at = :ua"),
		ConditionExpression:       awsString("attribute_exists(order_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":zero": &types.AttributeValueMemberN{Value: "0"}, ":inc": &types.AttributeValueMemberN{Value: "1"}, ":ua": ua},
		ReturnValues:              types.ReturnValueUpdatedNew,
	}
	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrNotFound
		}
		return fmt.Errorf("increment polls: %w", err)
	}
	return nil
}

// ListByStatus scans the table for orders in status. Administrative volume only.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	input := &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("#s = :st"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(status)},
		},
	}

	var out []Order
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
