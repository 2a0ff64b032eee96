package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
)

const condNotExists = "attribute_not_exists(idempotency_key)"

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // TTL for callback receipts
	nowFunc   func() time.Time
	newID     func() string
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: how long callback receipts are kept (e.g., 720*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// ClaimItem is the conditional put that claims a.UTR for good.
// It fails the surrounding transaction if the reference was ever recorded before.
func (s *Store) ClaimItem(a Attempt) (types.TransactWriteItem, error) {
	a.IdempotencyKey = ReferenceKey(a.UTR)
	a.Kind = KindReference
	s.stamp(&a.CreatedAt, &a.UpdatedAt)

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal attempt: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	}}, nil
}

// GetAttempt returns the canonical attempt for utr, or (nil, nil).
func (s *Store) GetAttempt(ctx context.Context, utr string) (*Attempt, error) {
	var a Attempt
	found, err := s.get(ctx, ReferenceKey(utr), &a)
	if err != nil || !found {
		return nil, err
	}
	return &a, nil
}

// RecordDuplicate stores an audit entry for a rejected reuse of a.UTR. Score is forced to 0.
func (s *Store) RecordDuplicate(ctx context.Context, a Attempt) error {
	a.IdempotencyKey = DuplicateKey(a.UTR, s.newID())
	a.Kind = KindDuplicate
	a.Status = AttemptDuplicate
	a.ConfidenceScore = 0
	a.Verified = false
	s.stamp(&a.CreatedAt, &a.UpdatedAt)

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal duplicate attempt: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	})
	if err != nil {
		return fmt.Errorf("put duplicate attempt: %w", err)
	}
	return nil
}

// ResolveAttemptItem moves a held attempt out of pending_review.
func (s *Store) ResolveAttemptItem(utr string, status AttemptStatus, verified bool, at time.Time) (types.TransactWriteItem, error) {
	ua, err := attributevalue.Marshal(at)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal updated_at: %w", err)
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: ReferenceKey(utr)},
		},
		UpdateExpression:    awsString("SET #s = :new, verified = :v, updated_at = :ua"),
		ConditionExpression: awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(status)},
			":expected": &types.AttributeValueMemberS{Value: string(AttemptPendingReview)},
			":v":        &types.AttributeValueMemberBOOL{Value: verified},
			":ua":       ua,
		},
	}}, nil
}

// GatewayTxnItem is the conditional put recording a new merchant transaction id.
func (s *Store) GatewayTxnItem(t GatewayTxn) (types.TransactWriteItem, error) {
	t.IdempotencyKey = TxnKey(t.MerchantTxnID)
	t.Kind = KindGatewayTxn
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.nowFunc()
	}
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal gateway txn: %w", err)
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	}}, nil
}

// GetGatewayTxn looks up a merchant transaction id, returning (nil, nil) if unknown.
func (s *Store) GetGatewayTxn(ctx context.Context, merchantTxnID string) (*GatewayTxn, error) {
	var t GatewayTxn
	found, err := s.get(ctx, TxnKey(merchantTxnID), &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// RecordCallback stores a callback receipt if it does not exist.
// Returns (created=true, nil) for a first delivery.
// Returns (created=false, nil) if the same callback was already recorded (a replay).
// Returns (created=false, err) on other errors.
func (s *Store) RecordCallback(ctx context.Context, r CallbackReceipt) (bool, error) {
	now := s.nowFunc()
	r.IdempotencyKey = CallbackKey(r.Provider, r.MerchantTxnID, r.State)
	r.Kind = KindCallback
	r.CreatedAt = now
	r.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	})
	if err != nil {
		// detect conditional check failure
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get item: %w", err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal item: %w", err)
	}
	return true, nil
}

func (s *Store) stamp(created, updated *time.Time) {
	if created.IsZero() {
		*created = s.nowFunc()
	}
	*updated = *created
}

// Helper
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
