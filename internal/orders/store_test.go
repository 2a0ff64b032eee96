package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestStore(mock *mockDynamo) *Store {
	s := NewStore(mock, "orders")
	s.nowFunc = func() time.Time { return fixedNow }
	return s
}

func sampleOrder(id string) Order {
	return Order{
		OrderID:         id,
		ProductID:       "prod-1",
		ProductName:     "Wireless Earbuds",
		BaseAmount:      amount.MustParse("499.00"),
		UniqueAmount:    amount.MustParse("499.17"),
		Status:          StatusPending,
		WindowExpiresAt: fixedNow.Add(30 * time.Minute),
		UserAgent:       "Mozilla/5.0",
		IPAddress:       "203.0.113.7",
	}
}

func TestCreateAndGet(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()

	if err := store.Create(ctx, sampleOrder("ORD-00000001")); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	got, err := store.Get(ctx, "ORD-00000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("order not stored")
	}
	if !got.UniqueAmount.Equal(amount.MustParse("499.17").Decimal) {
		t.Fatalf("unique amount mismatch: %s", got.UniqueAmount)
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if !got.CreatedAt.Equal(fixedNow) || !got.WindowExpiresAt.Equal(fixedNow.Add(30*time.Minute)) {
		t.Fatalf("timestamps not round-tripped: %+v", got)
	}
	if got.VerifiedAt != nil || got.ConfidenceScore != nil || got.GatewayResponse != nil {
		t.Fatalf("optional fields should be empty: %+v", got)
	}

	n, ok := mock.items["ORD-00000001"]["unique_amount"].(*types.AttributeValueMemberN)
	if !ok || n.Value != "499.17" {
		t.Fatalf("unique_amount should be stored as number 499.17, got %#v", mock.items["ORD-00000001"]["unique_amount"])
	}
}

func TestCreate_DuplicateID_Fails(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()

	if err := store.Create(ctx, sampleOrder("ORD-00000002")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.Create(ctx, sampleOrder("ORD-00000002"))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGet_Missing(t *testing.T) {
	store := newTestStore(newMockDynamo())
	got, err := store.Get(context.Background(), "ORD-MISSING")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestTransition_Condition_SuccessAndFail(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	if err := store.Create(ctx, sampleOrder("ORD-00000010")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// success: pending -> processing
	err := store.Transition(ctx, Transition{
		OrderID:       "ORD-00000010",
		From:          StatusPending,
		To:            StatusProcessing,
		Provider:      gateway.PhonePe,
		MerchantTxnID: "MT1",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// failure: pending -> failed (but current is processing)
	err = store.Transition(ctx, Transition{OrderID: "ORD-00000010", From: StatusPending, To: StatusFailed})
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	got, _ := store.Get(ctx, "ORD-00000010")
	if got.Status != StatusProcessing || got.MerchantTxnID != "MT1" || got.Provider != gateway.PhonePe {
		t.Fatalf("unexpected order after transitions: %+v", got)
	}
}

func TestTransition_SetsVerificationFields(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	if err := store.Create(ctx, sampleOrder("ORD-00000011")); err != nil {
		t.Fatalf("create: %v", err)
	}

	verifiedAt := fixedNow.Add(5 * time.Minute)
	score := 100
	err := store.Transition(ctx, Transition{
		OrderID:    "ORD-00000011",
		From:       StatusPending,
		To:         StatusVerified,
		At:         verifiedAt,
		VerifiedAt: &verifiedAt,
		Score:      &score,
		UTR:        "123456789012",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	got, _ := store.Get(ctx, "ORD-00000011")
	if got.Status != StatusVerified {
		t.Fatalf("expected verified, got %s", got.Status)
	}
	if got.VerifiedAt == nil || !got.VerifiedAt.Equal(verifiedAt) {
		t.Fatalf("verified_at not set: %v", got.VerifiedAt)
	}
	if got.ConfidenceScore == nil || *got.ConfidenceScore != 100 {
		t.Fatalf("confidence_score not set: %v", got.ConfidenceScore)
	}
	if got.UTR != "123456789012" {
		t.Fatalf("utr not set: %q", got.UTR)
	}
	if !got.UpdatedAt.Equal(verifiedAt) {
		t.Fatalf("updated_at should follow the transition time, got %v", got.UpdatedAt)
	}
}

func TestTransition_StoresGatewayResponse(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	o := sampleOrder("ORD-00000012")
	o.Status = StatusProcessing
	if err := store.Create(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp := gateway.Response{
		Provider: gateway.Paytm,
		Paytm:    &gateway.PaytmResponse{OrderID: "MT2", Status: "TXN_FAILURE", RespCode: "227"},
	}
	err := store.Transition(ctx, Transition{
		OrderID:         "ORD-00000012",
		From:            StatusProcessing,
		To:              StatusFailed,
		GatewayResponse: &resp,
		Reason:          "gateway_failed",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	got, _ := store.Get(ctx, "ORD-00000012")
	if got.GatewayResponse == nil || got.GatewayResponse.Paytm == nil || got.GatewayResponse.Paytm.RespCode != "227" {
		t.Fatalf("gateway response not stored: %+v", got.GatewayResponse)
	}
	if got.FailureReason != "gateway_failed" {
		t.Fatalf("failure reason not stored: %q", got.FailureReason)
	}
}

func TestTransition_RequiresStatuses(t *testing.T) {
	store := newTestStore(newMockDynamo())
	if err := store.Transition(context.Background(), Transition{OrderID: "ORD-1", To: StatusFailed}); err == nil {
		t.Fatalf("expected validation error for missing from status")
	}
}

func TestTransitionItem(t *testing.T) {
	store := newTestStore(newMockDynamo())
	item, err := store.TransitionItem(Transition{OrderID: "ORD-1", From: StatusPending, To: StatusProcessing, MerchantTxnID: "MT9"})
	if err != nil {
		t.Fatalf("transition item: %v", err)
	}
	if item.Update == nil || *item.Update.TableName != "orders" {
		t.Fatalf("expected update on orders table, got %+v", item)
	}
	if *item.Update.ConditionExpression != "#s = :expected" {
		t.Fatalf("unexpected condition %q", *item.Update.ConditionExpression)
	}
	if v := item.Update.ExpressionAttributeValues[":mt"].(*types.AttributeValueMemberS).Value; v != "MT9" {
		t.Fatalf("merchant txn id not bound: %q", v)
	}
}

func TestIncrementPolls(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	if err := store.Create(ctx, sampleOrder("ORD-00000020")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.IncrementPolls(ctx, "ORD-00000020"); err != nil {
			t.Fatalf("increment polls: %v", err)
		}
	}
	got, _ := store.Get(ctx, "ORD-00000020")
	if got.Polls != 2 {
		t.Fatalf("expected 2 polls, got %d", got.Polls)
	}

	if err := store.IncrementPolls(ctx, "ORD-MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByStatus_Paginates(t *testing.T) {
	mock := newMockDynamo()
	mock.pageSize = 2
	store := newTestStore(mock)
	ctx := context.Background()

	for i, st := range []Status{StatusPendingReview, StatusPending, StatusPendingReview, StatusVerified, StatusPendingReview} {
		o := sampleOrder("ORD-0000003" + string(rune('0'+i)))
		o.Status = st
		if err := store.Create(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := store.ListByStatus(ctx, StatusPendingReview)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 pending_review orders, got %d", len(got))
	}
	if mock.scanCalls != 3 {
		t.Fatalf("expected 3 scan pages, got %d", mock.scanCalls)
	}
}

func TestParseStatus(t *testing.T) {
	if st, ok := ParseStatus("pending_review"); !ok || st != StatusPendingReview {
		t.Fatalf("expected pending_review, got %q %v", st, ok)
	}
	if _, ok := ParseStatus("COMPLETED"); ok {
		t.Fatalf("unknown status accepted")
	}
}
