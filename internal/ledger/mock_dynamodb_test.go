package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo stores items per table: table -> pk -> item. The pk attribute is order_id
// or idempotency_key. Conditions and SET expressions are limited to what the stores emit.
type mockDynamo struct {
	mu        sync.Mutex
	tables    map[string]map[string]map[string]types.AttributeValue
	failWrite error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	for _, attr := range []string{"order_id", "idempotency_key"} {
		if v, ok := item[attr].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("no primary key")
}

func (m *mockDynamo) checkPut(table string, item map[string]types.AttributeValue, cond *string) (bool, error) {
	pk, err := pkOf(item)
	if err != nil {
		return false, err
	}
	if cond == nil {
		return true, nil
	}
	switch *cond {
	case "attribute_not_exists(idempotency_key)", "attribute_not_exists(order_id)":
		_, exists := m.table(table)[pk]
		return !exists, nil
	}
	return false, errors.New("unsupported put condition " + *cond)
}

func (m *mockDynamo) checkUpdate(table string, key map[string]types.AttributeValue, cond *string, values map[string]types.AttributeValue) (bool, error) {
	pk, err := pkOf(key)
	if err != nil {
		return false, err
	}
	item, exists := m.table(table)[pk]
	if cond == nil {
		return exists, nil
	}
	switch *cond {
	case "#s = :expected":
		curr, ok := item["status"].(*types.AttributeValueMemberS)
		expected := values[":expected"].(*types.AttributeValueMemberS).Value
		return exists && ok && curr.Value == expected, nil
	case "attribute_exists(order_id)":
		return exists, nil
	}
	return false, errors.New("unsupported update condition " + *cond)
}

func (m *mockDynamo) applyUpdate(table string, key map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	pk, _ := pkOf(key)
	item := m.table(table)[pk]
	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	if !strings.HasPrefix(expr, "SET ") {
		return errors.New("unsupported update expression " + expr)
	}
	for _, clause := range splitTopLevel(strings.TrimPrefix(expr, "SET ")) {
		lhs, rhs, _ := strings.Cut(clause, " = ")
		if n, ok := names[lhs]; ok {
			lhs = n
		}
		if strings.HasPrefix(rhs, "if_not_exists(") {
			var base int64
			if cur, ok := updated[lhs].(*types.AttributeValueMemberN); ok {
				base, _ = strconv.ParseInt(cur.Value, 10, 64)
			}
			inc, _ := strconv.ParseInt(values[":inc"].(*types.AttributeValueMemberN).Value, 10, 64)
			updated[lhs] = &types.AttributeValueMemberN{Value: strconv.FormatInt(base+inc, 10)}
			continue
		}
		updated[lhs] = values[rhs]
	}
	m.table(table)[pk] = updated
	return nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return nil, m.failWrite
	}
	ok, err := m.checkPut(*params.TableName, params.Item, params.ConditionExpression)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	pk, _ := pkOf(params.Item)
	m.table(*params.TableName)[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return nil, m.failWrite
	}
	ok, err := m.checkUpdate(*params.TableName, params.Key, params.ConditionExpression, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if err := m.applyUpdate(*params.TableName, params.Key, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return nil, m.failWrite
	}

	// First pass: evaluate every condition, as DynamoDB does before applying anything
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	cancelled := false
	for i, it := range params.TransactItems {
		var ok bool
		var err error
		switch {
		case it.Put != nil:
			ok, err = m.checkPut(*it.Put.TableName, it.Put.Item, it.Put.ConditionExpression)
		case it.Update != nil:
			ok, err = m.checkUpdate(*it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeValues)
		default:
			err = errors.New("unsupported transact item")
		}
		if err != nil {
			return nil, err
		}
		code := "None"
		if !ok {
			code = "ConditionalCheckFailed"
			cancelled = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	// Second pass: apply
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := pkOf(p.Item)
			m.table(*p.TableName)[pk] = p.Item
			continue
		}
		u := it.Update
		if err := m.applyUpdate(*u.TableName, u.Key, *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := params.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value
	out := &dyn.ScanOutput{}
	for _, item := range m.table(*params.TableName) {
		if s, ok := item["status"].(*types.AttributeValueMemberS); ok && s.Value == want {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}
