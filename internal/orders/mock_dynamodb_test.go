package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a single-table in-memory mock keyed by order_id.
// It understands the expressions Store emits and nothing more.
type mockDynamo struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	updateCalls int
	scanCalls   int
	pageSize    int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) (string, error) {
	v, ok := m["order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing order_id")
	}
	return v.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, exists := m.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	pk, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.items[pk]

	if params.ConditionExpression != nil {
		switch *params.ConditionExpression {
		case "#s = :expected":
			curr, ok := item["status"].(*types.AttributeValueMemberS)
			expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
			if !exists || !ok || curr.Value != expected {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case "attribute_exists(order_id)":
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	if !exists {
		return nil, errors.New("item not found")
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	if err := applySet(updated, *params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	m.items[pk] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not used by orders tests")
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanCalls++
	want := params.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		last, _ := keyOf(params.ExclusiveStartKey)
		for i, k := range keys {
			if k == last {
				start = i + 1
			}
		}
	}
	out := &dyn.ScanOutput{}
	for i := start; i < len(keys); i++ {
		if m.pageSize > 0 && i-start == m.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				"order_id": &types.AttributeValueMemberS{Value: keys[i-1]},
			}
			break
		}
		item := m.items[keys[i]]
		if s, ok := item["status"].(*types.AttributeValueMemberS); ok && s.Value == want {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

// applySet evaluates "SET a = :x, b = if_not_exists(b, :zero) + :inc" against item.
func applySet(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	if !strings.HasPrefix(expr, "SET ") {
		return errors.New("unsupported update expression: " + expr)
	}
	for _, clause := range splitTopLevel(strings.TrimPrefix(expr, "SET ")) {
		lhs, rhs, ok := strings.Cut(clause, " = ")
		if !ok {
			return errors.New("bad clause: " + clause)
		}
		if n, ok := names[lhs]; ok {
			lhs = n
		}
		if strings.HasPrefix(rhs, "if_not_exists(") {
			var base int64
			if cur, ok := item[lhs].(*types.AttributeValueMemberN); ok {
				base, _ = strconv.ParseInt(cur.Value, 10, 64)
			}
			inc := values[":inc"].(*types.AttributeValueMemberN).Value
			n, _ := strconv.ParseInt(inc, 10, 64)
			item[lhs] = &types.AttributeValueMemberN{Value: strconv.FormatInt(base+n, 10)}
			continue
		}
		v, ok := values[rhs]
		if !ok {
			return errors.New("missing value " + rhs)
		}
		item[lhs] = v
	}
	return nil
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
