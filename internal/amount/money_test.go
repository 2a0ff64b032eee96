package amount

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_Paise(t *testing.T) {
	assert.Equal(t, int64(49917), MustParse("499.17").Paise())
	assert.Equal(t, int64(100), MustParse("1").Paise())
	assert.Equal(t, "999.36", FromPaise(99936).String())
}

func TestMoney_JSONIsBareNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{MustParse("499.1")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":499.10}`, string(b))

	var in struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.34"}`), &in))
	assert.Equal(t, "12.34", in.Amount.String())
	require.NoError(t, json.Unmarshal([]byte(`{"amount":12.3}`), &in))
	assert.Equal(t, "12.30", in.Amount.String())
}

func TestMoney_DynamoAttribute(t *testing.T) {
	type row struct {
		Amount Money `dynamodbav:"amount"`
	}
	item, err := attributevalue.MarshalMap(row{Amount: MustParse("499.17")})
	require.NoError(t, err)
	n, ok := item["amount"].(*types.AttributeValueMemberN)
	require.True(t, ok, "expected number attribute, got %T", item["amount"])
	assert.Equal(t, "499.17", n.Value)

	var out row
	require.NoError(t, attributevalue.UnmarshalMap(item, &out))
	assert.True(t, out.Amount.Equal(MustParse("499.17").Decimal))
}
