package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// maxDelay is the SQS per-message delay ceiling.
const maxDelay = 15 * time.Minute

// PollMessage asks the worker to re-query a gateway for an order still in processing.
type PollMessage struct {
	OrderID       string `json:"order_id"`
	MerchantTxnID string `json:"merchant_txn_id"`
	Attempt       int    `json:"attempt"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS       SQSAPI
	QueueURL  string
	PollDelay time.Duration
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string, pollDelay time.Duration) *Publisher {
	return &Publisher{
		SQS:       sqsClient,
		QueueURL:  queueURL,
		PollDelay: pollDelay,
	}
}

// Send sends a message to SQS. messageBody should be a JSON string.
// attributes map[string]string -> sent as MessageAttributes.
func (p *Publisher) Send(ctx context.Context, messageBody string, attributes map[string]string, delay time.Duration) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if delay > 0 {
		if delay > maxDelay {
			delay = maxDelay
		}
		input.DelaySeconds = int32(delay / time.Second)
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			if v == "" {
				continue
			}
			v := v
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SchedulePoll enqueues a delayed gateway status poll for the worker.
func (p *Publisher) SchedulePoll(ctx context.Context, orderID, merchantTxnID string, attempt int) error {
	body, err := json.Marshal(PollMessage{
		OrderID:       orderID,
		MerchantTxnID: merchantTxnID,
		Attempt:       attempt,
	})
	if err != nil {
		return fmt.Errorf("marshal poll message: %w", err)
	}
	attrs := map[string]string{
		"order_id": orderID,
		"attempt":  strconv.Itoa(attempt),
	}
	return p.Send(ctx, string(body), attrs, p.PollDelay)
}

// awsString helper
func awsString(s string) *string { return &s }
