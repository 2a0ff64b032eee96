package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
)

// CloudWatch metric names.
const (
	metricResolved = "GatewayPollResolved"
	metricPending  = "GatewayPollPending"
	metricGaveUp   = "GatewayPollExhausted"
)

// Poller re-queries the gateway for one order.
type Poller interface {
	PollStatus(ctx context.Context, orderID string) (*orders.Order, error)
}

// Scheduler enqueues the next poll.
type Scheduler interface {
	SchedulePoll(ctx context.Context, orderID, merchantTxnID string, attempt int) error
}

// Counter records operational counts.
type Counter interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// Processor handles SQS poll messages and reconciles gateway orders.
type Processor struct {
	engine    Poller
	scheduler Scheduler
	metrics   Counter
	maxPolls  int
}

// NewProcessor creates a worker processor. metrics may be nil.
func NewProcessor(engine Poller, scheduler Scheduler, metrics Counter, maxPolls int) *Processor {
	return &Processor{
		engine:    engine,
		scheduler: scheduler,
		metrics:   metrics,
		maxPolls:  maxPolls,
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.WithFields(log.Fields{
				"message_id": rec.MessageId,
				"error":      err.Error(),
			}).Error("poll message failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg aws.PollMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil || msg.OrderID == "" {
		log.WithFields(log.Fields{
			"message_id": rec.MessageId,
			"body":       rec.Body,
		}).Error("dropping malformed poll message")
		return nil
	}
	entry := log.WithFields(log.Fields{
		"order_id":        msg.OrderID,
		"merchant_txn_id": msg.MerchantTxnID,
		"attempt":         msg.Attempt,
	})

	o, err := p.engine.PollStatus(ctx, msg.OrderID)
	if err != nil {
		if reconcile.Retryable(err) {
			return fmt.Errorf("poll %s: %w", msg.OrderID, err)
		}
		entry.WithError(err).Warn("dropping poll message")
		return nil
	}

	dims := map[string]string{"Provider": string(o.Provider)}
	if o.Status != orders.StatusProcessing {
		entry.WithField("status", o.Status).Info("gateway order resolved")
		p.count(ctx, metricResolved, dims)
		return nil
	}

	if msg.Attempt >= p.maxPolls {
		entry.Warn("gateway order still processing after last poll")
		p.count(ctx, metricGaveUp, dims)
		return nil
	}
	if err := p.scheduler.SchedulePoll(ctx, msg.OrderID, msg.MerchantTxnID, msg.Attempt+1); err != nil {
		return fmt.Errorf("reschedule poll %s: %w", msg.OrderID, err)
	}
	p.count(ctx, metricPending, dims)
	return nil
}

func (p *Processor) count(ctx context.Context, name string, dims map[string]string) {
	if p.metrics == nil {
		return
	}
	if err := p.metrics.Count(ctx, name, 1, dims); err != nil {
		log.WithError(err).WithField("metric", name).Warn("failed to emit metric")
	}
}
