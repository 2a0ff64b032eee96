package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/app"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.SetupLogging(cfg.Log); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	if a.Publisher == nil {
		log.Fatal("worker requires queue.url")
	}

	var metrics Counter
	if a.Metrics != nil {
		metrics = a.Metrics
	}
	p := NewProcessor(a.Engine, a.Publisher, metrics, cfg.Queue.MaxPolls)

	// If RUN_LOCAL=true, process a single simulated SQS event for local testing.
	if cfg.Server.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"ORD-LOCAL001","merchant_txn_id":"MTLOCAL001","attempt":1}`
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local", Body: testBody}}}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
