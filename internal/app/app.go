// Package app wires configuration into a ready engine for the binaries.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-payment-reconciler/internal/aws"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway/paytm"
	"github.com/imrishuroy/go-payment-reconciler/internal/gateway/phonepe"
	"github.com/imrishuroy/go-payment-reconciler/internal/ledger"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config    *config.Config
	Engine    *reconcile.Engine
	Publisher *aws.Publisher     // nil without a queue
	Metrics   *aws.MetricEmitter // nil without AWS clients
}

// SetupLogging installs the JSON formatter and level on the standard logrus logger.
func SetupLogging(c config.Log) error {
	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	return nil
}

// New builds the ledger, gateway clients, poll publisher and engine described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var clients *aws.AWSClients
	if cfg.Ledger.Backend == config.BackendDynamoDB || cfg.Queue.URL != "" {
		var err error
		clients, err = aws.NewAWSClients(ctx, cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		a.Metrics = aws.NewMetricEmitter(clients.CloudWatch, cfg.AWS.MetricsNamespace)
	}

	var l reconcile.Ledger
	switch cfg.Ledger.Backend {
	case config.BackendDynamoDB:
		l = ledger.NewDynamo(clients.DynamoDB, cfg.Ledger.OrdersTable, cfg.Ledger.IdempotencyTable, cfg.Ledger.CallbackTTL)
	default:
		log.Warn("using in-memory ledger; state is lost on restart")
		l = ledger.NewMemory()
	}

	var opts []reconcile.Option
	if cfg.PhonePe.Enabled {
		opts = append(opts, reconcile.WithGateway(phonepe.NewClient(cfg.PhonePe, cfg.Gateway)))
	}
	if cfg.Paytm.Enabled {
		opts = append(opts, reconcile.WithGateway(paytm.NewClient(cfg.Paytm, cfg.Gateway)))
	}
	if cfg.Queue.URL != "" {
		a.Publisher = aws.NewPublisher(clients.SQS, cfg.Queue.URL, cfg.Queue.PollDelay)
		opts = append(opts, reconcile.WithPollScheduler(a.Publisher))
	}

	a.Engine = reconcile.NewEngine(cfg, l, opts...)
	log.WithFields(log.Fields{
		"ledger":  cfg.Ledger.Backend,
		"phonepe": cfg.PhonePe.Enabled,
		"paytm":   cfg.Paytm.Enabled,
		"queue":   cfg.Queue.URL != "",
	}).Info("engine ready")
	return a, nil
}
