// Command reconcilectl is the operator CLI for reviewing and re-polling payments.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-payment-reconciler/internal/app"
	"github.com/imrishuroy/go-payment-reconciler/internal/config"
	"github.com/imrishuroy/go-payment-reconciler/internal/orders"
	"github.com/imrishuroy/go-payment-reconciler/internal/reconcile"
)

var Version = "dev"

// operator is the slice of the engine the CLI drives.
type operator interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, status string) ([]orders.Order, error)
	PendingReviews(ctx context.Context) ([]orders.Order, error)
	ApprovePayment(ctx context.Context, orderID string) (*reconcile.AdminResult, error)
	RejectPayment(ctx context.Context, orderID string) (*reconcile.AdminResult, error)
	PollStatus(ctx context.Context, orderID string) (*orders.Order, error)
}

type opener func(ctx context.Context, configPath string) (operator, error)

func openEngine(ctx context.Context, configPath string) (operator, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg.Log); err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return a.Engine, nil
}

func main() {
	if err := newRootCmd(openEngine, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "reconcilectl",
		Short:         "Inspect and resolve payment reconciliation state",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvConfigPath), "YAML config file")
	rootCmd.SetOut(out)

	// run opens the engine lazily so --help never touches AWS.
	run := func(fn func(ctx context.Context, op operator, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			op, err := open(ctx, configPath)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			v, err := fn(ctx, op, args)
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), v)
		}
	}

	rootCmd.AddCommand(orderCmd(run))
	rootCmd.AddCommand(ordersCmd(run))
	rootCmd.AddCommand(pendingCmd(run))
	rootCmd.AddCommand(approveCmd(run))
	rootCmd.AddCommand(rejectCmd(run))
	rootCmd.AddCommand(pollCmd(run))
	return rootCmd
}

type runner func(fn func(ctx context.Context, op operator, args []string) (any, error)) func(*cobra.Command, []string) error

func orderCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "order [order-id]",
		Short: "Show one order, applying expiry if its window has passed",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			return op.GetOrder(ctx, args[0])
		}),
	}
}

func ordersCmd(run runner) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders in one status",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			list, err := op.ListOrders(ctx, status)
			if err != nil {
				return nil, err
			}
			return nonNil(list), nil
		}),
	}
	cmd.Flags().StringVarP(&status, "status", "s", string(orders.StatusPendingReview), "Order status to list")
	return cmd
}

func pendingCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List orders waiting for manual review",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			list, err := op.PendingReviews(ctx)
			if err != nil {
				return nil, err
			}
			return nonNil(list), nil
		}),
	}
}

func approveCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "approve [order-id]",
		Short: "Approve a payment held for review",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			return op.ApprovePayment(ctx, args[0])
		}),
	}
}

func rejectCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "reject [order-id]",
		Short: "Reject a payment held for review",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			return op.RejectPayment(ctx, args[0])
		}),
	}
}

func pollCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "poll [order-id]",
		Short: "Query the gateway for an order still processing",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, op operator, args []string) (any, error) {
			return op.PollStatus(ctx, args[0])
		}),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns engine errors into the "kind: message" form shown to operators.
func describe(err error) error {
	log.WithError(err).Debug("command failed")
	return fmt.Errorf("%s: %s", reconcile.KindOf(err), reconcile.Message(err))
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}
