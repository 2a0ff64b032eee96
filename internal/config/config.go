// Package config builds the process-wide configuration object once at startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ledger backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config is constructed once and passed by pointer into stores, gateway clients and the engine.
type Config struct {
	Server   Server   `mapstructure:"server"`
	AWS      AWS      `mapstructure:"aws"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Queue    Queue    `mapstructure:"queue"`
	Payment  Payment  `mapstructure:"payment"`
	PhonePe  PhonePe  `mapstructure:"phonepe"`
	Paytm    Paytm    `mapstructure:"paytm"`
	Gateway  Gateway  `mapstructure:"gateway"`
	UPI      UPI      `mapstructure:"upi"`
	Admin    Admin    `mapstructure:"admin"`
	Frontend Frontend `mapstructure:"frontend"`
	Log      Log      `mapstructure:"log"`
}

type Server struct {
	Addr        string   `mapstructure:"addr"`
	RunLocal    bool     `mapstructure:"run_local"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AWS struct {
	Region           string `mapstructure:"region"`
	EndpointOverride string `mapstructure:"endpoint_override"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

type Ledger struct {
	Backend          string        `mapstructure:"backend"`
	OrdersTable      string        `mapstructure:"orders_table"`
	IdempotencyTable string        `mapstructure:"idempotency_table"`
	CallbackTTL      time.Duration `mapstructure:"callback_ttl"`
}

type Queue struct {
	URL       string        `mapstructure:"url"`
	PollDelay time.Duration `mapstructure:"poll_delay"`
	MaxPolls  int           `mapstructure:"max_polls"`
}

// Payment holds the reconciliation policy.
type Payment struct {
	Window          time.Duration `mapstructure:"window"`
	ExpiryGrace     time.Duration `mapstructure:"expiry_grace"`
	VerifyThreshold int           `mapstructure:"verify_threshold"`
	ReviewThreshold int           `mapstructure:"review_threshold"`
	CollisionCheck  bool          `mapstructure:"collision_check"`
	DefaultProvider string        `mapstructure:"default_provider"`
}

// PhonePe holds the redirect-style gateway credentials.
type PhonePe struct {
	Enabled     bool   `mapstructure:"enabled"`
	MerchantID  string `mapstructure:"merchant_id"`
	SaltKey     string `mapstructure:"salt_key"`
	SaltIndex   int    `mapstructure:"salt_index"`
	BaseURL     string `mapstructure:"base_url"`
	RedirectURL string `mapstructure:"redirect_url"`
	CallbackURL string `mapstructure:"callback_url"`
}

// Paytm holds the token-style gateway credentials.
type Paytm struct {
	Enabled     bool   `mapstructure:"enabled"`
	MID         string `mapstructure:"mid"`
	MerchantKey string `mapstructure:"merchant_key"`
	Website     string `mapstructure:"website"`
	BaseURL     string `mapstructure:"base_url"`
	CallbackURL string `mapstructure:"callback_url"`
}

// Gateway tunes outbound calls shared by both providers.
type Gateway struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}

type UPI struct {
	PayeeVPA  string `mapstructure:"payee_vpa"`
	PayeeName string `mapstructure:"payee_name"`
}

type Admin struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type Frontend struct {
	SuccessURL string `mapstructure:"success_url"`
	FailureURL string `mapstructure:"failure_url"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Ledger.Backend {
	case BackendDynamoDB:
		if c.Ledger.OrdersTable == "" || c.Ledger.IdempotencyTable == "" {
			errs = append(errs, errors.New("ledger: orders_table and idempotency_table are required for dynamodb"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("ledger: unknown backend %q", c.Ledger.Backend))
	}

	if c.Payment.Window <= 0 {
		errs = append(errs, errors.New("payment: window must be positive"))
	}
	if c.Payment.ExpiryGrace < 0 {
		errs = append(errs, errors.New("payment: expiry_grace must not be negative"))
	}
	if c.Payment.ReviewThreshold <= 0 || c.Payment.ReviewThreshold > c.Payment.VerifyThreshold || c.Payment.VerifyThreshold > 100 {
		errs = append(errs, fmt.Errorf("payment: thresholds must satisfy 0 < review (%d) <= verify (%d) <= 100",
			c.Payment.ReviewThreshold, c.Payment.VerifyThreshold))
	}

	if c.PhonePe.Enabled {
		if c.PhonePe.MerchantID == "" || c.PhonePe.SaltKey == "" || c.PhonePe.BaseURL == "" {
			errs = append(errs, errors.New("phonepe: merchant_id, salt_key and base_url are required"))
		}
		if c.PhonePe.SaltIndex < 1 {
			errs = append(errs, errors.New("phonepe: salt_index must be >= 1"))
		}
	}
	if c.Paytm.Enabled {
		if c.Paytm.MID == "" || c.Paytm.BaseURL == "" {
			errs = append(errs, errors.New("paytm: mid and base_url are required"))
		}
		switch len(c.Paytm.MerchantKey) {
		case 16, 24, 32:
		default:
			errs = append(errs, errors.New("paytm: merchant_key must be 16, 24 or 32 bytes"))
		}
	}
	if p := strings.TrimSpace(c.Payment.DefaultProvider); p != "" && !c.ProviderEnabled(p) {
		errs = append(errs, fmt.Errorf("payment: default_provider %q is not enabled", p))
	}

	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway: timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ProviderEnabled reports whether the named gateway integration is active.
func (c *Config) ProviderEnabled(name string) bool {
	switch name {
	case "phonepe":
		return c.PhonePe.Enabled
	case "paytm":
		return c.Paytm.Enabled
	}
	return false
}
