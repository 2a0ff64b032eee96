package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigPath names the optional YAML file read before environment overrides.
const EnvConfigPath = "RECONCILER_CONFIG"

// legacyEnv binds the short variable names set by the Lambda deployment templates.
var legacyEnv = map[string][]string{
	"server.run_local":         {"RUN_LOCAL"},
	"aws.region":               {"AWS_REGION"},
	"aws.endpoint_override":    {"AWS_ENDPOINT_OVERRIDE"},
	"ledger.orders_table":      {"ORDERS_TABLE"},
	"ledger.idempotency_table": {"IDEMPOTENCY_TABLE"},
	"queue.url":                {"ORDERS_QUEUE_URL"},
}

// Load builds the configuration from defaults, the optional YAML file and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.run_local", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint_override", "")
	v.SetDefault("aws.metrics_namespace", "PaymentReconciler")

	v.SetDefault("ledger.backend", BackendDynamoDB)
	v.SetDefault("ledger.orders_table", "orders")
	v.SetDefault("ledger.idempotency_table", "idempotency")
	v.SetDefault("ledger.callback_ttl", "720h")

	v.SetDefault("queue.url", "")
	v.SetDefault("queue.poll_delay", "2m")
	v.SetDefault("queue.max_polls", 10)

	v.SetDefault("payment.window", "30m")
	v.SetDefault("payment.expiry_grace", "30m")
	v.SetDefault("payment.verify_threshold", 90)
	v.SetDefault("payment.review_threshold", 50)
	v.SetDefault("payment.collision_check", false)
	v.SetDefault("payment.default_provider", "")

	v.SetDefault("phonepe.enabled", false)
	v.SetDefault("phonepe.merchant_id", "")
	v.SetDefault("phonepe.salt_key", "")
	v.SetDefault("phonepe.salt_index", 1)
	v.SetDefault("phonepe.base_url", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("phonepe.redirect_url", "")
	v.SetDefault("phonepe.callback_url", "")

	v.SetDefault("paytm.enabled", false)
	v.SetDefault("paytm.mid", "")
	v.SetDefault("paytm.merchant_key", "")
	v.SetDefault("paytm.website", "WEBSTAGING")
	v.SetDefault("paytm.base_url", "https://securegw-stage.paytm.in")
	v.SetDefault("paytm.callback_url", "")

	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.breaker_max_requests", 3)
	v.SetDefault("gateway.breaker_interval", "15s")
	v.SetDefault("gateway.breaker_timeout", "30s")
	v.SetDefault("gateway.breaker_min_requests", 3)
	v.SetDefault("gateway.breaker_failure_ratio", 0.6)

	v.SetDefault("upi.payee_vpa", "")
	v.SetDefault("upi.payee_name", "Merchant")

	v.SetDefault("admin.jwt_secret", "")

	v.SetDefault("frontend.success_url", "/payment-success")
	v.SetDefault("frontend.failure_url", "/payment-failed")

	v.SetDefault("log.level", "info")
}
