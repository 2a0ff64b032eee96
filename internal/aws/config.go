package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	appconfig "github.com/imrishuroy/go-payment-reconciler/internal/config"
)

const defaultRegion = "us-east-1"

// LoadAWSConfig resolves the SDK configuration for the configured region.
// A non-empty endpoint override points every client at a local emulator (localstack).
func LoadAWSConfig(ctx context.Context, c appconfig.AWS) (sdkaws.Config, error) {
	region := c.Region
	if region == "" {
		region = defaultRegion
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if c.EndpointOverride != "" {
		opts = append(opts, config.WithBaseEndpoint(c.EndpointOverride))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return cfg, nil
}
