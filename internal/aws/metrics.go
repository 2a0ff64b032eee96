package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricEmitter publishes operational counters to CloudWatch.
type MetricEmitter struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

// NewMetricEmitter returns an emitter writing into namespace.
func NewMetricEmitter(cw CloudWatchAPI, namespace string) *MetricEmitter {
	return &MetricEmitter{
		CloudWatch: cw,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Count records a count datum with optional dimensions.
func (m *MetricEmitter) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	now := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &value,
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  &now,
	}
	for k, v := range dims {
		k, v := k, v
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: &k, Value: &v})
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
