package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	MetricIngested = "Ingested"
	MetricFailed   = "Failed"
)

// CloudWatchAPI is the subset of the CloudWatch client in use
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes ingest counters to CloudWatch.
// A Metrics with an empty namespace is a no-op.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	env       string
}

func NewMetrics(client CloudWatchAPI, namespace, env string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		env:       env,
	}
}

// Enabled reports whether metrics are published
func (m *Metrics) Enabled() bool {
	return m != nil && m.client != nil && m.namespace != ""
}

// PutIngestCounts publishes the number of ingested and failed records in a batch
func (m *Metrics) PutIngestCounts(ctx context.Context, ingested, failed int) error {
	if !m.Enabled() {
		return nil
	}

	now := time.Now()
	dimensions := []types.Dimension{
		{Name: aws.String("Environment"), Value: aws.String(m.env)},
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(MetricIngested),
				Dimensions: dimensions,
				Timestamp:  aws.Time(now),
				Unit:       types.StandardUnitCount,
				Value:      aws.Float64(float64(ingested)),
			},
			{
				MetricName: aws.String(MetricFailed),
				Dimensions: dimensions,
				Timestamp:  aws.Time(now),
				Unit:       types.StandardUnitCount,
				Value:      aws.Float64(float64(failed)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}
	return nil
}
