package external

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"shopimport/internal/config"
)

// cloudWatchAPI is the subset of the CloudWatch client the emitter uses.
type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits operator-visibility metrics. Emission is
// best-effort: a failed put is logged and dropped, never surfaced to the
// request path.
type CloudWatchMetrics struct {
	client    cloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics builds the emitter using the default AWS credential
// chain for the configured region.
func NewCloudWatchMetrics(ctx context.Context, cfg config.ObservabilityConfig, logger *slog.Logger) (*CloudWatchMetrics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	return &CloudWatchMetrics{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: cfg.MetricNamespace,
		logger:    logger,
	}, nil
}

// EmitPlanMismatch records a subscription amount that matched no catalog
// plan. This is the alarm surface for the silent FREE fallback: a pricing or
// currency change upstream would otherwise downgrade paying tenants
// unnoticed.
func (m *CloudWatchMetrics) EmitPlanMismatch(ctx context.Context, tenantID string, amount float64, currency string) {
	m.put(ctx, "PlanPriceMismatch", 1, []cwtypes.Dimension{
		{Name: aws.String("Tenant"), Value: aws.String(tenantID)},
		{Name: aws.String("Currency"), Value: aws.String(nonEmpty(currency))},
	})
}

// EmitWebhookOutcome counts processed subscription webhooks by result.
func (m *CloudWatchMetrics) EmitWebhookOutcome(ctx context.Context, outcome string) {
	m.put(ctx, "SubscriptionWebhook", 1, []cwtypes.Dimension{
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, name string, value float64, dims []cwtypes.Dimension) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(time.Now().UTC()),
			Dimensions: dims,
		}},
	})
	if err != nil {
		m.logger.Warn("failed to emit metric",
			slog.String("metric", name),
			slog.String("error", err.Error()),
		)
	}
}

func nonEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// NoopMetrics discards all emissions. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) EmitPlanMismatch(context.Context, string, float64, string) {}

func (NoopMetrics) EmitWebhookOutcome(context.Context, string) {}
