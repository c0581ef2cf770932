package external

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (c *capturingCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.inputs = append(c.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, c.err
}

func newTestMetrics(api cloudWatchAPI) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    api,
		namespace: "ShopImportTest",
		logger:    slog.Default(),
	}
}

func TestEmitPlanMismatch_DatumShape(t *testing.T) {
	capture := &capturingCloudWatch{}
	m := newTestMetrics(capture)

	m.EmitPlanMismatch(context.Background(), "shop-1.example.com", 14.50, "EUR")

	require.Len(t, capture.inputs, 1)
	in := capture.inputs[0]
	assert.Equal(t, "ShopImportTest", *in.Namespace)
	require.Len(t, in.MetricData, 1)

	datum := in.MetricData[0]
	assert.Equal(t, "PlanPriceMismatch", *datum.MetricName)
	assert.Equal(t, 1.0, *datum.Value)

	dims := map[string]string{}
	for _, d := range datum.Dimensions {
		dims[*d.Name] = *d.Value
	}
	assert.Equal(t, "shop-1.example.com", dims["Tenant"])
	assert.Equal(t, "EUR", dims["Currency"])
}

func TestEmitPlanMismatch_EmptyCurrencyDimension(t *testing.T) {
	capture := &capturingCloudWatch{}
	m := newTestMetrics(capture)

	m.EmitPlanMismatch(context.Background(), "shop-1", 14.50, "")

	require.Len(t, capture.inputs, 1)
	datum := capture.inputs[0].MetricData[0]
	for _, d := range datum.Dimensions {
		if *d.Name == "Currency" {
			assert.Equal(t, "unknown", *d.Value)
		}
	}
}

func TestEmitWebhookOutcome_BestEffortOnError(t *testing.T) {
	capture := &capturingCloudWatch{err: errors.New("throttled")}
	m := newTestMetrics(capture)

	// Must not panic or propagate; the put failure is logged and dropped.
	m.EmitWebhookOutcome(context.Background(), "ok")

	require.Len(t, capture.inputs, 1)
	assert.Equal(t, "SubscriptionWebhook", *capture.inputs[0].MetricData[0].MetricName)
}

func TestEmitSurvivesCancelledRequestContext(t *testing.T) {
	capture := &capturingCloudWatch{}
	m := newTestMetrics(capture)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Emission detaches from the request context so a completed request
	// does not lose its metric.
	m.EmitWebhookOutcome(ctx, "ok")

	assert.Len(t, capture.inputs, 1)
}