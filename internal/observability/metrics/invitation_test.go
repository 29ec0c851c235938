package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// counterTotals sums each counter by its reason attribute, or "" when absent.
func counterTotals(t *testing.T, reader *sdkmetric.ManualReader) map[string]map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			byReason := map[string]int64{}
			for _, point := range sum.DataPoints {
				reason, _ := point.Attributes.Value(attribute.Key("reason"))
				byReason[reason.AsString()] += point.Value
			}
			totals[m.Name] = byReason
		}
	}
	return totals
}

func TestInvitationMetricsCountDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewInvitationMetrics(MeterConfig{}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	endpoint := "/api/organizations/:id/invitations"
	m.RecordAllowed(ctx, "1", endpoint)
	m.RecordAllowed(ctx, "2", endpoint)
	m.RecordDenied(ctx, "1", endpoint, "org-rate")

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(2), totals["tasklane_invitation_rate_limit_allowed_total"][""])
	assert.Equal(t, int64(1), totals["tasklane_invitation_rate_limit_denied_total"]["org-rate"])

	var unset *InvitationMetrics
	unset.RecordAllowed(ctx, "1", endpoint)
	unset.RecordDenied(ctx, "1", endpoint, "org-rate")
}

func TestDisabledMeterProviderIsNoop(t *testing.T) {
	provider, err := NewMeterProvider(nil, MeterConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	m, err := NewInvitationMetrics(MeterConfig{ServiceName: "tasklane"}, provider)
	require.NoError(t, err)
	m.RecordAllowed(context.Background(), "1", "/x")
}

func TestMetricExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newMetricExporter("carrier-pigeon", "")
	assert.Error(t, err)
}
