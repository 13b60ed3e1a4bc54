package app

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	logx "standupbot/pkg/logx"
)

// collectMetrics flattens the counters of the app meter provider into
// "name{k=v,...}" keys for the status endpoint.
func (a *App) collectMetrics(ctx context.Context) map[string]int64 {
	if a.metrics == nil {
		return nil
	}
	var rm metricdata.ResourceMetrics
	if err := a.metrics.Collect(ctx, &rm); err != nil {
		a.log.Debug("metrics collect failed", logx.Err(err))
		return nil
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[metricKey(m.Name, dp.Attributes.ToSlice())] += dp.Value
			}
		}
	}
	return out
}

func metricKey(name string, attrs []attribute.KeyValue) string {
	if len(attrs) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, kv := range attrs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(kv.Key))
		b.WriteByte('=')
		b.WriteString(kv.Value.Emit())
	}
	b.WriteByte('}')
	return b.String()
}
