package queue

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gaugeValue(t *testing.T, queue, state string) float64 {
	t.Helper()
	return testutil.ToFloat64(JobsGauge.WithLabelValues(queue, state))
}
