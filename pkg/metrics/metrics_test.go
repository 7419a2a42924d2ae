package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/metrics"
)

func TestRecordGateDecision(t *testing.T) {
	before := testutil.ToFloat64(metrics.GateDecisionsTotal.WithLabelValues("redirect", "path_class", "protected"))
	metrics.RecordGateDecision("redirect", "path_class", "protected")
	after := testutil.ToFloat64(metrics.GateDecisionsTotal.WithLabelValues("redirect", "path_class", "protected"))
	assert.Equal(t, before+1, after)
}

func TestRecordBadgeCache(t *testing.T) {
	hits := testutil.ToFloat64(metrics.BadgeCacheTotal.WithLabelValues("hit"))
	misses := testutil.ToFloat64(metrics.BadgeCacheTotal.WithLabelValues("miss"))

	metrics.RecordBadgeCache(true)
	metrics.RecordBadgeCache(false)
	metrics.RecordBadgeCache(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.BadgeCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(metrics.BadgeCacheTotal.WithLabelValues("miss")))
}
