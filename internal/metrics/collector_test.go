package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordsQueryAndChannelMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollectorWithRegisterer("reasonmem_test", reg)

	c.RecordQuery("completed", 120*time.Millisecond)
	c.RecordQuery("completed", 80*time.Millisecond)
	c.RecordQuery("failed", 10*time.Millisecond)
	c.RecordChannelFailure("sparse")
	c.RecordRerankFallback()

	if got := testutil.ToFloat64(c.queriesTotal.WithLabelValues("completed")); got != 2 {
		t.Fatalf("expected 2 completed queries, got %v", got)
	}
	if got := testutil.ToFloat64(c.queriesTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed query, got %v", got)
	}
	if got := testutil.ToFloat64(c.channelFailures.WithLabelValues("sparse")); got != 1 {
		t.Fatalf("expected 1 sparse failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.rerankFallbacks); got != 1 {
		t.Fatalf("expected 1 rerank fallback, got %v", got)
	}
}

func TestCollector_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.RecordQuery("completed", time.Second)
	c.RecordChannel("dense", time.Millisecond)
	c.RecordChannelFailure("dense")
	c.RecordFusionOutput(10)
	c.RecordRerankFallback()
	c.RecordTreeBuild(time.Second, 0)
}
