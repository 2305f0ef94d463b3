// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 检索引擎指标收集器。所有方法对 nil 接收者安全，
// 不需要指标时传 nil 即可。
type Collector struct {
	// 查询指标
	queriesTotal    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	channelDuration *prometheus.HistogramVec
	channelFailures *prometheus.CounterVec
	fusionOutput    prometheus.Histogram
	rerankFallbacks prometheus.Counter

	// 树构建指标
	treeBuildDuration  prometheus.Histogram
	treeClustersFailed prometheus.Counter
}

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定 registry
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of retrieval queries by terminal status",
			},
			[]string{"status"},
		),
		queryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End-to-end query pipeline duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		channelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_duration_seconds",
				Help:      "Per-channel search duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		channelFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_failures_total",
				Help:      "Per-channel unavailability count (errors and timeouts)",
			},
			[]string{"channel"},
		),
		fusionOutput: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fusion_output_size",
				Help:      "Number of deduplicated results produced by rank fusion",
				Buckets:   []float64{0, 5, 10, 25, 50, 100, 250},
			},
		),
		rerankFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rerank_fallbacks_total",
				Help:      "Queries that fell back to fusion order because reranking failed",
			},
		),
		treeBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tree_build_duration_seconds",
				Help:      "RAPTOR tree build duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		treeClustersFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tree_clusters_failed_total",
				Help:      "Clusters excluded from tree builds after summarization retries",
			},
		),
	}
}

// RecordQuery 记录一次查询的终态和耗时
func (c *Collector) RecordQuery(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.queriesTotal.WithLabelValues(status).Inc()
	c.queryDuration.Observe(duration.Seconds())
}

// RecordChannel 记录单通道搜索耗时
func (c *Collector) RecordChannel(channel string, duration time.Duration) {
	if c == nil {
		return
	}
	c.channelDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordChannelFailure 记录单通道不可用
func (c *Collector) RecordChannelFailure(channel string) {
	if c == nil {
		return
	}
	c.channelFailures.WithLabelValues(channel).Inc()
}

// RecordFusionOutput 记录融合输出条数
func (c *Collector) RecordFusionOutput(size int) {
	if c == nil {
		return
	}
	c.fusionOutput.Observe(float64(size))
}

// RecordRerankFallback 记录一次重排降级
func (c *Collector) RecordRerankFallback() {
	if c == nil {
		return
	}
	c.rerankFallbacks.Inc()
}

// RecordTreeBuild 记录一次树构建
func (c *Collector) RecordTreeBuild(duration time.Duration, failedClusters int) {
	if c == nil {
		return
	}
	c.treeBuildDuration.Observe(duration.Seconds())
	c.treeClustersFailed.Add(float64(failedClusters))
}
