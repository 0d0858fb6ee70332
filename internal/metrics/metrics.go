package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmemory_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 会话记忆指标
var (
	// TriggerChecksTotal 触发判定次数
	TriggerChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_trigger_checks_total",
			Help: "记忆触发判定次数",
		},
		[]string{"result"}, // result: triggered, skipped
	)

	// SummariesTotal 摘要生成次数
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_summaries_total",
			Help: "记忆摘要生成次数",
		},
		[]string{"status"}, // status: created, empty, fallback, failed, conflict
	)

	// SummarizeDuration 摘要生成耗时（含模型调用）
	SummarizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatmemory_summarize_duration_seconds",
			Help:    "记忆摘要生成耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// TokensSavedTotal 估算节省的 Token 数（按字符估算，非计费口径）
	TokensSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmemory_tokens_saved_estimate_total",
			Help: "记忆压缩估算节省的 Token 数",
		},
	)

	// RetentionDeletedTotal 保留上限淘汰的记忆数
	RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmemory_retention_deleted_total",
			Help: "保留上限淘汰的记忆数",
		},
	)

	// ExpiredDeletedTotal 过期清理删除的记忆数
	ExpiredDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatmemory_expired_deleted_total",
			Help: "过期清理删除的记忆数",
		},
	)
)

// 模型调用指标
var (
	// ModelCallsTotal 模型调用次数
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_model_calls_total",
			Help: "摘要模型调用次数",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// ModelCallDuration 模型调用耗时
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatmemory_model_call_duration_seconds",
			Help:    "摘要模型调用耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// ModelTokensTotal 模型上报的 Token 用量
	ModelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatmemory_model_tokens_total",
			Help: "摘要模型消耗的 Token 数",
		},
		[]string{"provider", "kind"}, // kind: prompt, completion
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatmemory_build_info",
			Help: "构建信息",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
