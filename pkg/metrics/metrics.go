package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 能力模块调用延迟（毫秒）
	CapabilityCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capability_call_latency_ms",
			Help:    "Capability invocation latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~20s
		},
		[]string{"capability", "status"},
	)

	// 计划步骤结果计数
	PlanStepCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_step_count",
			Help: "Total number of plan steps by final status",
		},
		[]string{"capability", "status"}, // status: succeeded, failed, timeout, skipped
	)

	// 自动重试计数
	CapabilityRetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_retry_count",
			Help: "Total number of automatic retries for read-only capabilities",
		},
		[]string{"capability"},
	)

	// 编排请求延迟（秒）
	OrchestrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestration_duration_seconds",
			Help:    "End-to-end orchestration duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"channel", "outcome"}, // outcome: ok, unresolved, error
	)

	// 经验值发放计数
	ExperienceAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experience_awarded_total",
			Help: "Total experience points awarded per dimension",
		},
		[]string{"dimension"},
	)

	// 账本冲突计数
	LedgerConflictCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_conflict_count",
			Help: "Experience ledger optimistic update conflicts",
		},
		[]string{"outcome"}, // outcome: retried, dropped
	)

	// 通知入队计数
	NotificationEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_enqueued_total",
			Help: "Notifications enqueued, by type and whether they were merged into an existing entry",
		},
		[]string{"type", "deduplicated"},
	)

	// 数据库慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
	)

	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow database queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method", "path", "status"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
		[]string{"routing_key", "queue"},
	)
)

// RecordCapabilityCall 记录能力模块调用延迟
func RecordCapabilityCall(capability, status string, duration time.Duration) {
	CapabilityCallLatency.WithLabelValues(capability, status).Observe(float64(duration.Milliseconds()))
}

// IncrementPlanStep 记录步骤最终状态
func IncrementPlanStep(capability, status string) {
	PlanStepCount.WithLabelValues(capability, status).Inc()
}

// IncrementCapabilityRetry 记录一次自动重试
func IncrementCapabilityRetry(capability string) {
	CapabilityRetryCount.WithLabelValues(capability).Inc()
}

// RecordOrchestration 记录编排耗时
func RecordOrchestration(channel, outcome string, duration time.Duration) {
	OrchestrationDuration.WithLabelValues(channel, outcome).Observe(duration.Seconds())
}

// AddExperience 记录经验值
func AddExperience(dimension string, amount int) {
	ExperienceAwarded.WithLabelValues(dimension).Add(float64(amount))
}

// IncrementLedgerConflict 记录账本冲突
func IncrementLedgerConflict(outcome string) {
	LedgerConflictCount.WithLabelValues(outcome).Inc()
}

// IncrementNotification 记录通知入队
func IncrementNotification(notificationType string, deduplicated bool) {
	d := "false"
	if deduplicated {
		d = "true"
	}
	NotificationEnqueued.WithLabelValues(notificationType, d).Inc()
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
