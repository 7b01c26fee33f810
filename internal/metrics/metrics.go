// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 認可判定・リコンサイル・シード投入・ワーカーの各計測ポートを満たす。
type Collector struct {
	policyDecisions   *prometheus.CounterVec
	reconcileSteps    *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	seedRows          *prometheus.CounterVec
	ordersExpired     prometheus.Counter
	sessionsPurged    prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		policyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alatacraft_policy_decisions_total",
			Help: "テーブル・操作・結果別の認可判定数",
		}, []string{"table", "operation", "decision"}),
		reconcileSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alatacraft_reconcile_steps_total",
			Help: "リコンサイル段階の実行結果数",
		}, []string{"step", "result"}),
		reconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alatacraft_reconcile_step_duration_seconds",
			Help:    "リコンサイル各段階の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		seedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alatacraft_seed_rows_total",
			Help: "エンティティ・結果別のシード投入行数",
		}, []string{"entity", "outcome"}),
		ordersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alatacraft_orders_expired_total",
			Help: "期限切れで自動キャンセルされた注文の合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alatacraft_sessions_purged_total",
			Help: "削除された期限切れセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alatacraft_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alatacraft_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.policyDecisions,
		c.reconcileSteps,
		c.reconcileDuration,
		c.seedRows,
		c.ordersExpired,
		c.sessionsPurged,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordPolicyDecision は認可判定の結果を記録する。
// decisionは"allow"・"deny"・"bypass"のいずれか。
func (c *Collector) RecordPolicyDecision(table, operation, decision string) {
	c.policyDecisions.WithLabelValues(table, operation, decision).Inc()
}

// RecordReconcileStep はリコンサイル段階の実行結果を記録する。
func (c *Collector) RecordReconcileStep(step, result string) {
	c.reconcileSteps.WithLabelValues(step, result).Inc()
}

// ObserveReconcileDuration はリコンサイル段階の所要時間を記録する。
func (c *Collector) ObserveReconcileDuration(step string, seconds float64) {
	c.reconcileDuration.WithLabelValues(step).Observe(seconds)
}

// RecordSeedRow はシード投入1行の結果を記録する。
func (c *Collector) RecordSeedRow(entity, outcome string) {
	c.seedRows.WithLabelValues(entity, outcome).Inc()
}

// RecordOrdersExpired は自動キャンセルされた注文数を記録する。
func (c *Collector) RecordOrdersExpired(count int64) {
	c.ordersExpired.Add(float64(count))
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
