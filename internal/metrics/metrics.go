// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(route string, statusCode int, duration time.Duration)
	RecordFollowMutation(action string)
	RecordRefreshIssued()
	RecordCounterRepair(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	followMutations *prometheus.CounterVec
	refreshIssued   prometheus.Counter
	counterRepairs  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripman_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripman_http_request_duration_seconds",
			Help:    "ルート別のHTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		followMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripman_follow_mutations_total",
			Help: "フォロー操作（follow/unfollow）の合計数",
		}, []string{"action"}),
		refreshIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripman_token_refresh_total",
			Help: "リフレッシュトークンによるトークン再発行の合計数",
		}),
		counterRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripman_counter_repairs_total",
			Help: "リコンサイルワーカーが修復したフォロワーカウンタの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.followMutations,
		c.refreshIssued,
		c.counterRepairs,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストのステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordFollowMutation はフォロー操作を記録する。actionはfollowまたはunfollow。
func (c *Collector) RecordFollowMutation(action string) {
	c.followMutations.WithLabelValues(action).Inc()
}

// RecordRefreshIssued はトークン再発行を記録する。
func (c *Collector) RecordRefreshIssued() {
	c.refreshIssued.Inc()
}

// RecordCounterRepair は修復したカウンタ数を記録する。
func (c *Collector) RecordCounterRepair(count int) {
	c.counterRepairs.Add(float64(count))
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
