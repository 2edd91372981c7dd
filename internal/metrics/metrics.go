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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordDeliverSuccess()
	RecordDeliverFailure(reason string)
	RecordAckFailure()
	RecordSendStatus(statusCode int)
	RecordDeliverLatency(duration time.Duration)
	RecordPollCycle(dueCount int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	deliverSuccess prometheus.Counter
	deliverFail    *prometheus.CounterVec
	ackFail        prometheus.Counter
	sendStatus     *prometheus.CounterVec
	deliverLatency prometheus.Histogram
	pollCycles     prometheus.Counter
	dueFound       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliverSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindman_deliver_success_total",
			Help: "リマインダー通知送信成功の合計数",
		}),
		deliverFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindman_deliver_fail_total",
			Help: "リマインダー通知送信失敗の合計数（理由別）",
		}, []string{"reason"}),
		ackFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindman_ack_fail_total",
			Help: "送信成功後の配送済みマーク失敗の合計数",
		}),
		sendStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remindman_send_status_total",
			Help: "通知送信のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		deliverLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "remindman_deliver_latency_seconds",
			Help:    "リマインダー1件の配送レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindman_poll_cycles_total",
			Help: "配送ポーリングサイクルの実行回数",
		}),
		dueFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "remindman_due_found_total",
			Help: "ポーリングで発見した配送対象リマインダーの合計数",
		}),
	}

	reg.MustRegister(
		c.deliverSuccess,
		c.deliverFail,
		c.ackFail,
		c.sendStatus,
		c.deliverLatency,
		c.pollCycles,
		c.dueFound,
	)

	return c
}

// RecordDeliverSuccess は通知送信成功を記録する。
func (c *Collector) RecordDeliverSuccess() {
	c.deliverSuccess.Inc()
}

// RecordDeliverFailure は通知送信失敗を理由付きで記録する。
func (c *Collector) RecordDeliverFailure(reason string) {
	c.deliverFail.WithLabelValues(reason).Inc()
}

// RecordAckFailure は送信成功後の配送済みマーク失敗を記録する。
func (c *Collector) RecordAckFailure() {
	c.ackFail.Inc()
}

// RecordSendStatus は通知送信のHTTPステータスコードを記録する。
func (c *Collector) RecordSendStatus(statusCode int) {
	c.sendStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDeliverLatency は配送のレイテンシを記録する。
func (c *Collector) RecordDeliverLatency(duration time.Duration) {
	c.deliverLatency.Observe(duration.Seconds())
}

// RecordPollCycle はポーリングサイクルの実行と発見した配送対象数を記録する。
func (c *Collector) RecordPollCycle(dueCount int) {
	c.pollCycles.Inc()
	c.dueFound.Add(float64(dueCount))
}

// Noop は何も記録しないMetricsCollector実装。テストおよびメトリクス無効時用。
type Noop struct{}

func (Noop) RecordDeliverSuccess()                       {}
func (Noop) RecordDeliverFailure(reason string)          {}
func (Noop) RecordAckFailure()                           {}
func (Noop) RecordSendStatus(statusCode int)             {}
func (Noop) RecordDeliverLatency(duration time.Duration) {}
func (Noop) RecordPollCycle(dueCount int)                {}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)

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
