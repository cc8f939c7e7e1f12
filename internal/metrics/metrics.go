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
// 認証・課金・メール送信の各サービスから利用する。
type MetricsCollector interface {
	RecordSignIn(method string)
	RecordSignUp(outcome string)
	RecordCheck(featureID, outcome string)
	RecordTrackFailure(featureID string)
	RecordEmailSent(kind string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIns        *prometheus.CounterVec
	signUps        *prometheus.CounterVec
	checks         *prometheus.CounterVec
	trackFailures  *prometheus.CounterVec
	emailsSent     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_sign_in_total",
			Help: "サインイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_sign_up_total",
			Help: "サインアップ試行の合計数（結果別）",
		}, []string{"outcome"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_entitlement_check_total",
			Help: "機能利用可否判定の合計数（機能ID・結果別）",
		}, []string{"feature_id", "outcome"}),
		trackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_entitlement_track_failure_total",
			Help: "握りつぶされた使用量記録失敗の合計数（機能ID別）",
		}, []string{"feature_id"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_email_sent_total",
			Help: "送信されたメールの合計数（種別別）",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smrtstudy_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smrtstudy_request_latency_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signIns,
		c.signUps,
		c.checks,
		c.trackFailures,
		c.emailsSent,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignIn はサインイン成功を認証方式別に記録する。
// methodは "password" | "magic_link" | "otp" | "google" | "github"。
func (c *Collector) RecordSignIn(method string) {
	c.signIns.WithLabelValues(method).Inc()
}

// RecordSignUp はサインアップ試行を結果別に記録する。
// outcomeは "success" | "duplicate" | "invalid"。
func (c *Collector) RecordSignUp(outcome string) {
	c.signUps.WithLabelValues(outcome).Inc()
}

// RecordCheck は機能利用可否判定の結果を記録する。
// outcomeは "allowed" | "denied" | "error"。
func (c *Collector) RecordCheck(featureID, outcome string) {
	c.checks.WithLabelValues(featureID, outcome).Inc()
}

// RecordTrackFailure は使用量記録の失敗を記録する。
// 記録失敗は呼び出し元に伝播しないためメトリクスだけが観測手段になる。
func (c *Collector) RecordTrackFailure(featureID string) {
	c.trackFailures.WithLabelValues(featureID).Inc()
}

// RecordEmailSent は送信されたメールを種別別に記録する。
// kindは "magic_link" | "otp" | "password_reset" | "verification"。
func (c *Collector) RecordEmailSent(kind string) {
	c.emailsSent.WithLabelValues(kind).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はAPIリクエストのレイテンシを記録する。
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
