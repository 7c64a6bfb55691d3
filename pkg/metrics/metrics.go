package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arlofn/provider/internal/common/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the provider's prometheus instruments.
type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec
	tokenCnt   *prometheus.CounterVec
	grantCnt   prometheus.Counter
	authFail   *prometheus.CounterVec
	revokeCnt  prometheus.Counter
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	tokenCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "tokens_issued_total"}, []string{"grant_type"})
	grantCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "grants_issued_total"})
	authFail := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "auth_failures_total"}, []string{"kind"})
	revokeCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "tokens_revoked_total"})
	r.MustRegister(tokenCnt, grantCnt, authFail, revokeCnt)

	return &Metrics{
		registry:   r,
		namespace:  ns,
		httpReqCnt: httpReqCnt,
		httpDur:    httpDur,
		httpInfl:   httpInfl,
		tokenCnt:   tokenCnt,
		grantCnt:   grantCnt,
		authFail:   authFail,
		revokeCnt:  revokeCnt,
	}
}

// TokenIssued records a minted access/refresh token pair.
func (m *Metrics) TokenIssued(grantType string) {
	m.tokenCnt.WithLabelValues(grantType).Inc()
}

// GrantIssued records a minted authorization code.
func (m *Metrics) GrantIssued() {
	m.grantCnt.Inc()
}

// AuthFailure records a failed client or bearer authentication.
// kind is "client" or "token".
func (m *Metrics) AuthFailure(kind string) {
	m.authFail.WithLabelValues(kind).Inc()
}

// TokenRevoked records an explicit revocation.
func (m *Metrics) TokenRevoked() {
	m.revokeCnt.Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
