// metrics - Prometheus-метрики клиентского пайплайна: исходящие запросы,
// повторы после 401, попытки refresh и логауты.
//
// Все методы безопасны для nil-приёмника: компоненты принимают *Client
// опционально и не проверяют его наличие.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты refresh для метки result.
const (
	RefreshSuccess        = "success"
	RefreshFailure        = "failure"
	RefreshNoRefreshToken = "no_refresh_token"
	RefreshReused         = "reused"
)

// StatusTransportError - значение метки status при сетевой ошибке.
const StatusTransportError = "transport_error"

type Client struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	refreshTotal    *prometheus.CounterVec
	refreshInFlight prometheus.Gauge
	refreshWaiters  prometheus.Counter
	logoutsTotal    prometheus.Counter
}

// New создаёт коллекторы и регистрирует их в reg.
// reg == nil - коллекторы создаются, но не регистрируются (удобно в тестах).
func New(reg prometheus.Registerer, namespace string) *Client {
	if namespace == "" {
		namespace = "gdpr_admin"
	}

	m := &Client{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "requests_total",
			Help:      "Outgoing API requests by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "request_duration_seconds",
			Help:      "Outgoing API request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_client",
			Name:      "retries_total",
			Help:      "Requests re-issued after a successful token refresh.",
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Token refresh attempts by result.",
		}, []string{"result"}),
		refreshInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_in_flight",
			Help:      "1 while a token refresh is outstanding.",
		}),
		refreshWaiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_waiters_total",
			Help:      "Callers parked behind an in-flight refresh.",
		}),
		logoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Forced and explicit logouts.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requestsTotal,
			m.requestDuration,
			m.retriesTotal,
			m.refreshTotal,
			m.refreshInFlight,
			m.refreshWaiters,
			m.logoutsTotal,
		)
	}

	return m
}

// ObserveRequest фиксирует завершённый запрос. status <= 0 - сетевая ошибка.
func (m *Client) ObserveRequest(method string, status int, dur time.Duration) {
	if m == nil {
		return
	}

	label := StatusTransportError
	if status > 0 {
		label = strconv.Itoa(status)
	}

	m.requestsTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

func (m *Client) IncRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *Client) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *Client) RefreshStarted() {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(1)
}

func (m *Client) RefreshFinished() {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(0)
}

func (m *Client) IncWaiter() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

func (m *Client) IncLogout() {
	if m == nil {
		return
	}
	m.logoutsTotal.Inc()
}
