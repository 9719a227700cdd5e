package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - коллекторы Prometheus, используемые сервисом
type Metrics struct {
	OrdersCreated    *prometheus.CounterVec
	PaymentCallbacks *prometheus.CounterVec
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	Logins           *prometheus.CounterVec
}

// New создаёт коллекторы и регистрирует их в reg
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created by payment method.",
		}, []string{"method"}),
		PaymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callbacks_total",
			Help:      "Payment callbacks by resulting order status.",
		}, []string{"outcome"}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by channel and result.",
		}, []string{"channel", "result"}),
	}

	reg.MustRegister(
		m.OrdersCreated,
		m.PaymentCallbacks,
		m.GatewayRequests,
		m.GatewayLatency,
		m.Logins,
	)
	return m
}

// NewNoop - метрики без регистрации, для тестов
func NewNoop() *Metrics {
	return New("test", prometheus.NewRegistry())
}
