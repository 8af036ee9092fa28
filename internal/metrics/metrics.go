package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillm/powertrader/pkg/utils"
)

// Metrics — счетчики и датчики движка для Prometheus
type Metrics struct {
	OrdersTotal    *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec
	RealizedProfit prometheus.Gauge
	AccountValue   prometheus.Gauge
	PendingOrders  prometheus.Gauge
	SweepDuration  prometheus.Histogram
	BrokerErrors   prometheus.Counter
}

// New регистрирует метрики в переданном реестре
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "powertrader_orders_total",
			Help: "Orders submitted to the broker by side and tag.",
		}, []string{"side", "tag"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "powertrader_decisions_total",
			Help: "Strategy decisions made per sweep by action.",
		}, []string{"action"}),
		RealizedProfit: factory.NewGauge(prometheus.GaugeOpts{
			Name: "powertrader_realized_profit_usd",
			Help: "Cumulative realized profit in USD.",
		}),
		AccountValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "powertrader_account_value_usd",
			Help: "Last observed total account value in USD.",
		}),
		PendingOrders: factory.NewGauge(prometheus.GaugeOpts{
			Name: "powertrader_pending_orders",
			Help: "Orders currently awaiting a terminal status.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "powertrader_sweep_duration_seconds",
			Help:    "Duration of one evaluation sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		BrokerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "powertrader_broker_errors_total",
			Help: "Broker calls that failed or timed out.",
		}),
	}
}

// ObserveSweep фиксирует длительность прохода
func (m *Metrics) ObserveSweep(started time.Time) {
	m.SweepDuration.Observe(time.Since(started).Seconds())
}

// Serve поднимает HTTP-эндпоинт /metrics на отдельной горутине
func Serve(addr string, logger *utils.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("Metrics endpoint listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server stopped: %v", err)
		}
	}()
}
