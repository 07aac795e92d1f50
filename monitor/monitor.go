package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersAccepted prometheus.Counter
	ordersRejected *prometheus.CounterVec
	ordersCanceled prometheus.Counter
	creditRejects  prometheus.Counter

	// 成交指标
	tradesTotal  prometheus.Counter
	tradedVolume prometheus.Counter
	matchLatency prometheus.Histogram
	matchesEmpty prometheus.Counter

	// 簿指标
	workingOrders *prometheus.GaugeVec
	bestBid       *prometheus.GaugeVec
	bestAsk       *prometheus.GaugeVec

	// 通知指标
	eventsPublished *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// Config 监控配置
type Config struct {
	Namespace string
}

// New 创建Monitor实例
func New(cfg Config) *Monitor {
	if cfg.Namespace == "" {
		cfg.Namespace = "venue"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,
		ordersAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "orders_accepted_total",
			Help: "Orders accepted into the book",
		}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "orders_rejected_total",
			Help: "Orders rejected before matching",
		}, []string{"reason"}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "orders_canceled_total",
			Help: "Orders canceled by their owner",
		}),
		creditRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "credit_rejects_total",
			Help: "Orders rejected by the pre-trade credit gate",
		}),
		tradesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "trades_total",
			Help: "Trades booked by the matching engine",
		}),
		tradedVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "traded_volume_total",
			Help: "Total traded quantity",
		}),
		matchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Name: "matching_seconds",
			Help:    "Wall time of one matching attempt including restarts",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		matchesEmpty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "matches_empty_total",
			Help: "Matching attempts that produced no trades",
		}),
		workingOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Name: "working_orders",
			Help: "WORKING orders per instrument",
		}, []string{"symbol"}),
		bestBid: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Name: "best_bid",
			Help: "Best bid per instrument",
		}, []string{"symbol"}),
		bestAsk: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Name: "best_ask",
			Help: "Best ask per instrument",
		}, []string{"symbol"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Name: "events_published_total",
			Help: "Outbound notification events",
		}, []string{"type"}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Name: "ws_clients",
			Help: "Connected WebSocket subscribers",
		}),
	}
}

func (m *Monitor) OrderAccepted() { m.ordersAccepted.Inc() }
func (m *Monitor) OrderCanceled() { m.ordersCanceled.Inc() }
func (m *Monitor) CreditReject()  { m.creditRejects.Inc() }

func (m *Monitor) OrderRejected(reason string) {
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Monitor) TradeBooked(quantity float64) {
	m.tradesTotal.Inc()
	m.tradedVolume.Add(quantity)
}

func (m *Monitor) MatchingDone(elapsed time.Duration, trades int) {
	m.matchLatency.Observe(elapsed.Seconds())
	if trades == 0 {
		m.matchesEmpty.Inc()
	}
}

func (m *Monitor) SetBookStats(symbol string, working int, bestBid, bestAsk float64) {
	m.workingOrders.WithLabelValues(symbol).Set(float64(working))
	m.bestBid.WithLabelValues(symbol).Set(bestBid)
	m.bestAsk.WithLabelValues(symbol).Set(bestAsk)
}

func (m *Monitor) EventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Monitor) WSClientConnected()    { m.wsClients.Inc() }
func (m *Monitor) WSClientDisconnected() { m.wsClients.Dec() }

// Handler 返回 /metrics 的 HTTP handler。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
