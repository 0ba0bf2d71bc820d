package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venue"

// Metrics groups the collectors exported by the venue core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	sessionRevenue   *prometheus.CounterVec
	ordersCreated    *prometheus.CounterVec
	orderItems       *prometheus.CounterVec
	stockDeductions  *prometheus.CounterVec
	txConflicts      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDurations    *prometheus.HistogramVec
	notificationSent *prometheus.CounterVec
	devices          prometheus.Gauge
	occupiedDevices  prometheus.Gauge
	lowStockSnacks   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_started_total",
			Help: "Device sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_ended_total",
			Help: "Device sessions ended and billed, by session kind.",
		}, []string{"kind"}),
		sessionRevenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_revenue_total",
			Help: "Sum of game prices billed, by session kind.",
		}, []string{"kind"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Snack orders created, by order kind.",
		}, []string{"kind"}),
		orderItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_items_added_total",
			Help: "Add-item operations on existing orders, by mode.",
		}, []string{"mode"}),
		stockDeductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_deductions_total",
			Help: "Stock deduction attempts, by outcome.",
		}, []string{"outcome"}),
		txConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_conflicts_total",
			Help: "Units of work aborted by a version conflict, by operation.",
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notificationSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_notifications_total",
			Help: "Push notifications attempted, by outcome.",
		}, []string{"outcome"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "devices",
			Help: "Devices known to the venue at the last sample.",
		}),
		occupiedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "devices_occupied",
			Help: "Devices with a running session at the last sample.",
		}),
		lowStockSnacks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "snacks_low_stock",
			Help: "Snacks at or below the low-stock threshold at the last sample.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sessionsStarted, m.sessionsEnded, m.sessionRevenue,
			m.ordersCreated, m.orderItems, m.stockDeductions, m.txConflicts,
			m.httpRequests, m.httpDurations, m.notificationSent,
			m.devices, m.occupiedDevices, m.lowStockSnacks,
		)
	}
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionEnded(kind string, gamePrice float64) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(kind).Inc()
	m.sessionRevenue.WithLabelValues(kind).Add(gamePrice)
}

func (m *Metrics) OrderCreated(kind string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(kind).Inc()
}

// OrderItemAdded records an add-item; mode is "increment" or "append".
func (m *Metrics) OrderItemAdded(mode string) {
	if m == nil {
		return
	}
	m.orderItems.WithLabelValues(mode).Inc()
}

// StockDeduction records a deduction attempt; outcome is "ok", "out_of_stock" or "error".
func (m *Metrics) StockDeduction(outcome string) {
	if m == nil {
		return
	}
	m.stockDeductions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TxConflict(operation string) {
	if m == nil {
		return
	}
	m.txConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) NotificationSent(outcome string) {
	if m == nil {
		return
	}
	m.notificationSent.WithLabelValues(outcome).Inc()
}

// Occupancy publishes a venue snapshot taken by the sampler.
func (m *Metrics) Occupancy(devices, occupied, lowStock int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(devices))
	m.occupiedDevices.Set(float64(occupied))
	m.lowStockSnacks.Set(float64(lowStock))
}
