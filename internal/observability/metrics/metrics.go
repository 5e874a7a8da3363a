package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vetclinic"

// MessagingMetrics exposes counters/histograms for channel webhooks and sends.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Twilio webhooks",
		}, []string{"channel", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound sends",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}

// ConversationMetrics covers the turn engine, classifier, calendar and
// emergency fan-out.
type ConversationMetrics struct {
	turnsTotal          *prometheus.CounterVec
	illegalTransitions  *prometheus.CounterVec
	classifierFallbacks *prometheus.CounterVec
	bookingsTotal       *prometheus.CounterVec
	alertsTotal         *prometheus.CounterVec
	turnLatency         *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Processed turns by channel, resulting state and outcome",
		}, []string{"channel", "state", "outcome"}),
		illegalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "illegal_transitions_total",
			Help:      "Rejected state transitions",
		}, []string{"from", "to"}),
		classifierFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "fallbacks_total",
			Help:      "Classifier calls answered by a fallback",
		}, []string{"stage"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "bookings_total",
			Help:      "Booking attempts by result code",
		}, []string{"result"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "alerts_total",
			Help:      "Emergency alerts by channel and status",
		}, []string{"channel", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn processing latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.illegalTransitions, m.classifierFallbacks, m.bookingsTotal, m.alertsTotal, m.turnLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(channel, state, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, state, outcome).Inc()
	m.turnLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *ConversationMetrics) ObserveIllegalTransition(from, to string) {
	if m == nil {
		return
	}
	m.illegalTransitions.WithLabelValues(from, to).Inc()
}

func (m *ConversationMetrics) ObserveClassifierFallback(stage string) {
	if m == nil {
		return
	}
	m.classifierFallbacks.WithLabelValues(stage).Inc()
}

func (m *ConversationMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveAlert(channel, status string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(channel, status).Inc()
}
