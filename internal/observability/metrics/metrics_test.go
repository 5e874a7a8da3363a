package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMessagingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMessagingMetrics(reg)
	m.ObserveInbound("chat", "queued")
	m.ObserveOutbound("whatsapp", "sent")
	m.ObserveWebhookLatency("voice", 0.5)

	if got := counterValue(t, reg, "vetclinic_messaging_outbound_total"); got != 1 {
		t.Fatalf("expected 1 outbound send, got %v", got)
	}
}

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveTurn("chat", "ASK_REASON", "ok", 0.2)
	m.ObserveTurn("chat", "OFFER_SLOTS", "ok", 0.3)
	m.ObserveIllegalTransition("GREETING", "COMPLETED")
	m.ObserveClassifierFallback("keyword")
	m.ObserveBooking("SLOT_TAKEN")
	m.ObserveAlert("whatsapp", "sent")

	if got := counterValue(t, reg, "vetclinic_conversation_turns_total"); got != 2 {
		t.Fatalf("expected 2 turns, got %v", got)
	}
	if got := counterValue(t, reg, "vetclinic_conversation_illegal_transitions_total"); got != 1 {
		t.Fatalf("expected 1 illegal transition, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MessagingMetrics
	m.ObserveInbound("chat", "status")
	m.ObserveOutbound("sms", "sent")
	m.ObserveWebhookLatency("chat", 0.1)

	var c *ConversationMetrics
	c.ObserveTurn("chat", "GREETING", "ok", 0.1)
	c.ObserveIllegalTransition("a", "b")
	c.ObserveClassifierFallback("safe")
	c.ObserveBooking("ok")
	c.ObserveAlert("sms", "failed")
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += sumCounter(metric)
		}
	}
	return total
}

func sumCounter(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}
