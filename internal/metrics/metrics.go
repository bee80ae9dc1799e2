// Package metrics exposes Prometheus collectors for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Claim results.
const (
	ClaimWon      = "won"
	ClaimConflict = "conflict"
	ClaimRejected = "rejected"
)

// Metrics holds the chat collectors. A nil *Metrics is a no-op.
type Metrics struct {
	claims      *prometheus.CounterVec
	messages    *prometheus.CounterVec
	connections *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "claims_total",
			Help:      "Session claim attempts by result.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_total",
			Help:      "Persisted chat messages by sender type.",
		}, []string{"sender_type"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections by role.",
		}, []string{"role"}),
	}
	reg.MustRegister(m.claims, m.messages, m.connections)
	return m
}

// ObserveClaim counts one claim attempt.
func (m *Metrics) ObserveClaim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

// ObserveMessage counts one persisted message.
func (m *Metrics) ObserveMessage(senderType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(senderType).Inc()
}

// ConnectionOpened increments the connection gauge for role.
func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Inc()
}

// ConnectionClosed decrements the connection gauge for role.
func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Dec()
}
