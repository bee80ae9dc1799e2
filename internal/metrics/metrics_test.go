package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveClaim(ClaimWon)
	m.ObserveClaim(ClaimConflict)
	m.ObserveClaim(ClaimConflict)
	m.ObserveMessage("visitor")
	m.ConnectionOpened("admin")
	m.ConnectionOpened("admin")
	m.ConnectionClosed("admin")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues(ClaimWon)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.claims.WithLabelValues(ClaimConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("visitor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("admin")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveClaim(ClaimWon)
		m.ObserveMessage("admin")
		m.ConnectionOpened("visitor")
		m.ConnectionClosed("visitor")
	})
}
