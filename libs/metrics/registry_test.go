package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistryReturnsSameCollector(t *testing.T) {
	r := NewRegistry()

	c1 := r.Counter("trades_total", "help")
	c2 := r.Counter("trades_total", "help")
	assert.Same(t, c1, c2, "repeated registration must return the same collector")

	g1 := r.GaugeVec("head_loss", "help", "head")
	g2 := r.GaugeVec("head_loss", "help", "head")
	assert.Same(t, g1, g2)
}

func TestSimMetricsCount(t *testing.T) {
	r := NewRegistry()
	sim := NewSimMetrics(r)

	sim.Trades.Inc()
	sim.Trades.Inc()
	assert.InDelta(t, 2.0, testutil.ToFloat64(sim.Trades), 1e-12)

	tm := NewTrainerMetrics(r)
	tm.HeadLoss.WithLabelValues("purchaseNet").Set(1.5)
	assert.InDelta(t, 1.5, testutil.ToFloat64(tm.HeadLoss.WithLabelValues("purchaseNet")), 1e-12)
}
