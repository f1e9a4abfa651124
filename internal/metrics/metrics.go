// Package metrics exports wake-cycle counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/relay-clock/internal/cycle"
	"github.com/sweeney/relay-clock/internal/logic"
)

var (
	cyclesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_clock_cycles_total",
		Help: "wake cycles run, by mode (COLD_BOOT, WARM_WAKE, HALTED)",
	}, []string{"mode"})

	pulsesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_clock_pulses_total",
		Help: "segment relay coils pulsed while updating the time",
	})

	unpluggedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_clock_unplugged_cycles_total",
		Help: "cycles that skipped the relays because main power was absent",
	})

	relatchCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_clock_full_relatches_total",
		Help: "updates that drove all 28 segments because the face could not be trusted",
	})

	renderErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_clock_render_errors_total",
		Help: "updates in which at least one relay pulse failed",
	})

	dstCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_clock_dst_corrections_total",
		Help: "daylight-saving corrections applied, by action",
	}, []string{"action"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_clock_cycle_duration_seconds",
		Help:    "time from wake to standby",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Observe records one cycle report.
func Observe(rep cycle.Report) {
	cyclesCounter.WithLabelValues(string(rep.Mode)).Inc()
	if rep.Mode == cycle.Halted {
		return
	}
	pulsesCounter.Add(float64(rep.Pulses.Total()))
	if rep.Unplugged {
		unpluggedCounter.Inc()
	}
	if rep.FullRelatch {
		relatchCounter.Inc()
	}
	if rep.RenderError != "" {
		renderErrorCounter.Inc()
	}
	if rep.DST != "" && rep.DST != logic.DSTNone {
		dstCounter.WithLabelValues(string(rep.DST)).Inc()
	}
	cycleDuration.Observe(rep.Duration().Seconds())
}
