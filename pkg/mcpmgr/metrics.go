package mcpmgr

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mcpmgr"

// connectMetrics records per-server connection results. A nil
// *connectMetrics is valid and records nothing.
type connectMetrics struct {
	outcomes  *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  *prometheus.HistogramVec
}

func newConnectMetrics(reg prometheus.Registerer) (*connectMetrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &connectMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connect_outcomes_total",
				Help:      "Server connection outcomes by transport and result",
			},
			[]string{"transport", "result"},
		),
		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "transport_fallbacks_total",
				Help:      "Streamable HTTP attempts that fell back to legacy SSE",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "connect_duration_seconds",
				Help:      "Time spent establishing one server session",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"transport"},
		),
	}
	var err error
	m.outcomes, err = register(reg, m.outcomes)
	if err != nil {
		return nil, err
	}
	m.fallbacks, err = register(reg, m.fallbacks)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered by an
// earlier fleet on the same registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *connectMetrics) observe(out *Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if out.Failure != nil {
		result = string(out.Failure.Kind)
	}
	m.outcomes.WithLabelValues(string(out.Transport), result).Inc()
	m.duration.WithLabelValues(string(out.Transport)).Observe(elapsed.Seconds())
}

func (m *connectMetrics) fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
