package relation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine counters to Prometheus. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events *prometheus.CounterVec
	tuples *prometheus.GaugeVec
}

// NewMetrics creates the engine metrics and registers them. Collectors already registered by
// another registry on the same Registerer are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "liverel_events_total",
		Help: "Insert, delete and update events fired by relations.",
	}, []string{"relation", "event"})
	tuples := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "liverel_set_tuples",
		Help: "Number of tuples held by a base set.",
	}, []string{"set"})

	m := &Metrics{}
	var err error
	if m.events, err = register(reg, events); err != nil {
		return nil, err
	}
	if m.tuples, err = register(reg, tuples); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func (m *Metrics) event(kind Kind, ev string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(kind), ev).Inc()
}

func (m *Metrics) setTuples(set string, n int) {
	if m == nil {
		return
	}
	m.tuples.WithLabelValues(set).Set(float64(n))
}
