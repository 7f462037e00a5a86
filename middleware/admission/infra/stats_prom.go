package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"admission-gateway/middleware/admission/domain"
)

// PrometheusEventStore expõe as decisões de admissão como um counter vec
// rotulado por ação e motivo.
//
// Cardinalidade controlada de propósito: Key/Path não viram labels.
type PrometheusEventStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusEventStore(reg prometheus.Registerer) *PrometheusEventStore {
	s := &PrometheusEventStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by action and reason.",
		}, []string{"action", "reason"}),
	}
	reg.MustRegister(s.decisions)
	return s
}

func (s *PrometheusEventStore) Record(_ context.Context, ev domain.Event) error {
	s.decisions.WithLabelValues(string(ev.Action), string(ev.Reason)).Inc()
	return nil
}
