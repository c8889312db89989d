package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink exporting frame attributes as gauges, each attribute
// name becoming a label value. The frame number is exposed as its own gauge
// so dashboards can correlate attribute updates.
type Prometheus struct {
	attrs *prometheus.GaugeVec
	frame prometheus.Gauge
}

// NewPrometheus creates a Prometheus sink and registers its collectors.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	p := &Prometheus{
		attrs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_attribute_seconds",
			Help:      "Per-frame timing attributes reported by the physics scheduler.",
		}, []string{"attribute"}),
		frame: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_number",
			Help:      "Latest frame a timing attribute was reported for.",
		}),
	}
	reg.MustRegister(p.attrs, p.frame)
	return p
}

func (p *Prometheus) Collect(string) bool {
	return true
}

func (p *Prometheus) SetAttribute(frame uint64, name string, value float64) {
	p.attrs.WithLabelValues(name).Set(value)
	p.frame.Set(float64(frame))
}
