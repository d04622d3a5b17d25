// Package metrics exposes decode outcomes as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder receives one observation per decode call.
type Recorder interface {
	ObserveDecode(entity, outcome string, took time.Duration)
	UnknownFields(entity string, n int)
	DeprecatedFields(entity string, n int)
}

// Nop discards observations.
type Nop struct{}

func (Nop) ObserveDecode(string, string, time.Duration) {}
func (Nop) UnknownFields(string, int)                   {}
func (Nop) DeprecatedFields(string, int)                {}

// Decode is the Prometheus-backed Recorder.
type Decode struct {
	decodes    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	unknown    *prometheus.CounterVec
	deprecated *prometheus.CounterVec
}

var _ Recorder = (*Decode)(nil)

// NewDecode creates the collectors and registers them on reg.
func NewDecode(reg prometheus.Registerer) (*Decode, error) {
	d := &Decode{
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apischema",
			Subsystem: "decoder",
			Name:      "decodes_total",
			Help:      "Decode calls by root entity and outcome.",
		}, []string{"entity", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "apischema",
			Subsystem: "decoder",
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding one payload.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"entity"}),
		unknown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apischema",
			Subsystem: "decoder",
			Name:      "unknown_fields_total",
			Help:      "Keys present on the wire but not described by the schema (strict mode only).",
		}, []string{"entity"}),
		deprecated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apischema",
			Subsystem: "decoder",
			Name:      "deprecated_fields_total",
			Help:      "Deprecated fields seen on the wire.",
		}, []string{"entity"}),
	}

	for _, c := range []prometheus.Collector{d.decodes, d.duration, d.unknown, d.deprecated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Decode) ObserveDecode(entity, outcome string, took time.Duration) {
	d.decodes.WithLabelValues(entity, outcome).Inc()
	d.duration.WithLabelValues(entity).Observe(took.Seconds())
}

func (d *Decode) UnknownFields(entity string, n int) {
	if n > 0 {
		d.unknown.WithLabelValues(entity).Add(float64(n))
	}
}

func (d *Decode) DeprecatedFields(entity string, n int) {
	if n > 0 {
		d.deprecated.WithLabelValues(entity).Add(float64(n))
	}
}
