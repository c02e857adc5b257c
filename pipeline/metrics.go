package pipeline

import (
	"github.com/jancona/lmrdecode/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the decoder counters. A nil *Metrics records nothing.
type Metrics struct {
	syncDetections *prometheus.CounterVec // profile, pattern
	frames         *prometheus.CounterVec // profile, pattern, validity
	fecOutcomes    *prometheus.CounterVec // profile, step, outcome
	bitsCorrected  *prometheus.CounterVec // profile
	preemptions    *prometheus.CounterVec // profile
}

// NewMetrics registers the counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		syncDetections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmr_sync_detections_total",
				Help: "Sync patterns detected, by profile and pattern",
			},
			[]string{"profile", "pattern"},
		),
		frames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmr_frames_total",
				Help: "Frames captured and decoded, by validity",
			},
			[]string{"profile", "pattern", "validity"},
		),
		fecOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmr_fec_outcomes_total",
				Help: "Decode chain step outcomes",
			},
			[]string{"profile", "step", "outcome"},
		),
		bitsCorrected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmr_bits_corrected_total",
				Help: "Bit errors corrected by forward error correction",
			},
			[]string{"profile"},
		),
		preemptions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lmr_framer_preemptions_total",
				Help: "Partial frames abandoned for a new sync",
			},
			[]string{"profile"},
		),
	}
}

func (m *Metrics) syncDetected(profile, pattern string, preempted bool) {
	if m == nil {
		return
	}
	m.syncDetections.WithLabelValues(profile, pattern).Inc()
	if preempted {
		m.preemptions.WithLabelValues(profile).Inc()
	}
}

func (m *Metrics) frameDecoded(profile, pattern string, r protocol.Result) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(profile, pattern, r.Validity.String()).Inc()
	for _, s := range r.Steps {
		outcome := "ok"
		switch {
		case s.Err != nil:
			outcome = "failed"
		case s.Corrected > 0:
			outcome = "corrected"
		}
		m.fecOutcomes.WithLabelValues(profile, s.Name, outcome).Inc()
	}
	if r.Corrected > 0 {
		m.bitsCorrected.WithLabelValues(profile).Add(float64(r.Corrected))
	}
}
