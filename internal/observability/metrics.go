// Package observability exposes Prometheus collectors for the conversation
// subsystem. Label sets are kept small: partner kind and outcome only, never
// partner ids.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// Sends counts send-pipeline dispatches by partner kind and outcome
	// (ok, error, rejected).
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_sends_total",
			Help: "Total send pipeline dispatches.",
		},
		[]string{"kind", "outcome"},
	)

	// Rollbacks counts optimistic echoes removed after a failed dispatch.
	Rollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_send_rollbacks_total",
			Help: "Optimistic messages rolled back after dispatch failure.",
		},
	)

	// Recordings counts finished capture sessions by terminal state
	// (sent, discarded, transcription_failed, rejected).
	Recordings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recording_sessions_total",
			Help: "Audio capture sessions by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// SynthesisFailures counts speech synthesis attempts that failed.
	// Failures never affect the text conversation, so this counter is the
	// only place they surface besides logs.
	SynthesisFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "speech_synthesis_failures_total",
			Help: "Failed reply synthesis attempts.",
		},
	)
)

func init() {
	prometheus.MustRegister(Sends, Rollbacks, Recordings, SynthesisFailures)
}
