// Package metrics provides metrics recording for local model calls.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording model call metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed model call.
	ObserveRequest(
		model string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}
