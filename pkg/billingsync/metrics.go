package billingsync

import "time"

// Metrics defines the interface for tracking webhook processing.
// All methods are optional - a nil Metrics in Config falls back to NoopMetrics.
type Metrics interface {
	// RecordEvent records a dispatched event.
	// outcome: "applied", "skipped", "ignored" or "failed"
	RecordEvent(eventType, outcome string)

	// RecordProcessingDuration records how long a handler took.
	RecordProcessingDuration(eventType string, duration time.Duration)

	// RecordError records a processing error.
	// kind: "missing_field", "invalid_payload", "lookup_miss", "external_call"
	RecordError(kind string)

	// RecordRoleChange records a role being written to a user.
	RecordRoleChange(role string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordError(_ string)                               {}
func (n *NoopMetrics) RecordRoleChange(_ string)                          {}
