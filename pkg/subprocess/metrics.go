package subprocess

import (
	"syscall"
	"time"
)

// MetricsCollector defines the interface for collecting child process metrics.
// program is the base name of argv[0].
type MetricsCollector interface {
	// ProcessSpawned records a successful spawn and how long it took
	ProcessSpawned(program string, duration time.Duration)

	// SpawnFailed records a spawn that failed with the given error code
	SpawnFailed(program string, code ErrorCode)

	// ProcessExited records an observed exit and the process lifetime
	ProcessExited(program string, state State, lifetime time.Duration)

	// SignalSent records a delivered signal
	SignalSent(program string, sig syscall.Signal)

	// WaitTimedOut records a bounded wait that ran out
	WaitTimedOut(program string)

	// BytesPumped records bytes moved by a stream pump
	BytesPumped(program, stream string, n int64)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) ProcessSpawned(program string, duration time.Duration)             {}
func (n *noopMetricsCollector) SpawnFailed(program string, code ErrorCode)                        {}
func (n *noopMetricsCollector) ProcessExited(program string, state State, lifetime time.Duration) {}
func (n *noopMetricsCollector) SignalSent(program string, sig syscall.Signal)                     {}
func (n *noopMetricsCollector) WaitTimedOut(program string)                                       {}
func (n *noopMetricsCollector) BytesPumped(program, stream string, bytes int64)                   {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
