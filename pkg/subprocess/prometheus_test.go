package subprocess

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/prism-subprocess/internal/testchild"
)

// TestPrometheusMetricsCollector_Spawns tests spawn counters and the running gauge
func TestPrometheusMetricsCollector_Spawns(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.ProcessSpawned("echo", time.Millisecond)
	pmc.ProcessSpawned("echo", 2*time.Millisecond)
	pmc.ProcessSpawned("cat", time.Millisecond)
	pmc.ProcessExited("echo", StateExited, time.Second)

	expected := `
		# HELP test_spawns_total Total number of child processes started
		# TYPE test_spawns_total counter
		test_spawns_total{program="cat"} 1
		test_spawns_total{program="echo"} 2
	`
	err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "test_spawns_total")
	assert.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(pmc.running))

	count, err := testutil.GatherAndCount(pmc.Registry(), "test_spawn_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestPrometheusMetricsCollector_Lifecycle tests exit, signal and timeout metrics
func TestPrometheusMetricsCollector_Lifecycle(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")

	pmc.SpawnFailed("missing", ErrorCodeCommandNotFound)
	pmc.ProcessExited("sleep", StateSignaled, time.Second)
	pmc.SignalSent("sleep", syscall.SIGKILL)
	pmc.WaitTimedOut("sleep")
	pmc.BytesPumped("cat", "stdin", 1024)

	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.spawnFailures.WithLabelValues("missing", "COMMAND_NOT_FOUND")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.exits.WithLabelValues("sleep", "Signaled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.signals.WithLabelValues("sleep", syscall.SIGKILL.String())))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.waitTimeouts.WithLabelValues("sleep")))
	assert.Equal(t, float64(1024), testutil.ToFloat64(pmc.pumpedBytes.WithLabelValues("cat", "stdin")))
}

// TestPrometheusMetricsCollector_DefaultNamespace tests the fallback namespace
func TestPrometheusMetricsCollector_DefaultNamespace(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")
	pmc.WaitTimedOut("x")

	count, err := testutil.GatherAndCount(pmc.Registry(), "subprocess_wait_timeouts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestPrometheusMetricsCollector_RunIntegration tests metrics recorded by a real run
func TestPrometheusMetricsCollector_RunIntegration(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("test")
	program := childProgram()

	_, err := Run(testchild.Command("cat"),
		WithInput([]byte("abc")),
		WithStdout(Pipe),
		WithMetricsCollector(pmc))
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.spawns.WithLabelValues(program)))
	assert.Equal(t, float64(1), testutil.ToFloat64(pmc.exits.WithLabelValues(program, "Exited")))
	assert.Equal(t, float64(3), testutil.ToFloat64(pmc.pumpedBytes.WithLabelValues(program, "stdin")))
	assert.Equal(t, float64(0), testutil.ToFloat64(pmc.running))

	_, err = Run([]string{"prism-no-such-program-xyz"}, WithMetricsCollector(pmc))
	require.Error(t, err)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(pmc.spawnFailures.WithLabelValues("prism-no-such-program-xyz", "COMMAND_NOT_FOUND")))
}
