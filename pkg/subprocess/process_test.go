package subprocess

import (
	"errors"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/prism-subprocess/internal/testchild"
	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// TestPopen_CaptureStdout tests reading piped stdout directly
func TestPopen_CaptureStdout(t *testing.T) {
	p := popen(t, "echo", []string{"hello", "world"}, WithStdout(Pipe))

	assert.NotEmpty(t, p.ID)
	assert.Greater(t, p.Pid, 0)
	assert.Equal(t, pipe.Invalid, p.Stdin)
	assert.Equal(t, pipe.Invalid, p.Stderr)

	out, err := pipe.ReadAll(p.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(out))

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, StateExited, p.State())
}

// TestPopen_StdinRoundTrip tests writing to the child and reading back
func TestPopen_StdinRoundTrip(t *testing.T) {
	p := popen(t, "cat", nil, WithStdin(Pipe), WithStdout(Pipe))

	_, err := pipe.WriteAll(p.Stdin, []byte("round trip"))
	require.NoError(t, err)
	require.NoError(t, p.CloseStdin())
	assert.Equal(t, pipe.Invalid, p.Stdin)

	out, err := pipe.ReadAll(p.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(out))

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// TestPopen_ManualChain tests connecting two children through a caller pipe
func TestPopen_ManualChain(t *testing.T) {
	pair, err := pipe.Create(false)
	require.NoError(t, err)
	defer pair.Close()

	producer := popen(t, "echo", []string{"chained"}, WithStdout(UseHandle(pair.Write)))
	pair.DisownWrite()

	consumer := popen(t, "cat", nil, WithStdin(UseHandle(pair.Read)), WithStdout(Pipe))
	pair.DisownRead()
	assert.True(t, pair.Empty())

	out, err := pipe.ReadAll(consumer.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "chained\n", string(out))

	code, err := producer.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	code, err = consumer.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// TestProcess_PollIsIdempotent tests that a known exit is never queried again
func TestProcess_PollIsIdempotent(t *testing.T) {
	p := popen(t, "exit", []string{"3"})
	waitExited(t, p)

	queries := p.statusQueries.Load()
	for i := 0; i < 5; i++ {
		done, err := p.Poll()
		require.NoError(t, err)
		assert.True(t, done)
	}

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	code, err = p.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	assert.Equal(t, queries, p.statusQueries.Load())

	rc, ok := p.ReturnCode()
	assert.True(t, ok)
	assert.Equal(t, 3, rc)
}

// TestProcess_ReturnCodeUnknownWhileRunning tests the cached code before exit
func TestProcess_ReturnCodeUnknownWhileRunning(t *testing.T) {
	p := popen(t, "sleep", nil)

	rc, ok := p.ReturnCode()
	assert.False(t, ok)
	assert.Equal(t, ReturnCodeUnknown, rc)
	assert.Equal(t, StateRunning, p.State())

	done, err := p.Poll()
	require.NoError(t, err)
	assert.False(t, done)
}

// TestProcess_WaitTimeoutLeavesChildRunning tests a bounded wait on a live child
func TestProcess_WaitTimeoutLeavesChildRunning(t *testing.T) {
	p := popen(t, "sleep", nil)

	start := time.Now()
	_, err := p.Wait(50 * time.Millisecond)
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	var expired *TimeoutExpired
	require.True(t, errors.As(err, &expired))
	assert.Equal(t, 50*time.Millisecond, expired.Timeout)
	assert.True(t, IsErrorCode(err, ErrorCodeTimeoutExpired))

	done, err := p.Poll()
	require.NoError(t, err)
	assert.False(t, done, "a timed out wait must not stop the child")

	sent, err := p.Kill()
	require.NoError(t, err)
	assert.True(t, sent)

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		assert.Equal(t, 1, code)
	} else {
		assert.Equal(t, -int(syscall.SIGKILL), code)
		assert.Equal(t, StateSignaled, p.State())
	}

	sent, err = p.Kill()
	require.NoError(t, err)
	assert.False(t, sent, "signals after exit are not delivered")
}

// TestProcess_Terminate tests SIGTERM delivery
func TestProcess_Terminate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("terminate maps to TerminateProcess on windows")
	}
	p := popen(t, "sleep", nil)

	sent, err := p.Terminate()
	require.NoError(t, err)
	assert.True(t, sent)

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, -int(syscall.SIGTERM), code)
}

// TestProcess_PollDuringBlockingWait tests Poll while another goroutine waits
func TestProcess_PollDuringBlockingWait(t *testing.T) {
	p := popen(t, "sleep", []string{"200ms"})

	waited := make(chan int, 1)
	go func() {
		code, _ := p.Wait(NoTimeout)
		waited <- code
	}()

	waitExited(t, p)
	assert.Equal(t, 0, <-waited)
}

// TestProcess_SignalRacingWait tests signals sent while another goroutine
// reaps the child: none fail, and none are sent once the exit is recorded
func TestProcess_SignalRacingWait(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal 0 maps to a console event on windows")
	}
	p := popen(t, "sleep", []string{"100ms"})

	waited := make(chan struct{})
	go func() {
		defer close(waited)
		_, _ = p.Wait(NoTimeout)
	}()

	for running := true; running; {
		select {
		case <-waited:
			running = false
		default:
			_, err := p.SendSignal(syscall.Signal(0))
			require.NoError(t, err)
			time.Sleep(time.Millisecond)
		}
	}

	code, ok := p.ReturnCode()
	require.True(t, ok)
	assert.Equal(t, 0, code)

	sent, err := p.SendSignal(syscall.Signal(0))
	require.NoError(t, err)
	assert.False(t, sent)
}

// TestProcess_CloseReaps tests that Close waits for and releases the child
func TestProcess_CloseReaps(t *testing.T) {
	p, err := Popen(testchild.Command("exit", "7"))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.Equal(t, StateClosed, p.State())

	rc, ok := p.ReturnCode()
	assert.True(t, ok)
	assert.Equal(t, 7, rc)

	require.NoError(t, p.Close(), "close is idempotent")
}

// TestProcess_CloseUnblocksStdinReader tests that Close closes stdin first
func TestProcess_CloseUnblocksStdinReader(t *testing.T) {
	p, err := Popen(testchild.Command("cat"), WithStdin(Pipe))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		_, _ = p.Kill()
		t.Fatal("Close did not return")
	}
}

// TestProcess_Move tests ownership transfer between handles
func TestProcess_Move(t *testing.T) {
	src, err := Popen(testchild.Command("echo", "moved"), WithStdout(Pipe))
	require.NoError(t, err)
	pid := src.Pid
	stdout := src.Stdout

	dst := src.Move()
	defer dst.Close()

	assert.Equal(t, pid, dst.Pid)
	assert.Equal(t, stdout, dst.Stdout)
	assert.Equal(t, 0, src.Pid)
	assert.Equal(t, pipe.Invalid, src.Stdout)
	assert.Equal(t, StateClosed, src.State())
	require.NoError(t, src.Close())

	_, err = src.Poll()
	assert.True(t, IsErrorCode(err, ErrorCodeProcessClosed))

	out, err := pipe.ReadAll(dst.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "moved\n", string(out))

	code, err := dst.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// TestProcess_IgnoreOutput tests that ignored output never blocks the child
func TestProcess_IgnoreOutput(t *testing.T) {
	p := popen(t, "interleave", []string{"5000"}, WithCapture())
	p.IgnoreOutput()
	assert.Equal(t, pipe.Invalid, p.Stdout)
	assert.Equal(t, pipe.Invalid, p.Stderr)

	code, err := p.Wait(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// TestProcess_ToBufferAndFromReader tests the background pumps
func TestProcess_ToBufferAndFromReader(t *testing.T) {
	var out strings.Builder
	p := popen(t, "cat", nil,
		WithStdin(FromReader(strings.NewReader("pumped through"))),
		WithStdout(ToWriter(&out)))

	assert.Equal(t, pipe.Invalid, p.Stdin, "pumps own their pipe ends")
	assert.Equal(t, pipe.Invalid, p.Stdout)

	code, err := p.Wait(NoTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "pumped through", out.String())
}
