package subprocess

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// errFinished is returned by osHandle.signal when the OS no longer knows the
// process.
var errFinished = errors.New("process already finished")

// errNoAwait is returned by osHandle.awaitExit on platforms that cannot
// block on exit without reaping.
var errNoAwait = errors.New("blocking exit wait not supported")

// osHandle is the platform half of a Process.
type osHandle interface {
	// poll checks for exit without blocking and reaps an exited child.
	poll() (code int, exited bool, err error)
	// awaitExit blocks until the child has exited, leaving it unreaped so
	// the next poll collects it.
	awaitExit() error
	signal(sig syscall.Signal) error
	// release frees the OS handle. Called once, after the child is reaped.
	release() error
}

// Process is a running or finished child started by Popen.
//
// The exported pipe handles are the parent's ends of streams redirected to
// Pipe, or pipe.Invalid. Callers may read and write them directly; Close
// closes whatever is still open. A Process must be closed, normally with
// defer, to reap the child and release its resources.
type Process struct {
	// ID is assigned at spawn for logs and metrics
	ID string

	Args []string
	Pid  int

	Stdin  pipe.Handle
	Stdout pipe.Handle
	Stderr pipe.Handle

	mu         sync.Mutex
	returnCode int
	state      State
	closed     bool
	os         osHandle

	// reapMu serializes status queries so the child is reaped exactly once.
	reapMu sync.Mutex
	// statusQueries counts OS status queries
	statusQueries atomic.Int64

	pumps   *sync.WaitGroup
	started time.Time
	program string
	logger  *slog.Logger
	metrics MetricsCollector
}

// ReturnCode returns the cached return code and whether it is known.
func (p *Process) ReturnCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.returnCode, p.returnCode != ReturnCodeUnknown
}

// State returns the lifecycle state
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return StateClosed
	}
	return p.state
}

func (p *Process) handle() (osHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.os == nil {
		return nil, ErrProcessClosed(p.ID)
	}
	return p.os, nil
}

// reap polls the OS under mu, so SendSignal never targets a pid that has
// already been reaped and possibly reused.
func (p *Process) reap(h osHandle) (bool, error) {
	p.mu.Lock()
	if p.returnCode != ReturnCodeUnknown {
		p.mu.Unlock()
		return true, nil
	}
	p.statusQueries.Add(1)
	code, exited, err := h.poll()
	if err != nil || !exited {
		p.mu.Unlock()
		return false, err
	}
	p.returnCode = code
	p.state = StateExited
	if code < 0 {
		p.state = StateSignaled
	}
	state := p.state
	p.mu.Unlock()

	lifetime := time.Since(p.started)
	p.metrics.ProcessExited(p.program, state, lifetime)
	p.logger.Debug("process exited",
		"process_id", p.ID,
		"pid", p.Pid,
		"return_code", code,
		"state", state.String(),
		"lifetime", lifetime)
	return true, nil
}

// Poll reports whether the process has exited, without blocking. Once an
// exit has been observed no further OS queries are made. While another
// goroutine is blocked in Wait, Poll reports false until that Wait returns.
func (p *Process) Poll() (bool, error) {
	if _, ok := p.ReturnCode(); ok {
		return true, nil
	}
	h, err := p.handle()
	if err != nil {
		return false, err
	}
	if !p.reapMu.TryLock() {
		return false, nil
	}
	defer p.reapMu.Unlock()

	exited, err := p.reap(h)
	if err != nil {
		return false, ErrOS("poll", err).WithContext("pid", p.Pid)
	}
	return exited, nil
}

// Wait waits for the process to exit and returns its return code. A negative
// timeout blocks until exit. Otherwise Wait polls until the timeout passes
// and then fails with *TimeoutExpired, leaving the process running.
//
// Once the exit is observed, Wait also waits for the stream pumps so that
// ToWriter and ToBuffer sinks hold all output.
func (p *Process) Wait(timeout time.Duration) (int, error) {
	if timeout < 0 {
		return p.waitBlocking()
	}

	deadline := time.Now().Add(timeout)
	for attempt := 0; ; attempt++ {
		done, err := p.Poll()
		if err != nil {
			return ReturnCodeUnknown, err
		}
		if done {
			p.joinPumps()
			code, _ := p.ReturnCode()
			return code, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.metrics.WaitTimedOut(p.program)
			return ReturnCodeUnknown, ErrTimeoutExpired(p.Args, timeout, nil, nil)
		}
		time.Sleep(min(pollInterval(attempt), remaining))
	}
}

func (p *Process) waitBlocking() (int, error) {
	if code, ok := p.ReturnCode(); ok {
		p.joinPumps()
		return code, nil
	}
	h, err := p.handle()
	if err != nil {
		return ReturnCodeUnknown, err
	}

	if err := p.awaitAndReap(h); err != nil {
		return ReturnCodeUnknown, err
	}

	p.joinPumps()
	code, _ := p.ReturnCode()
	return code, nil
}

// awaitAndReap blocks outside mu until the child exits, then reaps it
// through reap. Without a blocking non-reaping wait it falls back to polling.
func (p *Process) awaitAndReap(h osHandle) error {
	p.reapMu.Lock()
	defer p.reapMu.Unlock()

	for attempt := 0; ; attempt++ {
		exited, err := p.reap(h)
		if err != nil {
			return ErrOS("wait", err).WithContext("pid", p.Pid)
		}
		if exited {
			return nil
		}
		err = h.awaitExit()
		switch {
		case errors.Is(err, errNoAwait):
			time.Sleep(pollInterval(attempt))
		case err != nil:
			return ErrOS("wait", err).WithContext("pid", p.Pid)
		}
	}
}

func (p *Process) joinPumps() {
	if p.pumps != nil {
		p.pumps.Wait()
	}
}

// SendSignal delivers sig to the process. It returns false without doing
// anything once the process is known to have exited.
//
// On Windows only a few signals exist: SIGKILL and SIGTERM both call
// TerminateProcess, SIGINT sends CTRL_C_EVENT and anything else sends
// CTRL_BREAK_EVENT. Console events reach the whole process group, so start
// the child with NewProcessGroup to keep them away from the parent.
func (p *Process) SendSignal(sig syscall.Signal) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.returnCode != ReturnCodeUnknown {
		return false, nil
	}
	if p.os == nil {
		return false, ErrProcessClosed(p.ID)
	}
	if err := p.os.signal(sig); err != nil {
		if errors.Is(err, errFinished) {
			return false, nil
		}
		return false, ErrOS("signal", err).
			WithContext("pid", p.Pid).
			WithContext("signal", sig.String())
	}

	p.metrics.SignalSent(p.program, sig)
	p.logger.Debug("signal sent", "process_id", p.ID, "pid", p.Pid, "signal", sig.String())
	return true, nil
}

// Terminate asks the process to exit (SIGTERM)
func (p *Process) Terminate() (bool, error) {
	return p.SendSignal(syscall.SIGTERM)
}

// Kill forces the process to exit (SIGKILL)
func (p *Process) Kill() (bool, error) {
	return p.SendSignal(syscall.SIGKILL)
}

// Interrupt sends SIGINT
func (p *Process) Interrupt() (bool, error) {
	return p.SendSignal(syscall.SIGINT)
}

// CloseStdin closes the parent's end of a piped stdin so the child sees EOF.
func (p *Process) CloseStdin() error {
	p.mu.Lock()
	h := p.Stdin
	p.Stdin = pipe.Invalid
	p.mu.Unlock()
	return pipe.Close(h)
}

// IgnoreStdout discards piped stdout in the background.
func (p *Process) IgnoreStdout() {
	p.mu.Lock()
	h := p.Stdout
	p.Stdout = pipe.Invalid
	p.mu.Unlock()
	pipe.IgnoreAndClose(h)
}

// IgnoreStderr discards piped stderr in the background.
func (p *Process) IgnoreStderr() {
	p.mu.Lock()
	h := p.Stderr
	p.Stderr = pipe.Invalid
	p.mu.Unlock()
	pipe.IgnoreAndClose(h)
}

// IgnoreOutput discards piped stdout and stderr in the background.
func (p *Process) IgnoreOutput() {
	p.IgnoreStdout()
	p.IgnoreStderr()
}

// Close releases the process: parent pipe ends are closed, the child is
// waited for if it has not been reaped, pumps are joined and the OS handle
// is freed. Closing stdin first lets a child blocked on input finish.
// Close is idempotent.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	handles := []pipe.Handle{p.Stdin, p.Stdout, p.Stderr}
	p.Stdin, p.Stdout, p.Stderr = pipe.Invalid, pipe.Invalid, pipe.Invalid
	h := p.os
	p.mu.Unlock()

	var errs []error
	for _, ph := range handles {
		errs = append(errs, pipe.Close(ph))
	}
	if h == nil {
		return errors.Join(errs...)
	}

	if _, err := p.waitBlocking(); err != nil {
		errs = append(errs, err)
	}

	p.mu.Lock()
	p.os = nil
	p.mu.Unlock()
	errs = append(errs, h.release())
	return errors.Join(errs...)
}

// Move transfers ownership of everything p holds to a new Process and
// leaves p closed and empty, so closing p afterwards does nothing.
func (p *Process) Move() *Process {
	p.mu.Lock()
	defer p.mu.Unlock()

	dst := &Process{
		ID:         p.ID,
		Args:       p.Args,
		Pid:        p.Pid,
		Stdin:      p.Stdin,
		Stdout:     p.Stdout,
		Stderr:     p.Stderr,
		returnCode: p.returnCode,
		state:      p.state,
		closed:     p.closed,
		os:         p.os,
		pumps:      p.pumps,
		started:    p.started,
		program:    p.program,
		logger:     p.logger,
		metrics:    p.metrics,
	}
	dst.statusQueries.Store(p.statusQueries.Load())

	p.Stdin, p.Stdout, p.Stderr = pipe.Invalid, pipe.Invalid, pipe.Invalid
	p.Pid = 0
	p.os = nil
	p.pumps = nil
	p.closed = true
	return dst
}
