// Package subprocess spawns child processes with redirected standard streams
// and manages them until they are reaped.
//
// Popen starts a process and returns a *Process for polling, waiting and
// signaling. Run starts a process, drains its captured output and waits for
// it in one call.
package subprocess

import (
	"math"
	"time"
)

// ReturnCodeUnknown is the cached return code of a process that has not been
// observed to exit.
const ReturnCodeUnknown = math.MinInt32

// NoTimeout makes a wait block until the process exits.
const NoTimeout time.Duration = -1

// State represents the lifecycle state of a child process
type State int

const (
	// StateRunning - exit status not yet observed
	StateRunning State = iota
	// StateExited - process exited normally, return code is its exit status
	StateExited
	// StateSignaled - process was killed by a signal, return code is -signal
	StateSignaled
	// StateClosed - handle released; terminal
	StateClosed
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateExited:
		return "Exited"
	case StateSignaled:
		return "Signaled"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// stream identifies a standard stream slot in the child.
type stream int

const (
	streamStdin stream = iota
	streamStdout
	streamStderr
)

func (s stream) String() string {
	switch s {
	case streamStdin:
		return "stdin"
	case streamStdout:
		return "stdout"
	case streamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// CompletedProcess is the result of Run.
type CompletedProcess struct {
	// ID is the process ID assigned at spawn (not the OS pid)
	ID string

	Args []string

	// ReturnCode is the exit status, or -N when the process was killed by
	// signal N
	ReturnCode int

	// Stdout and Stderr hold captured output for streams redirected to Pipe
	Stdout []byte
	Stderr []byte

	Duration time.Duration
}

// OK reports whether the process exited with status 0.
func (c *CompletedProcess) OK() bool {
	return c.ReturnCode == 0
}

// CheckReturnCode returns a *CalledProcessError when the process did not
// exit with status 0.
func (c *CompletedProcess) CheckReturnCode() error {
	if c.ReturnCode == 0 {
		return nil
	}
	return ErrCalledProcess(c.Args, c.ReturnCode, c.Stdout, c.Stderr)
}
