package subprocess

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrepp/prism-subprocess/pkg/subprocess"

// RunOptions configures one spawn. The zero value inherits all three
// streams, the working directory and the environment, and waits without a
// deadline.
type RunOptions struct {
	Stdin  Redirect
	Stdout Redirect
	Stderr Redirect

	// Cwd is the child's working directory; empty means the parent's.
	Cwd string

	// Env replaces the child's environment when non-empty.
	Env map[string]string

	// ClearEnv starts the child with Env only, even when Env is empty.
	ClearEnv bool

	// Timeout bounds Run. Negative (NoTimeout, the default from Option
	// functions) waits without a deadline; zero checks once and times out
	// if the child is still running.
	Timeout time.Duration

	// KillGrace is how long Run waits after terminating a timed-out child
	// before killing it.
	KillGrace time.Duration

	// Check makes Run fail with *CalledProcessError on a non-zero exit.
	Check bool

	// NewProcessGroup starts the child in its own process group. On Windows
	// this is required for SendSignal with anything but kill to avoid
	// hitting every process on the console, the parent included.
	NewProcessGroup bool

	Logger  *slog.Logger
	Metrics MetricsCollector

	// Tracer records one span per Run. Defaults to the global provider.
	Tracer trace.Tracer
}

// Option configures RunOptions
type Option func(*RunOptions)

func newRunOptions(opts ...Option) *RunOptions {
	ro := &RunOptions{
		Stdin:     Inherit,
		Stdout:    Inherit,
		Stderr:    Inherit,
		Timeout:   NoTimeout,
		KillGrace: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(ro)
	}
	if ro.Stdin == nil {
		ro.Stdin = Inherit
	}
	if ro.Stdout == nil {
		ro.Stdout = Inherit
	}
	if ro.Stderr == nil {
		ro.Stderr = Inherit
	}
	if ro.Logger == nil {
		ro.Logger = slog.Default()
	}
	if ro.Metrics == nil {
		ro.Metrics = NewNoopMetricsCollector()
	}
	if ro.Tracer == nil {
		ro.Tracer = otel.Tracer(tracerName)
	}
	return ro
}

// WithOptions copies every field of ro, for callers that build RunOptions
// as a struct. Timeout is copied as is, so set it to NoTimeout for an
// unbounded run.
func WithOptions(ro RunOptions) Option {
	return func(o *RunOptions) {
		*o = ro
		if o.KillGrace == 0 {
			o.KillGrace = 5 * time.Second
		}
	}
}

// WithStdin sets the stdin redirect
func WithStdin(r Redirect) Option {
	return func(o *RunOptions) {
		o.Stdin = r
	}
}

// WithStdout sets the stdout redirect
func WithStdout(r Redirect) Option {
	return func(o *RunOptions) {
		o.Stdout = r
	}
}

// WithStderr sets the stderr redirect
func WithStderr(r Redirect) Option {
	return func(o *RunOptions) {
		o.Stderr = r
	}
}

// WithInput feeds data to stdin
func WithInput(data []byte) Option {
	return WithStdin(FromBytes(data))
}

// WithCapture pipes both stdout and stderr
func WithCapture() Option {
	return func(o *RunOptions) {
		o.Stdout = Pipe
		o.Stderr = Pipe
	}
}

// WithCwd sets the child's working directory
func WithCwd(dir string) Option {
	return func(o *RunOptions) {
		o.Cwd = dir
	}
}

// WithEnv replaces the child's environment
func WithEnv(env map[string]string) Option {
	return func(o *RunOptions) {
		o.Env = env
	}
}

// WithClearEnv gives the child no environment beyond what WithEnv sets
func WithClearEnv(clear bool) Option {
	return func(o *RunOptions) {
		o.ClearEnv = clear
	}
}

// WithTimeout bounds Run. NoTimeout removes the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *RunOptions) {
		o.Timeout = d
	}
}

// WithKillGrace sets the delay between terminate and kill after a timeout
func WithKillGrace(d time.Duration) Option {
	return func(o *RunOptions) {
		o.KillGrace = d
	}
}

// WithCheck makes Run fail on a non-zero exit
func WithCheck(check bool) Option {
	return func(o *RunOptions) {
		o.Check = check
	}
}

// WithNewProcessGroup starts the child in its own process group
func WithNewProcessGroup(enabled bool) Option {
	return func(o *RunOptions) {
		o.NewProcessGroup = enabled
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *RunOptions) {
		o.Logger = logger
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *RunOptions) {
		o.Metrics = mc
	}
}

// WithTracer sets the tracer used for Run spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *RunOptions) {
		o.Tracer = tracer
	}
}
