package subprocess

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// Run starts command, collects any stdout and stderr redirected to Pipe and
// waits for it to exit.
//
// Unless Timeout is negative the child is terminated once the deadline passes,
// killed if it outlives KillGrace, reaped, and Run fails with
// *TimeoutExpired carrying the output read so far. With Check set, a
// non-zero return code makes Run return the result together with a
// *CalledProcessError.
func Run(command []string, opts ...Option) (result *CompletedProcess, err error) {
	o := newRunOptions(opts...)

	_, span := o.Tracer.Start(context.Background(), "subprocess.Run",
		trace.WithAttributes(
			attribute.StringSlice("subprocess.args", command),
			attribute.String("subprocess.cwd", o.Cwd),
			attribute.Int64("subprocess.timeout_ms", o.Timeout.Milliseconds()),
		))
	defer func() {
		if result != nil {
			span.SetAttributes(attribute.Int("subprocess.return_code", result.ReturnCode))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(GetErrorCode(err)))
		}
		span.End()
	}()

	p, err := spawn(command, o)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	span.SetAttributes(
		attribute.String("subprocess.id", p.ID),
		attribute.Int("subprocess.pid", p.Pid),
	)

	// nothing writes to a piped stdin here, so the child gets EOF right away
	_ = p.CloseStdin()

	var stdout, stderr drain
	var drains sync.WaitGroup
	stdout.start(&drains, p.takeStdout())
	stderr.start(&drains, p.takeStderr())

	code, err := p.Wait(o.Timeout)
	var expired *TimeoutExpired
	if errors.As(err, &expired) {
		p.logger.Debug("run timed out, stopping child",
			"process_id", p.ID,
			"timeout", o.Timeout,
			"kill_grace", o.KillGrace)
		span.AddEvent("timeout")
		if stopErr := p.stop(o.KillGrace); stopErr != nil {
			return nil, stopErr
		}
		drains.Wait()
		return nil, ErrTimeoutExpired(command, o.Timeout, stdout.data, stderr.data)
	}
	if err != nil {
		return nil, err
	}
	drains.Wait()

	result = &CompletedProcess{
		ID:         p.ID,
		Args:       command,
		ReturnCode: code,
		Stdout:     stdout.data,
		Stderr:     stderr.data,
		Duration:   time.Since(p.started),
	}
	if o.Check {
		return result, result.CheckReturnCode()
	}
	return result, nil
}

// stop terminates the process, kills it if it is still running after grace,
// and reaps it.
func (p *Process) stop(grace time.Duration) error {
	if _, err := p.Terminate(); err != nil {
		return err
	}
	if grace > 0 {
		_, err := p.Wait(grace)
		if !IsErrorCode(err, ErrorCodeTimeoutExpired) {
			return err
		}
	}
	if _, err := p.Kill(); err != nil {
		return err
	}
	_, err := p.Wait(NoTimeout)
	return err
}

func (p *Process) takeStdout() pipe.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.Stdout
	p.Stdout = pipe.Invalid
	return h
}

func (p *Process) takeStderr() pipe.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.Stderr
	p.Stderr = pipe.Invalid
	return h
}

// drain collects one captured stream in the background. Read errors end the
// drain and keep whatever arrived.
type drain struct {
	data []byte
}

func (d *drain) start(wg *sync.WaitGroup, h pipe.Handle) {
	if h == pipe.Invalid {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pipe.Close(h)
		d.data, _ = pipe.ReadAll(h)
	}()
}
