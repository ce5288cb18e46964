package subprocess

import (
	"bytes"
	"io"
	"os"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// Redirect says where one standard stream of the child goes. It is a closed
// set: every kind is defined in this file and carries its own validation and
// resolution.
type Redirect interface {
	// validate rejects kinds that make no sense for s, before any OS
	// resource exists.
	validate(s stream) error
	// resolve wires s into the child slot table.
	resolve(r *resolver, s stream) error
}

// StreamOption is a symbolic redirect.
type StreamOption int

const (
	// Inherit gives the child the parent's own stream.
	Inherit StreamOption = iota
	// Pipe captures the stream through a new pipe whose parent end is kept
	// on the Process (Process.Stdin, Process.Stdout or Process.Stderr).
	Pipe
	// ToStdout makes stderr a copy of whatever stdout ends up as.
	ToStdout
	// ToStderr makes stdout a copy of whatever stderr ends up as.
	ToStderr
	// Close leaves the child without this stream.
	Close
)

func (o StreamOption) String() string {
	switch o {
	case Inherit:
		return "inherit"
	case Pipe:
		return "pipe"
	case ToStdout:
		return "stdout"
	case ToStderr:
		return "stderr"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

func (o StreamOption) validate(s stream) error {
	switch o {
	case Inherit, Pipe, Close:
		return nil
	case ToStdout:
		if s != streamStderr {
			return ErrInvalidArgument(s.String(), o.String(), "only stderr can be redirected to stdout")
		}
		return nil
	case ToStderr:
		if s != streamStdout {
			return ErrInvalidArgument(s.String(), o.String(), "only stdout can be redirected to stderr")
		}
		return nil
	}
	return ErrInvalidArgument(s.String(), int(o), "unknown stream option")
}

func (o StreamOption) resolve(r *resolver, s stream) error {
	switch o {
	case Inherit:
		r.files[s] = pipe.Stdio(int(s))
	case Pipe:
		h, err := r.capture(s)
		if err != nil {
			return err
		}
		r.parent[s] = h
	case Close:
		return r.closeSlot(s)
	case ToStdout:
		r.files[s] = r.files[streamStdout]
	case ToStderr:
		r.deferStdout = true
	}
	return nil
}

// UseHandle installs h as the child's stream. Ownership of h passes to the
// spawn: once the child has started, h is closed in the parent, so callers
// should disown it after a successful Popen. On a failed spawn the caller
// still owns h.
func UseHandle(h pipe.Handle) Redirect {
	return handleRedirect{h: h}
}

type handleRedirect struct {
	h pipe.Handle
}

func (hr handleRedirect) validate(s stream) error {
	if hr.h == pipe.Invalid {
		return ErrInvalidArgument(s.String(), "invalid handle", "caller-supplied handle is invalid")
	}
	return nil
}

func (hr handleRedirect) resolve(r *resolver, s stream) error {
	r.files[s] = hr.h
	r.consume(hr.h)
	return nil
}

// UseFile gives the child f's descriptor directly. The caller keeps
// ownership of f.
func UseFile(f *os.File) Redirect {
	return fileRedirect{f: f}
}

type fileRedirect struct {
	f *os.File
}

func (fr fileRedirect) validate(s stream) error {
	if fr.f == nil {
		return ErrInvalidArgument(s.String(), nil, "file is nil")
	}
	return nil
}

func (fr fileRedirect) resolve(r *resolver, s stream) error {
	r.files[s] = pipe.Handle(fr.f.Fd())
	r.keepAlive = append(r.keepAlive, fr.f)
	return nil
}

// FromBytes feeds b to the child's stdin, then closes it.
func FromBytes(b []byte) Redirect {
	return bytesSource(b)
}

// FromString feeds s to the child's stdin, then closes it.
func FromString(s string) Redirect {
	return bytesSource(s)
}

type bytesSource []byte

func (b bytesSource) validate(s stream) error {
	if s != streamStdin {
		return ErrInvalidArgument(s.String(), "bytes", "an input buffer can only feed stdin")
	}
	return nil
}

func (b bytesSource) resolve(r *resolver, s stream) error {
	h, err := r.capture(s)
	if err != nil {
		return err
	}
	r.pumps = append(r.pumps, sourcePump(s, h, bytes.NewReader(b)))
	return nil
}

// FromReader copies src into the child's stdin until src is exhausted, then
// closes it.
func FromReader(src io.Reader) Redirect {
	return readerSource{src: src}
}

type readerSource struct {
	src io.Reader
}

func (rs readerSource) validate(s stream) error {
	if rs.src == nil {
		return ErrInvalidArgument(s.String(), nil, "reader is nil")
	}
	if s != streamStdin {
		return ErrInvalidArgument(s.String(), "reader", "a reader can only feed stdin")
	}
	return nil
}

func (rs readerSource) resolve(r *resolver, s stream) error {
	h, err := r.capture(s)
	if err != nil {
		return err
	}
	r.pumps = append(r.pumps, sourcePump(s, h, rs.src))
	return nil
}

// ToWriter copies the child's stdout or stderr into dst. The copy is complete
// once Process.Wait returns.
func ToWriter(dst io.Writer) Redirect {
	return writerSink{dst: dst}
}

// ToBuffer appends the child's stdout or stderr to buf. The buffer must not
// be read before Process.Wait returns.
func ToBuffer(buf *bytes.Buffer) Redirect {
	if buf == nil {
		return writerSink{}
	}
	return writerSink{dst: buf}
}

type writerSink struct {
	dst io.Writer
}

func (ws writerSink) validate(s stream) error {
	if ws.dst == nil {
		return ErrInvalidArgument(s.String(), nil, "writer is nil")
	}
	if s == streamStdin {
		return ErrInvalidArgument(s.String(), "writer", "an output sink cannot be a data source")
	}
	return nil
}

func (ws writerSink) resolve(r *resolver, s stream) error {
	h, err := r.capture(s)
	if err != nil {
		return err
	}
	r.pumps = append(r.pumps, sinkPump(s, h, ws.dst))
	return nil
}
