// Package pipe provides thin wrappers over OS anonymous pipes and raw file
// handles: creation, inheritance and blocking control, reads and writes that
// separate end-of-stream from would-block, and readiness checks.
//
// Handles are plain values with a single logical owner. Whoever hands a
// handle to another owner (a child process, a *subprocess.Process, a pump
// goroutine) must disown it so that exactly one Close reaches the OS.
package pipe

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrWouldBlock is returned by Read and Write on a non-blocking handle
	// that is not ready. It is never returned for a blocking handle.
	ErrWouldBlock = errors.New("pipe: operation would block")

	// ErrInvalidHandle is returned when an operation that needs a real handle
	// is given Invalid.
	ErrInvalidHandle = errors.New("pipe: invalid handle")
)

// chunkSize is the read size used by ReadAll and the drain helpers.
const chunkSize = 4096

// Pair is the two ends of one anonymous pipe. Bytes written to Write come
// out of Read.
type Pair struct {
	Read  Handle
	Write Handle
}

// Empty reports whether the pair owns nothing. Both ends are Invalid in
// that case; two live ends are never equal.
func (p *Pair) Empty() bool {
	return p.Read == p.Write
}

// Close closes both ends.
func (p *Pair) Close() error {
	return errors.Join(p.CloseRead(), p.CloseWrite())
}

// CloseRead closes the read end and forgets it.
func (p *Pair) CloseRead() error {
	err := Close(p.Read)
	p.Read = Invalid
	return err
}

// CloseWrite closes the write end and forgets it.
func (p *Pair) CloseWrite() error {
	err := Close(p.Write)
	p.Write = Invalid
	return err
}

// Disown forgets both ends without closing them.
func (p *Pair) Disown() {
	p.Read = Invalid
	p.Write = Invalid
}

// DisownRead returns the read end and forgets it.
func (p *Pair) DisownRead() Handle {
	h := p.Read
	p.Read = Invalid
	return h
}

// DisownWrite returns the write end and forgets it.
func (p *Pair) DisownWrite() Handle {
	h := p.Write
	p.Write = Invalid
	return h
}

// ReadAll reads until end-of-stream. On a non-blocking handle it stops at
// the first would-block and returns what has arrived so far.
func ReadAll(h Handle) ([]byte, error) {
	var out []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := Read(h, buf)
		out = append(out, buf[:n]...)
		switch {
		case err == io.EOF, errors.Is(err, ErrWouldBlock):
			return out, nil
		case err != nil:
			return out, err
		}
	}
}

// ReadSome performs a single read of at most one chunk.
func ReadSome(h Handle) ([]byte, error) {
	buf := make([]byte, chunkSize)
	n, err := Read(h, buf)
	return buf[:n], err
}

// WriteAll writes b in full on a blocking handle.
func WriteAll(h Handle, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := Write(h, b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// IgnoreAndClose drains h in the background, discarding the data, and closes
// it once the writer goes away. Use it for output nobody wants so the child
// does not stall on a full pipe.
func IgnoreAndClose(h Handle) {
	if h == Invalid {
		return
	}
	_ = SetBlocking(h, true)
	go func() {
		buf := make([]byte, chunkSize)
		for {
			if _, err := Read(h, buf); err != nil {
				break
			}
		}
		_ = Close(h)
	}()
}

// NewReader adapts h to io.Reader. The reader does not own h.
func NewReader(h Handle) io.Reader {
	return reader(h)
}

// NewWriter adapts h to io.Writer. The writer does not own h.
func NewWriter(h Handle) io.Writer {
	return writer(h)
}

type reader Handle

func (r reader) Read(b []byte) (int, error) {
	return Read(Handle(r), b)
}

type writer Handle

func (w writer) Write(b []byte) (int, error) {
	return WriteAll(Handle(w), b)
}

// openMode is the parsed form of an OpenFile mode string.
type openMode struct {
	read, write   bool
	create, trunc bool
	append        bool
}

// parseMode accepts "r", "w", "a" optionally followed by "+", and "+" alone
// as read-write without truncation.
func parseMode(mode string) (openMode, error) {
	plus := strings.HasSuffix(mode, "+")
	base := strings.TrimSuffix(mode, "+")
	var m openMode
	switch base {
	case "r":
		m.read = true
	case "w":
		m.write, m.create, m.trunc = true, true, true
	case "a":
		m.write, m.create, m.append = true, true, true
	case "":
		if !plus {
			return m, fmt.Errorf("pipe: empty file mode")
		}
		m.create = true
	default:
		return m, fmt.Errorf("pipe: unsupported file mode %q", mode)
	}
	if plus {
		m.read, m.write = true, true
	}
	return m, nil
}
