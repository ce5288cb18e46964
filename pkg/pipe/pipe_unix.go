//go:build unix

package pipe

import (
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Handle is a file descriptor.
type Handle int

// Invalid is the sentinel for "no handle".
const Invalid Handle = -1

// Stdio returns the parent's standard handle for slot 0, 1 or 2.
func Stdio(slot int) Handle {
	return Handle(slot)
}

// Create allocates a new pipe. Unless inheritable is set both ends are
// close-on-exec, so a child only receives the end explicitly mapped into it.
func Create(inheritable bool) (Pair, error) {
	var fds [2]int
	if err := newPipe(fds[:], !inheritable); err != nil {
		return Pair{Read: Invalid, Write: Invalid}, err
	}
	return Pair{Read: Handle(fds[0]), Write: Handle(fds[1])}, nil
}

// SetInheritable toggles FD_CLOEXEC on h.
func SetInheritable(h Handle, inheritable bool) error {
	if h == Invalid {
		return ErrInvalidHandle
	}
	flags, err := unix.FcntlInt(uintptr(h), unix.F_GETFD, 0)
	if err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	if inheritable {
		flags &^= unix.FD_CLOEXEC
	} else {
		flags |= unix.FD_CLOEXEC
	}
	if _, err := unix.FcntlInt(uintptr(h), unix.F_SETFD, flags); err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	return nil
}

// Read reads up to len(b) bytes. It returns io.EOF at end-of-stream and
// ErrWouldBlock when a non-blocking handle has nothing buffered.
func Read(h Handle, b []byte) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	if len(b) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(int(h), b)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes up to len(b) bytes and reports how many were accepted.
func Write(h Handle, b []byte) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	for {
		n, err := unix.Write(int(h), b)
		if n < 0 {
			n = 0
		}
		switch {
		case err == unix.EINTR:
			if n > 0 {
				return n, nil
			}
			continue
		case err == unix.EAGAIN:
			return n, ErrWouldBlock
		case err != nil:
			return n, os.NewSyscallError("write", err)
		}
		return n, nil
	}
}

// SetBlocking switches h between blocking and non-blocking mode.
func SetBlocking(h Handle, blocking bool) error {
	if h == Invalid {
		return ErrInvalidHandle
	}
	if err := unix.SetNonblock(int(h), !blocking); err != nil {
		return os.NewSyscallError("fcntl", err)
	}
	return nil
}

// PeekAvailable returns the number of bytes that can be read from h without
// blocking, without consuming them.
func PeekAvailable(h Handle) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	n, err := unix.IoctlGetInt(int(h), ioctlReadable)
	if err != nil {
		return 0, os.NewSyscallError("ioctl", err)
	}
	return n, nil
}

// WaitForRead blocks until h is readable (data or end-of-stream) or the
// timeout passes. A negative timeout waits forever.
func WaitForRead(h Handle, timeout time.Duration) (bool, error) {
	if h == Invalid {
		return false, ErrInvalidHandle
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	fds := []unix.PollFd{{Fd: int32(h), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("poll", err)
		}
		return n > 0, nil
	}
}

// Close closes h. Closing Invalid is a no-op.
func Close(h Handle) error {
	if h == Invalid {
		return nil
	}
	if err := unix.Close(int(h)); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// OpenFile opens name and returns a raw handle suitable for a child's
// standard stream. Mode follows fopen: "r", "w", "a", each optionally with
// "+".
func OpenFile(name, mode string) (Handle, error) {
	m, err := parseMode(mode)
	if err != nil {
		return Invalid, err
	}
	flags := unix.O_CLOEXEC
	switch {
	case m.read && m.write:
		flags |= unix.O_RDWR
	case m.write:
		flags |= unix.O_WRONLY
	default:
		flags |= unix.O_RDONLY
	}
	if m.create {
		flags |= unix.O_CREAT
	}
	if m.trunc {
		flags |= unix.O_TRUNC
	}
	if m.append {
		flags |= unix.O_APPEND
	}
	for {
		fd, err := unix.Open(name, flags, 0o644)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Invalid, &os.PathError{Op: "open", Path: name, Err: err}
		}
		return Handle(fd), nil
	}
}
