//go:build windows

package pipe

import (
	"io"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Handle is a kernel object handle.
type Handle uintptr

// Invalid is the sentinel for "no handle".
const Invalid = Handle(windows.InvalidHandle)

var procPeekNamedPipe = windows.NewLazySystemDLL("kernel32.dll").NewProc("PeekNamedPipe")

// peekNamedPipe returns the bytes buffered in h without reading them.
func peekNamedPipe(h Handle) (uint32, error) {
	var avail uint32
	r, _, err := procPeekNamedPipe.Call(uintptr(h), 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	if r == 0 {
		return 0, err
	}
	return avail, nil
}

// Stdio returns the parent's standard handle for slot 0, 1 or 2.
func Stdio(slot int) Handle {
	var which uint32
	switch slot {
	case 0:
		which = windows.STD_INPUT_HANDLE
	case 1:
		which = windows.STD_OUTPUT_HANDLE
	case 2:
		which = windows.STD_ERROR_HANDLE
	default:
		return Invalid
	}
	h, err := windows.GetStdHandle(which)
	if err != nil {
		return Invalid
	}
	return Handle(h)
}

// Create allocates a new anonymous pipe. Ends are not inheritable unless
// requested.
func Create(inheritable bool) (Pair, error) {
	var sa *windows.SecurityAttributes
	if inheritable {
		sa = &windows.SecurityAttributes{InheritHandle: 1}
		sa.Length = uint32(unsafe.Sizeof(*sa))
	}
	var r, w windows.Handle
	if err := windows.CreatePipe(&r, &w, sa, 0); err != nil {
		return Pair{Read: Invalid, Write: Invalid}, os.NewSyscallError("CreatePipe", err)
	}
	return Pair{Read: Handle(r), Write: Handle(w)}, nil
}

// SetInheritable toggles HANDLE_FLAG_INHERIT on h.
func SetInheritable(h Handle, inheritable bool) error {
	if h == Invalid {
		return ErrInvalidHandle
	}
	var flags uint32
	if inheritable {
		flags = windows.HANDLE_FLAG_INHERIT
	}
	if err := windows.SetHandleInformation(windows.Handle(h), windows.HANDLE_FLAG_INHERIT, flags); err != nil {
		return os.NewSyscallError("SetHandleInformation", err)
	}
	return nil
}

// Read reads up to len(b) bytes. It returns io.EOF once the write side is
// gone and ErrWouldBlock when a PIPE_NOWAIT handle has nothing buffered.
func Read(h Handle, b []byte) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	if len(b) == 0 {
		return 0, nil
	}
	var done uint32
	err := windows.ReadFile(windows.Handle(h), b, &done, nil)
	switch {
	case err == windows.ERROR_BROKEN_PIPE, err == windows.ERROR_HANDLE_EOF:
		return 0, io.EOF
	case err == windows.ERROR_NO_DATA:
		return 0, ErrWouldBlock
	case err != nil:
		return 0, os.NewSyscallError("ReadFile", err)
	}
	return int(done), nil
}

// Write writes up to len(b) bytes. A PIPE_NOWAIT handle with a full buffer
// accepts nothing and reports ErrWouldBlock.
func Write(h Handle, b []byte) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	if len(b) == 0 {
		return 0, nil
	}
	var done uint32
	if err := windows.WriteFile(windows.Handle(h), b, &done, nil); err != nil {
		return int(done), os.NewSyscallError("WriteFile", err)
	}
	if done == 0 {
		return 0, ErrWouldBlock
	}
	return int(done), nil
}

// SetBlocking switches h between PIPE_WAIT and PIPE_NOWAIT.
func SetBlocking(h Handle, blocking bool) error {
	if h == Invalid {
		return ErrInvalidHandle
	}
	mode := uint32(windows.PIPE_NOWAIT)
	if blocking {
		mode = windows.PIPE_WAIT
	}
	if err := windows.SetNamedPipeHandleState(windows.Handle(h), &mode, nil, nil); err != nil {
		return os.NewSyscallError("SetNamedPipeHandleState", err)
	}
	return nil
}

// PeekAvailable returns the number of buffered bytes without consuming them.
func PeekAvailable(h Handle) (int, error) {
	if h == Invalid {
		return 0, ErrInvalidHandle
	}
	avail, err := peekNamedPipe(h)
	if err != nil {
		if err == windows.ERROR_BROKEN_PIPE {
			return 0, nil
		}
		return 0, os.NewSyscallError("PeekNamedPipe", err)
	}
	return int(avail), nil
}

// WaitForRead polls h until data is buffered, the writer is gone, or the
// timeout passes. Anonymous pipes cannot be waited on directly.
func WaitForRead(h Handle, timeout time.Duration) (bool, error) {
	if h == Invalid {
		return false, ErrInvalidHandle
	}
	deadline := time.Now().Add(timeout)
	for {
		avail, err := peekNamedPipe(h)
		if err == windows.ERROR_BROKEN_PIPE {
			return true, nil
		}
		if err != nil {
			return false, os.NewSyscallError("PeekNamedPipe", err)
		}
		if avail > 0 {
			return true, nil
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Close closes h. Closing Invalid is a no-op.
func Close(h Handle) error {
	if h == Invalid {
		return nil
	}
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return os.NewSyscallError("CloseHandle", err)
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
	path, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return Invalid, &os.PathError{Op: "open", Path: name, Err: err}
	}
	var access uint32
	if m.read {
		access |= windows.GENERIC_READ
	}
	if m.write {
		access |= windows.GENERIC_WRITE
	}
	if m.append {
		access = windows.FILE_APPEND_DATA | windows.SYNCHRONIZE
		if m.read {
			access |= windows.GENERIC_READ
		}
	}
	creation := uint32(windows.OPEN_EXISTING)
	switch {
	case m.trunc:
		creation = windows.CREATE_ALWAYS
	case m.create:
		creation = windows.OPEN_ALWAYS
	}
	h, err := windows.CreateFile(path, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, creation, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return Invalid, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return Handle(h), nil
}
