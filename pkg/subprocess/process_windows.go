//go:build windows

package subprocess

import (
	"errors"
	"sync"
	"syscall"

	"golang.org/x/sys/windows"
)

// waitTimeout is WAIT_TIMEOUT from WaitForSingleObject.
const waitTimeout = 0x00000102

type windowsProcess struct {
	handle      windows.Handle
	pid         uint32
	releaseOnce sync.Once
}

func newOSHandle(pid int, handle uintptr) osHandle {
	return &windowsProcess{handle: windows.Handle(handle), pid: uint32(pid)}
}

func (w *windowsProcess) poll() (int, bool, error) {
	return w.waitFor(0)
}

// awaitExit blocks on the process handle. The handle pins the pid until
// release, so there is nothing to reap.
func (w *windowsProcess) awaitExit() error {
	_, err := windows.WaitForSingleObject(w.handle, windows.INFINITE)
	return err
}

func (w *windowsProcess) waitFor(ms uint32) (int, bool, error) {
	event, err := windows.WaitForSingleObject(w.handle, ms)
	if err != nil {
		return ReturnCodeUnknown, false, err
	}
	if event == waitTimeout {
		return ReturnCodeUnknown, false, nil
	}
	var code uint32
	if err := windows.GetExitCodeProcess(w.handle, &code); err != nil {
		return ReturnCodeUnknown, false, err
	}
	return int(code), true, nil
}

func (w *windowsProcess) signal(sig syscall.Signal) error {
	var err error
	switch sig {
	case syscall.SIGKILL, syscall.SIGTERM:
		err = windows.TerminateProcess(w.handle, 1)
	case syscall.SIGINT:
		err = windows.GenerateConsoleCtrlEvent(windows.CTRL_C_EVENT, w.pid)
	default:
		err = windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, w.pid)
	}
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		// TerminateProcess on a process that already exited
		if _, exited, perr := w.poll(); perr == nil && exited {
			return errFinished
		}
	}
	return err
}

func (w *windowsProcess) release() error {
	var err error
	w.releaseOnce.Do(func() {
		err = windows.CloseHandle(w.handle)
	})
	return err
}
