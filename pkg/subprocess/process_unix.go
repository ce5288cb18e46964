//go:build unix

package subprocess

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixProcess struct {
	pid int
}

func newOSHandle(pid int, _ uintptr) osHandle {
	return &unixProcess{pid: pid}
}

func (u *unixProcess) poll() (int, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(u.pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return ReturnCodeUnknown, false, err
		}
		if wpid == 0 {
			return ReturnCodeUnknown, false, nil
		}
		return decodeWaitStatus(ws), true, nil
	}
}

func (u *unixProcess) signal(sig syscall.Signal) error {
	err := unix.Kill(u.pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return errFinished
	}
	return err
}

func (u *unixProcess) release() error {
	return nil
}

// decodeWaitStatus maps a wait status to a return code: the exit status, or
// -N for death by signal N.
func decodeWaitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return -int(ws.Signal())
	}
	return ws.ExitStatus()
}
