//go:build unix && !linux

package pipe

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// newPipe holds ForkLock so no fork can observe the fds before
// close-on-exec is set.
func newPipe(fds []int, cloexec bool) error {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	if err := unix.Pipe(fds); err != nil {
		return os.NewSyscallError("pipe", err)
	}
	if cloexec {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	return nil
}
