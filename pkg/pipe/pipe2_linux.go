package pipe

import (
	"os"

	"golang.org/x/sys/unix"
)

func newPipe(fds []int, cloexec bool) error {
	flags := 0
	if cloexec {
		flags = unix.O_CLOEXEC
	}
	if err := unix.Pipe2(fds, flags); err != nil {
		return os.NewSyscallError("pipe2", err)
	}
	return nil
}
