package subprocess

import (
	"errors"

	"golang.org/x/sys/unix"
)

// awaitExit blocks in waitid with WNOWAIT so the zombie stays until poll
// reaps it.
func (u *unixProcess) awaitExit() error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, u.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err
	}
}
