//go:build unix && !linux

package subprocess

func (u *unixProcess) awaitExit() error {
	return errNoAwait
}
