package shellutil

import "syscall"

// EscapeArg quotes arg the way CommandLineToArgvW splits it back.
func EscapeArg(arg string) string {
	return syscall.EscapeArg(arg)
}
