//go:build !windows

package shellutil

import "github.com/kballard/go-shellquote"

// EscapeArg quotes arg so /bin/sh reads it back as one word. Plain words are
// returned unchanged.
func EscapeArg(arg string) string {
	return shellquote.Join(arg)
}
