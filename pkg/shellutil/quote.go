package shellutil

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// CommandLine renders args as one string using EscapeArg.
func CommandLine(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = EscapeArg(a)
	}
	return strings.Join(quoted, " ")
}

// SplitCommand splits a shell-like command string into argv using POSIX
// quoting rules. No expansion of any kind is performed.
func SplitCommand(s string) ([]string, error) {
	return shellquote.Split(s)
}
