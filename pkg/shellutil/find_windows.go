//go:build windows

package shellutil

import (
	"os"
	"path/filepath"
	"strings"
)

const pathSeparators = `/\:`

// tryExecutable accepts p as-is or with any PATHEXT suffix.
func tryExecutable(p string) string {
	if _, ok := isRegularFile(p); ok && filepath.Ext(p) != "" {
		return p
	}
	exts := os.Getenv("PATHEXT")
	if exts == "" {
		exts = ".com;.exe;.bat;.cmd"
	}
	for _, ext := range filepath.SplitList(exts) {
		if ext == "" {
			continue
		}
		if _, ok := isRegularFile(p + strings.ToLower(ext)); ok {
			return p + strings.ToLower(ext)
		}
	}
	return ""
}

func isPathVariable(name string) bool {
	return strings.EqualFold(name, "PATH")
}
