//go:build !windows

package shellutil

const pathSeparators = "/"

func tryExecutable(p string) string {
	fi, ok := isRegularFile(p)
	if !ok || fi.Mode().Perm()&0o111 == 0 {
		return ""
	}
	return p
}

func isPathVariable(name string) bool {
	return name == "PATH"
}
