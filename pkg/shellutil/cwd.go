package shellutil

import (
	"os"
	"path/filepath"
)

// Getcwd returns the process working directory.
func Getcwd() (string, error) {
	return os.Getwd()
}

// Setcwd changes the process working directory. It waits for any spawn in
// progress so a child never sees a half-applied change.
func Setcwd(dir string) error {
	unlock := LockSpawn()
	defer unlock()
	return os.Chdir(dir)
}

// Abspath makes path absolute. Relative paths are joined to relativeTo, which
// is itself resolved against the working directory when relative or empty.
func Abspath(path, relativeTo string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if !filepath.IsAbs(relativeTo) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		relativeTo = filepath.Join(cwd, relativeTo)
	}
	return filepath.Join(relativeTo, path), nil
}
