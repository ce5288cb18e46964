// Package shellutil holds the process-global helpers the spawner relies on:
// executable lookup with a PATH cache, environment access, argument quoting,
// and the working directory. Mutations of process-global state made through
// this package are serialized with spawns by a single lock.
package shellutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	cacheMu      sync.RWMutex
	programCache = make(map[string]string)
)

// FindProgram resolves name to an absolute path of an executable file, or
// returns "" when nothing matches. Names containing a path separator are
// checked directly; bare names are searched on PATH and the hit is cached.
//
// The cache is cleared by Setenv("PATH", ...) and ClearProgramCache. PATH
// changes made any other way may leave a stale entry until the cache is
// cleared.
func FindProgram(name string) string {
	if name == "" {
		return ""
	}

	if strings.ContainsAny(name, pathSeparators) {
		if p := tryExecutable(name); p != "" {
			return absolute(p)
		}
		return ""
	}

	cacheMu.RLock()
	cached, ok := programCache[name]
	cacheMu.RUnlock()
	if ok {
		return cached
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		if p := tryExecutable(filepath.Join(dir, name)); p != "" {
			p = absolute(p)
			cacheMu.Lock()
			programCache[name] = p
			cacheMu.Unlock()
			return p
		}
	}
	return ""
}

// ClearProgramCache drops every cached FindProgram result.
func ClearProgramCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(programCache)
}

func absolute(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func isRegularFile(p string) (os.FileInfo, bool) {
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, false
	}
	return fi, true
}
