package shellutil

import (
	"os"
	"sort"
	"strings"
	"sync"
)

var spawnMu sync.Mutex

// LockSpawn takes the process-wide lock that serializes child creation with
// changes to the working directory and environment made through this
// package. Call the returned func to release it.
func LockSpawn() (unlock func()) {
	spawnMu.Lock()
	return spawnMu.Unlock
}

// Getenv returns the value of name, or "" when unset.
func Getenv(name string) string {
	return os.Getenv(name)
}

// Setenv sets name for this process. Setting PATH clears the program cache.
func Setenv(name, value string) error {
	unlock := LockSpawn()
	defer unlock()

	if err := os.Setenv(name, value); err != nil {
		return err
	}
	if isPathVariable(name) {
		ClearProgramCache()
	}
	return nil
}

// Unsetenv removes name from this process' environment.
func Unsetenv(name string) error {
	unlock := LockSpawn()
	defer unlock()

	if err := os.Unsetenv(name); err != nil {
		return err
	}
	if isPathVariable(name) {
		ClearProgramCache()
	}
	return nil
}

// Environ returns a snapshot of the process environment.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		// Windows keeps per-drive cwd entries such as "=C:=C:\dir".
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// EnvBlock encodes env as sorted KEY=VALUE entries for process creation.
func EnvBlock(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	block := make([]string, 0, len(keys))
	for _, k := range keys {
		block = append(block, k+"="+env[k])
	}
	return block
}
