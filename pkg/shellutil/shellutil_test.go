package shellutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeExecutable creates an executable stub named name in dir and returns
// its path.
func makeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return p
}

// TestFindProgram_SearchesPath tests resolution of bare names via PATH
func TestFindProgram_SearchesPath(t *testing.T) {
	ClearProgramCache()
	dir := t.TempDir()
	want := makeExecutable(t, dir, "prism-find-tool")
	t.Setenv("PATH", dir)

	got := FindProgram("prism-find-tool")
	assert.Equal(t, want, got)
	assert.Equal(t, "", FindProgram("prism-no-such-tool"))
	assert.Equal(t, "", FindProgram(""))
}

// TestFindProgram_DirectPath tests names that already contain a separator
func TestFindProgram_DirectPath(t *testing.T) {
	dir := t.TempDir()
	want := makeExecutable(t, dir, "direct")

	assert.Equal(t, want, FindProgram(want))
	assert.Equal(t, "", FindProgram(filepath.Join(dir, "missing")))
	assert.Equal(t, "", FindProgram(dir), "directories are not programs")
}

// TestFindProgram_NotExecutable tests that plain files are skipped on unix
func TestFindProgram_NotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows has no execute bit")
	}
	ClearProgramCache()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data"), []byte("x"), 0o644))
	t.Setenv("PATH", dir)

	assert.Equal(t, "", FindProgram("data"))
}

// TestFindProgram_CacheInvalidation tests stale results and both invalidation paths
func TestFindProgram_CacheInvalidation(t *testing.T) {
	ClearProgramCache()
	first := t.TempDir()
	second := t.TempDir()
	inFirst := makeExecutable(t, first, "prism-cached-tool")
	inSecond := makeExecutable(t, second, "prism-cached-tool")

	t.Setenv("PATH", first)
	require.Equal(t, inFirst, FindProgram("prism-cached-tool"))

	// Changing PATH behind the package's back leaves the cached entry in place
	require.NoError(t, os.Setenv("PATH", second))
	assert.Equal(t, inFirst, FindProgram("prism-cached-tool"), "stale entry is expected without a clear")

	ClearProgramCache()
	assert.Equal(t, inSecond, FindProgram("prism-cached-tool"))

	// Setenv clears the cache on its own
	require.NoError(t, Setenv("PATH", first))
	assert.Equal(t, inFirst, FindProgram("prism-cached-tool"))
}

// TestEnviron tests the environment snapshot
func TestEnviron(t *testing.T) {
	t.Setenv("PRISM_SHELLUTIL_TEST", "a=b")

	env := Environ()
	assert.Equal(t, "a=b", env["PRISM_SHELLUTIL_TEST"], "only the first '=' separates key from value")
	assert.Equal(t, "a=b", Getenv("PRISM_SHELLUTIL_TEST"))
}

// TestSetenvUnsetenv tests setting and removing variables
func TestSetenvUnsetenv(t *testing.T) {
	t.Setenv("PRISM_SHELLUTIL_SET", "")

	require.NoError(t, Setenv("PRISM_SHELLUTIL_SET", "value"))
	assert.Equal(t, "value", os.Getenv("PRISM_SHELLUTIL_SET"))

	require.NoError(t, Unsetenv("PRISM_SHELLUTIL_SET"))
	_, ok := os.LookupEnv("PRISM_SHELLUTIL_SET")
	assert.False(t, ok)
}

// TestEnvBlock tests deterministic encoding
func TestEnvBlock(t *testing.T) {
	block := EnvBlock(map[string]string{"B": "2", "A": "1", "C": "x=y"})
	assert.Equal(t, []string{"A=1", "B=2", "C=x=y"}, block)
	assert.Empty(t, EnvBlock(nil))
}

// TestEscapeArg tests quoting for the platform command line
func TestEscapeArg(t *testing.T) {
	tests := []struct {
		in      string
		posix   string
		windows string
	}{
		{in: "plain", posix: "plain", windows: "plain"},
		{in: "/usr/bin/a-b_c+d.e", posix: "/usr/bin/a-b_c+d.e", windows: "/usr/bin/a-b_c+d.e"},
		{in: "hello world", posix: `'hello world'`, windows: `"hello world"`},
		{in: `say "hi"`, posix: `'say "hi"'`, windows: `"say \"hi\""`},
		{in: `C:\dir`, posix: `C:\\dir`, windows: `C:\dir`},
		{in: `C:\my dir\`, posix: `'C:\my dir\'`, windows: `"C:\my dir\\"`},
		{in: "it's", posix: `it\'s`, windows: "it's"},
		{in: "a$b", posix: `a\$b`, windows: "a$b"},
		{in: "", posix: "''", windows: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			want := tt.posix
			if runtime.GOOS == "windows" {
				want = tt.windows
			}
			assert.Equal(t, want, EscapeArg(tt.in))
		})
	}
}

// TestCommandLine_RoundTrip tests that quoted command lines split back into
// the original arguments
func TestCommandLine_RoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SplitCommand follows POSIX rules")
	}
	args := []string{"echo", "hello world", `say "hi"`, "it's", `back\slash`, "$HOME"}

	got, err := SplitCommand(CommandLine(args))
	require.NoError(t, err)
	assert.Equal(t, args, got)
}

// TestSplitCommand tests shell-like splitting without expansion
func TestSplitCommand(t *testing.T) {
	args, err := SplitCommand(`echo "hello world" 'single $HOME' plain\ space`)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hello world", "single $HOME", "plain space"}, args)

	_, err = SplitCommand(`echo "unterminated`)
	assert.Error(t, err)
}

// TestAbspath tests resolution against explicit and implicit bases
func TestAbspath(t *testing.T) {
	base := t.TempDir()

	got, err := Abspath("child", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "child"), got)

	got, err = Abspath(base, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(base), got)

	cwd, err := Getcwd()
	require.NoError(t, err)
	got, err = Abspath("x", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "x"), got)
}

// TestSetcwd tests changing and restoring the working directory
func TestSetcwd(t *testing.T) {
	orig, err := Getcwd()
	require.NoError(t, err)
	defer func() { require.NoError(t, Setcwd(orig)) }()

	dir := t.TempDir()
	require.NoError(t, Setcwd(dir))

	got, err := Getcwd()
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotResolved, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, want, gotResolved)
}
