package subprocess

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrepp/prism-subprocess/internal/testchild"
)

func TestMain(m *testing.M) {
	if testchild.Active() {
		testchild.Main()
	}
	os.Exit(m.Run())
}

// childProgram is the program label metrics use for testchild commands
func childProgram() string {
	return filepath.Base(testchild.Command("echo")[0])
}

// popen starts a testchild and closes it when the test ends
func popen(t *testing.T, mode string, args []string, opts ...Option) *Process {
	t.Helper()
	p, err := Popen(testchild.Command(mode, args...), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = p.Kill()
		_ = p.Close()
	})
	return p
}

// waitExited polls until p reports an exit or the deadline passes
func waitExited(t *testing.T, p *Process) {
	t.Helper()
	require.Eventually(t, func() bool {
		done, err := p.Poll()
		return err == nil && done
	}, 10*time.Second, 5*time.Millisecond)
}
