//go:build unix

package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func cloexec(t *testing.T, h Handle) bool {
	t.Helper()
	flags, err := unix.FcntlInt(uintptr(h), unix.F_GETFD, 0)
	require.NoError(t, err)
	return flags&unix.FD_CLOEXEC != 0
}

// TestCreate_Inheritance tests the default and explicit inheritance policy
func TestCreate_Inheritance(t *testing.T) {
	p := newPair(t)
	assert.True(t, cloexec(t, p.Read))
	assert.True(t, cloexec(t, p.Write))

	inh, err := Create(true)
	require.NoError(t, err)
	defer inh.Close()
	assert.False(t, cloexec(t, inh.Read))
	assert.False(t, cloexec(t, inh.Write))
}

// TestSetInheritable tests toggling close-on-exec
func TestSetInheritable(t *testing.T) {
	p := newPair(t)

	require.NoError(t, SetInheritable(p.Write, true))
	assert.False(t, cloexec(t, p.Write))
	assert.True(t, cloexec(t, p.Read), "only the requested end changes")

	require.NoError(t, SetInheritable(p.Write, false))
	assert.True(t, cloexec(t, p.Write))
}

// TestSetInheritable_ClosedHandle tests the OS error path
func TestSetInheritable_ClosedHandle(t *testing.T) {
	p, err := Create(false)
	require.NoError(t, err)
	r := p.Read
	require.NoError(t, p.Close())

	assert.Error(t, SetInheritable(r, true))
}

// TestStdio tests the standard slot mapping
func TestStdio(t *testing.T) {
	assert.Equal(t, Handle(0), Stdio(0))
	assert.Equal(t, Handle(1), Stdio(1))
	assert.Equal(t, Handle(2), Stdio(2))
}
