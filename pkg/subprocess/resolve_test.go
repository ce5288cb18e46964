package subprocess

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// TestValidateRedirects tests rejection of inconsistent redirects before any
// OS resource exists
func TestValidateRedirects(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name      string
		redirects [3]Redirect
		wantErr   bool
	}{
		{"all inherit", [3]Redirect{Inherit, Inherit, Inherit}, false},
		{"all pipe", [3]Redirect{Pipe, Pipe, Pipe}, false},
		{"all close", [3]Redirect{Close, Close, Close}, false},
		{"stderr to stdout", [3]Redirect{Inherit, Pipe, ToStdout}, false},
		{"stdout to stderr", [3]Redirect{Inherit, ToStderr, Pipe}, false},
		{"buffers", [3]Redirect{FromString("x"), ToBuffer(&buf), ToWriter(&buf)}, false},
		{"mutual alias", [3]Redirect{Inherit, ToStderr, ToStdout}, true},
		{"stdout to itself", [3]Redirect{Inherit, ToStdout, Inherit}, true},
		{"stderr to itself", [3]Redirect{Inherit, Inherit, ToStderr}, true},
		{"stdin alias", [3]Redirect{ToStdout, Inherit, Inherit}, true},
		{"bytes on stdout", [3]Redirect{Inherit, FromBytes([]byte("x")), Inherit}, true},
		{"reader on stderr", [3]Redirect{Inherit, Inherit, FromReader(strings.NewReader("x"))}, true},
		{"writer on stdin", [3]Redirect{ToWriter(&buf), Inherit, Inherit}, true},
		{"nil buffer", [3]Redirect{Inherit, ToBuffer(nil), Inherit}, true},
		{"nil writer", [3]Redirect{Inherit, ToWriter(nil), Inherit}, true},
		{"nil reader", [3]Redirect{FromReader(nil), Inherit, Inherit}, true},
		{"nil file", [3]Redirect{UseFile(nil), Inherit, Inherit}, true},
		{"invalid handle", [3]Redirect{Inherit, UseHandle(pipe.Invalid), Inherit}, true},
		{"unknown option", [3]Redirect{StreamOption(99), Inherit, Inherit}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRedirects(tt.redirects)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsErrorCode(err, ErrorCodeInvalidArgument))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestResolver_AliasOrdering tests that aliases copy resolved slot values
func TestResolver_AliasOrdering(t *testing.T) {
	t.Run("stderr follows stdout pipe", func(t *testing.T) {
		r := newResolver()
		defer r.unwind()
		require.NoError(t, r.resolveAll([3]Redirect{Inherit, Pipe, ToStdout}))

		assert.Equal(t, pipe.Stdio(0), r.files[streamStdin])
		assert.NotEqual(t, pipe.Stdio(1), r.files[streamStdout])
		assert.Equal(t, r.files[streamStdout], r.files[streamStderr])
		assert.NotEqual(t, pipe.Invalid, r.parent[streamStdout])
		assert.Len(t, r.created, 2)
	})

	t.Run("stdout follows later stderr pipe", func(t *testing.T) {
		r := newResolver()
		defer r.unwind()
		require.NoError(t, r.resolveAll([3]Redirect{Inherit, ToStderr, Pipe}))

		assert.NotEqual(t, pipe.Stdio(2), r.files[streamStderr])
		assert.Equal(t, r.files[streamStderr], r.files[streamStdout])
		assert.Equal(t, pipe.Invalid, r.parent[streamStdout])
		assert.NotEqual(t, pipe.Invalid, r.parent[streamStderr])
	})

	t.Run("stdout follows inherited stderr", func(t *testing.T) {
		r := newResolver()
		require.NoError(t, r.resolveAll([3]Redirect{Inherit, ToStderr, Inherit}))
		assert.Equal(t, pipe.Stdio(2), r.files[streamStdout])
		assert.Empty(t, r.created)
	})
}

// TestResolver_Ownership tests which handles are closed after a spawn
func TestResolver_Ownership(t *testing.T) {
	pair, err := pipe.Create(false)
	require.NoError(t, err)
	defer pair.Close()

	var buf bytes.Buffer
	r := newResolver()
	require.NoError(t, r.resolveAll([3]Redirect{UseHandle(pair.Read), ToBuffer(&buf), UseHandle(pipe.Stdio(2))}))

	assert.Equal(t, pair.Read, r.files[streamStdin])
	assert.Equal(t, []pipe.Handle{pair.Read}, r.consumed, "the parent's own streams are never consumed")
	assert.Equal(t, pipe.Invalid, r.parent[streamStdout], "pumped streams are not exposed")
	assert.Len(t, r.pumps, 1)

	r.unwind()
	assert.Empty(t, r.created)
	assert.Empty(t, r.pumps)
}
