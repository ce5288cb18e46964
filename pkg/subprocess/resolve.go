package subprocess

import (
	"runtime"
	"slices"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

// resolver turns the three redirects of one spawn into the child's slot
// table and records who owns every handle it creates.
type resolver struct {
	// files[s] is installed as standard stream s in the child.
	files [3]pipe.Handle
	// parent[s] is the parent's end of a captured stream.
	parent [3]pipe.Handle

	// created lists every handle this resolver allocated.
	created []pipe.Handle
	// afterSpawn is closed in the parent once the child holds its copies.
	afterSpawn []pipe.Handle
	// consumed are caller handles handed to the child.
	consumed []pipe.Handle

	pumps     []pump
	keepAlive []any

	deferStdout bool
}

func newResolver() *resolver {
	r := &resolver{}
	for s := range r.files {
		r.files[s] = pipe.Stdio(s)
		r.parent[s] = pipe.Invalid
	}
	return r
}

// validateRedirects checks all three redirects before anything is allocated.
func validateRedirects(redirects [3]Redirect) error {
	for s, rd := range redirects {
		if err := rd.validate(stream(s)); err != nil {
			return err
		}
	}
	if redirects[streamStdout] == ToStderr && redirects[streamStderr] == ToStdout {
		return ErrInvalidArgument("stdout", "stderr",
			"stdout and stderr cannot both be redirected to each other")
	}
	return nil
}

// resolveAll applies the redirects in slot order: stdin, stdout, stderr.
// A stdout-to-stderr alias is applied last so it sees stderr's final value.
func (r *resolver) resolveAll(redirects [3]Redirect) error {
	for s, rd := range redirects {
		if err := rd.resolve(r, stream(s)); err != nil {
			return err
		}
	}
	if r.deferStdout {
		r.files[streamStdout] = r.files[streamStderr]
	}
	return nil
}

// capture creates a pipe for s, installs the child's end in the slot table
// and returns the parent's end.
func (r *resolver) capture(s stream) (pipe.Handle, error) {
	p, err := pipe.Create(false)
	if err != nil {
		return pipe.Invalid, ErrOS("create pipe", err).WithContext("stream", s.String())
	}
	r.created = append(r.created, p.Read, p.Write)

	child, parent := p.Write, p.Read
	if s == streamStdin {
		child, parent = p.Read, p.Write
	}
	r.files[s] = child
	r.afterSpawn = append(r.afterSpawn, child)
	return parent, nil
}

func (r *resolver) consume(h pipe.Handle) {
	for s := range r.files {
		if h == pipe.Stdio(s) {
			// the parent's own streams are never closed
			return
		}
	}
	if !slices.Contains(r.consumed, h) {
		r.consumed = append(r.consumed, h)
	}
}

// unwind releases everything allocated for a spawn that did not happen.
func (r *resolver) unwind() {
	for _, h := range r.created {
		_ = pipe.Close(h)
	}
	r.created = nil
	r.pumps = nil
}

// commit hands ownership over after a successful spawn: child ends and
// consumed caller handles are closed here, parent ends move to the Process
// and the pumps.
func (r *resolver) commit() {
	for _, h := range r.afterSpawn {
		_ = pipe.Close(h)
	}
	for _, h := range r.consumed {
		_ = pipe.Close(h)
	}
	runtime.KeepAlive(r.keepAlive)
	r.created = nil
}
