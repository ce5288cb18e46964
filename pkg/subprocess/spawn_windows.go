//go:build windows

package subprocess

import (
	"syscall"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

const pathSeparators = `/\:`

// closeSlot gives the child a pipe end whose other end is closed right after
// the spawn. A child cannot be started without a standard handle table
// entry, and a dead pipe reads as EOF and fails writes.
func (r *resolver) closeSlot(s stream) error {
	h, err := r.capture(s)
	if err != nil {
		return err
	}
	r.afterSpawn = append(r.afterSpawn, h)
	return nil
}

// fileTable converts the slot table for syscall.StartProcess, which only
// duplicates non-zero handles into the child.
func fileTable(files [3]pipe.Handle) []uintptr {
	table := make([]uintptr, len(files))
	for i, h := range files {
		if h == pipe.Invalid {
			continue
		}
		table[i] = uintptr(h)
	}
	return table
}

func sysProcAttr(o *RunOptions) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	if o.NewProcessGroup {
		attr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
	}
	return attr
}
