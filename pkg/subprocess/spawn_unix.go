//go:build unix

package subprocess

import (
	"syscall"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
)

const pathSeparators = "/"

// closeSlot leaves slot s without a descriptor in the child.
func (r *resolver) closeSlot(s stream) error {
	r.files[s] = pipe.Invalid
	return nil
}

// fileTable converts the slot table for syscall.StartProcess, where an
// all-ones entry closes the slot in the child.
func fileTable(files [3]pipe.Handle) []uintptr {
	table := make([]uintptr, len(files))
	for i, h := range files {
		if h == pipe.Invalid {
			table[i] = ^uintptr(0)
			continue
		}
		table[i] = uintptr(h)
	}
	return table
}

func sysProcAttr(o *RunOptions) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: o.NewProcessGroup}
}
