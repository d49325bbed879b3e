// Package task implements the kernel's thread and process objects: the
// task context and trap frame the context switch and trap entry/exit
// paths manipulate, per-thread/per-process accounting, and the status
// transitions internal/klock's condition variables drive.
package task

// Context is the set of callee-saved registers __switch preserves across
// a voluntary context switch: the return address plus the twelve s0-s11
// registers, laid out so the assembly trampoline's store offsets need no
// translation layer.
type Context struct {
	RA uint64
	S  [12]uint64
}

// SetRA installs the resume address a newly created thread's first switch
// lands on.
func (c *Context) SetRA(pc uint64) *Context {
	c.RA = pc
	return c
}
