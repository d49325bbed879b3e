// Package fd implements the per-process file descriptor table: open file
// objects, permission bits, and dup/close/fork semantics. Ops is the
// narrow surface the table needs from every open object (Reopen on dup,
// Close on close, Read/Write for data), kept separate from the wider
// Seek/Fstat/Getdents64 surface only seekable files carry.
package fd

import (
	"rvcore/internal/abi"
	"rvcore/internal/klock"
)

// Permission bits, matching FD_READ/FD_WRITE/FD_CLOEXEC.
const (
	Read    = 0x1
	Write   = 0x2
	Cloexec = 0x4
)

// Ops is the operation set every open file object implements: consoles,
// pipes, and FAT files/directories (internal/vfs), each behind its own
// concrete type.
type Ops interface {
	Read(dst []byte, offset int64) (int, abi.Err_t)
	Write(src []byte, offset int64) (int, abi.Err_t)
	Close() abi.Err_t
	// Reopen is called when a descriptor is duplicated (dup/dup2/fork) so
	// the underlying object can bump any reference count it keeps
	// independent of the fd table (a pipe end, an open-file count).
	Reopen() abi.Err_t
}

// File is one open file descriptor's table entry.
type File struct {
	Ops   Ops
	Perms int
}

// Copy duplicates f, calling Reopen on the shared Ops so both entries
// can be closed independently without double-releasing.
func Copy(f *File) (*File, abi.Err_t) {
	nf := &File{}
	*nf = *f
	if err := nf.Ops.Reopen(); err != 0 {
		return nil, err
	}
	return nf, 0
}

// Table is a process's open-file-descriptor table: a slice of slots
// indexed by fd number, nil where empty.
type Table struct {
	lock  klock.Spinlock
	slots []*File
}

// NewTable returns an empty descriptor table.
func NewTable() *Table { return &Table{} }

// Install finds the lowest free slot, stores f there, and returns its fd
// number.
func (t *Table) Install(f *File) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = f
			return i
		}
	}
	t.slots = append(t.slots, f)
	return len(t.slots) - 1
}

// InstallAt installs f at a specific fd number, growing the table and
// closing any descriptor already occupying that slot, for dup2.
func (t *Table) InstallAt(fdnum int, f *File) abi.Err_t {
	t.lock.Lock()
	for len(t.slots) <= fdnum {
		t.slots = append(t.slots, nil)
	}
	old := t.slots[fdnum]
	t.slots[fdnum] = f
	t.lock.Unlock()
	if old != nil {
		return old.Ops.Close()
	}
	return 0
}

// Get returns the file installed at fdnum, if any.
func (t *Table) Get(fdnum int) (*File, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if fdnum < 0 || fdnum >= len(t.slots) || t.slots[fdnum] == nil {
		return nil, false
	}
	return t.slots[fdnum], true
}

// Close removes and closes the descriptor at fdnum.
func (t *Table) Close(fdnum int) abi.Err_t {
	t.lock.Lock()
	if fdnum < 0 || fdnum >= len(t.slots) || t.slots[fdnum] == nil {
		t.lock.Unlock()
		return abi.EBADF
	}
	f := t.slots[fdnum]
	t.slots[fdnum] = nil
	t.lock.Unlock()
	return f.Ops.Close()
}

// Dup duplicates fdnum into the lowest free slot.
func (t *Table) Dup(fdnum int) (int, abi.Err_t) {
	f, ok := t.Get(fdnum)
	if !ok {
		return -1, abi.EBADF
	}
	nf, err := Copy(f)
	if err != 0 {
		return -1, err
	}
	return t.Install(nf), 0
}

// CloseAll closes every open descriptor, for process exit.
func (t *Table) CloseAll() {
	t.lock.Lock()
	slots := t.slots
	t.slots = nil
	t.lock.Unlock()
	for _, f := range slots {
		if f != nil {
			f.Ops.Close()
		}
	}
}

// CloseExec closes every descriptor marked Cloexec, for a successful
// execve clearing the table of file descriptors the new image must not
// inherit.
func (t *Table) CloseExec() {
	t.lock.Lock()
	var closing []*File
	for i, f := range t.slots {
		if f != nil && f.Perms&Cloexec != 0 {
			closing = append(closing, f)
			t.slots[i] = nil
		}
	}
	t.lock.Unlock()
	for _, f := range closing {
		f.Ops.Close()
	}
}

// ForkCopy builds a child table sharing every non-cloexec descriptor's
// underlying Ops (each Reopen'd), matching fork's duplicate-the-whole-table
// semantics.
func (t *Table) ForkCopy() (*Table, abi.Err_t) {
	t.lock.Lock()
	defer t.lock.Unlock()
	nt := &Table{slots: make([]*File, len(t.slots))}
	for i, f := range t.slots {
		if f == nil {
			continue
		}
		if f.Perms&Cloexec != 0 {
			continue
		}
		nf, err := Copy(f)
		if err != 0 {
			return nil, err
		}
		nt.slots[i] = nf
	}
	return nt, 0
}
