package task

import (
	"rvcore/internal/abi"
	"rvcore/internal/fd"
	"rvcore/internal/klock"
	"rvcore/internal/vmm"
)

// Cwd tracks a process's current working directory as a canonical path,
// one lock to serialize chdirs against concurrent path lookups.
type Cwd struct {
	lock klock.Spinlock
	Path string
}

// SetPath atomically updates the working directory path.
func (c *Cwd) SetPath(p string) {
	c.lock.Lock()
	c.Path = p
	c.lock.Unlock()
}

// GetPath returns a snapshot of the working directory path.
func (c *Cwd) GetPath() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.Path
}

// Process groups an address space, a file descriptor table, and a set of
// threads under one PID, plus the parent/child bookkeeping wait4 needs.
type Process struct {
	PID   Pid
	AS    *vmm.AddressSpace
	Files *fd.Table
	Cwd   *Cwd
	Accnt Accnt

	lock     klock.Spinlock
	threads  map[Tid]*Thread
	parent   *Process
	children map[Pid]*Process

	exited     bool
	exitStatus int

	// childExit wakes a parent blocked in wait4 when any child exits.
	childExit klock.Condvar
}

// NewProcess allocates a process with an empty thread set and descriptor
// table rooted at cwd.
func NewProcess(pid Pid, as *vmm.AddressSpace, cwd string) *Process {
	return &Process{
		PID:      pid,
		AS:       as,
		Files:    fd.NewTable(),
		Cwd:      &Cwd{Path: cwd},
		threads:  make(map[Tid]*Thread),
		children: make(map[Pid]*Process),
	}
}

// AddThread registers t as belonging to this process.
func (p *Process) AddThread(t *Thread) {
	p.lock.Lock()
	p.threads[t.ID] = t
	p.lock.Unlock()
}

// RemoveThread drops id from this process's thread set, returning true if
// no threads remain (the process itself should now exit).
func (p *Process) RemoveThread(id Tid) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.threads, id)
	return len(p.threads) == 0
}

// ThreadCount reports how many live threads this process has.
func (p *Process) ThreadCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.threads)
}

// SetParent records p's parent, for wait4 and orphan reparenting.
func (p *Process) SetParent(parent *Process) { p.lock.Lock(); p.parent = parent; p.lock.Unlock() }

// Parent returns p's parent process, or nil if it is the init process.
func (p *Process) Parent() *Process {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.parent
}

// AddChild registers child as one of p's children.
func (p *Process) AddChild(child *Process) {
	p.lock.Lock()
	p.children[child.PID] = child
	p.lock.Unlock()
}

// Exit marks the process as exited with the given status and wakes any
// parent blocked in wait4.
func (p *Process) Exit(status int) {
	p.lock.Lock()
	p.exited = true
	p.exitStatus = status
	p.lock.Unlock()
	if parent := p.Parent(); parent != nil {
		parent.lock.Lock()
		parent.childExit.NotifyAll()
		parent.lock.Unlock()
	}
}

// Exited reports whether the process has exited, and its status if so.
func (p *Process) Exited() (bool, int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.exited, p.exitStatus
}

// ReapChild removes and returns an exited child matching pid (or any
// exited child if pid <= 0, the wait4(-1, ...) convention), blocking on
// childExit until one is available unless nohang is set. Returns
// abi.ECHILD if pid names a process that is not (or is no longer) one of
// p's children.
func (p *Process) ReapChild(pid Pid, nohang bool) (*Process, abi.Err_t) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if pid > 0 {
		if _, ok := p.children[pid]; !ok {
			return nil, abi.ECHILD
		}
	}
	for {
		for cpid, c := range p.children {
			if pid > 0 && cpid != pid {
				continue
			}
			if exited, _ := c.Exited(); exited {
				delete(p.children, cpid)
				return c, 0
			}
		}
		if nohang {
			return nil, 0
		}
		if len(p.children) == 0 {
			return nil, abi.ECHILD
		}
		p.childExit.Wait(&p.lock)
	}
}
