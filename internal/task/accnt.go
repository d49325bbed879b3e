package task

import (
	"sync"
	"sync/atomic"
	"time"

	"rvcore/internal/abi"
)

/**
 * Accnt accumulates per-thread/per-process CPU time in nanoseconds.
 *
 * Userns and Sysns are updated with atomic adds from the scheduler and
 * trap paths without holding the mutex; the mutex only serialises Add.
 */
type Accnt struct {
	Userns int64
	Sysns  int64
	mu     sync.Mutex
}

// Utadd adds delta nanoseconds of user-mode runtime.
func (a *Accnt) Utadd(delta time.Duration) { atomic.AddInt64(&a.Userns, int64(delta)) }

// Systadd adds delta nanoseconds of kernel-mode runtime.
func (a *Accnt) Systadd(delta time.Duration) { atomic.AddInt64(&a.Sysns, int64(delta)) }

// Add merges n's counters into a, for folding a reaped child's usage into
// its parent on wait4.
func (a *Accnt) Add(n *Accnt) {
	a.mu.Lock()
	a.Userns += atomic.LoadInt64(&n.Userns)
	a.Sysns += atomic.LoadInt64(&n.Sysns)
	a.mu.Unlock()
}

// Tms returns a snapshot as the ABI's struct tms fields for the calling
// thread. Cutime/Cstime are always zero: wait4 folds a reaped child's
// counters into the parent's own Userns/Sysns through Add instead.
func (a *Accnt) Tms() abi.Tms {
	return abi.Tms{
		Utime: atomic.LoadInt64(&a.Userns) / int64(time.Millisecond),
		Stime: atomic.LoadInt64(&a.Sysns) / int64(time.Millisecond),
	}
}
