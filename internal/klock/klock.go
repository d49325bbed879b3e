// Package klock provides the interrupt-safe critical-section primitives
// that guard every structure the trap handler can touch: a spinlock that
// disables local supervisor interrupts for its duration, and a condition
// variable built on top of thread status rather than OS-level parking.
//
// This is the only locking primitive permitted to guard data the trap
// handler reads or writes. A plain sync.Mutex would deadlock if
// a timer interrupt fired while the holder's hart was inside the critical
// section and the handler tried to take the same lock.
package klock

import "sync"

// IRQ abstracts the board-specific "are/enable/disable local interrupts"
// triple so this package stays architecture-neutral; board.HartIRQ
// satisfies it on real hardware, irqStub does in tests.
type IRQ interface {
	// Enabled reports whether supervisor interrupts are currently enabled
	// on this hart.
	Enabled() bool
	// SetEnabled enables or disables supervisor interrupts on this hart
	// and returns nothing; callers save the prior state themselves via
	// Enabled before calling SetEnabled(false).
	SetEnabled(bool)
}

// irq is the process-wide IRQ controller. board.Init installs the real one
// at boot; tests use SetIRQForTesting to install a fake.
var irq IRQ = &irqStub{enabled: true}

// SetIRQForTesting overrides the IRQ controller. Production boot code calls
// this exactly once via board.Init; tests call it to inject a fake.
func SetIRQForTesting(i IRQ) IRQ {
	prev := irq
	irq = i
	return prev
}

type irqStub struct {
	enabled bool
}

func (s *irqStub) Enabled() bool     { return s.enabled }
func (s *irqStub) SetEnabled(v bool) { s.enabled = v }

// Spinlock is a mutex that additionally saves and restores the local
// interrupt-enable state across its critical section. Acquiring
// it disables interrupts; releasing it restores whatever the state was
// before acquisition (not unconditionally re-enabling them — nested
// acquisition from a context that already had interrupts disabled must
// leave them disabled on unlock).
type Spinlock struct {
	mu   sync.Mutex
	prev bool // interrupt-enable state saved at Lock time
}

// Lock disables local interrupts (saving the prior state) and takes the
// lock.
func (l *Spinlock) Lock() {
	prev := irq.Enabled()
	irq.SetEnabled(false)
	l.mu.Lock()
	l.prev = prev
}

// Unlock releases the lock and restores the interrupt-enable state saved
// by the matching Lock.
func (l *Spinlock) Unlock() {
	prev := l.prev
	l.mu.Unlock()
	irq.SetEnabled(prev)
}

// TryLock attempts to take the lock without blocking. On success it
// behaves like Lock with respect to interrupt state; on failure it leaves
// interrupt state untouched.
func (l *Spinlock) TryLock() bool {
	prev := irq.Enabled()
	irq.SetEnabled(false)
	if l.mu.TryLock() {
		l.prev = prev
		return true
	}
	irq.SetEnabled(prev)
	return false
}

// With runs f inside the lock's critical section, the scoped closure form
// of the drop-based Acquire/Release guard.
func (l *Spinlock) With(f func()) {
	l.Lock()
	defer l.Unlock()
	f()
}

// Guard is a drop-style guard: construct with Acquire, release by calling
// Release (typically via defer), mirroring a RAII lock guard that restores
// interrupts "on drop".
type Guard struct {
	l *Spinlock
}

// Acquire takes l and returns a guard that releases it.
func Acquire(l *Spinlock) *Guard {
	l.Lock()
	return &Guard{l: l}
}

// Release unlocks the guarded spinlock. Safe to call at most once.
func (g *Guard) Release() {
	if g.l == nil {
		return
	}
	g.l.Unlock()
	g.l = nil
}
