package board

import "rvcore/internal/addr"

// sstatusSIE is the supervisor-interrupt-enable bit in sstatus, toggled
// around every spinlock critical section and on trap entry/exit.
const sstatusSIE = 1 << 1

// CSRFunc reads or writes a control-status register. Reading/writing
// sstatus requires the csrr/csrw instructions, which plain Go cannot emit
// portably; board.Init installs the real one.
type CSRFunc struct {
	ReadSstatus  func() uint64
	WriteSstatus func(uint64)
}

var csr CSRFunc

// InstallCSR registers the hardware CSR access primitives. Called once by
// board.Init.
func InstallCSR(f CSRFunc) { csr = f }

// HartIRQ implements klock.IRQ by toggling sstatus.SIE on the calling
// hart, satisfying the interrupt-disable/restore contract
// internal/klock.Spinlock needs.
type HartIRQ struct{}

// Enabled reports whether supervisor interrupts are currently enabled.
func (HartIRQ) Enabled() bool {
	return csr.ReadSstatus()&sstatusSIE != 0
}

// SetEnabled enables or disables supervisor interrupts on this hart.
func (HartIRQ) SetEnabled(v bool) {
	s := csr.ReadSstatus()
	if v {
		s |= sstatusSIE
	} else {
		s &^= sstatusSIE
	}
	csr.WriteSstatus(s)
}

// currentHartHook returns the physical hart ID the calling goroutine is
// pinned to, read through CurrentHartID (cmd/kernel hands that to
// internal/syscall as its HartID hook). internal/sched does not use it:
// it routes a woken thread by the thread's own HartID field.
var currentHartHook func() int

// InstallCurrentHartHook registers the primitive that identifies which
// hart is calling (normally backed by the SBI-reported hart ID passed in
// a0 at boot, or mhartid on a direct-boot platform). Called once by
// board.Init.
func InstallCurrentHartHook(f func() int) { currentHartHook = f }

// CurrentHartID returns the calling hart's ID.
func CurrentHartID() int {
	if currentHartHook == nil {
		panic("board: CurrentHartID used before board.Init")
	}
	return currentHartHook()
}

// satpHook issues the privileged satp write plus sfence.vma that activates
// a page table, wired to pagetable.InstallActivateHook by Init.
var satpHook func(rootPPN addr.PPN)

// InstallSatpWriter registers the hardware satp-write primitive.
func InstallSatpWriter(f func(rootPPN addr.PPN)) { satpHook = f }
