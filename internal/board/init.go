package board

import (
	"rvcore/internal/addr"
	"rvcore/internal/klock"
	"rvcore/internal/pagetable"
)

// HardwareHooks bundles every privileged primitive board.Init needs from
// whatever thin assembly or runtime-intrinsic layer cmd/kernel links
// against. None of these can be implemented in portable Go; keeping them
// as one struct passed into Init (rather than scattering InstallX calls
// across cmd/kernel) keeps boot order obvious and makes it impossible to
// forget wiring one into its consumer package.
type HardwareHooks struct {
	Ecall        EcallFunc
	ReadSstatus  func() uint64
	WriteSstatus func(uint64)
	CurrentHart  func() int
	WriteSatp    func(rootPPN addr.PPN)
}

// Init wires the board configuration and hardware hooks into every
// package that needs privileged access it cannot perform itself:
// internal/klock's IRQ controller, internal/pagetable's satp-activation
// hook, and this package's own SBI/hart-ID accessors. Must run exactly
// once, before any Spinlock is taken or any AddressSpace is activated.
func Init(cfg Config, hw HardwareHooks) {
	InstallEcall(hw.Ecall)
	InstallCSR(CSRFunc{ReadSstatus: hw.ReadSstatus, WriteSstatus: hw.WriteSstatus})
	InstallCurrentHartHook(hw.CurrentHart)
	InstallSatpWriter(hw.WriteSatp)

	klock.SetIRQForTesting(HartIRQ{})
	pagetable.InstallActivateHook(func(rootPPN addr.PPN) {
		if satpHook == nil {
			panic("board: satp writer not installed")
		}
		satpHook(rootPPN)
	})

	activeConfig = cfg
}

var activeConfig Config

// Active returns the configuration passed to the most recent Init call.
func Active() Config { return activeConfig }
