package task

// TrapFrame holds the 32 general-purpose registers plus sstatus/sepc
// saved on trap entry, laid out (x[32], sstatus, sepc) so the trap-entry
// assembly's store offsets need no translation layer. x[4] (tp)
// conventionally carries the current hart ID rather than a real
// thread-local pointer.
type TrapFrame struct {
	X       [32]uint64
	Sstatus uint64
	Sepc    uint64
}

const (
	regRA = 1
	regSP = 2
	regA0 = 10
)

// SP returns the saved stack pointer.
func (tf *TrapFrame) SP() uint64 { return tf.X[regSP] }

// SetSP installs the stack pointer a trapframe resumes with.
func (tf *TrapFrame) SetSP(v uint64) *TrapFrame { tf.X[regSP] = v; return tf }

// RA returns the saved return address.
func (tf *TrapFrame) RA() uint64 { return tf.X[regRA] }

// SetRA installs the return address.
func (tf *TrapFrame) SetRA(v uint64) *TrapFrame { tf.X[regRA] = v; return tf }

// SetReturnValue writes a syscall/fault handler's result into a0.
func (tf *TrapFrame) SetReturnValue(v uint64) *TrapFrame { tf.X[regA0] = v; return tf }

// SetEntryPoint sets sepc, the address execution resumes at on sret.
func (tf *TrapFrame) SetEntryPoint(v uint64) *TrapFrame { tf.Sepc = v; return tf }

// SetArguments writes up to 8 arguments into a0-a7 following the standard
// RISC-V calling convention.
func (tf *TrapFrame) SetArguments(args []uint64) *TrapFrame {
	if len(args) > 8 {
		panic("task: too many arguments")
	}
	copy(tf.X[regA0:regA0+len(args)], args)
	return tf
}

// sstatusSPP and sstatusSPIE are the sstatus bits Init sets: SPP records
// whether the trapped-from mode was user or supervisor, SPIE controls
// whether interrupts are enabled once sret restores sstatus.SIE from it.
const (
	sstatusSPP  = 1 << 8
	sstatusSPIE = 1 << 5
)

// Init builds the initial trapframe for a brand-new thread: stack
// pointer, entry point, arguments, and the previous-privilege/interrupt-
// enable bits of sstatus.
func (tf *TrapFrame) Init(stackTop, entryPoint uint64, args []uint64, isUser bool, sstatus uint64) {
	tf.SetSP(stackTop)
	if args != nil {
		tf.SetArguments(args)
	} else {
		tf.SetArguments(make([]uint64, 4))
	}
	tf.Sepc = entryPoint
	tf.Sstatus = sstatus
	if isUser {
		tf.Sstatus &^= sstatusSPP
	} else {
		tf.Sstatus |= sstatusSPP
	}
	tf.Sstatus |= sstatusSPIE
}
