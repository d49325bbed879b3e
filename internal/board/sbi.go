package board

// SBI extension IDs, function IDs, and error codes, per the RISC-V
// Supervisor Binary Interface spec. The wire values are identical on both
// sides of the call; these back the client side a supervisor kernel
// issues ecalls through.
const (
	extBase          = 0x10
	extTimer         = 0x54494D45 // "TIME"
	extIPI           = 0x735049   // "sPI"
	extRFence        = 0x52464E43 // "RFNC"
	extHSM           = 0x48534D   // "HSM"
	extSRST          = 0x53525354 // "SRST"
	extLegacyPutchar = 0x01
	extLegacyGetchar = 0x02
)

const (
	baseGetSpecVersion = 0
	baseProbeExtension = 3
)

const (
	timerSetTimer = 0
)

const (
	hsmHartStart  = 0
	hsmHartStop   = 1
	hsmHartStatus = 2
)

const (
	srstShutdown = 0
	srstColdboot = 1
	srstWarmboot = 2
)

// SBI error codes, returned in a0 by every ecall.
const (
	ErrSuccess          int64 = 0
	ErrFailed           int64 = -1
	ErrNotSupported     int64 = -2
	ErrInvalidParam     int64 = -3
	ErrDenied           int64 = -4
	ErrInvalidAddress   int64 = -5
	ErrAlreadyAvailable int64 = -6
)

// EcallFunc issues one SBI ecall: a7=ext, a6=fid, a0-a5=args. Returns the
// value SBI wrote back into a1 and the error code it wrote into a0.
// Implementing this requires the `ecall` instruction itself, which plain
// Go cannot emit portably; board.Init installs the real one, tests inject
// a fake the same way klock.SetIRQForTesting does.
type EcallFunc func(ext, fid uint64, args [6]uint64) (val uint64, err int64)

var ecall EcallFunc

// InstallEcall registers the hardware ecall primitive. Called once by
// board.Init; tests call it directly with a fake.
func InstallEcall(f EcallFunc) { ecall = f }

func call(ext, fid uint64, args ...uint64) (uint64, int64) {
	if ecall == nil {
		panic("board: SBI ecall used before board.Init")
	}
	var a [6]uint64
	copy(a[:], args)
	return ecall(ext, fid, a)
}

// SBI is a thin, idiomatic-Go façade over the handful of SBI calls this
// kernel needs: console output, the platform timer, and hart lifecycle
// management, in place of a bare-metal kernel's usual hand-coded ecall
// stubs.
type SBI struct{}

// ConsolePutByte writes one byte to the legacy SBI console, the path the
// kernel's UART-less boot console uses before a real driver takes over.
func (SBI) ConsolePutByte(b byte) {
	call(extLegacyPutchar, 0, uint64(b))
}

// ConsoleGetByte polls the legacy SBI console for one byte, returning ok
// false if none is pending.
func (SBI) ConsoleGetByte() (byte, bool) {
	val, _ := call(extLegacyGetchar, 0)
	if int64(val) < 0 {
		return 0, false
	}
	return byte(val), true
}

// TimerSetTimer programs the next one-shot timer interrupt to fire when
// the platform timer reaches deadline ticks, the primitive
// internal/timer.Queue.NextDeadline feeds.
func (SBI) TimerSetTimer(deadline uint64) error {
	_, errc := call(extTimer, timerSetTimer, deadline)
	return sbiErr(errc)
}

// HSMHartStart boots hartID at startAddr with opaque passed through in a1,
// the SBI HSM extension's hart bring-up call used during multi-hart boot.
func (SBI) HSMHartStart(hartID, startAddr, opaque uint64) error {
	_, errc := call(extHSM, hsmHartStart, hartID, startAddr, opaque)
	return sbiErr(errc)
}

// HSMHartStop parks the calling hart; it never returns on success.
func (SBI) HSMHartStop() error {
	_, errc := call(extHSM, hsmHartStop)
	return sbiErr(errc)
}

// Shutdown requests a clean system reset via the SRST extension.
func (SBI) Shutdown() error {
	_, errc := call(extSRST, srstShutdown, 0, 0)
	return sbiErr(errc)
}

// SpecVersion returns the SBI implementation's reported spec version.
func (SBI) SpecVersion() uint64 {
	val, _ := call(extBase, baseGetSpecVersion)
	return val
}

// ProbeExtension reports whether the SBI implementation supports ext.
func (SBI) ProbeExtension(ext uint64) bool {
	val, _ := call(extBase, baseProbeExtension, ext)
	return val != 0
}

type sbiError int64

func (e sbiError) Error() string {
	switch int64(e) {
	case ErrFailed:
		return "sbi: failed"
	case ErrNotSupported:
		return "sbi: not supported"
	case ErrInvalidParam:
		return "sbi: invalid parameter"
	case ErrDenied:
		return "sbi: denied"
	case ErrInvalidAddress:
		return "sbi: invalid address"
	case ErrAlreadyAvailable:
		return "sbi: already available"
	default:
		return "sbi: unknown error"
	}
}

func sbiErr(code int64) error {
	if code == ErrSuccess {
		return nil
	}
	return sbiError(code)
}
