package board

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcore/internal/addr"
)

func fakeHooks() (HardwareHooks, *uint64) {
	sstatus := uint64(0)
	return HardwareHooks{
		Ecall: func(ext, fid uint64, args [6]uint64) (uint64, int64) {
			switch ext {
			case extBase:
				if fid == baseGetSpecVersion {
					return 0x01000000, ErrSuccess
				}
			case extTimer:
				return 0, ErrSuccess
			case extLegacyGetchar:
				return 0xffffffffffffffff, ErrSuccess
			}
			return 0, ErrSuccess
		},
		ReadSstatus:  func() uint64 { return sstatus },
		WriteSstatus: func(v uint64) { sstatus = v },
		CurrentHart:  func() int { return 0 },
		WriteSatp:    func(addr.PPN) {},
	}, &sstatus
}

func TestInitWiresIRQController(t *testing.T) {
	hw, sstatus := fakeHooks()
	*sstatus = sstatusSIE
	Init(QEMUVirt(), hw)

	var irq HartIRQ
	require.True(t, irq.Enabled())
	irq.SetEnabled(false)
	require.False(t, irq.Enabled())
	require.Equal(t, uint64(0), *sstatus)
}

func TestCurrentHartIDUsesHook(t *testing.T) {
	hw, _ := fakeHooks()
	hw.CurrentHart = func() int { return 3 }
	Init(QEMUVirt(), hw)
	require.Equal(t, 3, CurrentHartID())
}

func TestSBITimerSetTimerSuccess(t *testing.T) {
	hw, _ := fakeHooks()
	Init(QEMUVirt(), hw)
	var s SBI
	require.NoError(t, s.TimerSetTimer(1000))
}

func TestSBIConsoleGetByteNoData(t *testing.T) {
	hw, _ := fakeHooks()
	Init(QEMUVirt(), hw)
	var s SBI
	_, ok := s.ConsoleGetByte()
	require.False(t, ok)
}

func TestActiveReturnsLastConfig(t *testing.T) {
	hw, _ := fakeHooks()
	cfg := K210()
	Init(cfg, hw)
	require.Equal(t, "k210", Active().Name)
}
