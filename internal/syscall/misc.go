package syscall

import (
	"unsafe"

	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/task"
)

func (k *Kernel) sysUname(th *task.Thread, bufVA uint64) int64 {
	var u abi.Utsname
	copy(u.Sysname[:], "rvcore")
	copy(u.Nodename[:], "rvcore")
	copy(u.Release[:], "1.0.0")
	copy(u.Version[:], "#1")
	copy(u.Machine[:], "riscv64")
	b := unsafe.Slice((*byte)(unsafe.Pointer(&u)), int(unsafe.Sizeof(u)))
	if err := th.Proc.AS.CopyOut(addr.VA(bufVA), b); err != 0 {
		return int64(-err)
	}
	return 0
}

func (k *Kernel) sysTimes(th *task.Thread, bufVA uint64) int64 {
	tms := th.Proc.Accnt.Tms()
	if bufVA != 0 {
		b := unsafe.Slice((*byte)(unsafe.Pointer(&tms)), int(unsafe.Sizeof(tms)))
		if err := th.Proc.AS.CopyOut(addr.VA(bufVA), b); err != 0 {
			return int64(-err)
		}
	}
	if k.Ticks != nil {
		return int64(k.Ticks())
	}
	return 0
}

func (k *Kernel) sysGettimeofday(th *task.Thread, tvVA uint64) int64 {
	if k.Wall == nil {
		return int64(-abi.EINVAL)
	}
	sec, nsec := k.Wall()
	tv := abi.Timeval{Sec: sec, Usec: nsec / 1000}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&tv)), int(unsafe.Sizeof(tv)))
	if err := th.Proc.AS.CopyOut(addr.VA(tvVA), b); err != 0 {
		return int64(-err)
	}
	return 0
}

// sysNanosleep registers a one-shot timer deadline that re-readies th and
// parks it off the ready queue entirely until that fires. A blocked
// thread holds no lock and occupies no ready-queue slot while waiting.
func (k *Kernel) sysNanosleep(th *task.Thread, reqVA, _ uint64) int64 {
	ts, err := th.Proc.AS.ReadTimespec(addr.VA(reqVA))
	if err != 0 {
		return int64(-err)
	}
	if k.Timer == nil || k.Ticks == nil || k.Block == nil {
		return 0
	}
	deltaTicks := uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
	deadline := k.Ticks() + deltaTicks
	k.Timer.Register(deadline, func() { th.MarkReady() })
	k.Block(th)
	return 0
}
