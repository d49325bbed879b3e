package vmm

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/pagetable"
)

// userBytes returns the slice of the current page backing va, starting at
// va's in-page offset. Every mapped page is populated at insertion time,
// so the only in-between state a kernel access can hit is a COW page on a
// write, which is resolved through the same path a hardware store fault
// takes.
func (as *AddressSpace) userBytes(va addr.VA, forWrite bool) ([]byte, abi.Err_t) {
	as.LockAssertPmap()
	if _, ok := as.Lookup(va); !ok {
		return nil, abi.EFAULT
	}
	vpn := va.Floor()
	loc, found := as.Table.Find(vpn)
	if !found {
		return nil, abi.EFAULT
	}
	pte := as.Table.Load(loc)
	if !pte.IsValid() {
		return nil, abi.EFAULT
	}
	if forWrite && !pte.Has(pagetable.WRITABLE) {
		if err := as.handleFaultLocked(va, true); err != 0 {
			return nil, err
		}
		loc, _ = as.Table.Find(vpn)
		pte = as.Table.Load(loc)
	}
	b := as.mem.Dmap(pte.PPN())
	return b[va.Offset():], 0
}

// CopyIn copies len(dst) bytes from user address uva into dst, faulting
// pages in as needed.
func (as *AddressSpace) CopyIn(dst []byte, uva addr.VA) abi.Err_t {
	as.LockPmap()
	defer as.UnlockPmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.userBytes(uva.Add(int64(cnt)), false)
		if err != 0 {
			return err
		}
		n := copy(dst, src)
		dst = dst[n:]
		cnt += n
	}
	return 0
}

// CopyOut copies src into user memory starting at uva.
func (as *AddressSpace) CopyOut(uva addr.VA, src []byte) abi.Err_t {
	as.LockPmap()
	defer as.UnlockPmap()
	cnt := 0
	for len(src) != 0 {
		dst, err := as.userBytes(uva.Add(int64(cnt)), true)
		if err != 0 {
			return err
		}
		n := copy(dst, src)
		src = src[n:]
		cnt += n
	}
	return 0
}

// ReadUint reads an n-byte (n<=8) little-endian unsigned value from uva.
func (as *AddressSpace) ReadUint(uva addr.VA, n int) (uint64, abi.Err_t) {
	if n > 8 {
		panic("vmm: large n")
	}
	var buf [8]byte
	if err := as.CopyIn(buf[:n], uva); err != 0 {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	return v, 0
}

// WriteUint writes the low n bytes (n<=8) of val to uva.
func (as *AddressSpace) WriteUint(uva addr.VA, n int, val uint64) abi.Err_t {
	if n > 8 {
		panic("vmm: large n")
	}
	var buf [8]byte
	for i := 0; i < n; i++ {
		buf[i] = byte(val >> (8 * i))
	}
	return as.CopyOut(uva, buf[:n])
}

// ReadCString copies a NUL-terminated string from user memory at uva, up
// to lenmax bytes.
func (as *AddressSpace) ReadCString(uva addr.VA, lenmax int) (string, abi.Err_t) {
	if lenmax < 0 {
		return "", 0
	}
	as.LockPmap()
	defer as.UnlockPmap()
	var out []byte
	i := int64(0)
	for {
		chunk, err := as.userBytes(uva.Add(i), false)
		if err != 0 {
			return "", err
		}
		for j, c := range chunk {
			if c == 0 {
				out = append(out, chunk[:j]...)
				return string(out), 0
			}
		}
		out = append(out, chunk...)
		i += int64(len(chunk))
		if len(out) >= lenmax {
			return "", abi.ENAMETOOLONG
		}
	}
}

// ReadTimespec reads a {sec, nsec} pair of int64s from uva.
func (as *AddressSpace) ReadTimespec(uva addr.VA) (abi.Timespec, abi.Err_t) {
	secs, err := as.ReadUint(uva, 8)
	if err != 0 {
		return abi.Timespec{}, err
	}
	nsecs, err := as.ReadUint(uva.Add(8), 8)
	if err != 0 {
		return abi.Timespec{}, err
	}
	return abi.Timespec{Sec: int64(secs), Nsec: int64(nsecs)}, 0
}
