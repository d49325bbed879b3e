package vmm

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/pagetable"
)

// protToFlags translates the mmap/mprotect PROT_* bits into this
// package's pagetable.Flags, always including USER since every mapping
// Mmap creates belongs to the calling process's user region.
func protToFlags(prot int) pagetable.Flags {
	var f pagetable.Flags = pagetable.USER
	if prot&abi.PROT_READ != 0 {
		f |= pagetable.READABLE
	}
	if prot&abi.PROT_WRITE != 0 {
		f |= pagetable.WRITABLE
	}
	if prot&abi.PROT_EXEC != 0 {
		f |= pagetable.EXECUTABLE
	}
	return f
}

// Mmap implements the mmap(addr, length, prot, flags, fd, offset)
// syscall contract: addr == 0 allocates a fresh private mapping of
// length bytes at an address the address space picks itself (a bump
// pointer starting at defaultMmapBase); addr != 0 re-permissions the
// mapping already covering that range. If backend is non-nil the mapping
// is file-backed and its first length bytes are read from offset.
func (as *AddressSpace) Mmap(hint addr.VA, length int, prot int, backend FileBackend, offset int64) (addr.VA, abi.Err_t) {
	if hint != 0 {
		if err := as.Mprotect(hint, length, prot); err != 0 {
			return 0, err
		}
		return hint, 0
	}

	if as.mmapNext == 0 {
		as.mmapNext = defaultMmapBase
	}
	start := as.mmapNext
	flags := protToFlags(prot)
	var m *MapArea
	if backend != nil {
		m = as.AddFile(start, length, flags, backend, offset)
	} else {
		m = as.AddAnon(start, length, flags)
	}
	if m == nil {
		return 0, abi.ENOMEM
	}
	as.mmapNext = m.VPNs.End.ToVA()
	return m.VPNs.Start.ToVA(), 0
}

// Munmap removes the mapping whose end is vaEnd.
func (as *AddressSpace) Munmap(vaEnd addr.VA) abi.Err_t {
	as.LockPmap()
	defer as.UnlockPmap()
	for i, m := range as.areas {
		if m.VPNs.End.ToVA() != vaEnd {
			continue
		}
		m.VPNs.ForEach(func(vpn addr.VPN) {
			as.unmapIfPresent(vpn)
		})
		as.areas = append(as.areas[:i], as.areas[i+1:]...)
		return 0
	}
	return abi.EINVAL
}

// Mprotect changes the permission bits of every page in [va, va+length),
// requiring the range to lie entirely within one existing map area.
func (as *AddressSpace) Mprotect(va addr.VA, length int, prot int) abi.Err_t {
	as.LockPmap()
	defer as.UnlockPmap()
	m, ok := as.Lookup(va)
	if !ok {
		return abi.EINVAL
	}
	end := va.Add(int64(length))
	if end.Floor() > m.VPNs.End {
		return abi.EINVAL
	}
	m.Perms = protToFlags(prot)

	vr := addr.NewVPNRange(va, end)
	vr.ForEach(func(vpn addr.VPN) {
		loc, found := as.Table.Find(vpn)
		if !found {
			return
		}
		pte := as.Table.Load(loc)
		if !pte.IsValid() {
			return
		}
		newFlags := (pte.Flags() &^ (pagetable.READABLE | pagetable.WRITABLE | pagetable.EXECUTABLE)) | (m.Perms & (pagetable.READABLE | pagetable.WRITABLE | pagetable.EXECUTABLE))
		as.Table.Store(loc, pagetable.New(pte.PPN(), newFlags))
	})
	return 0
}
