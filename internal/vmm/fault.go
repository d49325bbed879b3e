package vmm

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/pagetable"
)

// HandleFault resolves a page fault at va, write reporting whether the
// faulting access was a store. Every page of every area is mapped eagerly
// at insertion time, so the only fault this address space can recover
// from is a store to a page fork downgraded to copy-on-write; anything
// else returns EFAULT and the trap path treats it as fatal.
func (as *AddressSpace) HandleFault(va addr.VA, write bool) abi.Err_t {
	as.LockPmap()
	defer as.UnlockPmap()
	return as.handleFaultLocked(va, write)
}

func (as *AddressSpace) handleFaultLocked(va addr.VA, write bool) abi.Err_t {
	as.LockAssertPmap()
	m, ok := as.Lookup(va)
	if !ok {
		return abi.EFAULT
	}
	if m.Perms == 0 {
		// guard region: never mapped, never resolvable.
		return abi.EFAULT
	}
	if write && m.Perms&pagetable.WRITABLE == 0 {
		return abi.EFAULT
	}

	loc, ok := as.Table.Find(va.Floor())
	if !ok {
		return abi.EFAULT
	}
	pte := as.Table.Load(loc)
	if !pte.IsValid() {
		return abi.EFAULT
	}

	if !write || pte.Has(pagetable.WRITABLE) {
		// the mapping is already good; another thread resolved this fault
		// between trap entry and here.
		return 0
	}
	if !pte.Has(pagetable.COW) {
		return abi.EFAULT
	}

	// store to a COW page: clear COW, set WRITABLE. If the frame is still
	// shared, copy it into a private frame first and rebind the PTE.
	ppn := pte.PPN()
	newFlags := (pte.Flags() &^ pagetable.COW) |
		pagetable.WRITABLE | pagetable.WASCOW | pagetable.DIRTY
	if as.mem.Refcount(ppn) == 1 {
		// sole owner: claim the page in place.
		as.Table.Store(loc, pagetable.New(ppn, newFlags))
		return 0
	}
	tok, ok2 := as.mem.AllocNoZero()
	if !ok2 {
		return abi.ENOMEM
	}
	copy(as.mem.Dmap(tok.PPN()), as.mem.Dmap(ppn))
	as.Table.Store(loc, pagetable.New(tok.PPN(), newFlags))
	as.mem.Deref(ppn)
	return 0
}
