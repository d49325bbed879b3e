package vmm

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/pagetable"
)

// Fork builds a child address space sharing every anonymous and private
// file-backed page with the parent under copy-on-write, and sharing
// shared mappings (SharedAnon/SharedFile) directly without COW.
func (as *AddressSpace) Fork(template *pagetable.Table) (*AddressSpace, abi.Err_t) {
	as.LockPmap()
	defer as.UnlockPmap()

	child, ok := New(as.mem, template)
	if !ok {
		return nil, abi.ENOMEM
	}
	child.brk = as.brk

	for _, m := range as.areas {
		cm := &MapArea{Kind: m.Kind, VPNs: m.VPNs, Perms: m.Perms, Backend: m.Backend, FileOff: m.FileOff}
		child.insert(cm)
		if m == as.brkArea {
			child.brkArea = cm
		}

		if m.Kind == SharedAnon || m.Kind == SharedFile {
			// shared mappings are never copied or made COW; both address
			// spaces must see writes immediately.
			m.VPNs.ForEach(func(vpn addr.VPN) {
				as.shareMapping(child, vpn)
			})
			continue
		}

		m.VPNs.ForEach(func(vpn addr.VPN) {
			as.cowShareMapping(child, vpn)
		})
	}
	return child, 0
}

// shareMapping installs the same physical frame, with the same
// permissions, in child at vpn, bumping its refcount. Used for shared
// (non-COW) mappings.
func (as *AddressSpace) shareMapping(child *AddressSpace, vpn addr.VPN) {
	loc, ok := as.Table.Find(vpn)
	if !ok {
		return
	}
	pte := as.Table.Load(loc)
	if !pte.IsValid() {
		return
	}
	cloc, ok := child.Table.FindOrCreate(vpn)
	if !ok {
		panic("vmm: fork could not allocate child page-table frame")
	}
	as.mem.RefUp(pte.PPN())
	child.Table.Store(cloc, pte)
}

// cowShareMapping installs the parent's frame into the child marked COW
// in both directions, and downgrades the parent's own mapping back to COW
// if a previous fault had resolved it writable (clearing WASCOW).
func (as *AddressSpace) cowShareMapping(child *AddressSpace, vpn addr.VPN) {
	loc, ok := as.Table.Find(vpn)
	if !ok {
		return
	}
	pte := as.Table.Load(loc)
	if !pte.IsValid() {
		return
	}
	ppn := pte.PPN()
	as.mem.RefUp(ppn)

	cowFlags := (pte.Flags() &^ (pagetable.WRITABLE | pagetable.WASCOW)) | pagetable.COW
	as.Table.Store(loc, pagetable.New(ppn, cowFlags))

	cloc, ok := child.Table.FindOrCreate(vpn)
	if !ok {
		panic("vmm: fork could not allocate child page-table frame")
	}
	child.Table.Store(cloc, pagetable.New(ppn, cowFlags))
}
