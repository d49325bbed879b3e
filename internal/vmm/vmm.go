// Package vmm implements a process address space: its map-area list
// (populated eagerly, every page mapped at insertion time), copy-on-write
// fork and its fault resolution, and the user/kernel copy primitives
// syscalls use to move bytes across the privilege boundary.
// It sits on top of the SV39 three-level walker in internal/pagetable.
package vmm

import (
	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/frame"
	"rvcore/internal/klock"
	"rvcore/internal/pagetable"
)

// FileBackend supplies the page at a given byte offset into a mapped file.
// No package in this module implements it; the vmm tests supply a fake.
// Returning a frame.Token lets
// the backend keep its own reference; callers that want to retain the page
// beyond the fault must Clone it.
type FileBackend interface {
	Page(foff int64) (frame.Token, error)
}

// Kind distinguishes how a MapArea's pages are sourced and shared.
type Kind int

const (
	Anon       Kind = iota // private, zero-filled, COW on fork
	File                   // private, file-backed, COW on write
	SharedAnon             // shared anonymous, never COW
	SharedFile             // shared file-backed, writes go to the backend
)

// MapArea describes one contiguous virtual mapping. Perms holds only
// READABLE/WRITABLE/EXECUTABLE/USER; the page-table entries carry VALID
// (set at insertion time, when every page is populated) and COW (set by
// fork). Perms == 0 marks a guard region: nothing is mapped and any fault
// against it is fatal.
type MapArea struct {
	Kind    Kind
	VPNs    addr.VPNRange
	Perms   pagetable.Flags
	Backend FileBackend
	FileOff int64
}

func (m *MapArea) contains(vpn addr.VPN) bool { return m.VPNs.Contains(vpn) }

// AddressSpace is one process's page table plus its map-area list. The
// embedded lock serializes every lookup/mutation; LockPmap/UnlockPmap
// additionally record that the lock is held so LockAssertPmap can catch
// call sites that forgot to acquire it.
type AddressSpace struct {
	lock      klock.Spinlock
	mem       *frame.Allocator
	Table     *pagetable.Table
	areas     []*MapArea
	brk       addr.VA
	brkArea   *MapArea
	faultHeld bool

	// mmapNext is the bump pointer Mmap (mmap.go) hands out fresh
	// addresses from when the caller passes addr==0, analogous to
	// brk/brkArea but for the separate mmap region above the heap.
	mmapNext addr.VA
}

// defaultMmapBase is where the mmap bump allocator starts handing out
// addresses absent any other hint, chosen well above any reasonable
// brk/heap growth and below the user stack cmd/kernel places under its
// userStackTop.
const defaultMmapBase = addr.VA(0x10_0000_0000)

// New allocates a fresh page table cloned from template's kernel mappings
// and an empty address space over it.
func New(mem *frame.Allocator, template *pagetable.Table) (*AddressSpace, bool) {
	tab, ok := pagetable.NewTable(mem)
	if !ok {
		return nil, false
	}
	if template != nil {
		tab.CloneKernelTemplate(template)
	}
	return &AddressSpace{mem: mem, Table: tab}, true
}

// LockPmap acquires the address space lock and marks a fault as taken.
func (as *AddressSpace) LockPmap() {
	as.lock.Lock()
	as.faultHeld = true
}

// UnlockPmap releases the address space lock.
func (as *AddressSpace) UnlockPmap() {
	as.faultHeld = false
	as.lock.Unlock()
}

// LockAssertPmap panics if the caller forgot to hold the address space lock.
func (as *AddressSpace) LockAssertPmap() {
	if !as.faultHeld {
		panic("vmm: pmap lock must be held")
	}
}

// Lookup returns the map area covering va, if any.
func (as *AddressSpace) Lookup(va addr.VA) (*MapArea, bool) {
	vpn := va.Floor()
	for _, m := range as.areas {
		if m.contains(vpn) {
			return m, true
		}
	}
	return nil, false
}

func (as *AddressSpace) insert(m *MapArea) {
	as.areas = append(as.areas, m)
}

// AddAnon installs a private, zero-filled mapping, populating a fresh
// zeroed frame for every covered page at insertion time. Returns nil when
// the allocator cannot back the whole range.
func (as *AddressSpace) AddAnon(start addr.VA, length int, perms pagetable.Flags) *MapArea {
	m := &MapArea{Kind: Anon, VPNs: addr.NewVPNRange(start, start.Add(int64(length))), Perms: perms}
	return as.installPopulated(m)
}

// AddGuard installs a zero-permission guard region: no pages are mapped,
// and any fault against it is EFAULT, never resolved.
func (as *AddressSpace) AddGuard(start addr.VA, length int) *MapArea {
	m := &MapArea{Kind: Anon, VPNs: addr.NewVPNRange(start, start.Add(int64(length))), Perms: 0}
	as.LockPmap()
	as.insert(m)
	as.UnlockPmap()
	return m
}

// AddFile installs a private file-backed mapping. The whole region is
// populated at map time: every page's bytes are read from the backend
// into a private frame before this returns. Returns nil on allocation or
// backend failure.
func (as *AddressSpace) AddFile(start addr.VA, length int, perms pagetable.Flags, backend FileBackend, foff int64) *MapArea {
	m := &MapArea{Kind: File, VPNs: addr.NewVPNRange(start, start.Add(int64(length))), Perms: perms, Backend: backend, FileOff: foff}
	return as.installPopulated(m)
}

// AddSharedAnon installs a shared anonymous mapping, populated eagerly
// like AddAnon.
func (as *AddressSpace) AddSharedAnon(start addr.VA, length int, perms pagetable.Flags) *MapArea {
	m := &MapArea{Kind: SharedAnon, VPNs: addr.NewVPNRange(start, start.Add(int64(length))), Perms: perms}
	return as.installPopulated(m)
}

// AddSharedFile installs a shared file-backed mapping. The backend's own
// frames are mapped directly, so writes reach the backend; population is
// still eager.
func (as *AddressSpace) AddSharedFile(start addr.VA, length int, perms pagetable.Flags, backend FileBackend, foff int64) *MapArea {
	m := &MapArea{Kind: SharedFile, VPNs: addr.NewVPNRange(start, start.Add(int64(length))), Perms: perms, Backend: backend, FileOff: foff}
	return as.installPopulated(m)
}

// installPopulated maps every page of m and inserts it into the area
// list, undoing any partial mapping and returning nil if the allocator or
// the backend cannot supply a page.
func (as *AddressSpace) installPopulated(m *MapArea) *MapArea {
	as.LockPmap()
	defer as.UnlockPmap()
	for v := m.VPNs.Start; v < m.VPNs.End; v = v.Add(1) {
		if err := as.mapPageLocked(m, v); err != 0 {
			for u := m.VPNs.Start; u < v; u = u.Add(1) {
				as.unmapIfPresent(u)
			}
			return nil
		}
	}
	as.insert(m)
	return m
}

// mapPageLocked installs one page of m at vpn: a fresh zeroed frame for
// anonymous areas, a private copy of the backend's page for File, or the
// backend's own frame for SharedFile. The page-table entry ends up
// holding the frame's only reference (or an extra one, for SharedFile).
func (as *AddressSpace) mapPageLocked(m *MapArea, vpn addr.VPN) abi.Err_t {
	as.LockAssertPmap()
	perms := m.Perms | pagetable.VALID | pagetable.ACCESSED
	if m.Perms&pagetable.WRITABLE != 0 {
		perms |= pagetable.DIRTY
	}

	var ppn addr.PPN
	switch m.Kind {
	case Anon, SharedAnon:
		tok, ok := as.mem.Alloc()
		if !ok {
			return abi.ENOMEM
		}
		ppn = tok.PPN()
	case File, SharedFile:
		tok, err := m.Backend.Page(m.FileOff + int64(vpn.Sub(m.VPNs.Start))*addr.PageSize)
		if err != nil {
			return abi.EIO
		}
		if m.Kind == SharedFile {
			ppn = tok.PPN()
		} else {
			own, ok := as.mem.AllocNoZero()
			if !ok {
				tok.Free()
				return abi.ENOMEM
			}
			copy(as.mem.Dmap(own.PPN()), as.mem.Dmap(tok.PPN()))
			tok.Free()
			ppn = own.PPN()
		}
	}

	loc, ok := as.Table.FindOrCreate(vpn)
	if !ok {
		as.mem.Deref(ppn)
		return abi.ENOMEM
	}
	if as.Table.Load(loc).IsValid() {
		panic("vmm: double map")
	}
	as.Table.Store(loc, pagetable.New(ppn, perms))
	return 0
}

// InitBrk designates an existing anonymous area as the process's growable
// heap, so Sbrk knows which area to extend.
func (as *AddressSpace) InitBrk(m *MapArea, initial addr.VA) {
	as.brkArea = m
	as.brk = initial
}

// Brk returns the current break address.
func (as *AddressSpace) Brk() addr.VA { return as.brk }

// Sbrk grows or shrinks the heap area to newBrk. Growth maps a zeroed
// frame for every newly covered page before returning; shrinking unmaps
// and frees every page that falls out of range.
func (as *AddressSpace) Sbrk(newBrk addr.VA) abi.Err_t {
	if as.brkArea == nil {
		panic("vmm: Sbrk before InitBrk")
	}
	as.LockPmap()
	defer as.UnlockPmap()

	oldEnd := as.brkArea.VPNs.End
	if newBrk < as.brk {
		// shrinking: unmap pages between the new and old break.
		newVPN := newBrk.Ceil()
		for v := newVPN; v < oldEnd; v = v.Add(1) {
			as.unmapIfPresent(v)
		}
		as.brkArea.VPNs.End = newVPN
	} else {
		newEnd := newBrk.Ceil()
		for v := oldEnd; v < newEnd; v = v.Add(1) {
			if err := as.mapPageLocked(as.brkArea, v); err != 0 {
				for u := oldEnd; u < v; u = u.Add(1) {
					as.unmapIfPresent(u)
				}
				return abi.ENOMEM
			}
		}
		as.brkArea.VPNs.End = newEnd
	}
	as.brk = newBrk
	return 0
}

func (as *AddressSpace) unmapIfPresent(vpn addr.VPN) {
	loc, ok := as.Table.Find(vpn)
	if !ok {
		return
	}
	pte := as.Table.Load(loc)
	if !pte.IsValid() {
		return
	}
	ppn := pte.PPN()
	as.Table.Store(loc, 0)
	as.mem.Deref(ppn)
}

// Free tears down every mapping and the page table itself.
func (as *AddressSpace) Free() {
	as.LockPmap()
	for _, m := range as.areas {
		m.VPNs.ForEach(func(vpn addr.VPN) {
			as.unmapIfPresent(vpn)
		})
	}
	as.areas = nil
	as.UnlockPmap()
	as.Table.Free()
}
