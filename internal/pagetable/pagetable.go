package pagetable

import (
	"rvcore/internal/addr"
	"rvcore/internal/frame"
)

const entriesPerPage = addr.PageSize / 8 // 512 64-bit PTEs per page

// Table is a three-level SV39 page table: one root frame plus interior
// frames allocated on demand. Interior frames live as long as the table;
// Free releases them all.
type Table struct {
	mem     *frame.Allocator
	root    frame.Token
	interior []frame.Token
}

// NewTable allocates a fresh, zeroed root frame.
func NewTable(mem *frame.Allocator) (*Table, bool) {
	root, ok := mem.Alloc()
	if !ok {
		return nil, false
	}
	return &Table{mem: mem, root: root}, true
}

// RootPPN returns the physical page number of the root frame, the value
// written into satp by Activate.
func (t *Table) RootPPN() addr.PPN { return t.root.PPN() }

func (t *Table) readPTE(ppn addr.PPN, idx int) PTE {
	b := t.mem.Dmap(ppn)
	off := idx * 8
	var v uint64
	for j := 0; j < 8; j++ {
		v |= uint64(b[off+j]) << (8 * j)
	}
	return PTE(v)
}

func (t *Table) writePTE(ppn addr.PPN, idx int, p PTE) {
	b := t.mem.Dmap(ppn)
	off := idx * 8
	v := uint64(p)
	for j := 0; j < 8; j++ {
		b[off+j] = byte(v >> (8 * j))
	}
}

// FindOrCreate walks vpn's three index levels, allocating interior page
// frames for any missing level, and returns the address of the leaf PTE
// slot (identified by its frame PPN and index so callers can read-modify-
// write it through Table without holding a Go pointer into the arena).
// Returns false if an interior frame could not be allocated.
func (t *Table) FindOrCreate(vpn addr.VPN) (PTELoc, bool) {
	idxs := vpn.Indexes()
	cur := t.root.PPN()
	for level := 0; level < 2; level++ {
		pte := t.readPTE(cur, int(idxs[level]))
		if !pte.IsValid() {
			nf, ok := t.mem.Alloc()
			if !ok {
				return PTELoc{}, false
			}
			t.interior = append(t.interior, nf)
			pte = New(nf.PPN(), VALID)
			t.writePTE(cur, int(idxs[level]), pte)
		}
		cur = pte.PPN()
	}
	return PTELoc{ppn: cur, idx: int(idxs[2])}, true
}

// Find walks vpn without creating missing interior levels, returning
// (loc, false) as soon as any level is missing, including a leaf PTE
// that is not valid.
func (t *Table) Find(vpn addr.VPN) (PTELoc, bool) {
	idxs := vpn.Indexes()
	cur := t.root.PPN()
	for level := 0; level < 2; level++ {
		pte := t.readPTE(cur, int(idxs[level]))
		if !pte.IsValid() {
			return PTELoc{}, false
		}
		cur = pte.PPN()
	}
	loc := PTELoc{ppn: cur, idx: int(idxs[2])}
	if !t.Load(loc).IsValid() {
		return PTELoc{}, false
	}
	return loc, true
}

// PTELoc addresses one leaf PTE slot inside a page table.
type PTELoc struct {
	ppn addr.PPN
	idx int
}

// Load reads the PTE at loc via t.
func (t *Table) Load(loc PTELoc) PTE { return t.readPTE(loc.ppn, loc.idx) }

// Store writes pte at loc via t.
func (t *Table) Store(loc PTELoc, pte PTE) { t.writePTE(loc.ppn, loc.idx, pte) }

// MapOne installs a fresh mapping vpn -> ppn with the given flags
// (VALID is added automatically). Panics if vpn is already mapped; a
// double map is always a kernel bug.
func (t *Table) MapOne(vpn addr.VPN, ppn addr.PPN, flags Flags) bool {
	loc, ok := t.FindOrCreate(vpn)
	if !ok {
		return false
	}
	if t.Load(loc).IsValid() {
		panic("pagetable: MapOne of already-mapped vpn")
	}
	t.Store(loc, New(ppn, flags|VALID))
	return true
}

// RemapOne overwrites an existing valid mapping's PPN/flags. Panics if vpn
// is not currently mapped.
func (t *Table) RemapOne(vpn addr.VPN, ppn addr.PPN, flags Flags) {
	loc, ok := t.Find(vpn)
	if !ok || !t.Load(loc).IsValid() {
		panic("pagetable: RemapOne of unmapped vpn")
	}
	t.Store(loc, New(ppn, flags|VALID))
}

// UnmapOne clears vpn's mapping. Panics if vpn is not currently mapped.
func (t *Table) UnmapOne(vpn addr.VPN) {
	loc, ok := t.Find(vpn)
	if !ok || !t.Load(loc).IsValid() {
		panic("pagetable: UnmapOne of unmapped vpn")
	}
	t.Store(loc, PTE(0))
}

// TranslateVA combines the PTE's PPN with va's in-page offset.
func (t *Table) TranslateVA(va addr.VA) (addr.PA, bool) {
	loc, ok := t.Find(va.Floor())
	if !ok {
		return 0, false
	}
	pte := t.Load(loc)
	if !pte.IsValid() {
		return 0, false
	}
	return addr.PA(uint64(pte.PPN())<<addr.PageShift | va.Offset()), true
}

// CloneKernelTemplate copies every root-level entry from template into a
// freshly allocated root, giving the new table identical kernel mappings.
// Each per-process table sees the kernel template's top-level directory
// pointers directly; the template's owner, not this package, is
// responsible for keeping those shared interior subtrees correct for
// every address space.
func (t *Table) CloneKernelTemplate(template *Table) {
	for i := 0; i < entriesPerPage; i++ {
		pte := template.readPTE(template.root.PPN(), i)
		t.writePTE(t.root.PPN(), i, pte)
	}
}

// activateHook is installed by board.Init with the code that actually
// writes satp and issues sfence.vma — both privileged operations this
// package cannot perform portably. Kept as a function variable rather than
// an interface parameter so every caller of Activate stays oblivious to
// the indirection.
var activateHook func(rootPPN addr.PPN)

// InstallActivateHook registers the hardware satp-write primitive. Called
// once by board.Init.
func InstallActivateHook(f func(rootPPN addr.PPN)) { activateHook = f }

// Activate writes satp with SV39 mode (8) and this table's root PPN, then
// issues sfence.vma.
func (t *Table) Activate() {
	if activateHook == nil {
		panic("pagetable: Activate called before board.Init")
	}
	activateHook(t.root.PPN())
}

// Free releases the root and every interior frame this table owns. It does
// not unmap or free leaf data frames — those belong to the map-areas in
// internal/vmm, which must be torn down first.
func (t *Table) Free() {
	for i := range t.interior {
		t.interior[i].Free()
	}
	t.interior = nil
	t.root.Free()
}
