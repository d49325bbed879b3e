// Package frame implements the physical frame allocator: a free list
// threaded through a parallel array indexed by (ppn - startPPN), with a
// reference count per frame so FrameToken can provide the cloneable,
// refcounted ownership COW relies on. One global lock; alloc and dealloc
// are O(1).
package frame

import (
	"rvcore/internal/addr"
	"rvcore/internal/klock"
)

// page holds the allocator bookkeeping for one physical frame.
type page struct {
	refcnt int32
	nexti  uint32 // index of next free page, or freeEnd
}

const freeEnd = ^uint32(0)

// Allocator owns a contiguous range of physical frames, [start, start+len),
// together with the byte storage that backs them. Dmap is a direct mapping
// from a physical frame to the bytes the kernel can read/write, standing in
// for the hardware's identity-offset mapping since there is no physical RAM
// behind this allocator.
type Allocator struct {
	lock    klock.Spinlock
	pages   []page
	backing []byte
	startn  addr.PPN
	freeHd  uint32
	freeLen int
}

// New creates an allocator over the frame range [start, end), consuming it
// for bookkeeping only (it does not zero or touch memory until Alloc is
// called). Panics if the range is empty.
func New(start, end addr.PPN) *Allocator {
	n := int64(end) - int64(start)
	if n <= 0 {
		panic("frame: empty range")
	}
	a := &Allocator{
		pages:   make([]page, n),
		backing: make([]byte, n*addr.PageSize),
		startn:  start,
	}
	for i := range a.pages {
		if i == len(a.pages)-1 {
			a.pages[i].nexti = freeEnd
		} else {
			a.pages[i].nexti = uint32(i + 1)
		}
	}
	a.freeHd = 0
	a.freeLen = len(a.pages)
	return a
}

// Len returns the total number of frames managed by this allocator.
func (a *Allocator) Len() int { return len(a.pages) }

// FreeCount returns the number of currently free frames.
func (a *Allocator) FreeCount() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.freeLen
}

func (a *Allocator) idx(ppn addr.PPN) uint32 {
	i := int64(ppn) - int64(a.startn)
	if i < 0 || i >= int64(len(a.pages)) {
		panic("frame: ppn out of range")
	}
	return uint32(i)
}

// Alloc removes one frame from the free list, sets its refcount to 1, and
// returns a token owning it. Returns (zero, false) when out of memory —
// never a panic; callers decide whether ENOMEM is fatal.
func (a *Allocator) Alloc() (Token, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.freeHd == freeEnd {
		return Token{}, false
	}
	i := a.freeHd
	if a.pages[i].refcnt != 0 {
		panic("frame: free list entry has nonzero refcount")
	}
	a.freeHd = a.pages[i].nexti
	a.freeLen--
	a.pages[i].refcnt = 1
	ppn := a.startn.Add(int64(i))
	clear(a.pageBytesLocked(i))
	return Token{a: a, ppn: ppn}, true
}

// AllocNoZero behaves like Alloc but skips zeroing the returned frame:
// used where the caller immediately overwrites every byte (e.g. a COW
// copy destination) and zeroing would be wasted work.
func (a *Allocator) AllocNoZero() (Token, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.freeHd == freeEnd {
		return Token{}, false
	}
	i := a.freeHd
	a.freeHd = a.pages[i].nexti
	a.freeLen--
	a.pages[i].refcnt = 1
	ppn := a.startn.Add(int64(i))
	return Token{a: a, ppn: ppn}, true
}

func (a *Allocator) pageBytesLocked(i uint32) []byte {
	off := int(i) * addr.PageSize
	return a.backing[off : off+addr.PageSize]
}

// Dmap returns the direct-mapped byte slice backing ppn's frame.
func (a *Allocator) Dmap(ppn addr.PPN) []byte {
	return a.pageBytesLocked(a.idx(ppn))
}

// refup increments the refcount of the frame at ppn. Used by Token.Clone.
func (a *Allocator) refup(ppn addr.PPN) {
	a.lock.Lock()
	defer a.lock.Unlock()
	i := a.idx(ppn)
	if a.pages[i].refcnt <= 0 {
		panic("frame: refup on unreferenced frame")
	}
	a.pages[i].refcnt++
}

// Refcount returns the current reference count of ppn, for tests and the
// stats device.
func (a *Allocator) Refcount(ppn addr.PPN) int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return int(a.pages[a.idx(ppn)].refcnt)
}

// RefUp adds one reference to ppn without producing a Token. Used by
// callers (e.g. internal/vmm's fork) that need to share a page-table
// entry's frame across two page tables without an intervening Token
// handle.
func (a *Allocator) RefUp(ppn addr.PPN) { a.refup(ppn) }

// Deref drops one reference to ppn, freeing it to the free list once the
// last reference is gone. Used by callers (e.g. internal/vmm) that hold a
// bare PPN extracted from a page-table entry rather than a Token, because
// the table owns the only reference and a Token would be a second one.
func (a *Allocator) Deref(ppn addr.PPN) {
	a.dealloc(ppn)
}

// dealloc decrements the refcount of ppn and, if it reaches zero, returns
// the frame to the free list. Panics on a double-free (refcount already
// zero); that is always a kernel bug, never a recoverable condition.
func (a *Allocator) dealloc(ppn addr.PPN) {
	a.lock.Lock()
	defer a.lock.Unlock()
	i := a.idx(ppn)
	if a.pages[i].refcnt <= 0 {
		panic("frame: double free")
	}
	a.pages[i].refcnt--
	if a.pages[i].refcnt == 0 {
		a.pages[i].nexti = a.freeHd
		a.freeHd = i
		a.freeLen++
	}
}

// Token is a reference-counted handle on one physical frame. The zero
// Token is not valid; it must come from Alloc or Clone. Cloning a token
// increments the frame's count; dropping the last clone (calling Free for
// the last time) returns the frame to its allocator.
type Token struct {
	a   *Allocator
	ppn addr.PPN
}

// Valid reports whether t was produced by Alloc/Clone and not yet fully
// freed.
func (t Token) Valid() bool { return t.a != nil }

// PPN returns the physical page number this token owns.
func (t Token) PPN() addr.PPN { return t.ppn }

// Clone bumps the frame's reference count and returns a second token
// owning the same frame. Both tokens must eventually be Freed.
func (t Token) Clone() Token {
	if !t.Valid() {
		panic("frame: Clone of invalid token")
	}
	t.a.refup(t.ppn)
	return Token{a: t.a, ppn: t.ppn}
}

// Free releases this token's ownership share. The underlying frame returns
// to the allocator's free list only when the last token sharing it is
// freed.
func (t *Token) Free() {
	if !t.Valid() {
		return
	}
	t.a.dealloc(t.ppn)
	t.a = nil
}
