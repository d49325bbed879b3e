// Package kheap implements the kernel's dynamic heap: a slab-over-page
// allocator carved out of a reserved BSS array. Kernel code that needs a
// handful of bytes (a region descriptor, interior-page bookkeeping, a
// small buffer) goes through here instead of the page allocator in
// internal/frame, which only ever hands out whole 4 KiB pages. There is
// no host allocator below the page allocator, so the kernel needs a real
// slab allocator of its own.
package kheap

import (
	"sync"
	"unsafe"

	"rvcore/internal/addr"
)

// sizeClasses are the slab bucket sizes in bytes, doubling from 16 to half
// a page; anything larger is rounded up to whole pages and served directly
// from the backing arena.
var sizeClasses = []int{16, 32, 64, 128, 256, 512, 1024, 2048}

// slab is one fixed-size-object free list.
type slab struct {
	size int
	free []uintptr
}

// Heap is a slab-over-page allocator backed by a single contiguous byte
// arena reserved in BSS. It never returns memory to the OS; the arena is
// fixed for the kernel's lifetime.
type Heap struct {
	mu     sync.Mutex
	arena  []byte
	brk    int // offset of the next never-yet-allocated byte
	slabs  []slab
	used   int64
}

// New creates a heap backed by arena, which must already be allocated
// (e.g. a `[KERNEL_HEAP_SIZE]byte` reserved in the kernel's data segment,
// or — in this Go reimplementation, since there is no linker script to
// reserve BSS — a plain byte slice the caller allocates).
func New(arena []byte) *Heap {
	h := &Heap{arena: arena}
	for _, sz := range sizeClasses {
		h.slabs = append(h.slabs, slab{size: sz})
	}
	return h
}

// UsedBytes reports the total bytes currently handed out and not yet
// freed.
func (h *Heap) UsedBytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Exhausted reports whether the backing arena has no room left to satisfy
// an allocation that cannot be served from an existing slab free list.
func (h *Heap) Exhausted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.brk >= len(h.arena)
}

func (h *Heap) classFor(size int) int {
	for i, sz := range sizeClasses {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Alloc returns size bytes aligned to align (align must be a power of two
// and size > 0). Returns nil on exhaustion; out-of-memory from the
// allocator layer is surfaced as nil, never a panic.
func (h *Heap) Alloc(size int, align int) []byte {
	if size <= 0 || align&(align-1) != 0 {
		panic("kheap: bad Alloc args")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ci := h.classFor(size)
	if ci >= 0 {
		s := &h.slabs[ci]
		if n := len(s.free); n > 0 {
			off := s.free[n-1]
			s.free = s.free[:n-1]
			h.used += int64(s.size)
			return h.arena[off : off+uintptr(size)]
		}
		// carve a fresh object of this slab's size out of the arena
		off, ok := h.carve(s.size, align)
		if !ok {
			return nil
		}
		h.used += int64(s.size)
		return h.arena[off : off+uintptr(size)]
	}

	// large allocation: round up to whole pages and serve directly
	rounded := int(addr.RoundUp(uint64(size), addr.PageSize))
	off, ok := h.carve(rounded, align)
	if !ok {
		return nil
	}
	h.used += int64(rounded)
	return h.arena[off : off+uintptr(size)]
}

func (h *Heap) carve(size int, align int) (uintptr, bool) {
	base := int(addr.RoundUp(uint64(h.brk), uint64(align)))
	if base+size > len(h.arena) {
		return 0, false
	}
	h.brk = base + size
	return uintptr(base), true
}

// Dealloc returns a block previously obtained from Alloc with the same
// size back to its slab's free list (or, for a large allocation, simply
// accounts it as freed — the arena space itself is not reclaimed, matching
// a bump-the-watermark allocator that never compacts).
func (h *Heap) Dealloc(p []byte, size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ci := h.classFor(size)
	if ci < 0 {
		h.used -= int64(addr.RoundUp(uint64(size), addr.PageSize))
		return
	}
	s := &h.slabs[ci]
	off := uintptr(0)
	if len(p) > 0 {
		off = h.offsetOf(p)
	}
	s.free = append(s.free, off)
	h.used -= int64(s.size)
}

func (h *Heap) offsetOf(p []byte) uintptr {
	base := uintptr(unsafe.Pointer(&h.arena[0]))
	ptr := uintptr(unsafe.Pointer(&p[0]))
	if ptr < base || ptr >= base+uintptr(len(h.arena)) {
		panic("kheap: Dealloc of pointer outside arena")
	}
	return ptr - base
}
