// Package pagetable implements the SV39 three-level page table walker.
// The PTE encoding (ppn<<10 | flags, eight hardware flag bits plus the
// two software-reserved bits, used here for COW and WASCOW) matches the
// RISC-V privileged spec.
package pagetable

import "rvcore/internal/addr"

// Flags is the set of permission/status bits a PTE carries.
type Flags uint64

const (
	VALID      Flags = 1 << 0
	READABLE   Flags = 1 << 1
	WRITABLE   Flags = 1 << 2
	EXECUTABLE Flags = 1 << 3
	USER       Flags = 1 << 4
	GLOBAL     Flags = 1 << 5
	ACCESSED   Flags = 1 << 6
	DIRTY      Flags = 1 << 7
	// COW and WASCOW overload the two software-reserved RSW bits (bits 8-9
	// in the RISC-V privileged spec are reserved for supervisor software).
	// WASCOW marks a page that used to be a COW
	// mapping and has since been resolved and made writable in place,
	// distinguishing "already resolved" from "never faulted" when two
	// threads race on the same fault.
	COW    Flags = 1 << 8
	WASCOW Flags = 1 << 9
)

const (
	ppnShift = 10
	ppnMask  = (uint64(1) << 44) - 1
)

// PTE is one page-table entry.
type PTE uint64

// New constructs the PTE for ppn with the given flags.
func New(ppn addr.PPN, flags Flags) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags))
}

// PPN extracts the physical page number encoded in the PTE.
func (p PTE) PPN() addr.PPN { return addr.PPN((uint64(p) >> ppnShift) & ppnMask) }

// Flags extracts the flag bits of the PTE.
func (p PTE) Flags() Flags { return Flags(uint64(p) & ((1 << ppnShift) - 1)) }

// IsValid reports whether VALID is set.
func (p PTE) IsValid() bool { return Flags(p)&VALID != 0 }

// Has reports whether all bits of f are set.
func (p PTE) Has(f Flags) bool { return Flags(p)&f == f }

// WithFlags returns a copy of the PTE with flags replaced, keeping the
// PPN. Modification never clears VALID short of unmapping: callers that
// want to unmap must construct PTE(0) explicitly rather than call this
// with a flag set lacking VALID while reusing a nonzero PPN.
func (p PTE) WithFlags(f Flags) PTE { return New(p.PPN(), f) }
