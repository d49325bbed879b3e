// Package addr defines the physical/virtual address and page-number value
// types shared by the frame allocator, page table, and address space
// packages. They are distinct numeric types rather than bare uintptr/int
// so a byte address can never silently mix with a page number.
package addr

// PageShift is the base-2 exponent of the page size (4 KiB pages, SV39).
const PageShift = 12

// PageSize is the size in bytes of a single page.
const PageSize = 1 << PageShift

// PageMask masks the in-page offset of an address.
const PageMask = PageSize - 1

// KernelMapOffset is the fixed linear offset between a kernel virtual
// address and the physical address it maps, the QEMU-virt value. It is a
// compile-time constant: board.Config carries its own KernelMapOffset
// field, and nothing changes this constant at boot.
const KernelMapOffset VA = 0xffff_ffc0_0000_0000

// PA is a physical address.
type PA uint64

// VA is a virtual address.
type VA uint64

// PPN is a physical page number (PA >> PageShift).
type PPN uint64

// VPN is a virtual page number (VA >> PageShift).
type VPN uint64

// Floor rounds pa down to the start of its page and returns the PPN.
func (pa PA) Floor() PPN { return PPN(pa >> PageShift) }

// Ceil rounds pa up to the start of the next page (or itself, if already
// page-aligned) and returns the PPN.
func (pa PA) Ceil() PPN { return PPN((uint64(pa) + PageSize - 1) >> PageShift) }

// Offset returns the in-page byte offset of pa.
func (pa PA) Offset() uint64 { return uint64(pa) & PageMask }

// Add returns pa+n.
func (pa PA) Add(n int64) PA { return PA(int64(pa) + n) }

// ToVA converts a physical address to the kernel virtual address that maps
// it 1:1 at KernelMapOffset.
func (pa PA) ToVA() VA { return VA(uint64(pa)) + KernelMapOffset }

// Floor rounds va down to the start of its page and returns the VPN.
func (va VA) Floor() VPN { return VPN(va >> PageShift) }

// Ceil rounds va up to the start of the next page and returns the VPN.
func (va VA) Ceil() VPN { return VPN((uint64(va) + PageSize - 1) >> PageShift) }

// Offset returns the in-page byte offset of va.
func (va VA) Offset() uint64 { return uint64(va) & PageMask }

// Add returns va+n.
func (va VA) Add(n int64) VA { return VA(int64(va) + n) }

// ToPA converts a kernel virtual address back to the physical address it
// maps via the linear offset. Panics if va is not in the kernel-mapped
// region.
func (va VA) ToPA() PA {
	if va < KernelMapOffset {
		panic("addr: va is not kernel-mapped")
	}
	return PA(uint64(va) - uint64(KernelMapOffset))
}

// Aligned reports whether va falls on a page boundary.
func (va VA) Aligned() bool { return va&PageMask == 0 }

// Base returns the address at the start of pa's page.
func (pa PA) Base() PA { return PA(pa.Floor()) << PageShift }

// Base returns the address at the start of va's page.
func (va VA) Base() VA { return VA(va.Floor()) << PageShift }

// ToPA converts a physical page number to its base physical address.
func (ppn PPN) ToPA() PA { return PA(ppn) << PageShift }

// ToVA converts a virtual page number to its base virtual address.
func (vpn VPN) ToVA() VA { return VA(vpn) << PageShift }

// Add returns ppn+n.
func (ppn PPN) Add(n int64) PPN { return PPN(int64(ppn) + n) }

// Add returns vpn+n.
func (vpn VPN) Add(n int64) VPN { return VPN(int64(vpn) + n) }

// Sub returns vpn-other as a page count.
func (vpn VPN) Sub(other VPN) int64 { return int64(vpn) - int64(other) }

// Indexes returns the three 9-bit SV39 page-table indexes for vpn, ordered
// from the root (L2) level down to the leaf (L0) level.
func (vpn VPN) Indexes() [3]uint {
	v := uint64(vpn)
	return [3]uint{
		uint((v >> 18) & 0x1ff),
		uint((v >> 9) & 0x1ff),
		uint(v & 0x1ff),
	}
}

// RoundDown rounds v down to a multiple of align (align must be a power of two).
func RoundDown(v, align uint64) uint64 { return v &^ (align - 1) }

// RoundUp rounds v up to a multiple of align (align must be a power of two).
func RoundUp(v, align uint64) uint64 { return RoundDown(v+align-1, align) }

// VPNRange is a half-open [Start, End) range of virtual page numbers, used
// by map-areas and the ELF loader to iterate covered pages.
type VPNRange struct {
	Start, End VPN
}

// NewVPNRange builds the VPN range spanning [start, end) addresses.
func NewVPNRange(start, end VA) VPNRange {
	return VPNRange{Start: start.Floor(), End: end.Ceil()}
}

// Len returns the number of pages in the range.
func (r VPNRange) Len() int { return int(r.End.Sub(r.Start)) }

// Contains reports whether vpn lies in [Start, End).
func (r VPNRange) Contains(vpn VPN) bool { return vpn >= r.Start && vpn < r.End }

// ForEach calls f with every VPN in the range, in increasing order.
func (r VPNRange) ForEach(f func(VPN)) {
	for v := r.Start; v < r.End; v = v.Add(1) {
		f(v)
	}
}
