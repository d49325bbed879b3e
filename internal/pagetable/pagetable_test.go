package pagetable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcore/internal/addr"
	"rvcore/internal/frame"
)

func newTestTable(t *testing.T) (*Table, *frame.Allocator) {
	mem := frame.New(addr.PPN(0), addr.PPN(64))
	tab, ok := NewTable(mem)
	require.True(t, ok)
	return tab, mem
}

func TestMapFindUnmapRoundTrip(t *testing.T) {
	tab, mem := newTestTable(t)
	data, ok := mem.Alloc()
	require.True(t, ok)

	vpn := addr.VPN(0x1234)
	require.True(t, tab.MapOne(vpn, data.PPN(), READABLE|WRITABLE|USER))

	loc, ok := tab.Find(vpn)
	require.True(t, ok)
	pte := tab.Load(loc)
	require.True(t, pte.IsValid())
	require.Equal(t, data.PPN(), pte.PPN())
	require.True(t, pte.Has(READABLE|WRITABLE))

	tab.UnmapOne(vpn)
	_, ok = tab.Find(vpn)
	require.False(t, ok, "map_one(v,p,f); unmap_one(v); find(v) == None")
}

func TestMapOneOfAlreadyMappedPanics(t *testing.T) {
	tab, mem := newTestTable(t)
	data, _ := mem.Alloc()
	vpn := addr.VPN(7)
	require.True(t, tab.MapOne(vpn, data.PPN(), READABLE))
	require.Panics(t, func() {
		tab.MapOne(vpn, data.PPN(), READABLE)
	})
}

func TestTranslateVA(t *testing.T) {
	tab, mem := newTestTable(t)
	data, _ := mem.Alloc()
	va := addr.VA(0x2000)
	require.True(t, tab.MapOne(va.Floor(), data.PPN(), READABLE))

	pa, ok := tab.TranslateVA(va.Add(0x42))
	require.True(t, ok)
	require.Equal(t, addr.PA(uint64(data.PPN())<<addr.PageShift+0x42), pa)
}

func TestCloneKernelTemplateCopiesRootEntries(t *testing.T) {
	tmpl, mem := newTestTable(t)
	kdata, _ := mem.Alloc()
	kernelVPN := addr.VPN(3) << 18
	require.True(t, tmpl.MapOne(kernelVPN, kdata.PPN(), READABLE|GLOBAL))

	child, ok := NewTable(mem)
	require.True(t, ok)
	child.CloneKernelTemplate(tmpl)

	loc, ok := child.Find(kernelVPN)
	require.True(t, ok)
	require.True(t, child.Load(loc).IsValid())
}

func TestFindOrCreateAllocatesInteriorFrames(t *testing.T) {
	mem := frame.New(addr.PPN(0), addr.PPN(8))
	tab, ok := NewTable(mem)
	require.True(t, ok)
	before := mem.FreeCount()
	_, ok = tab.FindOrCreate(addr.VPN(1))
	require.True(t, ok)
	// two interior levels get created for a previously-empty table
	require.Equal(t, before-2, mem.FreeCount())
}
