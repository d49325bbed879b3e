package fd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvcore/internal/abi"
)

type nullOps struct{ closed, reopened int }

func (n *nullOps) Read([]byte, int64) (int, abi.Err_t)  { return 0, 0 }
func (n *nullOps) Write([]byte, int64) (int, abi.Err_t) { return 0, 0 }
func (n *nullOps) Close() abi.Err_t                      { n.closed++; return 0 }
func (n *nullOps) Reopen() abi.Err_t                     { n.reopened++; return 0 }

func TestInstallGetClose(t *testing.T) {
	tab := NewTable()
	ops := &nullOps{}
	fdnum := tab.Install(&File{Ops: ops, Perms: Read})
	require.Equal(t, 0, fdnum)

	f, ok := tab.Get(fdnum)
	require.True(t, ok)
	require.Same(t, ops, f.Ops)

	require.Zero(t, tab.Close(fdnum))
	require.Equal(t, 1, ops.closed)
	_, ok = tab.Get(fdnum)
	require.False(t, ok)
}

func TestInstallReusesFreedSlot(t *testing.T) {
	tab := NewTable()
	a := tab.Install(&File{Ops: &nullOps{}})
	b := tab.Install(&File{Ops: &nullOps{}})
	require.Zero(t, tab.Close(a))
	c := tab.Install(&File{Ops: &nullOps{}})
	require.Equal(t, a, c, "freed low slot must be reused before growing")
	_ = b
}

func TestDupCallsReopen(t *testing.T) {
	tab := NewTable()
	ops := &nullOps{}
	a := tab.Install(&File{Ops: ops})
	b, err := tab.Dup(a)
	require.Zero(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, 1, ops.reopened)
}

func TestInstallAtClosesPreviousOccupant(t *testing.T) {
	tab := NewTable()
	old := &nullOps{}
	tab.Install(&File{Ops: old})
	newOps := &nullOps{}
	require.Zero(t, tab.InstallAt(0, &File{Ops: newOps}))
	require.Equal(t, 1, old.closed)
	f, _ := tab.Get(0)
	require.Same(t, newOps, f.Ops)
}

func TestForkCopySkipsCloexec(t *testing.T) {
	tab := NewTable()
	keep := &nullOps{}
	skip := &nullOps{}
	tab.Install(&File{Ops: keep})
	tab.Install(&File{Ops: skip, Perms: Cloexec})

	child, err := tab.ForkCopy()
	require.Zero(t, err)
	_, ok := child.Get(0)
	require.True(t, ok)
	_, ok = child.Get(1)
	require.False(t, ok)
	require.Equal(t, 1, keep.reopened)
}

func TestPipeReadBlocksThenDelivers(t *testing.T) {
	p := NewPipe(8)
	w := p.WriteEnd()
	r := p.ReadEnd()

	n, err := w.Write([]byte("hi"), 0)
	require.Zero(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, 8)
	n, err = r.Read(buf, 0)
	require.Zero(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestPipeReadEOFAfterWriterClosed(t *testing.T) {
	p := NewPipe(8)
	w := p.WriteEnd()
	r := p.ReadEnd()

	require.Zero(t, w.Close())
	buf := make([]byte, 8)
	n, err := r.Read(buf, 0)
	require.Zero(t, err)
	require.Zero(t, n, "read from empty pipe with no writers must report EOF")
}

func TestPipeWriteEPIPEAfterReaderClosed(t *testing.T) {
	p := NewPipe(8)
	w := p.WriteEnd()
	r := p.ReadEnd()

	require.Zero(t, r.Close())
	_, err := w.Write([]byte("x"), 0)
	require.Equal(t, abi.EPIPE, err)
}
