package syscall

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/frame"
	"rvcore/internal/pagetable"
	"rvcore/internal/task"
	"rvcore/internal/timer"
	"rvcore/internal/vfs"
	"rvcore/internal/vfs/fatfs"
	"rvcore/internal/vmm"
)

// atFDCWD is abi.AT_FDCWD routed through a variable (rather than used as a
// constant expression) so uint64(atFDCWD) is a runtime reinterpretation of
// the bits instead of a compile-time constant conversion, which Go rejects
// as out of range for a negative value.
var atFDCWD int64 = abi.AT_FDCWD

type memDevice struct {
	blocks [][fatfs.BlockSize]byte
}

func (m *memDevice) ReadBlock(id int, buf *[fatfs.BlockSize]byte) error {
	*buf = m.blocks[id]
	return nil
}

func (m *memDevice) WriteBlock(id int, buf *[fatfs.BlockSize]byte) error {
	m.blocks[id] = *buf
	return nil
}

func mustMountFAT(t *testing.T) *fatfs.FS {
	t.Helper()
	const totalSectors, sectorsPerCluster, reservedSectors, sectorsPerFAT = 64, 1, 1, 4
	dev := &memDevice{blocks: make([][fatfs.BlockSize]byte, totalSectors)}

	boot := make([]byte, fatfs.BlockSize)
	binary.LittleEndian.PutUint16(boot[11:13], fatfs.BlockSize)
	boot[13] = byte(sectorsPerCluster)
	binary.LittleEndian.PutUint16(boot[14:16], uint16(reservedSectors))
	boot[16] = 1
	binary.LittleEndian.PutUint32(boot[32:36], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:40], uint32(sectorsPerFAT))
	binary.LittleEndian.PutUint32(boot[44:48], 2)
	copy(dev.blocks[0][:], boot)

	entOff := uint32(2) * 4
	sector := reservedSectors + int(entOff)/fatfs.BlockSize
	within := int(entOff) % fatfs.BlockSize
	binary.LittleEndian.PutUint32(dev.blocks[sector][within:within+4], 0x0FFFFFF8)

	fs, err := fatfs.Mount(dev)
	require.NoError(t, err)
	return fs
}

// testEnv bundles a Kernel plus a single thread whose address space has
// one big anonymous region standing in for the user heap/stack, so
// handlers can CopyIn/CopyOut against a fixed scratch base without each
// test wiring its own page fault path.
type testEnv struct {
	k      *Kernel
	th     *task.Thread
	scratch addr.VA
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := frame.New(addr.PPN(0), addr.PPN(512))
	as, ok := vmm.New(mem, nil)
	require.True(t, ok)
	base := addr.VA(0x1000 * 16)
	as.AddAnon(base, addr.PageSize*8, pagetable.READABLE|pagetable.WRITABLE|pagetable.USER)

	proc := task.NewProcess(1, as, "/")
	th := task.NewThread(1, proc, 4096)
	proc.AddThread(th)

	fac := vfs.New()
	fac.Mount("/", mustMountFAT(t))

	k := &Kernel{
		VFS:   fac,
		Timer: timer.New(),
		Ticks: func() uint64 { return 0 },
		Wall:  func() (int64, int64) { return 0, 0 },
		Yield: func(*task.Thread) {},
		Block: func(*task.Thread) {},
	}
	return &testEnv{k: k, th: th, scratch: base}
}

func (e *testEnv) writeString(va addr.VA, s string) {
	_ = e.th.Proc.AS.CopyOut(va, append([]byte(s), 0))
}

func TestGetpidReturnsProcessPID(t *testing.T) {
	env := newTestEnv(t)
	ret := env.k.call(env.th, sysGetpid, 0, 0, 0, 0, 0, 0)
	require.Equal(t, int64(1), ret)
}

func TestOpenWriteReadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	pathVA := env.scratch
	env.writeString(pathVA, "/hello.txt")

	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(pathVA), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	require.GreaterOrEqual(t, fdRet, int64(0))
	fdnum := uint64(fdRet)

	dataVA := env.scratch.Add(128)
	env.writeString(dataVA, "hi")
	n := env.k.call(env.th, sysWrite, fdnum, uint64(dataVA), 2, 0, 0, 0)
	require.Equal(t, int64(2), n)

	seekRet := env.k.call(env.th, sysLseek, fdnum, 0, uint64(abi.SEEK_SET), 0, 0, 0)
	require.Equal(t, int64(0), seekRet)

	readBufVA := env.scratch.Add(256)
	rn := env.k.call(env.th, sysRead, fdnum, uint64(readBufVA), 2, 0, 0, 0)
	require.Equal(t, int64(2), rn)

	got := make([]byte, 2)
	require.Zero(t, env.th.Proc.AS.CopyIn(got, readBufVA))
	require.Equal(t, "hi", string(got))
}

func TestOpenMissingWithoutCreateIsENOENT(t *testing.T) {
	env := newTestEnv(t)
	pathVA := env.scratch
	env.writeString(pathVA, "/nope.txt")
	ret := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(pathVA), uint64(abi.O_RDONLY), 0, 0, 0)
	require.Equal(t, int64(-abi.ENOENT), ret)
}

func TestCloseThenReadIsEBADF(t *testing.T) {
	env := newTestEnv(t)
	pathVA := env.scratch
	env.writeString(pathVA, "/x.txt")
	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(pathVA), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	fdnum := uint64(fdRet)
	require.Zero(t, env.k.call(env.th, sysClose, fdnum, 0, 0, 0, 0, 0))
	ret := env.k.call(env.th, sysRead, fdnum, uint64(env.scratch.Add(512)), 1, 0, 0, 0)
	require.Equal(t, int64(-abi.EBADF), ret)
}

func TestGetcwdAndChdir(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch.Add(64), "/sub")
	require.Zero(t, env.k.call(env.th, sysMkdirat, uint64(atFDCWD), uint64(env.scratch.Add(64)), 0, 0, 0, 0))

	env.writeString(env.scratch.Add(128), "/sub")
	require.Zero(t, env.k.call(env.th, sysChdir, uint64(env.scratch.Add(128)), 0, 0, 0, 0, 0))

	cwdVA := env.scratch.Add(256)
	n := env.k.call(env.th, sysGetcwd, uint64(cwdVA), 64, 0, 0, 0, 0)
	require.Greater(t, n, int64(0))
	got := make([]byte, n)
	require.Zero(t, env.th.Proc.AS.CopyIn(got, cwdVA))
	require.Equal(t, "/sub\x00", string(got))
}

func TestDupAndFcntlGetfd(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch, "/dup.txt")
	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(env.scratch), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	fdnum := uint64(fdRet)

	dupRet := env.k.call(env.th, sysDup, fdnum, 0, 0, 0, 0, 0)
	require.GreaterOrEqual(t, dupRet, int64(0))
	require.NotEqual(t, int64(fdnum), dupRet)

	getfd := env.k.call(env.th, sysFcntl, fdnum, uint64(abi.F_GETFD), 0, 0, 0, 0)
	require.Equal(t, int64(0), getfd)
}

func TestBrkReturnsCurrentThenGrown(t *testing.T) {
	env := newTestEnv(t)
	heap := env.th.Proc.AS.AddAnon(addr.VA(0x2000_0000), addr.PageSize, pagetable.READABLE|pagetable.WRITABLE|pagetable.USER)
	env.th.Proc.AS.InitBrk(heap, addr.VA(0x2000_0000).Add(addr.PageSize))

	cur := env.k.call(env.th, sysBrk, 0, 0, 0, 0, 0, 0)
	require.Equal(t, int64(addr.VA(0x2000_0000).Add(addr.PageSize)), cur)

	grown := env.k.call(env.th, sysBrk, uint64(addr.VA(0x2000_0000).Add(addr.PageSize*3)), 0, 0, 0, 0, 0)
	require.Equal(t, int64(addr.VA(0x2000_0000).Add(addr.PageSize*3)), grown)
}

func TestMmapAnonThenMunmap(t *testing.T) {
	env := newTestEnv(t)
	va := env.k.call(env.th, sysMmap, 0, uint64(addr.PageSize), uint64(abi.PROT_READ|abi.PROT_WRITE), uint64(abi.MAP_ANONYMOUS), 0, 0)
	require.Greater(t, va, int64(0))

	munRet := env.k.call(env.th, sysMunmap, uint64(va)+uint64(addr.PageSize), 0, 0, 0, 0, 0)
	require.Equal(t, int64(0), munRet)
}

func TestMmapFileBackedIsUnsupported(t *testing.T) {
	env := newTestEnv(t)
	ret := env.k.call(env.th, sysMmap, 0, uint64(addr.PageSize), uint64(abi.PROT_READ), 0, 0, 0)
	require.Equal(t, int64(-abi.ENODEV), ret)
}

func TestExitMarksProcessExited(t *testing.T) {
	env := newTestEnv(t)
	env.k.call(env.th, sysExit, 7, 0, 0, 0, 0, 0)
	exited, status := env.th.Proc.Exited()
	require.True(t, exited)
	require.Equal(t, 7, status)
}

func TestWait4NoChildrenIsECHILD(t *testing.T) {
	env := newTestEnv(t)
	ret := env.k.call(env.th, sysWait4, ^uint64(0), 0, 0, 0, 0, 0)
	require.Equal(t, int64(-abi.ECHILD), ret)
}

func TestUnknownSyscallIsEINVAL(t *testing.T) {
	env := newTestEnv(t)
	ret := env.k.call(env.th, 99999, 0, 0, 0, 0, 0, 0)
	require.Equal(t, int64(-abi.EINVAL), ret)
}

func TestSchedYieldInvokesHook(t *testing.T) {
	env := newTestEnv(t)
	called := false
	env.k.Yield = func(th *task.Thread) { called = true }
	ret := env.k.call(env.th, sysSchedYield, 0, 0, 0, 0, 0, 0)
	require.Equal(t, int64(0), ret)
	require.True(t, called)
}

func TestFstatReportsSize(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch, "/stat.txt")
	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(env.scratch), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	fdnum := uint64(fdRet)
	dataVA := env.scratch.Add(64)
	env.writeString(dataVA, "abcd")
	require.Equal(t, int64(5), env.k.call(env.th, sysWrite, fdnum, uint64(dataVA), 5, 0, 0, 0))

	statVA := env.scratch.Add(256)
	require.Equal(t, int64(0), env.k.call(env.th, sysFstat, fdnum, uint64(statVA), 0, 0, 0, 0))
	b := make([]byte, unsafe.Sizeof(abi.Stat{}))
	require.Zero(t, env.th.Proc.AS.CopyIn(b, statVA))
}

func TestGetdents64ListsCreatedFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch, "/only.txt")
	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(env.scratch), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	env.k.call(env.th, sysClose, uint64(fdRet), 0, 0, 0, 0, 0)

	env.writeString(env.scratch.Add(64), "/")
	dirFdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(env.scratch.Add(64)), uint64(abi.O_DIRECTORY), 0, 0, 0)
	require.GreaterOrEqual(t, dirFdRet, int64(0))

	bufVA := env.scratch.Add(512)
	n := env.k.call(env.th, sysGetdents64, uint64(dirFdRet), uint64(bufVA), 256, 0, 0, 0)
	require.Greater(t, n, int64(0))
}

func TestWait4ReapsExitedChild(t *testing.T) {
	env := newTestEnv(t)
	child := task.NewProcess(2, nil, "/")
	child.SetParent(env.th.Proc)
	env.th.Proc.AddChild(child)
	child.Exit(3)

	statusVA := env.scratch
	ret := env.k.call(env.th, sysWait4, ^uint64(0), uint64(statusVA), 0, 0, 0, 0)
	require.Equal(t, int64(2), ret)

	status, rerr := env.th.Proc.AS.ReadUint(statusVA, 4)
	require.Zero(t, rerr)
	require.Equal(t, uint64(3<<8), status, "wait status must carry the exit code in bits 8-15")
	require.Equal(t, uint64(3), (status>>8)&0xff)
}

func TestWait4NoHangWithNoExitedChildReturnsZero(t *testing.T) {
	env := newTestEnv(t)
	child := task.NewProcess(2, nil, "/")
	child.SetParent(env.th.Proc)
	env.th.Proc.AddChild(child)

	ret := env.k.call(env.th, sysWait4, ^uint64(0), 0, uint64(abi.WNOHANG), 0, 0, 0)
	require.Equal(t, int64(0), ret)
}

func TestCloneWithoutHookIsEINVAL(t *testing.T) {
	env := newTestEnv(t)
	ret := env.k.call(env.th, sysClone, 0, 0, 0, 0, 0, 0)
	require.Equal(t, int64(-abi.EINVAL), ret)
}

func TestExecveWithoutHookIsENOEXEC(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch, "/bin/init")
	ret := env.k.call(env.th, sysExecve, uint64(env.scratch), 0, 0, 0, 0, 0)
	require.Equal(t, int64(-abi.ENOEXEC), ret)
}

func TestPipe2WriteThenReadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	fdsVA := env.scratch
	require.Equal(t, int64(0), env.k.call(env.th, sysPipe2, uint64(fdsVA), 0, 0, 0, 0, 0))

	raw := make([]byte, 8)
	require.Zero(t, env.th.Proc.AS.CopyIn(raw, fdsVA))
	rfd := uint64(binary.LittleEndian.Uint32(raw[0:4]))
	wfd := uint64(binary.LittleEndian.Uint32(raw[4:8]))
	require.NotEqual(t, rfd, wfd)

	dataVA := env.scratch.Add(64)
	env.writeString(dataVA, "hi")
	require.Equal(t, int64(2), env.k.call(env.th, sysWrite, wfd, uint64(dataVA), 2, 0, 0, 0))

	readVA := env.scratch.Add(128)
	require.Equal(t, int64(2), env.k.call(env.th, sysRead, rfd, uint64(readVA), 2, 0, 0, 0))
	got := make([]byte, 2)
	require.Zero(t, env.th.Proc.AS.CopyIn(got, readVA))
	require.Equal(t, "hi", string(got))

	require.Zero(t, env.k.call(env.th, sysClose, wfd, 0, 0, 0, 0, 0))
	require.Equal(t, int64(0), env.k.call(env.th, sysRead, rfd, uint64(readVA), 2, 0, 0, 0))
}

func TestPipe2CloexecMarksBothEnds(t *testing.T) {
	env := newTestEnv(t)
	fdsVA := env.scratch
	require.Equal(t, int64(0), env.k.call(env.th, sysPipe2, uint64(fdsVA), uint64(abi.O_CLOEXEC), 0, 0, 0, 0))

	raw := make([]byte, 8)
	require.Zero(t, env.th.Proc.AS.CopyIn(raw, fdsVA))
	for _, fdn := range []uint64{uint64(binary.LittleEndian.Uint32(raw[0:4])), uint64(binary.LittleEndian.Uint32(raw[4:8]))} {
		getfd := env.k.call(env.th, sysFcntl, fdn, uint64(abi.F_GETFD), 0, 0, 0, 0)
		require.Equal(t, int64(abi.FD_CLOEXEC), getfd)
	}
}

func TestMountWithoutHookIsEPERM(t *testing.T) {
	env := newTestEnv(t)
	env.writeString(env.scratch, "/dev/vda")
	env.writeString(env.scratch.Add(64), "/mnt")
	ret := env.k.call(env.th, sysMount, uint64(env.scratch), uint64(env.scratch.Add(64)), 0, 0, 0, 0)
	require.Equal(t, int64(-abi.EPERM), ret)
}

func TestMountInstallsFilesystemAtTarget(t *testing.T) {
	env := newTestEnv(t)
	env.k.MountFS = func(string) (*fatfs.FS, abi.Err_t) { return mustMountFAT(t), 0 }

	env.writeString(env.scratch, "/dev/vda")
	env.writeString(env.scratch.Add(64), "/mnt")
	require.Equal(t, int64(0), env.k.call(env.th, sysMount, uint64(env.scratch), uint64(env.scratch.Add(64)), 0, 0, 0, 0))

	env.writeString(env.scratch.Add(128), "/mnt/new.txt")
	fdRet := env.k.call(env.th, sysOpenat, uint64(atFDCWD), uint64(env.scratch.Add(128)), uint64(abi.O_CREAT|abi.O_RDWR), 0, 0, 0)
	require.GreaterOrEqual(t, fdRet, int64(0))

	env.writeString(env.scratch.Add(192), "/mnt")
	require.Equal(t, int64(0), env.k.call(env.th, sysUmount2, uint64(env.scratch.Add(192)), 0, 0, 0, 0, 0))
}

func TestUnameFillsMachine(t *testing.T) {
	env := newTestEnv(t)
	va := env.scratch.Add(512)
	require.Equal(t, int64(0), env.k.call(env.th, sysUname, uint64(va), 0, 0, 0, 0, 0))
}
