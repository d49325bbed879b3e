package vfs

import (
	"encoding/binary"
	"testing"

	"rvcore/internal/abi"
	"rvcore/internal/vfs/fatfs"
)

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

func mustMountFAT(t *testing.T, totalSectors, sectorsPerCluster int) *fatfs.FS {
	t.Helper()
	const reservedSectors = 1
	const sectorsPerFAT = 4
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
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func newTestFacade(t *testing.T) *Facade {
	fac := New()
	fac.Mount("/", mustMountFAT(t, 64, 1))
	return fac
}

func TestFileOpenCreateAndReadBack(t *testing.T) {
	fac := newTestFacade(t)
	f, err := fac.FileOpen("/greeting.txt", "/", abi.O_CREAT|abi.O_RDWR)
	if err != 0 {
		t.Fatalf("FileOpen create: %v", err)
	}
	if n, werr := f.Write([]byte("hello"), 0); werr != 0 || n != 5 {
		t.Fatalf("Write = (%d, %v)", n, werr)
	}
	if cerr := f.Close(); cerr != 0 {
		t.Fatalf("Close: %v", cerr)
	}

	f2, err := fac.FileOpen("greeting.txt", "/", abi.O_RDONLY)
	if err != 0 {
		t.Fatalf("FileOpen reopen: %v", err)
	}
	buf := make([]byte, 5)
	if n, rerr := f2.Read(buf, 0); rerr != 0 || n != 5 {
		t.Fatalf("Read = (%d, %v)", n, rerr)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, "hello")
	}
}

func TestFileOpenWithoutCreateMissingReturnsENOENT(t *testing.T) {
	fac := newTestFacade(t)
	if _, err := fac.FileOpen("/nope.txt", "/", abi.O_RDONLY); err != abi.ENOENT {
		t.Fatalf("err = %v, want ENOENT", err)
	}
}

func TestFileOpenSharesCachedVnode(t *testing.T) {
	fac := newTestFacade(t)
	a, err := fac.FileOpen("/shared.txt", "/", abi.O_CREAT|abi.O_RDWR)
	if err != 0 {
		t.Fatalf("FileOpen: %v", err)
	}
	a.Write([]byte("xyz"), 0)

	b, err := fac.FileOpen("/shared.txt", "/", abi.O_RDONLY)
	if err != 0 {
		t.Fatalf("FileOpen second: %v", err)
	}
	buf := make([]byte, 3)
	b.Read(buf, 0)
	if string(buf) != "xyz" {
		t.Fatalf("second handle saw %q, want shared write", buf)
	}
}

func TestSeekEndThenRead(t *testing.T) {
	fac := newTestFacade(t)
	f, err := fac.FileOpen("/seek.txt", "/", abi.O_CREAT|abi.O_RDWR)
	if err != 0 {
		t.Fatalf("FileOpen: %v", err)
	}
	f.Write([]byte("abcdef"), 0)
	pos, serr := f.Seek(-2, abi.SEEK_END)
	if serr != 0 {
		t.Fatalf("Seek: %v", serr)
	}
	if pos != 4 {
		t.Fatalf("pos = %d, want 4", pos)
	}
	buf := make([]byte, 2)
	f.Read(buf, 0)
	if string(buf) != "ef" {
		t.Fatalf("got %q, want ef", buf)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	fac := newTestFacade(t)
	f, err := fac.FileOpen("/doomed.txt", "/", abi.O_CREAT|abi.O_RDWR)
	if err != 0 {
		t.Fatalf("FileOpen: %v", err)
	}
	f.Close()
	if uerr := fac.Unlink("/doomed.txt", "/"); uerr != 0 {
		t.Fatalf("Unlink: %v", uerr)
	}
	if _, err := fac.FileOpen("/doomed.txt", "/", abi.O_RDONLY); err != abi.ENOENT {
		t.Fatalf("FileOpen after unlink err = %v, want ENOENT", err)
	}
}

func TestMkdirThenOpenDirectory(t *testing.T) {
	fac := newTestFacade(t)
	if derr := fac.Mkdir("/sub", "/"); derr != 0 {
		t.Fatalf("Mkdir: %v", derr)
	}
	f, err := fac.FileOpen("/sub", "/", abi.O_DIRECTORY)
	if err != 0 {
		t.Fatalf("FileOpen dir: %v", err)
	}
	entries, derr := f.Getdents64()
	if derr != 0 {
		t.Fatalf("Getdents64: %v", derr)
	}
	if len(entries) != 0 {
		t.Fatalf("new dir has %d entries, want 0", len(entries))
	}
}

func TestCanonicalizeStripsDotAndResolvesRelative(t *testing.T) {
	got := Canonicalize("./a/../b/c", "/cwd")
	if got != "/cwd/b/c" {
		t.Fatalf("Canonicalize = %q, want /cwd/b/c", got)
	}
	got2 := Canonicalize("rel.txt", "/home/user")
	if got2 != "/home/user/rel.txt" {
		t.Fatalf("Canonicalize relative = %q, want /home/user/rel.txt", got2)
	}
}

func TestUmountClearsTableSlot(t *testing.T) {
	fac := newTestFacade(t)
	if err := fac.Umount("/"); err != 0 {
		t.Fatalf("Umount: %v", err)
	}
	if _, err := fac.FileOpen("/anything.txt", "/", abi.O_CREAT); err != abi.ENOENT {
		t.Fatalf("FileOpen after umount err = %v, want ENOENT", err)
	}
}
