package syscall

import (
	"unsafe"

	"rvcore/internal/abi"
	"rvcore/internal/addr"
	"rvcore/internal/fd"
	"rvcore/internal/task"
	"rvcore/internal/vfs"
	"rvcore/internal/vfs/fatfs"
)

// pathArg reads a NUL-terminated path string from user memory at uva,
// the copy every path-taking syscall below starts with.
func pathArg(th *task.Thread, uva uint64) (string, abi.Err_t) {
	return th.Proc.AS.ReadCString(addr.VA(uva), 4096)
}

// resolveAt turns a (dirfd, path) pair into the base directory FileOpen
// and friends canonicalise relative paths against: AT_FDCWD resolves
// against the process's own cwd; any other dirfd that names an open
// directory contributes that directory's canonical path, and any dirfd
// that does not falls back to the cwd as well.
func resolveAt(th *task.Thread, dirfd int64) string {
	if dirfd != abi.AT_FDCWD {
		if entry, ok := th.Proc.Files.Get(int(dirfd)); ok {
			if vf, ok := entry.Ops.(*vfs.File); ok && vf.IsDir() {
				return vf.Path()
			}
		}
	}
	return th.Proc.Cwd.GetPath()
}

func (k *Kernel) sysGetcwd(th *task.Thread, bufVA, size uint64) int64 {
	cwd := th.Proc.Cwd.GetPath()
	if uint64(len(cwd)+1) > size {
		return int64(-abi.ERANGE)
	}
	buf := append([]byte(cwd), 0)
	if err := th.Proc.AS.CopyOut(addr.VA(bufVA), buf); err != 0 {
		return int64(-err)
	}
	return int64(len(buf))
}

func (k *Kernel) sysOpenat(th *task.Thread, dirfd, pathVA, flagsArg, _ uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	f, oerr := k.VFS.FileOpen(path, resolveAt(th, int64(dirfd)), int(flagsArg))
	if oerr != 0 {
		return int64(-oerr)
	}
	entry := &fd.File{Ops: f, Perms: fd.Read | fd.Write}
	if int(flagsArg)&abi.O_CLOEXEC != 0 {
		entry.Perms |= fd.Cloexec
	}
	return int64(th.Proc.Files.Install(entry))
}

func (k *Kernel) sysClose(th *task.Thread, fdnum uint64) int64 {
	return int64(-th.Proc.Files.Close(int(fdnum)))
}

func getVfsFile(th *task.Thread, fdnum uint64) (*vfs.File, *fd.File, abi.Err_t) {
	entry, ok := th.Proc.Files.Get(int(fdnum))
	if !ok {
		return nil, nil, abi.EBADF
	}
	vf, ok := entry.Ops.(*vfs.File)
	if !ok {
		return nil, entry, 0
	}
	return vf, entry, 0
}

func (k *Kernel) sysRead(th *task.Thread, fdnum, bufVA, count uint64) int64 {
	entry, ok := th.Proc.Files.Get(int(fdnum))
	if !ok {
		return int64(-abi.EBADF)
	}
	buf := make([]byte, count)
	n, err := entry.Ops.Read(buf, 0)
	if err != 0 {
		return int64(-err)
	}
	if cerr := th.Proc.AS.CopyOut(addr.VA(bufVA), buf[:n]); cerr != 0 {
		return int64(-cerr)
	}
	return int64(n)
}

func (k *Kernel) sysWrite(th *task.Thread, fdnum, bufVA, count uint64) int64 {
	entry, ok := th.Proc.Files.Get(int(fdnum))
	if !ok {
		return int64(-abi.EBADF)
	}
	buf := make([]byte, count)
	if cerr := th.Proc.AS.CopyIn(buf, addr.VA(bufVA)); cerr != 0 {
		return int64(-cerr)
	}
	n, err := entry.Ops.Write(buf, 0)
	if err != 0 {
		return int64(-err)
	}
	return int64(n)
}

// iovec mirrors struct iovec's wire layout: base pointer then length, both
// 8 bytes wide on a 64-bit target.
type iovec struct {
	Base uint64
	Len  uint64
}

func (k *Kernel) sysWritev(th *task.Thread, fdnum, iovVA, iovcnt uint64) int64 {
	entry, ok := th.Proc.Files.Get(int(fdnum))
	if !ok {
		return int64(-abi.EBADF)
	}
	var total int64
	for i := uint64(0); i < iovcnt; i++ {
		var raw [16]byte
		if err := th.Proc.AS.CopyIn(raw[:], addr.VA(iovVA+i*16)); err != 0 {
			return int64(-err)
		}
		iov := iovec{
			Base: leUint64(raw[0:8]),
			Len:  leUint64(raw[8:16]),
		}
		buf := make([]byte, iov.Len)
		if err := th.Proc.AS.CopyIn(buf, addr.VA(iov.Base)); err != 0 {
			return int64(-err)
		}
		n, err := entry.Ops.Write(buf, 0)
		if err != 0 {
			return int64(-err)
		}
		total += int64(n)
	}
	return total
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func (k *Kernel) sysLseek(th *task.Thread, fdnum, offset, whence uint64) int64 {
	vf, _, err := getVfsFile(th, fdnum)
	if err != 0 {
		return int64(-err)
	}
	if vf == nil {
		return int64(-abi.ESPIPE)
	}
	np, serr := vf.Seek(int64(offset), int(whence))
	if serr != 0 {
		return int64(-serr)
	}
	return np
}

// pipeBufSize bounds each pipe's in-kernel FIFO.
const pipeBufSize = 4096

func (k *Kernel) sysPipe2(th *task.Thread, fdsVA, flagsArg uint64) int64 {
	p := fd.NewPipe(pipeBufSize)
	rd := &fd.File{Ops: p.ReadEnd(), Perms: fd.Read}
	wr := &fd.File{Ops: p.WriteEnd(), Perms: fd.Write}
	if int(flagsArg)&abi.O_CLOEXEC != 0 {
		rd.Perms |= fd.Cloexec
		wr.Perms |= fd.Cloexec
	}
	rfd := th.Proc.Files.Install(rd)
	wfd := th.Proc.Files.Install(wr)

	var out [8]byte
	putLE32(out[0:4], uint32(rfd))
	putLE32(out[4:8], uint32(wfd))
	if err := th.Proc.AS.CopyOut(addr.VA(fdsVA), out[:]); err != 0 {
		th.Proc.Files.Close(rfd)
		th.Proc.Files.Close(wfd)
		return int64(-err)
	}
	return 0
}

func putLE32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (k *Kernel) sysDup(th *task.Thread, fdnum uint64) int64 {
	nf, err := th.Proc.Files.Dup(int(fdnum))
	if err != 0 {
		return int64(-err)
	}
	return int64(nf)
}

func (k *Kernel) sysDup3(th *task.Thread, fdnum, newfd uint64) int64 {
	entry, ok := th.Proc.Files.Get(int(fdnum))
	if !ok {
		return int64(-abi.EBADF)
	}
	nf, err := fd.Copy(entry)
	if err != 0 {
		return int64(-err)
	}
	if err := th.Proc.Files.InstallAt(int(newfd), nf); err != 0 {
		return int64(-err)
	}
	return int64(newfd)
}

func (k *Kernel) sysChdir(th *task.Thread, pathVA uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	th.Proc.Cwd.SetPath(vfs.Canonicalize(path, th.Proc.Cwd.GetPath()))
	return 0
}

func (k *Kernel) sysMkdirat(th *task.Thread, dirfd, pathVA uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	return int64(-k.VFS.Mkdir(path, resolveAt(th, int64(dirfd))))
}

func (k *Kernel) sysUnlinkat(th *task.Thread, dirfd, pathVA uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	return int64(-k.VFS.Unlink(path, resolveAt(th, int64(dirfd))))
}

func (k *Kernel) sysMount(th *task.Thread, sourceVA, targetVA uint64) int64 {
	if k.MountFS == nil {
		return int64(-abi.EPERM)
	}
	source, err := pathArg(th, sourceVA)
	if err != 0 {
		return int64(-err)
	}
	target, err := pathArg(th, targetVA)
	if err != 0 {
		return int64(-err)
	}
	fs, merr := k.MountFS(source)
	if merr != 0 {
		return int64(-merr)
	}
	k.VFS.Mount(vfs.Canonicalize(target, th.Proc.Cwd.GetPath()), fs)
	return 0
}

func (k *Kernel) sysUmount2(th *task.Thread, targetVA uint64) int64 {
	path, err := pathArg(th, targetVA)
	if err != 0 {
		return int64(-err)
	}
	return int64(-k.VFS.Umount(path))
}

func (k *Kernel) sysFstat(th *task.Thread, fdnum, statVA uint64) int64 {
	vf, _, err := getVfsFile(th, fdnum)
	if err != 0 {
		return int64(-err)
	}
	if vf == nil {
		return int64(-abi.EINVAL)
	}
	var st abi.Stat
	if serr := vf.Fstat(&st); serr != 0 {
		return int64(-serr)
	}
	return copyStatOut(th, statVA, &st)
}

func (k *Kernel) sysFstatat(th *task.Thread, dirfd, pathVA, statVA uint64) int64 {
	path, err := pathArg(th, pathVA)
	if err != 0 {
		return int64(-err)
	}
	f, oerr := k.VFS.FileOpen(path, resolveAt(th, int64(dirfd)), abi.O_RDONLY)
	if oerr != 0 {
		return int64(-oerr)
	}
	defer f.Close()
	var st abi.Stat
	if serr := f.Fstat(&st); serr != 0 {
		return int64(-serr)
	}
	return copyStatOut(th, statVA, &st)
}

func copyStatOut(th *task.Thread, statVA uint64, st *abi.Stat) int64 {
	b := unsafe.Slice((*byte)(unsafe.Pointer(st)), int(unsafe.Sizeof(*st)))
	if err := th.Proc.AS.CopyOut(addr.VA(statVA), b); err != 0 {
		return int64(-err)
	}
	return 0
}

func (k *Kernel) sysGetdents64(th *task.Thread, fdnum, bufVA, count uint64) int64 {
	vf, _, err := getVfsFile(th, fdnum)
	if err != 0 {
		return int64(-err)
	}
	if vf == nil {
		return int64(-abi.ENOTDIR)
	}
	entries, derr := vf.Getdents64()
	if derr != 0 {
		return int64(-derr)
	}
	b := encodeDirents(entries, count)
	if err := th.Proc.AS.CopyOut(addr.VA(bufVA), b); err != 0 {
		return int64(-err)
	}
	return int64(len(b))
}

// encodeDirents packs entries into the struct linux_dirent64 wire format
// getdents64 returns: {ino uint64, off uint64, reclen uint16, type uint8,
// name [...]byte NUL-terminated}, each record padded to an 8-byte
// boundary, stopping once appending another record would exceed max.
func encodeDirents(entries []fatfs.DirEntry, max uint64) []byte {
	var out []byte
	var off int64
	for i, e := range entries {
		nameLen := len(e.Name) + 1
		reclen := (19 + nameLen + 7) &^ 7
		if uint64(len(out)+reclen) > max {
			break
		}
		off += 1
		rec := make([]byte, reclen)
		putLE64(rec[0:8], uint64(i+1)) // d_ino, synthetic
		putLE64(rec[8:16], uint64(off))
		rec[16] = byte(reclen)
		rec[17] = byte(reclen >> 8)
		if e.IsDir {
			rec[18] = 4 // DT_DIR
		} else {
			rec[18] = 8 // DT_REG
		}
		copy(rec[19:], e.Name)
		out = append(out, rec...)
	}
	return out
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func (k *Kernel) sysFcntl(th *task.Thread, fdnum, cmd, arg uint64) int64 {
	switch int(cmd) {
	case abi.F_DUPFD, abi.F_DUPFD_CLOEXEC:
		nf, err := th.Proc.Files.Dup(int(fdnum))
		if err != 0 {
			return int64(-err)
		}
		return int64(nf)
	case abi.F_GETFD:
		entry, ok := th.Proc.Files.Get(int(fdnum))
		if !ok {
			return int64(-abi.EBADF)
		}
		if entry.Perms&fd.Cloexec != 0 {
			return abi.FD_CLOEXEC
		}
		return 0
	case abi.F_SETFD:
		entry, ok := th.Proc.Files.Get(int(fdnum))
		if !ok {
			return int64(-abi.EBADF)
		}
		if arg&abi.FD_CLOEXEC != 0 {
			entry.Perms |= fd.Cloexec
		} else {
			entry.Perms &^= fd.Cloexec
		}
		return 0
	default:
		return int64(-abi.EINVAL)
	}
}

func (k *Kernel) sysSendfile(th *task.Thread, outFd, inFd, offsetVA, count uint64) int64 {
	out, ok := th.Proc.Files.Get(int(outFd))
	if !ok {
		return int64(-abi.EBADF)
	}
	in, ok := th.Proc.Files.Get(int(inFd))
	if !ok {
		return int64(-abi.EBADF)
	}
	buf := make([]byte, count)
	n, err := in.Ops.Read(buf, 0)
	if err != 0 {
		return int64(-err)
	}
	wn, werr := out.Ops.Write(buf[:n], 0)
	if werr != 0 {
		return int64(-werr)
	}
	return int64(wn)
}
