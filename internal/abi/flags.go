package abi

import "golang.org/x/sys/unix"

// Open-flag, mmap, clone, and fcntl constants. These are pulled straight
// from golang.org/x/sys/unix rather than hand-copied: the numeric values
// are part of the Linux syscall ABI this kernel targets, not something
// this kernel gets to choose, and the ecosystem already maintains a
// faithful copy.
const (
	O_RDONLY    = unix.O_RDONLY
	O_WRONLY    = unix.O_WRONLY
	O_RDWR      = unix.O_RDWR
	O_CREAT     = unix.O_CREAT
	O_EXCL      = unix.O_EXCL
	O_TRUNC     = unix.O_TRUNC
	O_APPEND    = unix.O_APPEND
	O_DIRECTORY = unix.O_DIRECTORY
	O_CLOEXEC   = unix.O_CLOEXEC
	O_NONBLOCK  = unix.O_NONBLOCK

	AT_FDCWD     = unix.AT_FDCWD
	AT_REMOVEDIR = unix.AT_REMOVEDIR

	PROT_NONE  = unix.PROT_NONE
	PROT_READ  = unix.PROT_READ
	PROT_WRITE = unix.PROT_WRITE
	PROT_EXEC  = unix.PROT_EXEC

	MAP_SHARED    = unix.MAP_SHARED
	MAP_PRIVATE   = unix.MAP_PRIVATE
	MAP_ANONYMOUS = unix.MAP_ANON
	MAP_FIXED     = unix.MAP_FIXED

	CLONE_VM             = unix.CLONE_VM
	CLONE_FS             = unix.CLONE_FS
	CLONE_FILES          = unix.CLONE_FILES
	CLONE_CHILD_CLEARTID = unix.CLONE_CHILD_CLEARTID
	CLONE_CHILD_SETTID   = unix.CLONE_CHILD_SETTID

	F_DUPFD         = unix.F_DUPFD
	F_DUPFD_CLOEXEC = unix.F_DUPFD_CLOEXEC
	F_GETFD         = unix.F_GETFD
	F_SETFD         = unix.F_SETFD
	FD_CLOEXEC      = unix.FD_CLOEXEC

	WNOHANG = unix.WNOHANG

	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2

	S_IFMT  = 0170000
	S_IFREG = 0100000
	S_IFDIR = 0040000
	S_IFCHR = 0020000
	S_IFIFO = 0010000
)

// Timespec mirrors the wire layout of struct timespec, reused directly
// from unix.Timespec since it is already the right 64-bit layout for a
// 64-bit RISC-V target.
type Timespec = unix.Timespec

// Timeval mirrors struct timeval.
type Timeval = unix.Timeval

// Utsname mirrors struct utsname, used by the uname syscall.
type Utsname = unix.Utsname

// Tms mirrors struct tms, used by the times syscall: user/system cycles
// for the calling process and its reaped children.
type Tms struct {
	Utime, Stime, Cutime, Cstime int64
}

// Stat mirrors struct stat, used by fstat/fstatat/newfstatat: the full
// unix.Stat_t layout the riscv64 ABI expects on the wire.
type Stat = unix.Stat_t
