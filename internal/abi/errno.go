// Package abi holds the kernel/user ABI surface: the stable errno table
// and the syscall-level flag and wire-struct definitions the dispatcher
// and vfs layers share. Flag and structure values that are genuinely
// architecture-portable come from golang.org/x/sys/unix instead of being
// hand-copied.
package abi

import "fmt"

// Err_t is the kernel's internal error type: a small integer negated and
// handed straight back across the syscall boundary in a0. Zero means
// success.
type Err_t int32

// Error implements the error interface so Err_t can be used with %v and
// errors.Is-style comparisons in tests without an extra wrapper type.
func (e Err_t) Error() string {
	if e == 0 {
		return "success"
	}
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int32(e))
}

// The stable Linux-compatible errno table, EPERM=1 through ENOLCK=37.
const (
	EPERM   Err_t = 1
	ENOENT  Err_t = 2
	ESRCH   Err_t = 3
	EINTR   Err_t = 4
	EIO     Err_t = 5
	ENXIO   Err_t = 6
	E2BIG   Err_t = 7
	ENOEXEC Err_t = 8
	EBADF   Err_t = 9
	ECHILD  Err_t = 10
	EAGAIN  Err_t = 11
	ENOMEM  Err_t = 12
	EACCES  Err_t = 13
	EFAULT  Err_t = 14
	ENOTBLK Err_t = 15
	EBUSY   Err_t = 16
	EEXIST  Err_t = 17
	EXDEV   Err_t = 18
	ENODEV  Err_t = 19
	ENOTDIR Err_t = 20
	EISDIR  Err_t = 21
	EINVAL  Err_t = 22
	ENFILE  Err_t = 23
	EMFILE  Err_t = 24
	ENOTTY  Err_t = 25
	ETXTBSY Err_t = 26
	EFBIG   Err_t = 27
	ENOSPC  Err_t = 28
	ESPIPE  Err_t = 29
	EROFS   Err_t = 30
	EMLINK  Err_t = 31
	EPIPE   Err_t = 32
	EDOM    Err_t = 33
	ERANGE  Err_t = 34
	EDEADLK Err_t = 35
	ENAMETOOLONG Err_t = 36
	ENOLCK       Err_t = 37
	// ENOHEAP is not part of the Linux table; it is a kernel-internal
	// signal raised when a copy to/from user memory cannot make forward
	// progress because the kernel heap itself is exhausted, surfaced to
	// callers as ENOMEM.
	ENOHEAP Err_t = -100
)

var errnoNames = map[Err_t]string{
	EPERM: "EPERM", ENOENT: "ENOENT", ESRCH: "ESRCH", EINTR: "EINTR",
	EIO: "EIO", ENXIO: "ENXIO", E2BIG: "E2BIG", ENOEXEC: "ENOEXEC",
	EBADF: "EBADF", ECHILD: "ECHILD", EAGAIN: "EAGAIN", ENOMEM: "ENOMEM",
	EACCES: "EACCES", EFAULT: "EFAULT", ENOTBLK: "ENOTBLK", EBUSY: "EBUSY",
	EEXIST: "EEXIST", EXDEV: "EXDEV", ENODEV: "ENODEV", ENOTDIR: "ENOTDIR",
	EISDIR: "EISDIR", EINVAL: "EINVAL", ENFILE: "ENFILE", EMFILE: "EMFILE",
	ENOTTY: "ENOTTY", ETXTBSY: "ETXTBSY", EFBIG: "EFBIG", ENOSPC: "ENOSPC",
	ESPIPE: "ESPIPE", EROFS: "EROFS", EMLINK: "EMLINK", EPIPE: "EPIPE",
	EDOM: "EDOM", ERANGE: "ERANGE", EDEADLK: "EDEADLK",
	ENAMETOOLONG: "ENAMETOOLONG", ENOLCK: "ENOLCK", ENOHEAP: "ENOHEAP",
}
