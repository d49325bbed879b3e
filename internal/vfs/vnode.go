package vfs

import (
	"strings"
	"sync"

	"rvcore/internal/abi"
	"rvcore/internal/vfs/fatfs"
)

// Vnode is a cached, possibly-shared handle onto one path: a mount point
// plus the canonical path plus the underlying inode. Identity is the
// path.
type Vnode struct {
	mount *Mount
	path  string
	node  *fatfs.Node
	refs  int
}

// vnodeCache is keyed by canonical path so concurrent opens of the same
// file share one underlying inode handle.
type vnodeCache struct {
	lock sync.Mutex
	byPath map[string]*Vnode
}

func newVnodeCache() *vnodeCache {
	return &vnodeCache{byPath: make(map[string]*Vnode)}
}

func (c *vnodeCache) get(path string) (*Vnode, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	v, ok := c.byPath[path]
	if ok {
		v.refs++
	}
	return v, ok
}

func (c *vnodeCache) insert(v *Vnode) {
	c.lock.Lock()
	defer c.lock.Unlock()
	v.refs++
	c.byPath[v.path] = v
}

func (c *vnodeCache) release(path string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	v, ok := c.byPath[path]
	if !ok {
		return
	}
	v.refs--
	if v.refs <= 0 {
		delete(c.byPath, path)
	}
}

// File is the fd.Ops implementation backing an open regular file or
// directory, one type over a fatfs.Node of either kind, with the
// capability set read/write/seek/fstat/getdents64 (Console and the pipe
// ends are separate fd.Ops types in internal/fd).
type File struct {
	lock     sync.Mutex
	vnode    *Vnode
	facade   *Facade
	pos      int64
	closed   bool
}

// Read implements fd.Ops, ignoring the offset argument and tracking the
// file's own position the way a regular seekable file does; offset is
// honoured by Fatfs at the byte level but the position cursor itself
// lives here since fatfs.Node has none of its own.
func (f *File) Read(dst []byte, _ int64) (int, abi.Err_t) {
	f.lock.Lock()
	defer f.lock.Unlock()
	n, err := f.vnode.node.ReadAt(dst, f.pos)
	if err != nil {
		return 0, abi.EIO
	}
	f.pos += int64(n)
	return n, 0
}

// ReadAt implements io.ReaderAt directly against the underlying node,
// independent of the cursor Read tracks, for a caller that needs random
// access without disturbing the descriptor's own position — loading an
// ELF image's program headers and segments is the only one today.
func (f *File) ReadAt(dst []byte, off int64) (int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.vnode.node.ReadAt(dst, off)
}

// Write implements fd.Ops.
func (f *File) Write(src []byte, _ int64) (int, abi.Err_t) {
	f.lock.Lock()
	defer f.lock.Unlock()
	n, err := f.vnode.node.WriteAt(src, f.pos)
	if err != nil {
		return 0, abi.EIO
	}
	f.pos += int64(n)
	return n, 0
}

// Seek repositions the file's cursor, per SEEK_SET/SEEK_CUR/SEEK_END.
func (f *File) Seek(offset int64, whence int) (int64, abi.Err_t) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var base int64
	switch whence {
	case abi.SEEK_SET:
		base = 0
	case abi.SEEK_CUR:
		base = f.pos
	case abi.SEEK_END:
		base = f.vnode.node.Size()
	default:
		return 0, abi.EINVAL
	}
	np := base + offset
	if np < 0 {
		return 0, abi.EINVAL
	}
	f.pos = np
	return np, 0
}

// Fstat fills st from the underlying node.
func (f *File) Fstat(st *abi.Stat) abi.Err_t {
	f.vnode.node.Fstat(st)
	return 0
}

// Getdents64 lists the directory's entries, failing with ENOTDIR on a
// regular file.
func (f *File) Getdents64() ([]fatfs.DirEntry, abi.Err_t) {
	entries, err := f.vnode.node.Getdents()
	if err != nil {
		return nil, abi.ENOTDIR
	}
	return entries, 0
}

// Size reports the file's current length.
func (f *File) Size() int64 { return f.vnode.node.Size() }

// Path reports the canonical path this handle was opened at, the base a
// relative openat/fstatat path resolves against when the descriptor names
// a directory.
func (f *File) Path() string { return f.vnode.path }

// IsDir reports whether the underlying inode is a directory.
func (f *File) IsDir() bool { return f.vnode.node.IsDir() }

// Close releases this handle's reference on the shared vnode.
func (f *File) Close() abi.Err_t {
	f.lock.Lock()
	if f.closed {
		f.lock.Unlock()
		return 0
	}
	f.closed = true
	f.lock.Unlock()
	f.facade.cache.release(f.vnode.path)
	return 0
}

// Reopen bumps the vnode's refcount for dup/fork, matching fd.Ops.
func (f *File) Reopen() abi.Err_t {
	f.facade.cache.insert(f.vnode)
	return 0
}

// canonicalize resolves path into an absolute, '.'-stripped form,
// against cwd when path is relative.
func canonicalize(path, cwd string) string {
	if !strings.HasPrefix(path, "/") {
		path = cwd + "/" + path
	}
	parts := strings.Split(path, "/")
	var out []string
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		if p == ".." {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}
