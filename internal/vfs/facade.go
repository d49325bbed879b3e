package vfs

import (
	"rvcore/internal/abi"
	"rvcore/internal/vfs/fatfs"
)

// Facade is the top-level VFS the syscall layer opens files through: a
// mount table plus a vnode cache. An open consults the cache by canonical
// path and either reuses an existing vnode or opens a fresh one on the
// filesystem and inserts it.
type Facade struct {
	mounts *MountTable
	cache  *vnodeCache
}

// New returns an empty façade with no mounts installed.
func New() *Facade {
	return &Facade{mounts: NewMountTable(), cache: newVnodeCache()}
}

// Mount installs fs under prefix.
func (fac *Facade) Mount(prefix string, fs *fatfs.FS) {
	fac.mounts.Mount(prefix, fs)
}

// Umount clears the mount at prefix.
func (fac *Facade) Umount(prefix string) abi.Err_t {
	if !fac.mounts.Umount(prefix) {
		return abi.EINVAL
	}
	return 0
}

// FileOpen canonicalises path against cwd, resolves it through the mount
// table, and returns a *File either reused from the vnode cache or freshly
// opened (and inserted into the cache). flags follows the openat ABI:
// O_CREAT creates the backing inode if absent, O_DIRECTORY requires it
// to be a directory, O_APPEND seeks to the current end.
func (fac *Facade) FileOpen(path, cwd string, flags int) (*File, abi.Err_t) {
	canon := canonicalize(path, cwd)

	if v, ok := fac.cache.get(canon); ok {
		if flags&abi.O_DIRECTORY != 0 && !v.node.IsDir() {
			fac.cache.release(canon)
			return nil, abi.ENOTDIR
		}
		return fac.wrap(v, flags), 0
	}

	mount, rel, ok := fac.mounts.Resolve(canon)
	if !ok {
		return nil, abi.ENOENT
	}

	node, err := mount.FS.Open(rel)
	if err != nil {
		if flags&abi.O_CREAT == 0 {
			return nil, abi.ENOENT
		}
		node, err = mount.FS.Create(rel)
		if err != nil {
			return nil, abi.EIO
		}
	} else if flags&abi.O_CREAT != 0 && flags&abi.O_EXCL != 0 {
		return nil, abi.EEXIST
	}

	if flags&abi.O_DIRECTORY != 0 && !node.IsDir() {
		return nil, abi.ENOTDIR
	}

	v := &Vnode{mount: mount, path: canon, node: node}
	fac.cache.insert(v)
	return fac.wrap(v, flags), 0
}

func (fac *Facade) wrap(v *Vnode, flags int) *File {
	f := &File{vnode: v, facade: fac}
	if flags&abi.O_APPEND != 0 {
		f.pos = v.node.Size()
	}
	return f
}

// Unlink removes the file or empty directory at path.
func (fac *Facade) Unlink(path, cwd string) abi.Err_t {
	canon := canonicalize(path, cwd)
	mount, rel, ok := fac.mounts.Resolve(canon)
	if !ok {
		return abi.ENOENT
	}
	if err := mount.FS.Remove(rel); err != nil {
		return abi.ENOENT
	}
	fac.cache.release(canon)
	return 0
}

// Mkdir creates a directory at path.
func (fac *Facade) Mkdir(path, cwd string) abi.Err_t {
	canon := canonicalize(path, cwd)
	mount, rel, ok := fac.mounts.Resolve(canon)
	if !ok {
		return abi.ENOENT
	}
	if err := mount.FS.Mkdir(rel); err != nil {
		return abi.EEXIST
	}
	return 0
}

// Canonicalize exposes the path-canonicalisation rule for callers (getcwd,
// chdir) that need it without opening anything.
func Canonicalize(path, cwd string) string { return canonicalize(path, cwd) }
