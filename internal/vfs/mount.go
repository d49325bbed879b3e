// Package vfs is the virtual-file-system façade the syscall layer talks
// to: a small mount table, a vnode cache keyed by
// canonical path, and path resolution/open/unlink/mkdir/mount/umount on
// top of internal/vfs/fatfs.
package vfs

import (
	"strings"
	"sync"

	"rvcore/internal/vfs/fatfs"
)

// Mount associates a path prefix with a mounted filesystem handle.
type Mount struct {
	Prefix string
	FS     *fatfs.FS
}

// MountTable is the mount table: prefix to filesystem handle. It is a
// growable list with no fixed capacity; Mount never fails for lack of a
// free slot. Lookup picks the longest prefix that is either an exact
// match or followed by a '/', per the façade's path-resolution rule.
type MountTable struct {
	lock   sync.Mutex
	mounts []*Mount
}

// NewMountTable returns an empty mount table.
func NewMountTable() *MountTable { return &MountTable{} }

// Mount installs fs under prefix, replacing any existing mount at the
// exact same prefix.
func (mt *MountTable) Mount(prefix string, fs *fatfs.FS) {
	prefix = cleanPrefix(prefix)
	mt.lock.Lock()
	defer mt.lock.Unlock()
	for _, m := range mt.mounts {
		if m.Prefix == prefix {
			m.FS = fs
			return
		}
	}
	mt.mounts = append(mt.mounts, &Mount{Prefix: prefix, FS: fs})
}

// Umount clears the table slot for prefix, reporting whether a mount was
// actually present there.
func (mt *MountTable) Umount(prefix string) bool {
	prefix = cleanPrefix(prefix)
	mt.lock.Lock()
	defer mt.lock.Unlock()
	for i, m := range mt.mounts {
		if m.Prefix == prefix {
			mt.mounts = append(mt.mounts[:i], mt.mounts[i+1:]...)
			return true
		}
	}
	return false
}

// Resolve finds the mount whose prefix is the longest match for path,
// returning that mount and path relative to its prefix (always starting
// with '/', "/" for the prefix itself).
func (mt *MountTable) Resolve(path string) (*Mount, string, bool) {
	mt.lock.Lock()
	defer mt.lock.Unlock()
	var best *Mount
	for _, m := range mt.mounts {
		if !isPrefixMatch(m.Prefix, path) {
			continue
		}
		if best == nil || len(m.Prefix) > len(best.Prefix) {
			best = m
		}
	}
	if best == nil {
		return nil, "", false
	}
	rel := strings.TrimPrefix(path, best.Prefix)
	if rel == "" {
		rel = "/"
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return best, rel, true
}

func isPrefixMatch(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func cleanPrefix(p string) string {
	if p == "" {
		return "/"
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
