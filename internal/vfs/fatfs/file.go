package fatfs

import (
	"errors"
	"strings"

	"rvcore/internal/abi"
)

// Node is an open handle onto one file or directory, the fatfs-specific
// implementation of internal/vfs.Vnode.
type Node struct {
	fs      *FS
	name    string
	attr    byte
	cluster uint32 // first cluster of this node's own data (0 if empty file)
	size    uint32

	dirCluster uint32 // directory this node's entry lives in
	slotIdx    int    // entry's slot within that directory

	chain []uint32 // cached cluster chain, populated lazily
}

// IsDir reports whether this node is a directory.
func (n *Node) IsDir() bool { return n.attr&attrDir != 0 }

// Size returns the file's byte length as recorded in its directory entry.
func (n *Node) Size() int64 { return int64(n.size) }

func (n *Node) ensureChain() error {
	if n.chain != nil || n.cluster == 0 {
		return nil
	}
	chain, err := n.fs.clusterChain(n.cluster)
	if err != nil {
		return err
	}
	n.chain = chain
	return nil
}

// ReadAt reads len(p) bytes starting at off; short reads happen only at
// EOF.
func (n *Node) ReadAt(p []byte, off int64) (int, error) {
	if n.IsDir() {
		return 0, errIsDir
	}
	if off >= int64(n.size) {
		return 0, nil
	}
	if err := n.ensureChain(); err != nil {
		return 0, err
	}
	cb := n.fs.lay.clusterBytes()
	end := off + int64(len(p))
	if end > int64(n.size) {
		end = int64(n.size)
	}
	total := 0
	for pos := off; pos < end; {
		idx := int(pos) / cb
		within := int(pos) % cb
		if idx >= len(n.chain) {
			break
		}
		data, err := n.fs.readCluster(n.chain[idx])
		if err != nil {
			return total, err
		}
		chunk := data[within:]
		need := int(end - pos)
		if need < len(chunk) {
			chunk = chunk[:need]
		}
		copy(p[total:], chunk)
		total += len(chunk)
		pos += int64(len(chunk))
	}
	return total, nil
}

// WriteAt writes p at off, extending the file (allocating new clusters and
// updating its directory entry's size) if needed.
func (n *Node) WriteAt(p []byte, off int64) (int, error) {
	if n.IsDir() {
		return 0, errIsDir
	}
	cb := n.fs.lay.clusterBytes()
	needClusters := (int(off)+len(p)+cb-1)/cb
	if n.cluster == 0 && needClusters > 0 {
		c, err := n.fs.allocCluster()
		if err != nil {
			return 0, err
		}
		n.cluster = c
		n.chain = []uint32{c}
		// Record the new first cluster in the directory entry so a later
		// Open finds the data.
		dir, err := n.fs.readCluster(n.dirCluster)
		if err != nil {
			return 0, err
		}
		ent := n.slotIdx * direntSize
		dir[ent+20], dir[ent+21] = byte(c>>16), byte(c>>24)
		dir[ent+26], dir[ent+27] = byte(c), byte(c>>8)
		if err := n.fs.writeCluster(n.dirCluster, dir); err != nil {
			return 0, err
		}
	} else if err := n.ensureChain(); err != nil {
		return 0, err
	}
	for len(n.chain) < needClusters {
		last := n.chain[len(n.chain)-1]
		c, err := n.fs.appendCluster(last)
		if err != nil {
			return 0, err
		}
		n.chain = append(n.chain, c)
	}

	total := 0
	pos := off
	for total < len(p) {
		idx := int(pos) / cb
		within := int(pos) % cb
		data, err := n.fs.readCluster(n.chain[idx])
		if err != nil {
			return total, err
		}
		room := cb - within
		chunk := p[total:]
		if len(chunk) > room {
			chunk = chunk[:room]
		}
		copy(data[within:], chunk)
		if err := n.fs.writeCluster(n.chain[idx], data); err != nil {
			return total, err
		}
		total += len(chunk)
		pos += int64(len(chunk))
	}

	if newSize := off + int64(total); newSize > int64(n.size) {
		n.size = uint32(newSize)
		if err := n.fs.updateSize(n.dirCluster, n.slotIdx, n.size); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Fstat fills st with this node's metadata in the wire-layout
// unix.Stat_t.
func (n *Node) Fstat(st *abi.Stat) {
	st.Size = int64(n.size)
	if n.IsDir() {
		st.Mode = abi.S_IFDIR | 0755
	} else {
		st.Mode = abi.S_IFREG | 0644
	}
	st.Ino = uint64(n.cluster)
}

// Getdents lists the directory's live entries as (name, isDir) pairs.
func (n *Node) Getdents() ([]DirEntry, error) {
	if !n.IsDir() {
		return nil, errNotDir
	}
	infos, err := n.fs.listDir(n.cluster)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(infos))
	for _, e := range infos {
		out = append(out, DirEntry{Name: e.name, IsDir: e.attr&attrDir != 0})
	}
	return out, nil
}

// DirEntry is one entry returned by Getdents.
type DirEntry struct {
	Name  string
	IsDir bool
}

// Open resolves a slash-separated path (already canonicalized by the
// caller, per internal/vfs's job) starting at the root directory.
func (f *FS) Open(path string) (*Node, error) {
	cluster := f.RootCluster()
	parts := splitPath(path)
	if len(parts) == 0 {
		return &Node{fs: f, name: "/", attr: attrDir, cluster: cluster}, nil
	}
	var cur direntInfo
	found := false
	dirCluster := cluster
	for i, part := range parts {
		e, ok, err := f.lookupOne(dirCluster, part)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotFound
		}
		cur = e
		found = true
		if i < len(parts)-1 {
			if e.attr&attrDir == 0 {
				return nil, errNotDir
			}
			dirCluster = e.cluster
		}
	}
	if !found {
		return nil, errNotFound
	}
	return &Node{
		fs: f, name: cur.name, attr: cur.attr, cluster: cur.cluster,
		size: cur.size, dirCluster: dirCluster, slotIdx: cur.slotIdx,
	}, nil
}

// Create makes a new zero-length regular file at path, failing with
// os.ErrExist semantics (errAlreadyExists) if it already exists.
func (f *FS) Create(path string) (*Node, error) {
	dir, leaf, err := f.resolveParent(path)
	if err != nil {
		return nil, err
	}
	if _, ok, err := f.lookupOne(dir, leaf); err != nil {
		return nil, err
	} else if ok {
		return nil, errAlreadyExists
	}
	if err := f.addEntry(dir, leaf, attrArchive, 0, 0); err != nil {
		return nil, err
	}
	e, _, err := f.lookupOne(dir, leaf)
	if err != nil {
		return nil, err
	}
	return &Node{fs: f, name: e.name, attr: e.attr, cluster: e.cluster, size: e.size, dirCluster: dir, slotIdx: e.slotIdx}, nil
}

// Mkdir creates an empty directory at path.
func (f *FS) Mkdir(path string) error {
	dir, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	if _, ok, err := f.lookupOne(dir, leaf); err != nil {
		return err
	} else if ok {
		return errAlreadyExists
	}
	c, err := f.allocCluster()
	if err != nil {
		return err
	}
	empty := make([]byte, f.lay.clusterBytes())
	if err := f.writeCluster(c, empty); err != nil {
		return err
	}
	return f.addEntry(dir, leaf, attrDir, c, 0)
}

// Remove deletes the file or empty directory at path.
func (f *FS) Remove(path string) error {
	dir, leaf, err := f.resolveParent(path)
	if err != nil {
		return err
	}
	e, ok, err := f.lookupOne(dir, leaf)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound
	}
	if e.attr&attrDir != 0 {
		entries, err := f.listDir(e.cluster)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return errDirNotEmpty
		}
	}
	if e.cluster != 0 {
		if err := f.freeChain(e.cluster); err != nil {
			return err
		}
	}
	return f.removeEntry(dir, e.slotIdx)
}

func (f *FS) resolveParent(path string) (dirCluster uint32, leaf string, err error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return 0, "", errIsDir
	}
	leaf = parts[len(parts)-1]
	dirCluster = f.RootCluster()
	for _, part := range parts[:len(parts)-1] {
		e, ok, err := f.lookupOne(dirCluster, part)
		if err != nil {
			return 0, "", err
		}
		if !ok || e.attr&attrDir == 0 {
			return 0, "", errNotDir
		}
		dirCluster = e.cluster
	}
	return dirCluster, leaf, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

var errAlreadyExists = errors.New("fatfs: already exists")
var errDirNotEmpty = errors.New("fatfs: directory not empty")
