package fatfs

import "strings"

// direntInfo is one fully resolved directory entry: a short entry plus
// whatever long name preceded it, if any.
type direntInfo struct {
	name    string
	attr    byte
	cluster uint32
	size    uint32
	slotIdx int // index of the short entry within its cluster's entry array, for unlink/overwrite
	dirCluster uint32
}

// listDir reads every live entry in the directory rooted at cluster,
// reassembling VFAT long names across their entry chains.
func (f *FS) listDir(cluster uint32) ([]direntInfo, error) {
	chain, err := f.clusterChain(cluster)
	if err != nil {
		return nil, err
	}
	var out []direntInfo
	var pendingLFN []string

	for _, c := range chain {
		data, err := f.readCluster(c)
		if err != nil {
			return nil, err
		}
		n := len(data) / direntSize
		for i := 0; i < n; i++ {
			raw := data[i*direntSize : (i+1)*direntSize]
			if raw[0] == directoryEnd {
				if len(pendingLFN) > 0 {
					pendingLFN = nil
				}
				return out, nil
			}
			if raw[0] == directoryFree {
				pendingLFN = nil
				continue
			}
			if raw[11] == attrLongName {
				seg, err := decodeLongName(raw)
				if err != nil {
					pendingLFN = nil
					continue
				}
				pendingLFN = append(pendingLFN, seg)
				continue
			}
			e := parseShortEntry(raw)
			name := e.name
			if len(pendingLFN) > 0 {
				name = joinLFN(pendingLFN)
				pendingLFN = nil
			}
			if e.name == "." || e.name == ".." {
				continue
			}
			out = append(out, direntInfo{
				name:       name,
				attr:       e.attr,
				cluster:    e.cluster,
				size:       e.size,
				slotIdx:    i,
				dirCluster: c,
			})
		}
	}
	return out, nil
}

func joinLFN(segments []string) string {
	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString(segments[i])
	}
	return b.String()
}

// lookupOne finds name directly inside the directory at cluster.
func (f *FS) lookupOne(cluster uint32, name string) (direntInfo, bool, error) {
	entries, err := f.listDir(cluster)
	if err != nil {
		return direntInfo{}, false, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.name, name) {
			return e, true, nil
		}
	}
	return direntInfo{}, false, nil
}

// addEntry writes a new short directory entry for name into the directory
// rooted at dirCluster, extending the directory with a fresh cluster if
// every existing one is full. Long names are not written: created entries
// always get an 8.3 short name, a deliberate scope cut from real VFAT
// write support (see DESIGN.md).
func (f *FS) addEntry(dirCluster uint32, name string, attr byte, cluster, size uint32) error {
	chain, err := f.clusterChain(dirCluster)
	if err != nil {
		return err
	}
	raw := encodeShortEntry(name, attr, cluster, size)
	for _, c := range chain {
		data, err := f.readCluster(c)
		if err != nil {
			return err
		}
		n := len(data) / direntSize
		for i := 0; i < n; i++ {
			slot := data[i*direntSize : (i+1)*direntSize]
			if slot[0] == directoryEnd || slot[0] == directoryFree {
				copy(slot, raw[:])
				return f.writeCluster(c, data)
			}
		}
	}
	// No free slot in any existing cluster: grow the directory.
	last := chain[len(chain)-1]
	newC, err := f.appendCluster(last)
	if err != nil {
		return err
	}
	data := make([]byte, f.lay.clusterBytes())
	copy(data[0:direntSize], raw[:])
	return f.writeCluster(newC, data)
}

// removeEntry marks the short entry at dirCluster/slotIdx free.
func (f *FS) removeEntry(dirCluster uint32, slotIdx int) error {
	data, err := f.readCluster(dirCluster)
	if err != nil {
		return err
	}
	data[slotIdx*direntSize] = directoryFree
	return f.writeCluster(dirCluster, data)
}

// updateSize rewrites the size field of the short entry at dirCluster/slotIdx.
func (f *FS) updateSize(dirCluster uint32, slotIdx int, size uint32) error {
	data, err := f.readCluster(dirCluster)
	if err != nil {
		return err
	}
	off := slotIdx*direntSize + 28
	data[off] = byte(size)
	data[off+1] = byte(size >> 8)
	data[off+2] = byte(size >> 16)
	data[off+3] = byte(size >> 24)
	return f.writeCluster(dirCluster, data)
}
