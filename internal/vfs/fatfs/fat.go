package fatfs

import (
	"encoding/binary"
	"errors"

	"rvcore/internal/klock"
)

const (
	fatFree    = 0x00000000
	fatBad     = 0x0FFFFFF7
	fatEOCMin  = 0x0FFFFFF8
	fatEntMask = 0x0FFFFFFF
)

var (
	errNotFound  = errors.New("fatfs: not found")
	errNotDir    = errors.New("fatfs: not a directory")
	errIsDir     = errors.New("fatfs: is a directory")
	errNoSpace   = errors.New("fatfs: no free clusters")
)

// FS is a mounted FAT32 volume.
type FS struct {
	dev BlockDevice
	lay layout

	lock klock.Spinlock
}

// Mount reads the boot sector off dev and returns a mounted FAT32 façade.
func Mount(dev BlockDevice) (*FS, error) {
	var sector [BlockSize]byte
	if err := dev.ReadBlock(0, &sector); err != nil {
		return nil, err
	}
	b, err := parseBPB(sector[:])
	if err != nil {
		return nil, err
	}
	return &FS{dev: dev, lay: newLayout(b)}, nil
}

// RootCluster returns the first cluster of the root directory.
func (f *FS) RootCluster() uint32 { return f.lay.rootCluster }

func (f *FS) readFATEntry(cluster uint32) (uint32, error) {
	entOff := cluster * 4
	sector := f.lay.fatStartSector + entOff/BlockSize
	within := entOff % BlockSize
	var buf [BlockSize]byte
	if err := f.dev.ReadBlock(int(sector), &buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[within:within+4]) & fatEntMask, nil
}

func (f *FS) writeFATEntry(cluster, val uint32) error {
	entOff := cluster * 4
	sector := f.lay.fatStartSector + entOff/BlockSize
	within := entOff % BlockSize
	var buf [BlockSize]byte
	if err := f.dev.ReadBlock(int(sector), &buf); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[within:within+4], val&fatEntMask)
	return f.dev.WriteBlock(int(sector), &buf)
}

func isEOC(v uint32) bool { return v >= fatEOCMin }

// readCluster reads one full cluster's bytes.
func (f *FS) readCluster(cluster uint32) ([]byte, error) {
	buf := make([]byte, f.lay.clusterBytes())
	startSector := f.lay.clusterToSector(cluster)
	for i := 0; i < int(f.lay.sectorsPerCluster); i++ {
		var sec [BlockSize]byte
		if err := f.dev.ReadBlock(int(startSector)+i, &sec); err != nil {
			return nil, err
		}
		copy(buf[i*BlockSize:], sec[:])
	}
	return buf, nil
}

func (f *FS) writeCluster(cluster uint32, data []byte) error {
	startSector := f.lay.clusterToSector(cluster)
	for i := 0; i < int(f.lay.sectorsPerCluster); i++ {
		var sec [BlockSize]byte
		copy(sec[:], data[i*BlockSize:(i+1)*BlockSize])
		if err := f.dev.WriteBlock(int(startSector)+i, &sec); err != nil {
			return err
		}
	}
	return nil
}

// clusterChain walks the FAT starting at first, returning every cluster
// in order.
func (f *FS) clusterChain(first uint32) ([]uint32, error) {
	var chain []uint32
	c := first
	for c != 0 && !isEOC(c) {
		if c == fatBad {
			return nil, errors.New("fatfs: bad cluster in chain")
		}
		chain = append(chain, c)
		next, err := f.readFATEntry(c)
		if err != nil {
			return nil, err
		}
		c = next
	}
	return chain, nil
}

// allocCluster finds a free cluster, marks it EOC, and returns it. Linear
// scan from cluster 2: this façade targets small kernel test images, not
// multi-gigabyte volumes where a free-cluster bitmap would matter.
func (f *FS) allocCluster() (uint32, error) {
	total := f.lay.totalSectors / uint32(f.lay.sectorsPerCluster)
	for c := uint32(2); c < total; c++ {
		v, err := f.readFATEntry(c)
		if err != nil {
			return 0, err
		}
		if v == fatFree {
			if err := f.writeFATEntry(c, fatEOCMin); err != nil {
				return 0, err
			}
			return c, nil
		}
	}
	return 0, errNoSpace
}

func (f *FS) appendCluster(lastInChain uint32) (uint32, error) {
	c, err := f.allocCluster()
	if err != nil {
		return 0, err
	}
	if err := f.writeFATEntry(lastInChain, c); err != nil {
		return 0, err
	}
	return c, nil
}

func (f *FS) freeChain(first uint32) error {
	chain, err := f.clusterChain(first)
	if err != nil {
		return err
	}
	for _, c := range chain {
		if err := f.writeFATEntry(c, fatFree); err != nil {
			return err
		}
	}
	return nil
}
