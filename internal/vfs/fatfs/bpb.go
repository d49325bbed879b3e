// Package fatfs is the FAT32 filesystem the kernel mounts, the concrete
// implementation behind internal/vfs. FAT32 only: FAT12/16 BPB layouts
// are rejected at mount time.
package fatfs

import (
	"encoding/binary"
	"errors"
)

// BlockSize is the device sector size this façade assumes throughout; FAT32
// media with a different BytesPerSector is rejected at mount time.
const BlockSize = 512

// BlockDevice is the raw device this filesystem reads and writes sectors
// against.
type BlockDevice interface {
	ReadBlock(id int, buf *[BlockSize]byte) error
	WriteBlock(id int, buf *[BlockSize]byte) error
}

// bpb holds the fields of a FAT32 BIOS Parameter Block this façade needs;
// fields it never reads (media descriptor, volume label, …) are skipped.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	sectorsPerFAT     uint32
	rootCluster       uint32
	totalSectors      uint32
}

var errNotFAT32 = errors.New("fatfs: not a FAT32 volume")

func parseBPB(sector []byte) (bpb, error) {
	var b bpb
	if len(sector) < 512 {
		return b, errNotFAT32
	}
	b.bytesPerSector = binary.LittleEndian.Uint16(sector[11:13])
	b.sectorsPerCluster = sector[13]
	b.reservedSectors = binary.LittleEndian.Uint16(sector[14:16])
	b.numFATs = sector[16]
	totalSectors16 := binary.LittleEndian.Uint16(sector[19:21])
	fatSize16 := binary.LittleEndian.Uint16(sector[22:24])
	totalSectors32 := binary.LittleEndian.Uint32(sector[32:36])
	fatSize32 := binary.LittleEndian.Uint32(sector[36:40])
	b.rootCluster = binary.LittleEndian.Uint32(sector[44:48])

	if b.bytesPerSector != BlockSize {
		return b, errNotFAT32
	}
	if fatSize16 != 0 || totalSectors16 != 0 {
		// FAT12/16 layouts use the 16-bit fields; this façade only
		// understands FAT32.
		return b, errNotFAT32
	}
	b.sectorsPerFAT = fatSize32
	b.totalSectors = totalSectors32
	if b.sectorsPerCluster == 0 || b.numFATs == 0 || b.sectorsPerFAT == 0 {
		return b, errNotFAT32
	}
	return b, nil
}

// layout derives the sector offsets parseBPB's raw fields imply.
type layout struct {
	bpb
	fatStartSector  uint32
	dataStartSector uint32
}

func newLayout(b bpb) layout {
	l := layout{bpb: b}
	l.fatStartSector = uint32(b.reservedSectors)
	l.dataStartSector = l.fatStartSector + uint32(b.numFATs)*b.sectorsPerFAT
	return l
}

// clusterToSector converts a cluster number (first valid cluster is 2) to
// its first sector on the device.
func (l layout) clusterToSector(cluster uint32) uint32 {
	return l.dataStartSector + (cluster-2)*uint32(l.sectorsPerCluster)
}

// clusterBytes is the size in bytes of one cluster.
func (l layout) clusterBytes() int {
	return int(l.sectorsPerCluster) * BlockSize
}
