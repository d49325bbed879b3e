package fatfs

import (
	"encoding/binary"
	"strings"

	"rvcore/internal/vfs/fatname"
)

const direntSize = 32

// Directory entry attribute bits.
const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID
)

const lfnLastEntry = 0x40
const directoryFree = 0xE5
const directoryEnd = 0x00

// shortEntry is the parsed form of one standard (non-LFN) 32-byte
// directory entry.
type shortEntry struct {
	name      string // 8.3 name, dot-joined, trimmed of padding
	attr      byte
	cluster   uint32
	size      uint32
	deleted   bool
	isEnd     bool
	raw       [direntSize]byte
}

func parseShortEntry(raw []byte) shortEntry {
	var e shortEntry
	copy(e.raw[:], raw)
	switch raw[0] {
	case directoryEnd:
		e.isEnd = true
		return e
	case directoryFree:
		e.deleted = true
		return e
	}
	e.attr = raw[11]
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext != "" {
		e.name = base + "." + ext
	} else {
		e.name = base
	}
	hi := binary.LittleEndian.Uint16(raw[20:22])
	lo := binary.LittleEndian.Uint16(raw[26:28])
	e.cluster = uint32(hi)<<16 | uint32(lo)
	e.size = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

func (e shortEntry) isDir() bool      { return e.attr&attrDir != 0 }
func (e shortEntry) isLongName() bool { return e.attr&attrLongName == attrLongName }
func (e shortEntry) isLive() bool     { return !e.deleted && !e.isEnd }

// lfnUnits extracts the 13 UTF-16LE code units a long-name entry carries,
// split across its three on-disk fields.
func lfnUnits(raw []byte) []uint16 {
	units := make([]uint16, 0, fatname.LFNChars)
	for _, off := range []int{1, 14, 28} {
		n := 5
		if off == 14 {
			n = 6
		} else if off == 28 {
			n = 2
		}
		for i := 0; i < n; i++ {
			units = append(units, binary.LittleEndian.Uint16(raw[off+i*2:off+i*2+2]))
		}
	}
	return units
}

// decodeLongName decodes one LFN segment's text, for dir.go's directory
// scan to accumulate across a chain of entries.
func decodeLongName(raw []byte) (string, error) {
	return fatname.DecodeSegment(lfnUnits(raw))
}

func encodeShortEntry(name string, attr byte, cluster uint32, size uint32) [direntSize]byte {
	var raw [direntSize]byte
	base, ext := split83(name)
	copy(raw[0:8], padRight(base, 8))
	copy(raw[8:11], padRight(ext, 3))
	raw[11] = attr
	binary.LittleEndian.PutUint16(raw[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(raw[26:28], uint16(cluster))
	binary.LittleEndian.PutUint32(raw[28:32], size)
	return raw
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, strings.ToUpper(s))
	return b
}

// split83 splits name into an 8.3 base/extension pair, truncating rather
// than generating the numeric-tail disambiguation real FAT drivers use:
// this façade only needs to round-trip names the kernel itself created.
func split83(name string) (base, ext string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	} else {
		base = name
	}
	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return base, ext
}
