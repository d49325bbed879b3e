// Package fatname decodes FAT32 VFAT long-filename directory entries.
// Short 8.3 names are plain ASCII/OEM bytes and need no decoding; long
// names are stored as UTF-16LE across a chain of up to 20 auxiliary
// directory entries, which is the one place this filesystem façade needs
// real text decoding rather than byte slicing.
package fatname

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LFNChars is how many UTF-16 code units one VFAT long-name directory
// entry carries (5 + 6 + 2, split across three fields in the on-disk
// layout).
const LFNChars = 13

// decoder is shared across calls; UTF16LE matches the VFAT spec exactly
// (no BOM, little-endian).
var decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// DecodeSegment converts one long-name entry's 13 UTF-16LE code units
// (already extracted from the three on-disk fields) into a UTF-8 string,
// stopping at the first 0x0000/0xFFFF padding code unit.
func DecodeSegment(units []uint16) (string, error) {
	raw := make([]byte, 0, len(units)*2)
	for _, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		raw = append(raw, byte(u), byte(u>>8))
	}
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Join assembles a full long filename from its segments, which the
// directory entry chain stores in reverse order (highest sequence number
// first on disk, but logically the last part of the name).
func Join(segmentsHighToLow []string) string {
	var b strings.Builder
	for i := len(segmentsHighToLow) - 1; i >= 0; i-- {
		b.WriteString(segmentsHighToLow[i])
	}
	return b.String()
}
