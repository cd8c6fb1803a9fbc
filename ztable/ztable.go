package ztable

import (
	"strings"

	"github.com/davetcode/zeta/zcore"
)

// PrintTable renders a ZSCII byte rectangle of width x height with skip
// bytes left out between rows.
func PrintTable(core *zcore.Core, baddr uint32, width uint16, height uint16, skip uint16) string {
	s := strings.Builder{}

	ptr := baddr
	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}
		for col := uint16(0); col < width; col++ {
			s.WriteByte(core.ReadByte(ptr))
			ptr++
		}
		ptr += uint32(skip)
	}

	return s.String()
}

// ScanTable searches length entries starting at baddr for test, stepping by
// the field size in the low bits of form and comparing words when the top
// bit of form is set, bytes otherwise. Returns the matching entry address
// or 0.
func ScanTable(core *zcore.Core, test uint16, baddr uint32, length uint16, form uint16) uint16 {
	ptr := baddr
	fieldSize := form & 0b0111_1111
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0 // a zero stride would never terminate
	}

	for i := uint16(0); i < length; i++ {
		if checkWord {
			if core.ReadHalfWord(ptr) == test {
				return uint16(ptr)
			}
		} else {
			// Byte entries are widened so a test value above 0xff rightly
			// never matches
			if uint16(core.ReadByte(ptr)) == test {
				return uint16(ptr)
			}
		}

		ptr += uint32(fieldSize)
	}

	return 0
}

// CopyTable implements the copy_table opcode: destination 0 zeroes the
// source, a positive size copies without mid-copy corruption and a negative
// size forces a forward byte-by-byte copy.
func CopyTable(core *zcore.Core, first uint16, second uint16, size int16) {
	sizeAbs := uint32(size)
	if size < 0 {
		sizeAbs = uint32(-int32(size))
	}

	switch {
	case second == 0:
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(first)+i, 0)
		}

	case size >= 0:
		tmp := make([]uint8, sizeAbs)
		copy(tmp, core.ReadSlice(uint32(first), uint32(first)+sizeAbs))
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(second)+i, tmp[i])
		}

	default:
		for i := uint32(0); i < sizeAbs; i++ {
			core.WriteByte(uint32(second)+i, core.ReadByte(uint32(first)+i))
		}
	}
}
