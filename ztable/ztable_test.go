package ztable

import (
	"encoding/binary"
	"testing"

	"github.com/davetcode/zeta/zcore"
)

func testCore() *zcore.Core {
	mem := make([]uint8, 0x2000)
	mem[0x00] = 3
	binary.BigEndian.PutUint16(mem[0x0e:], 0x1800) // static base
	core := zcore.LoadCore(mem)
	return &core
}

func TestScanTableByteForm(t *testing.T) {
	core := testCore()
	for i, b := range []uint8{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x55, 0x66} {
		core.WriteByte(0x300+uint32(i), b)
	}

	// Byte scan with stride 2 visits 0x300, 0x302, ...
	if addr := ScanTable(core, 0x55, 0x300, 5, 0x02); addr != 0x304 {
		t.Errorf("Expected to find 0x55 at 0x304, got %#x", addr)
	}
	if addr := ScanTable(core, 0x66, 0x300, 5, 0x02); addr != 0 {
		t.Errorf("0x66 only sits at odd offsets, expected 0, got %#x", addr)
	}
}

func TestScanTableWordForm(t *testing.T) {
	core := testCore()
	core.WriteHalfWord(0x300, 0x1111)
	core.WriteHalfWord(0x302, 0x2222)
	core.WriteHalfWord(0x304, 0x3333)

	if addr := ScanTable(core, 0x2222, 0x300, 3, 0x82); addr != 0x302 {
		t.Errorf("Word scan should find 0x2222 at 0x302, got %#x", addr)
	}
	if addr := ScanTable(core, 0x4444, 0x300, 3, 0x82); addr != 0 {
		t.Errorf("Missing word should give 0, got %#x", addr)
	}
}

func TestScanTableByteWidening(t *testing.T) {
	core := testCore()
	core.WriteByte(0x300, 0x22)

	// A 16-bit test value can never match a byte entry
	if addr := ScanTable(core, 0x0122, 0x300, 1, 0x01); addr != 0 {
		t.Errorf("0x0122 must not match byte 0x22, got %#x", addr)
	}
}

func TestScanTableZeroStride(t *testing.T) {
	core := testCore()
	if addr := ScanTable(core, 0x55, 0x300, 5, 0x80); addr != 0 {
		t.Error("Zero stride should give up rather than loop")
	}
}

func TestCopyTableZeroes(t *testing.T) {
	core := testCore()
	for i := uint32(0); i < 4; i++ {
		core.WriteByte(0x300+i, 0xff)
	}

	CopyTable(core, 0x300, 0, 4)

	for i := uint32(0); i < 4; i++ {
		if core.ReadByte(0x300+i) != 0 {
			t.Fatal("Destination 0 should zero the source table")
		}
	}
}

func TestCopyTableOverlapSafe(t *testing.T) {
	core := testCore()
	for i := uint32(0); i < 4; i++ {
		core.WriteByte(0x300+i, uint8(i+1))
	}

	// Positive size protects against mid-copy corruption even overlapping
	CopyTable(core, 0x300, 0x301, 4)

	for i := uint32(0); i < 4; i++ {
		if core.ReadByte(0x301+i) != uint8(i+1) {
			t.Fatalf("Overlap-safe copy corrupted byte %d", i)
		}
	}
}

func TestCopyTableForcedForward(t *testing.T) {
	core := testCore()
	for i := uint32(0); i < 4; i++ {
		core.WriteByte(0x300+i, uint8(i+1))
	}

	// Negative size forces the forward byte-by-byte copy, so an
	// overlapping destination sees the already-copied bytes
	CopyTable(core, 0x300, 0x301, -4)

	if core.ReadByte(0x301) != 1 || core.ReadByte(0x302) != 1 {
		t.Error("Forced forward copy should smear the first byte")
	}
}

func TestPrintTable(t *testing.T) {
	core := testCore()
	for i, b := range []uint8("abcdXefgh") {
		core.WriteByte(0x300+uint32(i), b)
	}

	// Two rows of four with one byte skipped between rows
	if s := PrintTable(core, 0x300, 4, 2, 1); s != "abcd\nefgh" {
		t.Errorf("Unexpected table render %q", s)
	}

	if s := PrintTable(core, 0x300, 4, 1, 0); s != "abcd" {
		t.Errorf("Single row render %q", s)
	}
}
