package zcore

import (
	"bytes"
	"testing"
)

// cleanCore builds a Core whose pristine copy matches current memory
// exactly, so compress diffs contain only what the test writes. LoadCore
// isn't used because header stamping would otherwise show up in the diff.
func cleanCore(dynamicSize uint16, totalSize uint32) Core {
	mem := make([]uint8, totalSize)
	pristine := make([]uint8, totalSize)
	return Core{
		bytes:            mem,
		pristine:         pristine,
		Version:          3,
		StaticMemoryBase: dynamicSize,
	}
}

func TestCompressEmptyDiff(t *testing.T) {
	core := cleanCore(0x1000, 0x2000)

	if len(core.Compress()) != 0 {
		t.Error("An untouched image should compress to nothing")
	}
}

func TestCompressZeroRuns(t *testing.T) {
	core := cleanCore(0x1000, 0x2000)

	core.WriteByte(0x40, 0x01)
	core.WriteByte(0x43, 0x02)

	// 0x40 zero diffs, the value, a run of two zeros, the second value;
	// everything after 0x43 is a trailing run and omitted
	expected := []uint8{0x00, 0x3f, 0x01, 0x00, 0x01, 0x02}
	if !bytes.Equal(core.Compress(), expected) {
		t.Errorf("Unexpected diff %v", core.Compress())
	}
}

func TestCompressRestoreRoundTrip(t *testing.T) {
	core := cleanCore(0x1000, 0x2000)

	writes := map[uint32]uint8{0x200: 0xfc, 0x280: 0x10, 0x300: 0xfd, 0xfff: 0x99}
	for addr, value := range writes {
		core.WriteByte(addr, value)
	}

	diff := core.Compress()

	// Scribble over dynamic memory then restore from the diff
	for addr := uint32(0x40); addr < 0x1000; addr++ {
		core.bytes[addr] = 0xee
	}

	if !core.RestoreCompressed(diff) {
		t.Fatal("RestoreCompressed failed")
	}

	for addr, value := range writes {
		if core.ReadByte(addr) != value {
			t.Errorf("Address %#x restored to %#x, want %#x", addr, core.ReadByte(addr), value)
		}
	}
	if core.ReadByte(0x250) != 0 {
		t.Error("Unmodified byte should restore to its pristine value")
	}
}

func TestCompressLongZeroRun(t *testing.T) {
	core := cleanCore(0x1000, 0x2000)

	core.WriteByte(0x40, 0x01)
	core.WriteByte(0x400, 0x02) // 0x3bf zero diffs between the two writes

	diff := core.Compress()

	// Runs cap at 256: the 0x3bf zeros between the writes split 256+256+256+191
	expected := []uint8{0x00, 0x3f, 0x01, 0x00, 0xff, 0x00, 0xff, 0x00, 0xff, 0x00, 0xbe, 0x02}
	if !bytes.Equal(diff, expected) {
		t.Errorf("Unexpected diff %v", diff)
	}

	if !core.RestoreCompressed(diff) {
		t.Fatal("RestoreCompressed failed")
	}
	if core.ReadByte(0x400) != 0x02 {
		t.Error("Long zero run did not round trip")
	}
}

func TestRestoreCompressedOverrun(t *testing.T) {
	core := cleanCore(0x1000, 0x2000)

	overrun := make([]uint8, 0x1001)
	for i := range overrun {
		overrun[i] = 1
	}

	if core.RestoreCompressed(overrun) {
		t.Error("A diff longer than dynamic memory should be rejected")
	}
}
