package zmachine

import (
	"encoding/binary"
	"testing"
)

// testMachine builds a machine over a synthetic story image. Dynamic
// memory runs to 0x1000; the default first instruction sits at 0x1100.
func testMachine(version uint8, setup func(mem []uint8)) *ZMachine {
	mem := make([]uint8, 0x2000)
	mem[0x00] = version
	binary.BigEndian.PutUint16(mem[0x06:], 0x1100) // initial pc
	binary.BigEndian.PutUint16(mem[0x08:], 0x1800) // dictionary
	binary.BigEndian.PutUint16(mem[0x0a:], 0x0100) // object table
	binary.BigEndian.PutUint16(mem[0x0c:], 0x0900) // globals
	binary.BigEndian.PutUint16(mem[0x0e:], 0x1000) // static base
	binary.BigEndian.PutUint16(mem[0x18:], 0x0200) // abbreviations

	if setup != nil {
		setup(mem)
	}

	return LoadRom(mem, nil, nil, nil)
}

func expectFatal(t *testing.T, kind ErrorKind) {
	t.Helper()
	r := recover()
	if r == nil {
		t.Fatalf("Expected a fatal %s error", kind)
	}
	if err, ok := r.(MachineError); !ok || err.Kind != kind {
		t.Fatalf("Expected %s, got %v", kind, r)
	}
}

func TestCallAndReturn(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		binary.BigEndian.PutUint16(mem[0x06:], 0x0401)

		// Routine at 0x600: 15 locals initialised 1..15
		mem[0x600] = 15
		for i := uint16(1); i <= 15; i++ {
			binary.BigEndian.PutUint16(mem[0x5ff+2*int(i):], i)
		}

		// call 0x300 (-> 0x600), args 0x12, 0x3456, 0xabcd, store to stack
		copy(mem[0x401:], []uint8{0xe0, 0x00, 0x03, 0x00, 0x00, 0x12, 0x34, 0x56, 0xab, 0xcd, 0x00})
	})

	z.StepMachine()

	frame := z.callStack.peek()
	if frame.pc != 0x61f {
		t.Errorf("New frame pc %#x, want 0x61f", frame.pc)
	}
	if frame.returnAddress != 0x40c {
		t.Errorf("Return address %#x, want 0x40c", frame.returnAddress)
	}
	if frame.numValuesPassed != 3 {
		t.Errorf("Argument count %d, want 3", frame.numValuesPassed)
	}

	expectedLocals := []uint16{0x12, 0x3456, 0xabcd, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	for i, want := range expectedLocals {
		if frame.locals[i] != want {
			t.Errorf("Local %d is %#x, want %#x", i+1, frame.locals[i], want)
		}
	}

	z.retValue(0xf0ad)
	if got := z.readVariable(0, false); got != 0xf0ad {
		t.Errorf("Caller stack top %#x, want 0xf0ad", got)
	}
	if z.callStack.peek().pc != 0x40c {
		t.Errorf("Caller resumes at %#x, want 0x40c", z.callStack.peek().pc)
	}
}

func TestCallPackedZeroStoresZero(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// call 0 with store to stack
		copy(mem[0x1100:], []uint8{0xe0, 0x3f, 0x00, 0x00})
	})

	z.StepMachine()

	if z.callStack.depth() != 1 {
		t.Error("Call of packed 0 must not push a frame")
	}
	if z.readVariable(0, false) != 0 {
		t.Error("Call of packed 0 stores 0")
	}
}

func TestCallV5LocalsStartZero(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		mem[0x1200] = 3 // three locals, no initial values on v5
		// call_vs packed 0x480 (-> 0x1200), one arg 0x7, store to stack
		copy(mem[0x1100:], []uint8{0xe0, 0x0f, 0x04, 0x80, 0x00, 0x07, 0x00})
	})

	z.StepMachine()

	frame := z.callStack.peek()
	if frame.pc != 0x1201 {
		t.Errorf("v5 routine body starts right after the count byte, pc %#x", frame.pc)
	}
	if frame.locals[0] != 7 || frame.locals[1] != 0 || frame.locals[2] != 0 {
		t.Errorf("v5 locals %v, want [7 0 0]", frame.locals)
	}
}

var arithmeticTests = []struct {
	name   string
	opcode uint8
	a, b   uint16
	result uint16
}{
	{"add wraps", 0xd4, 0x7fff, 0x0001, 0x8000},
	{"add", 0xd4, 2, 3, 5},
	{"sub wraps", 0xd5, 0x0000, 0x0001, 0xffff},
	{"mul wraps", 0xd6, 0x4000, 0x0004, 0x0000},
	{"div signed", 0xd7, 0xfff9, 0x0002, 0xfffd},  // -7 / 2 = -3
	{"mod signed", 0xd8, 0xfff9, 0x0002, 0xffff},  // -7 % 2 = -1
	{"div negative divisor", 0xd7, 0x000d, 0xfffd, 0xfffc}, // 13 / -3 = -4
	{"or", 0xc8, 0xf0f0, 0x0f0f, 0xffff},
	{"and", 0xc9, 0xf0f0, 0xff00, 0xf000},
}

func TestArithmetic(t *testing.T) {
	for _, tt := range arithmeticTests {
		t.Run(tt.name, func(t *testing.T) {
			z := testMachine(3, func(mem []uint8) {
				// VAR-form 2OP with two large constants, store to stack
				mem[0x1100] = tt.opcode
				mem[0x1101] = 0x0f
				binary.BigEndian.PutUint16(mem[0x1102:], tt.a)
				binary.BigEndian.PutUint16(mem[0x1104:], tt.b)
				mem[0x1106] = 0x00
			})

			z.StepMachine()

			if got := z.readVariable(0, false); got != tt.result {
				t.Errorf("Result %#x, want %#x", got, tt.result)
			}
		})
	}
}

func TestDivisionByZeroIsFatal(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xd7, 0x0f, 0x00, 0x08, 0x00, 0x00, 0x00})
	})

	defer expectFatal(t, ErrDivisionByZero)
	z.StepMachine()
}

func TestBranchTaken(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// jz 0, branch on true with single byte offset 5
		copy(mem[0x1100:], []uint8{0x90, 0x00, 0xc5})
	})

	z.StepMachine()

	// next address 0x1103 + 5 - 2
	if pc := z.callStack.peek().pc; pc != 0x1106 {
		t.Errorf("Branch target %#x, want 0x1106", pc)
	}
}

func TestBranchNotTakenFallsThrough(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// jz 7 does not branch
		copy(mem[0x1100:], []uint8{0x90, 0x07, 0xc5})
	})

	z.StepMachine()

	if pc := z.callStack.peek().pc; pc != 0x1103 {
		t.Errorf("Fall through pc %#x, want 0x1103", pc)
	}
}

func TestBranchSentinelReturnsValue(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// Routine at 0x600 with no locals: jz 0 with "return true" sentinel
		mem[0x600] = 0
		copy(mem[0x601:], []uint8{0x90, 0x00, 0xc1})
		// call 0x300, store to stack
		copy(mem[0x1100:], []uint8{0xe0, 0x1f, 0x03, 0x00, 0x00, 0x00})
	})

	z.StepMachine() // call
	z.StepMachine() // jz -> return true

	if z.callStack.depth() != 1 {
		t.Error("Sentinel branch should have returned from the routine")
	}
	if z.readVariable(0, false) != 1 {
		t.Error("Sentinel 1 returns true")
	}
}

func TestBranchNegativeOffset(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// jz 0 with 14-bit offset -10: sense=on-true, two byte form
		// raw 14-bit value for -10 is 0x3ff6
		copy(mem[0x1100:], []uint8{0x90, 0x00, 0xbf, 0xf6})
	})

	z.StepMachine()

	// next address 0x1104 - 10 - 2 = 0x10f8
	if pc := z.callStack.peek().pc; pc != 0x10f8 {
		t.Errorf("Backward branch target %#x, want 0x10f8", pc)
	}
}

func TestJumpBackwards(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// jump with large constant -0x20
		copy(mem[0x1100:], []uint8{0x8c, 0xff, 0xe0})
	})

	z.StepMachine()

	// 0x1103 - 0x20 - 2
	if pc := z.callStack.peek().pc; pc != 0x10e1 {
		t.Errorf("Jump target %#x, want 0x10e1", pc)
	}
}

func TestIndirectStackReference(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// inc sp: reads and writes the stack top in place
		copy(mem[0x1100:], []uint8{0x95, 0x00})
	})

	z.callStack.peek().push(5)
	z.StepMachine()

	frame := z.callStack.peek()
	if len(frame.routineStack) != 1 {
		t.Fatalf("Indirect reference must not change stack depth, got %d", len(frame.routineStack))
	}
	if frame.routineStack[0] != 6 {
		t.Errorf("Stack top %d, want 6", frame.routineStack[0])
	}
}

func TestPullToGlobal(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// push 0x1234 then pull g0 (variable 16)
		copy(mem[0x1100:], []uint8{0xe8, 0x3f, 0x12, 0x34})
		copy(mem[0x1104:], []uint8{0xe9, 0x7f, 0x10})
	})

	z.StepMachine()
	z.StepMachine()

	if got := z.readVariable(16, false); got != 0x1234 {
		t.Errorf("Global 0 is %#x, want 0x1234", got)
	}
}

func TestStackUnderflowIsFatal(t *testing.T) {
	z := testMachine(3, nil)

	defer expectFatal(t, ErrStackUnderflow)
	z.readVariable(0, false)
}

func TestInvalidLocalIsFatal(t *testing.T) {
	z := testMachine(3, nil)

	defer expectFatal(t, ErrInvalidLocalVariable)
	z.readVariable(3, false)
}

func TestScanTableOpcode(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		copy(mem[0x300:], []uint8{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x55, 0x66})
		// scan_table 0x55, table 0x300, len 5, form 0x02 (byte scan stride 2)
		copy(mem[0x1100:], []uint8{0xf7, 0x05, 0x00, 0x55, 0x03, 0x00, 0x05, 0x02, 0x00, 0xd0})
	})

	z.StepMachine()

	if got := z.readVariable(0, false); got != 0x304 {
		t.Errorf("scan_table stored %#x, want 0x304", got)
	}
	// branch taken: next address 0x110a + 0x10 - 2
	if pc := z.callStack.peek().pc; pc != 0x1118 {
		t.Errorf("scan_table branch target %#x, want 0x1118", pc)
	}
}

func TestScanTableOpcodeMiss(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		copy(mem[0x300:], []uint8{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x55, 0x66})
		// scan_table 0x66 never matches on stride 2
		copy(mem[0x1100:], []uint8{0xf7, 0x05, 0x00, 0x66, 0x03, 0x00, 0x05, 0x02, 0x00, 0xd0})
	})

	z.StepMachine()

	if got := z.readVariable(0, false); got != 0 {
		t.Errorf("scan_table stored %#x, want 0", got)
	}
	if pc := z.callStack.peek().pc; pc != 0x110a {
		t.Errorf("scan_table should fall through to %#x, got %#x", 0x110a, pc)
	}
}

func TestPredictableRNG(t *testing.T) {
	z := testMachine(3, nil)

	z.rng.SeedPredictable(5)

	expected := []uint16{1, 2, 3, 4, 5, 1, 2, 3, 4, 5, 1}
	for i, want := range expected {
		if got := z.rng.Next(50); got != want {
			t.Fatalf("Call %d returned %d, want %d", i, got, want)
		}
	}
}

func TestRandomOpcodeModes(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// random -5 (enter predictable mode), store to stack
		copy(mem[0x1100:], []uint8{0xe7, 0x3f, 0xff, 0xfb, 0x00})
		// random 50, store to stack
		copy(mem[0x1105:], []uint8{0xe7, 0x3f, 0x00, 0x32, 0x00})
	})

	z.StepMachine()
	if got := z.readVariable(0, false); got != 0 {
		t.Errorf("random with a negative operand returns 0, got %d", got)
	}

	z.StepMachine()
	if got := z.readVariable(0, false); got != 1 {
		t.Errorf("First predictable value should be 1, got %d", got)
	}
}

func TestRandomInRange(t *testing.T) {
	z := testMachine(3, nil)
	z.rng.Seed(42)

	for i := 0; i < 100; i++ {
		v := z.rng.Next(10)
		if v < 1 || v > 10 {
			t.Fatalf("Value %d out of 1..10", v)
		}
	}
}

func TestThrowUnwindsFrames(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		// throw value 0xbeef to the frame where catch saw depth 2
		copy(mem[0x1100:], []uint8{0xdc, 0x1f, 0xbe, 0xef, 0x02})
	})

	// Two extra frames; the first stores to the stack of the bottom frame
	z.callStack.push(CallStackFrame{pc: 0x1100, returnAddress: 0x1400, hasStore: true, storeVariable: 0})
	z.callStack.push(CallStackFrame{pc: 0x1100, returnAddress: 0x1500})

	z.StepMachine()

	if z.callStack.depth() != 1 {
		t.Fatalf("Throw should leave 1 frame, got %d", z.callStack.depth())
	}
	if z.readVariable(0, false) != 0xbeef {
		t.Error("Throw should return the value through frame 1's store")
	}
	if z.callStack.peek().pc != 0x1400 {
		t.Errorf("Caller resumes at %#x, want 0x1400", z.callStack.peek().pc)
	}
}

func TestCatchStoresFrameCount(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xb9, 0x00}) // catch, store to stack
	})

	z.callStack.push(CallStackFrame{pc: 0x1100})

	z.StepMachine()

	if got := z.readVariable(0, false); got != 2 {
		t.Errorf("Catch stored %d, want 2", got)
	}
}

func TestShifts(t *testing.T) {
	z := testMachine(5, nil)

	if z.shift(0x0001, 3, false) != 0x0008 {
		t.Error("log_shift left failed")
	}
	if z.shift(0x8000, -15, false) != 0x0001 {
		t.Error("log_shift right must zero fill")
	}
	if z.shift(0x8000, -1, true) != 0xc000 {
		t.Error("art_shift right must sign extend")
	}
	if z.shift(0x1234, 16, false) != 0x1234 {
		t.Error("Shift by 16 is undefined and returns the input")
	}
	if z.shift(0x1234, -16, true) != 0x1234 {
		t.Error("Shift by -16 is undefined and returns the input")
	}
}

func TestShiftOpcodes(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		// log_shift 0x8000 >> 4, store to stack
		copy(mem[0x1100:], []uint8{0xbe, 0x02, 0x0f, 0x80, 0x00, 0xff, 0xfc, 0x00})
		// art_shift 0x8000 >> 4, store to stack
		copy(mem[0x1108:], []uint8{0xbe, 0x03, 0x0f, 0x80, 0x00, 0xff, 0xfc, 0x00})
	})

	z.StepMachine()
	if got := z.readVariable(0, false); got != 0x0800 {
		t.Errorf("log_shift gave %#x, want 0x0800", got)
	}

	z.StepMachine()
	if got := z.readVariable(0, false); got != 0xf800 {
		t.Errorf("art_shift gave %#x, want 0xf800", got)
	}
}

func TestNotOpcodeByVersion(t *testing.T) {
	// 1OP:0x0f is not on v3...
	z3 := testMachine(3, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0x8f, 0xf0, 0xf0, 0x00})
	})
	z3.StepMachine()
	if got := z3.readVariable(0, false); got != 0x0f0f {
		t.Errorf("v3 not gave %#x, want 0x0f0f", got)
	}

	// ...and call_1n on v5
	z5 := testMachine(5, func(mem []uint8) {
		mem[0x1200] = 0
		mem[0x1201] = 0xb0 // rtrue
		copy(mem[0x1100:], []uint8{0x8f, 0x04, 0x80}) // call_1n 0x480 -> 0x1200
	})
	z5.StepMachine()
	if z5.callStack.depth() != 2 {
		t.Fatal("v5 1OP:0x0f should be call_1n")
	}
	if z5.callStack.peek().hasStore {
		t.Error("call_1n must not store")
	}
}

func TestVerifyBranches(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// verify, branch on true offset 5
		copy(mem[0x1100:], []uint8{0xbd, 0xc5})
		// Stamp the matching checksum into the header
		sum := uint16(0)
		for _, b := range mem[0x40:] {
			sum += uint16(b)
		}
		binary.BigEndian.PutUint16(mem[0x1c:], sum)
	})

	z.StepMachine()

	if pc := z.callStack.peek().pc; pc != 0x1105 {
		t.Errorf("verify should branch on a matching checksum, pc %#x", pc)
	}
}

func TestPiracyBranchesTrue(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xbf, 0xc5})
	})

	z.StepMachine()

	if pc := z.callStack.peek().pc; pc != 0x1105 {
		t.Errorf("piracy always branches, pc %#x", pc)
	}
}

func TestObjectTreeOpcodes(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		writeEntry := func(objId uint16, parent, sibling, child uint8, propertyTable uint16) {
			base := 0x100 + 62 + (int(objId)-1)*9
			mem[base+4] = parent
			mem[base+5] = sibling
			mem[base+6] = child
			binary.BigEndian.PutUint16(mem[base+7:], propertyTable)
		}
		writeEntry(1, 0, 0, 2, 0x280)
		writeEntry(2, 1, 3, 0, 0x288)
		writeEntry(3, 1, 0, 0, 0x290)
		writeEntry(4, 0, 0, 0, 0x298)
		for _, table := range []int{0x280, 0x288, 0x290, 0x298} {
			mem[table] = 0   // empty short name
			mem[table+1] = 0 // property terminator
		}
	})

	// insert_obj 3 into 4
	z.MoveObject(3, 4)

	if z.getObject(3).Parent != 4 || z.getObject(4).Child != 3 {
		t.Error("insert_obj did not relink parent/child")
	}
	if z.getObject(2).Sibling != 0 {
		t.Error("insert_obj left object 3 in its old sibling chain")
	}

	// Move 2 in as well: it becomes the new first child
	z.MoveObject(2, 4)
	if z.getObject(4).Child != 2 || z.getObject(2).Sibling != 3 {
		t.Error("insert_obj should push onto the head of the child list")
	}
	if z.getObject(1).Child != 0 {
		t.Error("Object 1 should have no children left")
	}

	z.RemoveObject(2)
	if z.getObject(2).Parent != 0 || z.getObject(2).Sibling != 0 {
		t.Error("remove_obj should clear parent and sibling")
	}
	if z.getObject(4).Child != 3 {
		t.Error("remove_obj should relink the former sibling as first child")
	}
}

func TestObjectTreeIntegrity(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		for objId := 1; objId <= 5; objId++ {
			base := 0x100 + 62 + (objId-1)*9
			table := 0x280 + (objId-1)*8
			binary.BigEndian.PutUint16(mem[base+7:], uint16(table))
			mem[table] = 0
			mem[table+1] = 0
		}
	})

	moves := []struct{ obj, dest uint16 }{
		{2, 1}, {3, 1}, {4, 1}, {5, 2}, {4, 2}, {3, 4}, {2, 1}, {5, 1},
	}
	for _, m := range moves {
		z.MoveObject(m.obj, m.dest)
	}

	// Every object with a parent appears exactly once in that parent's
	// child chain
	for objId := uint16(1); objId <= 5; objId++ {
		obj := z.getObject(objId)
		if obj.Parent == 0 {
			continue
		}
		seen := 0
		child := z.getObject(obj.Parent).Child
		for guard := 0; child != 0 && guard < 10; guard++ {
			if child == objId {
				seen++
			}
			child = z.getObject(child).Sibling
		}
		if seen != 1 {
			t.Errorf("Object %d appears %d times in its parent's child chain", objId, seen)
		}
	}
}

func TestMemoryStream(t *testing.T) {
	z := testMachine(5, nil)

	z.setOutputStream(3, 0x500)
	z.appendText("abc")
	z.setOutputStream(3, 0x600) // nested stream takes over
	z.appendText("xy")
	z.setOutputStream(-3, 0)

	if z.Core.ReadHalfWord(0x600) != 2 || z.Core.ReadByte(0x602) != 'x' || z.Core.ReadByte(0x603) != 'y' {
		t.Error("Nested stream 3 table wrong")
	}

	z.appendText("d")
	z.setOutputStream(-3, 0)

	if z.Core.ReadHalfWord(0x500) != 4 {
		t.Errorf("Outer stream 3 length %d, want 4", z.Core.ReadHalfWord(0x500))
	}
	if string([]uint8{z.Core.ReadByte(0x502), z.Core.ReadByte(0x503), z.Core.ReadByte(0x504), z.Core.ReadByte(0x505)}) != "abcd" {
		t.Error("Outer stream 3 content wrong")
	}
	if z.streams.Memory {
		t.Error("All memory streams should be closed")
	}
}

func TestDecoderStoreBranchTables(t *testing.T) {
	tests := []struct {
		name    string
		version uint8
		bytes   []uint8
		store   bool
		branch  bool
	}{
		{"v3 1OP not stores", 3, []uint8{0x8f, 0x01, 0x00}, true, false},
		{"v5 1OP call_1n bare", 5, []uint8{0x8f, 0x00}, false, false},
		{"v3 0OP save branches", 3, []uint8{0xb5, 0xc0}, false, true},
		{"v4 0OP save stores", 4, []uint8{0xb5, 0x00}, true, false},
		{"v3 sread no store", 3, []uint8{0xe4, 0xff}, false, false},
		{"v5 aread stores", 5, []uint8{0xe4, 0xff, 0x00}, true, false},
		{"v5 catch stores", 5, []uint8{0xb9, 0x00}, true, false},
		{"v3 0OP pop no store", 3, []uint8{0xb9}, false, false},
		{"v5 piracy branches", 5, []uint8{0xbf, 0xc0}, false, true},
		{"scan_table stores and branches", 5, []uint8{0xf7, 0xff, 0x00, 0xc0}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := testMachine(tt.version, func(mem []uint8) {
				copy(mem[0x1100:], tt.bytes)
			})

			opcode := z.ParseOpcode()

			if opcode.storePresent != tt.store {
				t.Errorf("storePresent = %v, want %v", opcode.storePresent, tt.store)
			}
			if opcode.branch.Present != tt.branch {
				t.Errorf("branch.Present = %v, want %v", opcode.branch.Present, tt.branch)
			}
		})
	}
}

func TestDecoderCallVs2EightOperands(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		// call_vs2 with two type bytes, 8 small constants 1..8, store
		copy(mem[0x1100:], []uint8{0xec, 0x55, 0x55, 1, 2, 3, 4, 5, 6, 7, 8, 0x00})
	})

	opcode := z.ParseOpcode()

	if len(opcode.operands) != 8 {
		t.Fatalf("Expected 8 operands, got %d", len(opcode.operands))
	}
	for i, v := range opcode.operands {
		if v != uint16(i+1) {
			t.Errorf("Operand %d is %d", i, v)
		}
	}
	if !opcode.storePresent {
		t.Error("call_vs2 stores")
	}
	if z.callStack.peek().pc != 0x1100+12 {
		t.Errorf("Decoder consumed wrong length, pc %#x", z.callStack.peek().pc)
	}
}

func TestDecoderVariableOperandsPopLeftToRight(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		// sub sp, sp -> stack pops left to right
		copy(mem[0x1100:], []uint8{0xd5, 0xaf, 0x00, 0x00, 0x00})
	})

	frame := z.callStack.peek()
	frame.push(10)
	frame.push(4)

	z.StepMachine()

	// First operand pops 4 (the top), second pops 10: 4 - 10 = -6
	if got := z.readVariable(0, false); got != 0xfffa {
		t.Errorf("Result %#x, want 0xfffa (operands must pop in order)", got)
	}
}

func TestRunReportsFatalErrors(t *testing.T) {
	outputChannel := make(chan any, 16)
	mem := make([]uint8, 0x2000)
	mem[0x00] = 3
	binary.BigEndian.PutUint16(mem[0x06:], 0x1100)
	binary.BigEndian.PutUint16(mem[0x08:], 0x1800)
	binary.BigEndian.PutUint16(mem[0x0a:], 0x0100)
	binary.BigEndian.PutUint16(mem[0x0c:], 0x0900)
	binary.BigEndian.PutUint16(mem[0x0e:], 0x1000)
	// 2OP opcode number 0 is unassigned
	copy(mem[0x1100:], []uint8{0x00, 0x00, 0x00})

	z := LoadRom(mem, nil, nil, outputChannel)
	z.Run()

	sawError := false
	for len(outputChannel) > 0 {
		if _, ok := (<-outputChannel).(RuntimeError); ok {
			sawError = true
		}
	}
	if !sawError {
		t.Error("A fatal decode error should surface as a RuntimeError message")
	}
}

func TestQuitStopsTheMachine(t *testing.T) {
	z := testMachine(3, func(mem []uint8) {
		mem[0x1100] = 0xba // quit
	})

	if z.StepMachine() {
		t.Error("Quit should stop the run loop")
	}
	if !z.stopped {
		t.Error("Quit should mark the machine stopped")
	}
}
