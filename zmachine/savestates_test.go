package zmachine

import (
	"testing"

	"github.com/davetcode/zeta/quetzal"
)

func TestCaptureApplyRoundTrip(t *testing.T) {
	z := testMachine(3, nil)

	z.writeVariable(16, 0x1111, false)
	z.callStack.push(CallStackFrame{
		pc:            0x700,
		returnAddress: 0x1105,
		hasStore:      true,
		storeVariable: 0x80,
		locals:        []uint16{0x1122, 0x3344},
		routineStack:  []uint16{0xaaaa},
		numValuesPassed: 2,
	})

	state := z.captureState(0x1234)

	// Wreck the live state, then restore
	z.writeVariable(16, 0x9999, false)
	z.callStack.pop(z)

	if !z.applyState(state) {
		t.Fatal("applyState failed")
	}

	if z.readVariable(16, false) != 0x1111 {
		t.Error("Dynamic memory did not round trip")
	}
	if z.callStack.depth() != 2 {
		t.Fatalf("Frame stack depth %d, want 2", z.callStack.depth())
	}

	frame := z.callStack.peek()
	if frame.pc != 0x1234 {
		t.Errorf("Top frame pc %#x, want the saved resume PC", frame.pc)
	}
	if !frame.hasStore || frame.storeVariable != 0x80 {
		t.Error("Store target did not round trip")
	}
	if frame.numValuesPassed != 2 {
		t.Errorf("Argument count %d, want 2", frame.numValuesPassed)
	}
	if len(frame.locals) != 2 || frame.locals[0] != 0x1122 {
		t.Error("Locals did not round trip")
	}
	if len(frame.routineStack) != 1 || frame.routineStack[0] != 0xaaaa {
		t.Error("Evaluation stack did not round trip")
	}
}

func TestApplyStateRejectsWrongStory(t *testing.T) {
	z := testMachine(3, nil)

	state := z.captureState(0x1234)
	state.ReleaseNumber++

	if z.applyState(state) {
		t.Error("A snapshot from a different release must be rejected")
	}
}

func TestApplyStatePreservesInterpreterHeaderFields(t *testing.T) {
	z := testMachine(3, nil)
	state := z.captureState(0x1234)

	// The player resizes the screen and toggles the transcript after the
	// save was taken
	z.Core.UpdateScreenSize(50, 132)
	z.Core.SetTranscriptBit(true)

	if !z.applyState(state) {
		t.Fatal("applyState failed")
	}

	if z.Core.FetchByte(0x20) != 50 || z.Core.FetchByte(0x21) != 132 {
		t.Error("Screen metrics must survive a restore")
	}
	if !z.Core.TranscriptBit() {
		t.Error("Flags2 must survive a restore")
	}
}

func TestUndoOpcodes(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xbe, 0x09, 0xff, 0x00}) // save_undo
		copy(mem[0x1104:], []uint8{0xbe, 0x0a, 0xff, 0x00}) // restore_undo
	})

	z.StepMachine()
	if got := z.readVariable(0, false); got != 1 {
		t.Fatalf("save_undo stored %d, want 1", got)
	}

	z.writeVariable(16, 0x5555, false)

	z.StepMachine()
	if got := z.readVariable(0, false); got != 2 {
		t.Fatalf("restore_undo should land 2 in the save_undo store, got %d", got)
	}
	if z.readVariable(16, false) != 0 {
		t.Error("restore_undo should roll dynamic memory back")
	}
	if pc := z.callStack.peek().pc; pc != 0x1104 {
		t.Errorf("Execution resumes after the save_undo store byte, pc %#x", pc)
	}
}

func TestRestoreUndoWithoutSnapshot(t *testing.T) {
	z := testMachine(5, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xbe, 0x0a, 0xff, 0x00})
	})

	z.StepMachine()

	if got := z.readVariable(0, false); got != 0xffff {
		t.Errorf("restore_undo with no snapshot stores -1, got %#x", got)
	}
}

func TestUndoStackIsBounded(t *testing.T) {
	z := testMachine(5, nil)

	for i := 0; i < maxUndoStates+5; i++ {
		z.UndoStates.push(z.captureState(uint32(i)))
	}

	if len(z.UndoStates.saveStates) != maxUndoStates {
		t.Errorf("Undo stack holds %d states, want %d", len(z.UndoStates.saveStates), maxUndoStates)
	}
	if z.UndoStates.pop().PC != uint32(maxUndoStates+4) {
		t.Error("The most recent snapshot should pop first")
	}
}

func TestSaveRestoreV3ThroughChannels(t *testing.T) {
	z, outputChannel, _, saveRestoreChannel := channelMachine(3, func(mem []uint8) {
		// save, branch on true offset 5; then a restore at the branch target
		copy(mem[0x1100:], []uint8{0xb5, 0xc5})
		copy(mem[0x1105:], []uint8{0xb6, 0xc5})
	})

	saveRestoreChannel <- SaveResponse{Success: true}
	z.StepMachine()

	if pc := z.callStack.peek().pc; pc != 0x1105 {
		t.Fatalf("Successful v3 save should branch, pc %#x", pc)
	}

	var savedData []uint8
	for len(outputChannel) > 0 {
		if save, ok := (<-outputChannel).(Save); ok {
			savedData = save.Data
		}
	}
	if savedData == nil {
		t.Fatal("Save request should carry the Quetzal blob")
	}
	if _, err := quetzal.Decode(savedData); err != nil {
		t.Fatalf("Save data is not valid Quetzal: %v", err)
	}

	// Mutate memory, then restore the save
	z.writeVariable(16, 0xdead, false)
	saveRestoreChannel <- RestoreResponse{Success: true, Data: savedData}
	z.StepMachine()

	if z.readVariable(16, false) != 0 {
		t.Error("Restore should roll dynamic memory back")
	}
	// The restored PC is the save's branch byte, re-run as successful:
	// same branch target as the original save
	if pc := z.callStack.peek().pc; pc != 0x1105 {
		t.Errorf("Restore should resume through the save branch, pc %#x", pc)
	}
}

func TestRestoreFailureFallsThrough(t *testing.T) {
	z, _, _, saveRestoreChannel := channelMachine(3, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xb6, 0xc5}) // restore, branch offset 5
	})

	saveRestoreChannel <- RestoreResponse{Success: false}
	z.StepMachine()

	if pc := z.callStack.peek().pc; pc != 0x1102 {
		t.Errorf("Failed v3 restore falls through, pc %#x", pc)
	}
}

func TestSaveV4Stores(t *testing.T) {
	z, _, _, saveRestoreChannel := channelMachine(4, func(mem []uint8) {
		copy(mem[0x1100:], []uint8{0xb5, 0x00}) // save, store to stack
	})

	saveRestoreChannel <- SaveResponse{Success: true}
	z.StepMachine()

	if got := z.readVariable(0, false); got != 1 {
		t.Errorf("v4 save stores 1 on success, got %d", got)
	}
}

func TestSaveStateEncodesAsQuetzal(t *testing.T) {
	z := testMachine(3, nil)
	z.writeVariable(16, 0xbeef, false)

	data := z.captureState(0x9876).Encode()
	state, err := quetzal.Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	if state.PC != 0x9876 {
		t.Errorf("PC %#x, want 0x9876", state.PC)
	}
	if state.ReleaseNumber != z.Core.ReleaseNumber {
		t.Error("Release number mismatch")
	}
	if state.Frames[0].ReturnAddress != 0 {
		t.Error("The bottom frame's return address is 0")
	}

	// The CMem diff must reconstruct the written global
	if !z.Core.RestoreCompressed(state.CompressedMemory) {
		t.Fatal("CMem did not apply")
	}
	if z.readVariable(16, false) != 0xbeef {
		t.Error("CMem did not reproduce dynamic memory")
	}
}
