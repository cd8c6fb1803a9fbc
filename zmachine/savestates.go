package zmachine

import (
	"github.com/davetcode/zeta/quetzal"
)

// Undo snapshots kept in memory; the oldest falls off the end. The
// standard only obliges one level but modern games lean on more.
const maxUndoStates = 10

type InMemorySaveStateCache struct {
	saveStates []*quetzal.State
}

func (c *InMemorySaveStateCache) push(state *quetzal.State) {
	c.saveStates = append(c.saveStates, state)
	if len(c.saveStates) > maxUndoStates {
		c.saveStates = c.saveStates[1:]
	}
}

func (c *InMemorySaveStateCache) pop() *quetzal.State {
	if len(c.saveStates) == 0 {
		return nil
	}
	state := c.saveStates[len(c.saveStates)-1]
	c.saveStates = c.saveStates[:len(c.saveStates)-1]
	return state
}

// captureState snapshots the machine as a Quetzal state. resumePC is the
// address of the save instruction's branch byte (v3) or store byte (v4+),
// where execution resumes after a successful restore.
func (z *ZMachine) captureState(resumePC uint32) *quetzal.State {
	state := &quetzal.State{
		ReleaseNumber:    z.Core.ReleaseNumber,
		Checksum:         z.Core.FileChecksum,
		PC:               resumePC,
		CompressedMemory: z.Core.Compress(),
	}
	copy(state.Serial[:], z.Core.Serial())

	state.Frames = make([]quetzal.Frame, len(z.callStack.frames))
	for fx := range z.callStack.frames {
		frame := &z.callStack.frames[fx]

		qf := quetzal.Frame{
			ReturnAddress: frame.returnAddress,
			HasStore:      frame.hasStore,
			StoreVariable: frame.storeVariable,
			ArgumentsMask: uint8(1<<frame.numValuesPassed) - 1,
			Locals:        make([]uint16, len(frame.locals)),
			Stack:         make([]uint16, len(frame.routineStack)),
		}
		copy(qf.Locals, frame.locals)
		copy(qf.Stack, frame.routineStack)

		state.Frames[fx] = qf
	}

	return state
}

// applyState replaces dynamic memory and the frame stack from a snapshot.
// Flags2, the default colours and the screen metric header fields survive
// the replacement - the save does not own them.
func (z *ZMachine) applyState(state *quetzal.State) bool {
	if state.ReleaseNumber != z.Core.ReleaseNumber ||
		state.Checksum != z.Core.FileChecksum ||
		string(state.Serial[:]) != string(z.Core.Serial()) {
		z.warn("Warning: save file is for a different story (release %d, serial %s)", state.ReleaseNumber, state.Serial[:])
		return false
	}

	var preserved [0x40]uint8
	for _, addr := range headerPreservedAddresses {
		preserved[addr] = z.Core.FetchByte(uint32(addr))
	}

	if state.UncompressedMemory != nil {
		if !z.Core.SetDynamicMemory(state.UncompressedMemory) {
			z.warn("Warning: UMem chunk length does not match dynamic memory")
			return false
		}
	} else {
		if !z.Core.RestoreCompressed(state.CompressedMemory) {
			z.warn("Warning: CMem chunk overruns dynamic memory")
			return false
		}
	}

	for _, addr := range headerPreservedAddresses {
		z.Core.PutHeaderByte(uint32(addr), preserved[addr])
	}

	z.callStack = CallStack{frames: make([]CallStackFrame, len(state.Frames))}
	for fx, qf := range state.Frames {
		frame := CallStackFrame{
			returnAddress:   qf.ReturnAddress,
			hasStore:        qf.HasStore,
			storeVariable:   qf.StoreVariable,
			numValuesPassed: argumentCount(qf.ArgumentsMask),
			locals:          make([]uint16, len(qf.Locals)),
			routineStack:    make([]uint16, len(qf.Stack)),
		}
		copy(frame.locals, qf.Locals)
		copy(frame.routineStack, qf.Stack)
		z.callStack.frames[fx] = frame
	}
	z.callStack.peek().pc = state.PC

	return true
}

// Flags2, default colours, screen metrics and fonts are interpreter state,
// re-applied across a restore.
var headerPreservedAddresses = []uint8{
	0x10, 0x11, // Flags2
	0x20, 0x21, 0x22, 0x23, 0x24, 0x25, // screen metrics
	0x26, 0x27, // font metrics
	0x2c, 0x2d, // default colours
}

func argumentCount(mask uint8) int {
	count := 0
	for mask != 0 {
		count++
		mask >>= 1
	}
	return count
}

// resumeFromRestore re-applies the save instruction's store or branch at
// the restored PC with the given success value (2 for restore, 2 for
// restore_undo).
func (z *ZMachine) resumeFromRestore(result uint16) {
	frame := z.callStack.peek()
	if z.Core.Version <= 3 {
		branch := z.parseBranch(frame)
		z.executeBranch(branch, true)
	} else {
		storeVariable := z.readIncPC(frame)
		z.writeVariable(storeVariable, result, false)
	}
}

// saveGame implements the save opcode: v1-3 branch on success, v4+ store
// 1/0. The front-end owns the file.
func (z *ZMachine) saveGame(opcode *Opcode) {
	resumePC := opcode.storeAddress
	if z.Core.Version <= 3 {
		resumePC = opcode.branchAddress
	}

	success := false
	if z.outputChannel != nil {
		z.outputChannel <- Save{Prompt: true, Data: z.captureState(resumePC).Encode()}
		if response, ok := (<-z.saveRestoreChannel).(SaveResponse); ok {
			success = response.Success
		}
	}

	if z.Core.Version <= 3 {
		z.handleBranch(opcode, success)
	} else if success {
		z.storeResult(opcode, 1)
	} else {
		z.storeResult(opcode, 0)
	}
}

// restoreGame never returns a value in the normal sense: on success the PC
// comes from the save file and the save instruction's own store/branch is
// re-applied there with the value 2.
func (z *ZMachine) restoreGame(opcode *Opcode) {
	var data []uint8
	if z.outputChannel != nil {
		z.outputChannel <- Restore{Prompt: true}
		if response, ok := (<-z.saveRestoreChannel).(RestoreResponse); ok && response.Success {
			data = response.Data
		}
	}

	applied := false
	if data != nil {
		state, err := quetzal.Decode(data)
		if err != nil {
			z.warn("Warning: unreadable save file: %v", err)
		} else {
			applied = z.applyState(state)
		}
	}

	if applied {
		z.resumeFromRestore(2)
		return
	}

	if z.Core.Version <= 3 {
		z.handleBranch(opcode, false)
	} else {
		z.storeResult(opcode, 0)
	}
}

// saveAuxiliary / restoreAuxiliary implement the v5+ table form of
// save/restore: raw bytes rather than a Quetzal state.
func (z *ZMachine) saveAuxiliary(opcode *Opcode, table uint32, numBytes uint32, nameAddr uint32) {
	success := false
	if z.outputChannel != nil {
		data := make([]uint8, numBytes)
		copy(data, z.Core.ReadSlice(table, table+numBytes))
		z.outputChannel <- Save{Prompt: true, Filename: z.readFilename(nameAddr), Data: data, NumBytes: numBytes}
		if response, ok := (<-z.saveRestoreChannel).(SaveResponse); ok {
			success = response.Success
		}
	}

	if success {
		z.storeResult(opcode, 1)
	} else {
		z.storeResult(opcode, 0)
	}
}

func (z *ZMachine) restoreAuxiliary(opcode *Opcode, table uint32, numBytes uint32, nameAddr uint32) {
	loaded := uint16(0)
	if z.outputChannel != nil {
		z.outputChannel <- Restore{Prompt: true, Filename: z.readFilename(nameAddr), NumBytes: numBytes}
		if response, ok := (<-z.saveRestoreChannel).(RestoreResponse); ok && response.Success {
			data := response.Data
			if uint32(len(data)) > numBytes {
				data = data[:numBytes]
			}
			for i, b := range data {
				z.Core.WriteByte(table+uint32(i), b)
			}
			loaded = uint16(len(data))
		}
	}

	z.storeResult(opcode, loaded)
}

// readFilename reads a length-prefixed ASCII string (not a z-string).
func (z *ZMachine) readFilename(address uint32) string {
	if address == 0 {
		return ""
	}

	length := z.Core.ReadByte(address)
	bytes := make([]uint8, length)
	for i := range bytes {
		bytes[i] = z.Core.ReadByte(address + 1 + uint32(i))
	}
	return string(bytes)
}

func (z *ZMachine) saveUndo(opcode *Opcode) {
	z.UndoStates.push(z.captureState(opcode.storeAddress))
	z.storeResult(opcode, 1)
}

func (z *ZMachine) restoreUndo(opcode *Opcode) {
	state := z.UndoStates.pop()
	if state == nil {
		z.storeResult(opcode, 0xFFFF) // -1: nothing to restore
		return
	}

	if !z.applyState(state) {
		z.storeResult(opcode, 0)
		return
	}

	z.resumeFromRestore(2)
}
