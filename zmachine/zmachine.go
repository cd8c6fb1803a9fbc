package zmachine

import (
	"fmt"
	"strconv"

	"github.com/davetcode/zeta/dictionary"
	"github.com/davetcode/zeta/zcore"
	"github.com/davetcode/zeta/zobject"
	"github.com/davetcode/zeta/zstring"
	"github.com/davetcode/zeta/ztable"
)

type ZMachine struct {
	callStack   CallStack
	Core        zcore.Core
	dictionary  *dictionary.Dictionary
	screenModel ScreenModel
	streams     Streams
	rng         rng
	Alphabets   *zstring.Alphabets
	UndoStates  InMemorySaveStateCache

	outputChannel      chan<- any
	inputChannel       <-chan InputResponse
	saveRestoreChannel <-chan SaveRestoreResponse

	pendingSoundRoutine  uint16
	interruptResult      uint16
	stopped              bool
	currentInstructionPC uint32
	seenWarnings         map[string]bool
}

func LoadRom(storyFile []uint8, inputChannel <-chan InputResponse, saveRestoreChannel <-chan SaveRestoreResponse, outputChannel chan<- any) *ZMachine {
	machine := ZMachine{
		Core:               zcore.LoadCore(storyFile),
		inputChannel:       inputChannel,
		outputChannel:      outputChannel,
		saveRestoreChannel: saveRestoreChannel,
		streams: Streams{
			Screen: true,
		},
		rng: newRNG(),
	}

	machine.Core.OnTranscriptToggle = machine.transcriptToggled

	// Custom alphabets only exist on v5+, LoadAlphabets falls back to the
	// defaults everywhere else
	machine.Alphabets = zstring.LoadAlphabets(&machine.Core)

	// The game dictionary lives in static memory so parsing it once is safe
	machine.dictionary = dictionary.ParseDictionary(uint32(machine.Core.DictionaryBase), &machine.Core, machine.Alphabets)

	machine.Core.SetDefaultBackgroundColorNumber(2) // black
	machine.Core.SetDefaultForegroundColorNumber(9) // white
	machine.screenModel = newScreenModel(White, Black)

	machine.callStack.push(machine.initialFrame())

	return &machine
}

func (z *ZMachine) initialFrame() CallStackFrame {
	return CallStackFrame{
		pc:           uint32(z.Core.FirstInstruction),
		locals:       make([]uint16, 0),
		routineStack: make([]uint16, 0),
	}
}

// SetRandomSeed forces a reproducible sequence, e.g. from configuration or
// a regression harness.
func (z *ZMachine) SetRandomSeed(seed uint64) {
	z.rng.Seed(seed)
}

func (z *ZMachine) packedAddress(originalAddress uint32, isZString bool) uint32 {
	switch {
	case z.Core.Version < 4:
		return 2 * originalAddress
	case z.Core.Version < 6:
		return 4 * originalAddress
	case z.Core.Version == 7:
		offset := z.Core.RoutinesOffset
		if isZString {
			offset = z.Core.StringOffset
		}
		return 4*originalAddress + 8*uint32(offset)
	case z.Core.Version == 8:
		return 8 * originalAddress
	default:
		z.fatal(ErrUnsupportedVersion, "no packed address form for version %d", z.Core.Version)
		return 0
	}
}

// readVariable reads variable 0 (stack, pops), 1-15 (locals) or 16+
// (globals). Indirect references read the stack top in place instead of
// popping, per the seven indirect-reference opcodes.
func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0:
		if indirect {
			return currentCallFrame.peekStack(z)
		}
		return currentCallFrame.pop(z)
	case variable < 16:
		if int(variable) > len(currentCallFrame.locals) {
			z.fatal(ErrInvalidLocalVariable, "read of local %d with %d in scope", variable, len(currentCallFrame.locals))
		}
		return currentCallFrame.locals[variable-1]
	default:
		return z.Core.ReadHalfWord(uint32(z.Core.GlobalVariableBase) + 2*(uint32(variable)-16))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0:
		// Indirect writes replace the stack top without changing depth
		if indirect {
			_ = currentCallFrame.pop(z)
		}
		currentCallFrame.push(value)
	case variable < 16:
		if int(variable) > len(currentCallFrame.locals) {
			z.fatal(ErrInvalidLocalVariable, "write of local %d with %d in scope", variable, len(currentCallFrame.locals))
		}
		currentCallFrame.locals[variable-1] = value
	default:
		z.Core.WriteHalfWord(uint32(z.Core.GlobalVariableBase)+2*(uint32(variable)-16), value)
	}
}

func (z *ZMachine) storeResult(opcode *Opcode, value uint16) {
	if opcode.storePresent {
		z.writeVariable(opcode.storeVariable, value, false)
	}
}

// call pushes a new frame for the routine at the packed address in operand
// 0. Calling packed address 0 stores 0 and does nothing else. Locals start
// from the header initial values on v1-4 and zero on v5+; the leading
// locals are overwritten by arguments, excess arguments are dropped.
func (z *ZMachine) call(opcode *Opcode) {
	routineAddress := z.packedAddress(uint32(opcode.operands[0]), false)

	if routineAddress == 0 {
		z.storeResult(opcode, 0)
		return
	}

	localVariableCount := z.Core.FetchByte(routineAddress)
	if localVariableCount > 15 {
		z.fatal(ErrInvalidInstruction, "routine at %#x claims %d locals", routineAddress, localVariableCount)
	}

	pc := routineAddress + 1
	locals := make([]uint16, localVariableCount)
	if z.Core.Version < 5 {
		for i := range locals {
			locals[i] = z.Core.FetchHalfWord(pc)
			pc += 2
		}
	}

	arguments := opcode.operands[1:]
	for i := 0; i < len(locals) && i < len(arguments); i++ {
		locals[i] = arguments[i]
	}

	z.callStack.push(CallStackFrame{
		entryAddress:    routineAddress,
		pc:              pc,
		returnAddress:   z.callStack.peek().pc,
		locals:          locals,
		routineStack:    make([]uint16, 0),
		numValuesPassed: len(arguments),
		hasStore:        opcode.storePresent,
		storeVariable:   opcode.storeVariable,
	})
}

// retValue pops the top frame and resumes the caller. Interrupt frames
// divert the value into the interrupt result slot instead of storing it.
func (z *ZMachine) retValue(val uint16) {
	oldFrame := z.callStack.pop(z)
	newFrame := z.callStack.peek()
	newFrame.pc = oldFrame.returnAddress

	switch {
	case oldFrame.readInterrupt:
		z.interruptResult = val
	case oldFrame.soundInterrupt:
		// sound interrupts return to normal execution, value dropped
	case oldFrame.hasStore:
		z.writeVariable(oldFrame.storeVariable, val, false)
	}
}

func (z *ZMachine) executeBranch(branch BranchInfo, result bool) {
	if result != branch.OnTrue {
		return
	}

	switch branch.Offset {
	case 0:
		z.retValue(0)
	case 1:
		z.retValue(1)
	default:
		frame := z.callStack.peek()
		frame.pc = uint32(int32(frame.pc) + int32(branch.Offset) - 2)
	}
}

func (z *ZMachine) handleBranch(opcode *Opcode, result bool) {
	if !opcode.branch.Present {
		z.fatal(ErrInvalidInstruction, "opcode %#x has no branch field", opcode.opcodeByte)
	}
	z.executeBranch(opcode.branch, result)
}

func (z *ZMachine) getObject(objId uint16) zobject.Object {
	return zobject.GetObject(objId, &z.Core, z.Alphabets)
}

func (z *ZMachine) RemoveObject(objId uint16) {
	if objId == 0 {
		return
	}

	object := z.getObject(objId)
	if object.Parent != 0 {
		oldParent := z.getObject(object.Parent)

		if oldParent.Child == object.Id {
			oldParent.SetChild(object.Sibling, &z.Core)
		} else {
			// Walk the sibling chain to unlink
			currObjId := oldParent.Child
			for currObjId != 0 {
				currObj := z.getObject(currObjId)
				if currObj.Sibling == object.Id {
					currObj.SetSibling(object.Sibling, &z.Core)
					break
				}
				currObjId = currObj.Sibling
			}
		}

		object.SetParent(0, &z.Core)
	}

	object.SetSibling(0, &z.Core)
}

func (z *ZMachine) MoveObject(objId uint16, newParent uint16) {
	if objId == 0 {
		return
	}

	object := z.getObject(objId)

	z.RemoveObject(object.Id)

	// Read the destination after the unlink: if the object was its first
	// child, the unlink has just changed the destination's child link
	destinationObject := z.getObject(newParent)

	object.SetSibling(destinationObject.Child, &z.Core)
	object.SetParent(destinationObject.Id, &z.Core)
	destinationObject.SetChild(object.Id, &z.Core)
}

func (z *ZMachine) restart() {
	z.Core.Restart()
	z.Alphabets = zstring.LoadAlphabets(&z.Core)
	z.dictionary = dictionary.ParseDictionary(uint32(z.Core.DictionaryBase), &z.Core, z.Alphabets)
	z.rng = newRNG()
	z.streams = Streams{Screen: true, Transcript: z.streams.Transcript, CommandScript: z.streams.CommandScript}
	z.pendingSoundRoutine = 0
	z.callStack = CallStack{}
	z.callStack.push(z.initialFrame())
	z.screenModel = newScreenModel(White, Black)

	if z.outputChannel != nil {
		z.outputChannel <- Restart(true)
		z.outputChannel <- z.screenModel
	}
}

// Run drives the fetch-decode-execute loop to completion. Fatal machine
// errors unwind to here and are handed to the front-end for display before
// the session ends.
func (z *ZMachine) Run() {
	defer func() {
		if r := recover(); r != nil {
			if z.outputChannel != nil {
				z.outputChannel <- RuntimeError(describeFailure(r))
			}
			return
		}
		if z.outputChannel != nil {
			z.outputChannel <- Quit(true)
		}
	}()

	if z.outputChannel != nil {
		z.outputChannel <- z.screenModel
	}

	for !z.stopped {
		if !z.StepMachine() {
			break
		}
	}
}

func describeFailure(r any) string {
	switch e := r.(type) {
	case MachineError:
		return e.Error()
	case zcore.Fault:
		return e.Error()
	case zobject.PropertyTooLongError:
		return fmt.Sprintf("%s: %s", ErrPropertyTooLong, e.Error())
	case zobject.MissingPropertyError:
		return fmt.Sprintf("%s: %s", ErrInvalidInstruction, e.Error())
	case error:
		return e.Error()
	default:
		return fmt.Sprint(r)
	}
}

// StepMachine decodes and executes a single instruction, returning false
// once the machine has quit.
func (z *ZMachine) StepMachine() bool {
	z.currentInstructionPC = z.callStack.peek().pc
	opcode := z.ParseOpcode()
	frame := z.callStack.peek()

	switch opcode.operandCount {
	case OP0:
		switch opcode.opcodeNumber {
		case 0: // RTRUE
			z.retValue(1)

		case 1: // RFALSE
			z.retValue(0)

		case 2: // PRINT
			text, bytesRead := zstring.Decode(frame.pc, &z.Core, z.Alphabets)
			frame.pc += bytesRead
			z.appendText(text)

		case 3: // PRINT_RET
			text, bytesRead := zstring.Decode(frame.pc, &z.Core, z.Alphabets)
			frame.pc += bytesRead
			z.appendText(text)
			z.appendText("\n")
			z.retValue(1)

		case 4: // NOP

		case 5: // SAVE
			if z.Core.Version >= 5 {
				z.fatal(ErrInvalidInstruction, "0OP save is illegal on v5+")
			}
			z.saveGame(&opcode)

		case 6: // RESTORE
			if z.Core.Version >= 5 {
				z.fatal(ErrInvalidInstruction, "0OP restore is illegal on v5+")
			}
			z.restoreGame(&opcode)

		case 7: // RESTART
			z.restart()

		case 8: // RET_POPPED
			v := frame.pop(z)
			z.retValue(v)

		case 9: // POP / CATCH
			if z.Core.Version >= 5 {
				z.storeResult(&opcode, uint16(z.callStack.depth()))
			} else {
				_ = frame.pop(z)
			}

		case 10: // QUIT
			z.stopped = true
			return false

		case 11: // NEWLINE
			z.appendText("\n")

		case 12: // SHOW_STATUS
			if z.Core.Version == 3 {
				z.refreshStatusBar()
			} else {
				z.warnOnce("show_status", "Warning: show_status on version %d is a no-op", z.Core.Version)
			}

		case 13: // VERIFY
			z.handleBranch(&opcode, z.Core.Checksum() == z.Core.FileChecksum)

		case 15: // PIRACY
			// Interpreters are asked to be gullible and branch as genuine
			z.handleBranch(&opcode, true)

		default:
			z.fatal(ErrInvalidInstruction, "unknown 0OP opcode %#x", opcode.opcodeByte)
		}

	case OP1:
		switch opcode.opcodeNumber {
		case 0: // JZ
			z.handleBranch(&opcode, opcode.operands[0] == 0)

		case 1: // GET_SIBLING
			sibling := z.getObject(opcode.operands[0]).Sibling
			z.storeResult(&opcode, sibling)
			z.handleBranch(&opcode, sibling != 0)

		case 2: // GET_CHILD
			child := z.getObject(opcode.operands[0]).Child
			z.storeResult(&opcode, child)
			z.handleBranch(&opcode, child != 0)

		case 3: // GET_PARENT
			z.storeResult(&opcode, z.getObject(opcode.operands[0]).Parent)

		case 4: // GET_PROP_LEN
			z.storeResult(&opcode, zobject.GetPropertyLength(&z.Core, uint32(opcode.operands[0])))

		case 5: // INC
			variable := uint8(opcode.operands[0])
			z.writeVariable(variable, z.readVariable(variable, true)+1, true)

		case 6: // DEC
			variable := uint8(opcode.operands[0])
			z.writeVariable(variable, z.readVariable(variable, true)-1, true)

		case 7: // PRINT_ADDR
			str, _ := zstring.Decode(uint32(opcode.operands[0]), &z.Core, z.Alphabets)
			z.appendText(str)

		case 8: // CALL_1S
			z.call(&opcode)

		case 9: // REMOVE_OBJ
			z.RemoveObject(opcode.operands[0])

		case 10: // PRINT_OBJ
			z.appendText(z.getObject(opcode.operands[0]).Name)

		case 11: // RET
			z.retValue(opcode.operands[0])

		case 12: // JUMP
			offset := int16(opcode.operands[0])
			frame.pc = uint32(int32(frame.pc) + int32(offset) - 2)

		case 13: // PRINT_PADDR
			addr := z.packedAddress(uint32(opcode.operands[0]), true)
			text, _ := zstring.Decode(addr, &z.Core, z.Alphabets)
			z.appendText(text)

		case 14: // LOAD
			z.storeResult(&opcode, z.readVariable(uint8(opcode.operands[0]), true))

		case 15: // NOT / CALL_1N
			if z.Core.Version < 5 {
				z.storeResult(&opcode, ^opcode.operands[0])
			} else {
				z.call(&opcode)
			}

		default:
			z.fatal(ErrInvalidInstruction, "unknown 1OP opcode %#x", opcode.opcodeByte)
		}

	case OP2:
		switch opcode.opcodeNumber {
		case 1: // JE
			branch := false
			for _, b := range opcode.operands[1:] {
				if opcode.operands[0] == b {
					branch = true
				}
			}
			z.handleBranch(&opcode, branch)

		case 2: // JL
			z.handleBranch(&opcode, int16(opcode.operands[0]) < int16(opcode.operands[1]))

		case 3: // JG
			z.handleBranch(&opcode, int16(opcode.operands[0]) > int16(opcode.operands[1]))

		case 4: // DEC_CHK
			variable := uint8(opcode.operands[0])
			newValue := z.readVariable(variable, true) - 1
			z.writeVariable(variable, newValue, true)
			z.handleBranch(&opcode, int16(newValue) < int16(opcode.operands[1]))

		case 5: // INC_CHK
			variable := uint8(opcode.operands[0])
			newValue := z.readVariable(variable, true) + 1
			z.writeVariable(variable, newValue, true)
			z.handleBranch(&opcode, int16(newValue) > int16(opcode.operands[1]))

		case 6: // JIN
			z.handleBranch(&opcode, z.getObject(opcode.operands[0]).Parent == opcode.operands[1])

		case 7: // TEST
			bitmap := opcode.operands[0]
			flags := opcode.operands[1]
			z.handleBranch(&opcode, bitmap&flags == flags)

		case 8: // OR
			z.storeResult(&opcode, opcode.operands[0]|opcode.operands[1])

		case 9: // AND
			z.storeResult(&opcode, opcode.operands[0]&opcode.operands[1])

		case 10: // TEST_ATTR
			if !zobject.ValidAttribute(opcode.operands[1], z.Core.Version) {
				z.warnOnce("test_attr_range", "Warning: test_attr of out-of-range attribute %d", opcode.operands[1])
			}
			obj := z.getObject(opcode.operands[0])
			z.handleBranch(&opcode, obj.TestAttribute(opcode.operands[1]))

		case 11: // SET_ATTR
			if !zobject.ValidAttribute(opcode.operands[1], z.Core.Version) {
				z.warnOnce("set_attr_range", "Warning: set_attr of out-of-range attribute %d", opcode.operands[1])
			}
			obj := z.getObject(opcode.operands[0])
			obj.SetAttribute(opcode.operands[1], &z.Core)

		case 12: // CLEAR_ATTR
			if !zobject.ValidAttribute(opcode.operands[1], z.Core.Version) {
				z.warnOnce("clear_attr_range", "Warning: clear_attr of out-of-range attribute %d", opcode.operands[1])
			}
			obj := z.getObject(opcode.operands[0])
			obj.ClearAttribute(opcode.operands[1], &z.Core)

		case 13: // STORE
			z.writeVariable(uint8(opcode.operands[0]), opcode.operands[1], true)

		case 14: // INSERT_OBJ
			z.MoveObject(opcode.operands[0], opcode.operands[1])

		case 15: // LOADW
			z.storeResult(&opcode, z.Core.ReadHalfWord(uint32(opcode.operands[0]+2*opcode.operands[1])))

		case 16: // LOADB
			z.storeResult(&opcode, uint16(z.Core.ReadByte(uint32(opcode.operands[0]+opcode.operands[1]))))

		case 17: // GET_PROP
			obj := z.getObject(opcode.operands[0])
			_, value := obj.GetProperty(uint8(opcode.operands[1]), &z.Core)
			z.storeResult(&opcode, value)

		case 18: // GET_PROP_ADDR
			obj := z.getObject(opcode.operands[0])
			z.storeResult(&opcode, obj.GetPropertyAddress(uint8(opcode.operands[1]), &z.Core))

		case 19: // GET_NEXT_PROP
			obj := z.getObject(opcode.operands[0])
			z.storeResult(&opcode, uint16(obj.GetNextProperty(uint8(opcode.operands[1]), &z.Core)))

		case 20: // ADD
			z.storeResult(&opcode, opcode.operands[0]+opcode.operands[1])

		case 21: // SUB
			z.storeResult(&opcode, opcode.operands[0]-opcode.operands[1])

		case 22: // MUL
			z.storeResult(&opcode, opcode.operands[0]*opcode.operands[1])

		case 23: // DIV
			denominator := int16(opcode.operands[1])
			if denominator == 0 {
				z.fatal(ErrDivisionByZero, "div by zero")
			}
			z.storeResult(&opcode, uint16(int16(opcode.operands[0])/denominator))

		case 24: // MOD
			denominator := int16(opcode.operands[1])
			if denominator == 0 {
				z.fatal(ErrDivisionByZero, "mod by zero")
			}
			z.storeResult(&opcode, uint16(int16(opcode.operands[0])%denominator))

		case 25: // CALL_2S
			if z.Core.Version < 4 {
				z.fatal(ErrInvalidInstruction, "call_2s is illegal before v4")
			}
			z.call(&opcode)

		case 26: // CALL_2N
			if z.Core.Version < 5 {
				z.fatal(ErrInvalidInstruction, "call_2n is illegal before v5")
			}
			z.call(&opcode)

		case 27: // SET_COLOUR
			if z.Core.Version < 5 {
				z.fatal(ErrInvalidInstruction, "set_colour is illegal before v5")
			}
			z.setColour(opcode.operands[0], opcode.operands[1])

		case 28: // THROW
			if z.Core.Version < 5 {
				z.fatal(ErrInvalidInstruction, "throw is illegal before v5")
			}
			depth := int(opcode.operands[1])
			if depth <= 0 || depth > z.callStack.depth() {
				z.fatal(ErrInvalidInstruction, "throw to frame %d of %d", depth, z.callStack.depth())
			}
			z.callStack.truncate(depth)
			z.retValue(opcode.operands[0])

		default:
			z.fatal(ErrInvalidInstruction, "unknown 2OP opcode %#x", opcode.opcodeByte)
		}

	case VAR:
		switch opcode.opcodeNumber {
		case 0: // CALL / CALL_VS
			z.call(&opcode)

		case 1: // STOREW
			z.Core.WriteHalfWord(uint32(opcode.operands[0]+2*opcode.operands[1]), opcode.operands[2])

		case 2: // STOREB
			z.Core.WriteByte(uint32(opcode.operands[0]+opcode.operands[1]), uint8(opcode.operands[2]))

		case 3: // PUT_PROP
			obj := z.getObject(opcode.operands[0])
			obj.SetProperty(uint8(opcode.operands[1]), opcode.operands[2], &z.Core)

		case 4: // SREAD / AREAD
			z.read(&opcode)

		case 5: // PRINT_CHAR
			if r, ok := zstring.ZsciiToRune(opcode.operands[0], &z.Core); ok {
				z.appendText(string(r))
			}

		case 6: // PRINT_NUM
			z.appendText(strconv.Itoa(int(int16(opcode.operands[0]))))

		case 7: // RANDOM
			n := int16(opcode.operands[0])
			result := uint16(0)

			switch {
			case n > 0:
				result = z.rng.Next(uint16(n))
			case n == 0:
				z.rng.SeedFromEntropy()
			case n > -1000:
				z.rng.SeedPredictable(uint16(-n))
			default:
				z.rng.Seed(uint64(-n))
			}

			z.storeResult(&opcode, result)

		case 8: // PUSH
			frame.push(opcode.operands[0])

		case 9: // PULL
			z.writeVariable(uint8(opcode.operands[0]), frame.pop(z), true)

		case 10: // SPLIT_WINDOW
			z.splitWindow(opcode.operands[0])

		case 11: // SET_WINDOW
			z.screenModel.LowerWindowActive = opcode.operands[0] == 0
			if !z.screenModel.LowerWindowActive {
				z.screenModel.UpperWindowCursorX = 1
				z.screenModel.UpperWindowCursorY = 1
			}
			z.sendScreenModel()

		case 12: // CALL_VS2
			z.call(&opcode)

		case 13: // ERASE_WINDOW
			window := int16(opcode.operands[0])
			if window < -2 || window > 1 {
				z.warn("Warning: erase_window %d is not a valid window", window)
				break
			}
			if window == -1 {
				z.screenModel.LowerWindowActive = true
				z.screenModel.UpperWindowHeight = 0
				z.sendScreenModel()
			}
			if z.outputChannel != nil {
				z.outputChannel <- EraseWindowRequest(window)
			}

		case 14: // ERASE_LINE
			if opcode.operands[0] == 1 && z.outputChannel != nil {
				z.outputChannel <- EraseLineRequest(true)
			}

		case 15: // SET_CURSOR
			if !z.screenModel.LowerWindowActive {
				z.screenModel.UpperWindowCursorY = int(opcode.operands[0])
				z.screenModel.UpperWindowCursorX = int(opcode.operands[1])
				z.sendScreenModel()
			}

		case 16: // GET_CURSOR
			addr := uint32(opcode.operands[0])
			row, col := 1, 1
			if !z.screenModel.LowerWindowActive {
				row = z.screenModel.UpperWindowCursorY
				col = z.screenModel.UpperWindowCursorX
			}
			z.Core.WriteHalfWord(addr, uint16(row))
			z.Core.WriteHalfWord(addr+2, uint16(col))

		case 17: // SET_TEXT_STYLE
			if z.Core.Version < 4 {
				z.fatal(ErrInvalidInstruction, "set_text_style is illegal before v4")
			}
			mask := TextStyle(opcode.operands[0])
			if z.screenModel.LowerWindowActive {
				z.screenModel.LowerWindowTextStyle = mask
			} else {
				z.screenModel.UpperWindowTextStyle = mask
			}
			z.sendScreenModel()

		case 18: // BUFFER_MODE
			z.screenModel.BufferOutput = opcode.operands[0] != 0
			z.sendScreenModel()

		case 19: // OUTPUT_STREAM
			stream := int16(opcode.operands[0])
			tableAddress := uint32(0)
			if len(opcode.operands) > 1 {
				tableAddress = uint32(opcode.operands[1])
			}
			z.setOutputStream(stream, tableAddress)

		case 20: // INPUT_STREAM
			z.warnOnce("input_stream", "Warning: input_stream is not supported, keyboard input continues")

		case 21: // SOUND_EFFECT
			z.soundEffect(&opcode)

		case 22: // READ_CHAR
			z.readChar(&opcode)

		case 23: // SCAN_TABLE
			form := uint16(0x82)
			if len(opcode.operands) == 4 {
				form = opcode.operands[3]
			}

			result := ztable.ScanTable(&z.Core, opcode.operands[0], uint32(opcode.operands[1]), opcode.operands[2], form)
			z.storeResult(&opcode, result)
			z.handleBranch(&opcode, result != 0)

		case 24: // NOT
			z.storeResult(&opcode, ^opcode.operands[0])

		case 25: // CALL_VN
			z.call(&opcode)

		case 26: // CALL_VN2
			z.call(&opcode)

		case 27: // TOKENISE
			dictionaryToUse := z.dictionary
			leaveWordsBlank := false

			if len(opcode.operands) > 2 && opcode.operands[2] != 0 {
				dictionaryToUse = dictionary.ParseDictionary(uint32(opcode.operands[2]), &z.Core, z.Alphabets)
			}
			if len(opcode.operands) > 3 {
				leaveWordsBlank = opcode.operands[3] != 0
			}

			z.Tokenise(uint32(opcode.operands[0]), uint32(opcode.operands[1]), dictionaryToUse, leaveWordsBlank)

		case 28: // ENCODE_TEXT
			textBuffer := uint32(opcode.operands[0])
			length := uint32(opcode.operands[1])
			from := uint32(opcode.operands[2])
			codedBuffer := uint32(opcode.operands[3])

			raw := z.Core.ReadSlice(textBuffer+from, textBuffer+from+length)
			for i, b := range zstring.Encode([]rune(string(raw)), &z.Core, z.Alphabets) {
				z.Core.WriteByte(codedBuffer+uint32(i), b)
			}

		case 29: // COPY_TABLE
			ztable.CopyTable(&z.Core, opcode.operands[0], opcode.operands[1], int16(opcode.operands[2]))

		case 30: // PRINT_TABLE
			height := uint16(1)
			skip := uint16(0)
			if len(opcode.operands) > 2 {
				height = opcode.operands[2]
			}
			if len(opcode.operands) > 3 {
				skip = opcode.operands[3]
			}
			z.appendText(ztable.PrintTable(&z.Core, uint32(opcode.operands[0]), opcode.operands[1], height, skip))

		case 31: // CHECK_ARG_COUNT
			z.handleBranch(&opcode, opcode.operands[0] <= uint16(frame.numValuesPassed))

		default:
			z.fatal(ErrInvalidInstruction, "unknown VAR opcode %#x", opcode.opcodeByte)
		}

	case EXT:
		switch opcode.opcodeNumber {
		case 0x00: // SAVE (full or auxiliary)
			if len(opcode.operands) >= 2 && opcode.operands[1] != 0 {
				nameAddr := uint32(0)
				if len(opcode.operands) > 2 {
					nameAddr = uint32(opcode.operands[2])
				}
				z.saveAuxiliary(&opcode, uint32(opcode.operands[0]), uint32(opcode.operands[1]), nameAddr)
			} else {
				z.saveGame(&opcode)
			}

		case 0x01: // RESTORE
			if len(opcode.operands) >= 2 && opcode.operands[1] != 0 {
				nameAddr := uint32(0)
				if len(opcode.operands) > 2 {
					nameAddr = uint32(opcode.operands[2])
				}
				z.restoreAuxiliary(&opcode, uint32(opcode.operands[0]), uint32(opcode.operands[1]), nameAddr)
			} else {
				z.restoreGame(&opcode)
			}

		case 0x02: // LOG_SHIFT
			z.storeResult(&opcode, z.shift(opcode.operands[0], int16(opcode.operands[1]), false))

		case 0x03: // ART_SHIFT
			z.storeResult(&opcode, z.shift(opcode.operands[0], int16(opcode.operands[1]), true))

		case 0x04: // SET_FONT
			z.storeResult(&opcode, z.setFont(Font(opcode.operands[0])))

		case 0x09: // SAVE_UNDO
			z.saveUndo(&opcode)

		case 0x0a: // RESTORE_UNDO
			z.restoreUndo(&opcode)

		case 0x0b: // PRINT_UNICODE
			z.appendText(string(rune(opcode.operands[0])))

		case 0x0c: // CHECK_UNICODE
			// 0b01 = printable, 0b10 = readable from the keyboard
			r := rune(opcode.operands[0])
			result := uint16(0)
			if r >= 32 {
				result = 0b11
			}
			z.storeResult(&opcode, result)

		case 0x0d: // SET_TRUE_COLOUR
			z.setTrueColour(opcode.operands[0], opcode.operands[1])

		default:
			z.fatal(ErrInvalidInstruction, "unknown EXT opcode %#x", opcode.opcodeByte)
		}
	}

	return !z.stopped
}

// shift implements log_shift (zero fill) and art_shift (sign extend).
// Shifting by more than 15 places is undefined; the input comes back
// unchanged with a diagnostic.
func (z *ZMachine) shift(value uint16, places int16, arithmetic bool) uint16 {
	magnitude := places
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > 15 {
		z.warnOnce("shift_magnitude", "Warning: shift by %d places is undefined, returning input", places)
		return value
	}

	switch {
	case places >= 0:
		return value << uint16(places)
	case arithmetic:
		return uint16(int16(value) >> uint16(-places))
	default:
		return value >> uint16(-places)
	}
}

func (z *ZMachine) sendScreenModel() {
	if z.outputChannel != nil {
		z.outputChannel <- z.screenModel
	}
}

func (z *ZMachine) splitWindow(lines uint16) {
	z.screenModel.UpperWindowHeight = int(lines)

	// v3 clears the newly split upper window
	if z.Core.Version == 3 && lines > 0 && z.outputChannel != nil {
		z.outputChannel <- EraseWindowRequest(1)
	}

	z.sendScreenModel()
}

func (z *ZMachine) setColour(foreground uint16, background uint16) {
	fg, fgOk := z.screenModel.zmachineColor(foreground, true)
	bg, bgOk := z.screenModel.zmachineColor(background, false)
	if !fgOk || !bgOk {
		z.warnOnce("set_colour_range", "Warning: set_colour %d/%d out of range, keeping current colours", foreground, background)
	}

	z.applyColours(fg, bg)
}

// setTrueColour takes 15 bit BGR words; -1 resets to default, -2 keeps the
// current colour.
func (z *ZMachine) setTrueColour(foreground uint16, background uint16) {
	fg := z.trueColor(foreground, true)
	bg := z.trueColor(background, false)
	z.applyColours(fg, bg)
}

func (z *ZMachine) trueColor(raw uint16, isForeground bool) Color {
	switch int16(raw) {
	case -1:
		c, _ := z.screenModel.zmachineColor(1, isForeground)
		return c
	case -2:
		c, _ := z.screenModel.zmachineColor(0, isForeground)
		return c
	default:
		return Color{
			r: int(raw&0b11111) * 8,
			g: int((raw>>5)&0b11111) * 8,
			b: int((raw>>10)&0b11111) * 8,
		}
	}
}

func (z *ZMachine) applyColours(fg Color, bg Color) {
	if z.screenModel.LowerWindowActive {
		z.screenModel.LowerWindowForeground = fg
		z.screenModel.LowerWindowBackground = bg
	} else {
		z.screenModel.UpperWindowForeground = fg
		z.screenModel.UpperWindowBackground = bg
	}
	z.sendScreenModel()
}

// setFont returns the previous font when the requested one is available and
// 0 when it is not. Font 0 changes nothing and returns the current font.
// Only the normal and fixed pitch fonts exist on a character terminal.
func (z *ZMachine) setFont(font Font) uint16 {
	switch font {
	case FontNormal, FontFixedPitch:
		previous := z.screenModel.CurrentFont
		z.screenModel.CurrentFont = font
		z.sendScreenModel()
		return uint16(previous)
	case 0:
		return uint16(z.screenModel.CurrentFont)
	default:
		return 0
	}
}

func (z *ZMachine) soundEffect(opcode *Opcode) {
	request := SoundEffectRequest{SoundNumber: 1}

	if len(opcode.operands) > 0 {
		request.SoundNumber = opcode.operands[0]
	}
	if len(opcode.operands) > 1 {
		request.Effect = opcode.operands[1]
	}
	if len(opcode.operands) > 2 {
		request.Volume = uint8(opcode.operands[2])
		request.Repeats = uint8(opcode.operands[2] >> 8)
	}
	if len(opcode.operands) > 3 {
		request.Routine = opcode.operands[3]
	}

	switch request.Effect {
	case 2: // start, optionally with a finish routine
		z.pendingSoundRoutine = request.Routine
	case 3, 4: // stop / unload cancel any pending interrupt
		z.pendingSoundRoutine = 0
	}

	if request.Effect > 4 {
		z.warnOnce("sound_effect", "Warning: sound_effect %d/%d is not a valid effect", request.SoundNumber, request.Effect)
		return
	}

	if z.outputChannel != nil {
		z.outputChannel <- request
	}
}
