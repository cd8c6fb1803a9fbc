package zmachine

type OperandType int
type OpcodeForm int
type OperandCount int

const (
	largeConstant OperandType = 0b00
	smallConstant OperandType = 0b01
	variable      OperandType = 0b10
	omitted       OperandType = 0b11
)

const (
	longForm  OpcodeForm = 0b00
	extForm   OpcodeForm = 0b01
	shortForm OpcodeForm = 0b10
	varForm   OpcodeForm = 0b11
)

const (
	OP0 OperandCount = iota
	OP1
	OP2
	VAR
	EXT
)

// BranchInfo is the decoded branch field: the sense bit and a signed 6 or
// 14 bit offset. Offsets 0 and 1 are the return-false/return-true
// sentinels.
type BranchInfo struct {
	Present bool
	OnTrue  bool
	Offset  int16
}

// Opcode is one fully decoded instruction. Operand values are resolved at
// decode time, popping the stack left to right for variable-0 operands, so
// the dispatcher never touches the raw operand bytes.
type Opcode struct {
	address      uint32 // first byte of the instruction
	opcodeByte   uint8
	operandCount OperandCount
	opcodeForm   OpcodeForm
	opcodeNumber uint8

	operands     []uint16
	operandTypes []OperandType

	storePresent  bool
	storeVariable uint8
	storeAddress  uint32 // address of the store byte (Quetzal save convention)

	branch        BranchInfo
	branchAddress uint32
}

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.Core.FetchByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.Core.FetchHalfWord(frame.pc)
	frame.pc += 2
	return v
}

func (z *ZMachine) appendOperand(opcode *Opcode, frame *CallStackFrame, operandType OperandType) {
	var value uint16
	switch operandType {
	case largeConstant:
		value = z.readHalfWordIncPC(frame)
	case smallConstant:
		value = uint16(z.readIncPC(frame))
	case variable:
		value = z.readVariable(z.readIncPC(frame), false)
	}

	opcode.operands = append(opcode.operands, value)
	opcode.operandTypes = append(opcode.operandTypes, operandType)
}

func (z *ZMachine) parseVariableOperands(frame *CallStackFrame, opcode *Opcode) {
	operandTypeByte := z.readIncPC(frame)
	secondOperandTypeByte := uint8(0)
	maxOperands := 4

	// call_vs2 and call_vn2 carry a second type byte for up to 8 operands
	if opcode.operandCount == VAR && (opcode.opcodeNumber == 12 || opcode.opcodeNumber == 26) {
		secondOperandTypeByte = z.readIncPC(frame)
		maxOperands = 8
	}

	for varIx := 0; varIx < maxOperands; varIx++ {
		var operandType OperandType
		if varIx < 4 {
			operandType = OperandType((operandTypeByte >> (2 * (3 - varIx))) & 0b11)
		} else {
			operandType = OperandType((secondOperandTypeByte >> (2 * (7 - varIx))) & 0b11)
		}

		if operandType == omitted {
			break
		}

		z.appendOperand(opcode, frame, operandType)
	}
}

// ParseOpcode decodes the instruction at the current PC, advancing the PC
// past it. After it returns frame.pc is the default next address.
func (z *ZMachine) ParseOpcode() Opcode {
	frame := z.callStack.peek()
	opcode := Opcode{address: frame.pc}
	opcodeByte := z.readIncPC(frame)
	opcode.opcodeByte = opcodeByte
	opcode.opcodeForm = OpcodeForm(opcodeByte >> 6)

	if opcodeByte == 0xbe && z.Core.Version >= 5 {
		opcode.opcodeByte = z.readIncPC(frame)
		opcode.opcodeNumber = opcode.opcodeByte
		opcode.opcodeForm = extForm
		opcode.operandCount = EXT

		z.parseVariableOperands(frame, &opcode)
	} else if opcode.opcodeForm == varForm {
		opcode.opcodeNumber = opcodeByte & 0b1_1111
		opcode.operandCount = VAR
		if (opcodeByte>>5)&1 == 0 {
			opcode.operandCount = OP2
		}

		z.parseVariableOperands(frame, &opcode)
	} else if opcode.opcodeForm == shortForm {
		opcode.opcodeNumber = opcodeByte & 0b1111
		operandType := OperandType((opcodeByte >> 4) & 0b11)

		if operandType == omitted {
			opcode.operandCount = OP0
		} else {
			opcode.operandCount = OP1
			z.appendOperand(&opcode, frame, operandType)
		}
	} else { // long form
		opcode.opcodeNumber = opcodeByte & 0b1_1111
		opcode.opcodeForm = longForm
		opcode.operandCount = OP2

		for _, bit := range []uint8{(opcodeByte >> 6) & 1, (opcodeByte >> 5) & 1} {
			operandType := smallConstant
			if bit == 1 {
				operandType = variable
			}
			z.appendOperand(&opcode, frame, operandType)
		}
	}

	if storesResult(&opcode, z.Core.Version) {
		opcode.storePresent = true
		opcode.storeAddress = frame.pc
		opcode.storeVariable = z.readIncPC(frame)
	}

	if branches(&opcode, z.Core.Version) {
		opcode.branchAddress = frame.pc
		opcode.branch = z.parseBranch(frame)
	}

	return opcode
}

func (z *ZMachine) parseBranch(frame *CallStackFrame) BranchInfo {
	branchArg1 := z.readIncPC(frame)

	branch := BranchInfo{
		Present: true,
		OnTrue:  branchArg1>>7 == 1,
	}

	if (branchArg1>>6)&1 == 1 {
		branch.Offset = int16(branchArg1 & 0b11_1111)
	} else {
		// 14 bit signed offset over two bytes
		raw := uint16(branchArg1&0b11_1111)<<8 | uint16(z.readIncPC(frame))
		branch.Offset = int16(raw<<2) >> 2
	}

	return branch
}

// storesResult tabulates the per-version store-byte membership from the
// standard's opcode tables.
func storesResult(opcode *Opcode, version uint8) bool {
	switch opcode.operandCount {
	case OP2:
		switch opcode.opcodeNumber {
		case 0x08, 0x09, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18:
			return true
		case 0x19: // call_2s
			return version >= 4
		}
	case OP1:
		switch opcode.opcodeNumber {
		case 0x01, 0x02, 0x03, 0x04, 0x0e:
			return true
		case 0x08: // call_1s
			return version >= 4
		case 0x0f: // not on v1-4; call_1n stores nothing on v5+
			return version <= 4
		}
	case OP0:
		switch opcode.opcodeNumber {
		case 0x05, 0x06: // save/restore branch on v1-3, store on v4
			return version == 4
		case 0x09: // catch on v5+; pop on v1-4
			return version >= 5
		}
	case VAR:
		switch opcode.opcodeNumber {
		case 0x00, 0x07, 0x0c, 0x16, 0x17, 0x18:
			return true
		case 0x04: // aread
			return version >= 5
		case 0x09: // pull stores on v6 only
			return version >= 6
		}
	case EXT:
		switch opcode.opcodeNumber {
		case 0x00, 0x01, 0x02, 0x03, 0x04, 0x09, 0x0a, 0x0c, 0x13:
			return true
		}
	}
	return false
}

// branches tabulates the branch-field membership.
func branches(opcode *Opcode, version uint8) bool {
	switch opcode.operandCount {
	case OP2:
		switch opcode.opcodeNumber {
		case 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x0a:
			return true
		}
	case OP1:
		switch opcode.opcodeNumber {
		case 0x00, 0x01, 0x02:
			return true
		}
	case OP0:
		switch opcode.opcodeNumber {
		case 0x05, 0x06: // save/restore branch on v1-3 only
			return version <= 3
		case 0x0d: // verify
			return true
		case 0x0f: // piracy
			return version >= 5
		}
	case VAR:
		switch opcode.opcodeNumber {
		case 0x17, 0x1f: // scan_table, check_arg_count
			return true
		}
	}
	return false
}
