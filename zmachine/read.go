package zmachine

import (
	"strings"

	"github.com/davetcode/zeta/dictionary"
	"github.com/davetcode/zeta/zobject"
	"github.com/davetcode/zeta/zstring"
)

// validTerminators builds the set of input-terminating ZSCII codes: newline
// always, plus the v5+ terminating character table, where 255 means every
// function key terminates.
func (z *ZMachine) validTerminators() []uint8 {
	validTerminators := []uint8{13}

	if z.Core.Version >= 5 && z.Core.TerminatingCharTableBase != 0 {
		terminatingChrPtr := uint32(z.Core.TerminatingCharTableBase)
		for {
			b := z.Core.ReadByte(terminatingChrPtr)
			if b == 0 {
				break
			} else if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
				validTerminators = append(validTerminators, b)
			} else if b == 255 {
				validTerminators = []uint8{13}
				for c := uint8(129); c <= 154; c++ {
					validTerminators = append(validTerminators, c)
				}
				validTerminators = append(validTerminators, 252, 253, 254)
				break
			}

			terminatingChrPtr++
		}
	}

	return validTerminators
}

// refreshStatusBar sends the v3 status line: short name of the object in
// global 0 plus score/turns or a clock from globals 1 and 2.
func (z *ZMachine) refreshStatusBar() {
	if z.Core.Version > 3 || z.outputChannel == nil {
		return
	}

	currentLocation := zobject.GetObject(z.readVariable(16, false), &z.Core, z.Alphabets)
	z.outputChannel <- StatusBar{
		PlaceName:   currentLocation.Name,
		Score:       int(int16(z.readVariable(17, false))),
		Moves:       int(z.readVariable(18, false)),
		IsTimeBased: z.Core.StatusBarTimeBased,
	}
}

// collectInput issues input requests until a terminator arrives. Timeouts
// run the interrupt routine: a result of 1 discards the input and aborts
// the read, 0 carries on with the collected prefix redrawn. A sound-finish
// report runs the pending sound routine and re-issues the request.
func (z *ZMachine) collectInput(request InputRequest, routine uint16) (string, uint8, bool) {
	prefix := request.Preload

	for {
		request.Preload = prefix
		z.outputChannel <- request
		response := <-z.inputChannel

		switch {
		case response.SoundFinished:
			if response.Text != "" {
				prefix = response.Text
			}
			z.runSoundInterrupt()
			if z.stopped {
				return "", 0, true
			}

		case response.TimedOut:
			if response.Text != "" {
				prefix = response.Text
			}
			if routine == 0 {
				continue
			}
			result := z.callInterrupt(z.packedAddress(uint32(routine), false), false)
			if z.stopped {
				return "", 0, true
			}
			if result == 1 {
				return "", 0, true
			}

		default:
			return response.Text, response.TerminatingKey, false
		}
	}
}

// read implements sread/aread: collect a line, write it to the text buffer
// lower-cased, lex it into the parse buffer, and on v5+ store the
// terminating character.
func (z *ZMachine) read(opcode *Opcode) {
	z.refreshStatusBar()

	textBufferPtr := uint32(opcode.operands[0])
	parseBufferPtr := uint32(0)
	if len(opcode.operands) > 1 {
		parseBufferPtr = uint32(opcode.operands[1])
	}

	timeoutMillis := 0
	routine := uint16(0)
	if z.Core.Version >= 4 && len(opcode.operands) > 3 && opcode.operands[2] != 0 {
		timeoutMillis = int(opcode.operands[2]) * 100 // operand is tenths of seconds
		routine = opcode.operands[3]
	}

	bufferSize := z.Core.ReadByte(textBufferPtr)
	preload := ""
	if z.Core.Version >= 5 {
		existingBytes := uint32(z.Core.ReadByte(textBufferPtr + 1))
		if existingBytes > 0 {
			preload = string(z.Core.ReadSlice(textBufferPtr+2, textBufferPtr+2+existingBytes))
		}
	}

	text, terminator, aborted := z.collectInput(InputRequest{
		MaxChars:         bufferSize,
		Preload:          preload,
		ValidTerminators: z.validTerminators(),
		TimeoutMillis:    timeoutMillis,
	}, routine)

	if aborted {
		if z.Core.Version >= 5 {
			z.Core.WriteByte(textBufferPtr+1, 0)
			z.storeResult(opcode, 0)
		}
		return
	}

	rawTextBytes := []uint8(strings.ToLower(text))
	if len(rawTextBytes) > int(bufferSize) {
		rawTextBytes = rawTextBytes[:bufferSize]
	}

	writePtr := textBufferPtr + 1
	if z.Core.Version >= 5 {
		z.Core.WriteByte(textBufferPtr+1, uint8(len(rawTextBytes)))
		writePtr = textBufferPtr + 2
	}

	for ix, chr := range rawTextBytes {
		if (chr >= 32 && chr <= 126) || (chr >= 155 && chr <= 251) {
			z.Core.WriteByte(writePtr+uint32(ix), chr)
		} else {
			z.Core.WriteByte(writePtr+uint32(ix), ' ')
		}
	}

	if z.Core.Version <= 4 {
		// v1-4 terminate the buffer with a null byte
		z.Core.WriteByte(writePtr+uint32(len(rawTextBytes)), 0)
	}

	if parseBufferPtr != 0 || z.Core.Version <= 4 {
		z.Tokenise(textBufferPtr, parseBufferPtr, z.dictionary, false)
	}

	if z.streams.CommandScript && z.outputChannel != nil {
		z.outputChannel <- CommandText(string(rawTextBytes) + "\n")
	}

	if z.Core.Version >= 5 {
		if terminator == 0 {
			terminator = 13
		}
		z.storeResult(opcode, uint16(terminator))
	}
}

// readChar implements read_char with the same timeout protocol as read.
func (z *ZMachine) readChar(opcode *Opcode) {
	timeoutMillis := 0
	routine := uint16(0)
	if len(opcode.operands) > 2 && opcode.operands[1] != 0 {
		timeoutMillis = int(opcode.operands[1]) * 100
		routine = opcode.operands[2]
	}

	text, terminator, aborted := z.collectInput(InputRequest{
		SingleCharacter: true,
		TimeoutMillis:   timeoutMillis,
	}, routine)

	if aborted {
		z.storeResult(opcode, 0)
		return
	}

	result := uint16(terminator)
	if text != "" {
		if zscii, ok := zstring.RuneToZscii([]rune(text)[0], &z.Core); ok {
			result = zscii
		}
	}

	z.storeResult(opcode, result)
}

// Tokenise lexes the text buffer into the parse buffer: words split on
// spaces and dictionary separators, each emitted as a 4 byte record of
// entry address, length and buffer offset. When leaveWordsBlank is set
// (tokenise opcode flag) unrecognised words leave their record untouched.
func (z *ZMachine) Tokenise(baddr1 uint32, baddr2 uint32, dict *dictionary.Dictionary, leaveWordsBlank bool) {
	textStart := baddr1 + 1
	var inputBytes []uint8

	if z.Core.Version >= 5 {
		chrCount := uint32(z.Core.ReadByte(baddr1 + 1))
		textStart = baddr1 + 2
		inputBytes = z.Core.ReadSlice(textStart, textStart+chrCount)
	} else {
		endPtr := textStart
		for z.Core.ReadByte(endPtr) != 0 {
			endPtr++
		}
		inputBytes = z.Core.ReadSlice(textStart, endPtr)
	}

	type token struct {
		start uint32 // offset of first byte from baddr1
		bytes []uint8
	}
	var tokens []token

	wordStart := 0
	flushWord := func(end int) {
		if end > wordStart {
			tokens = append(tokens, token{
				start: textStart - baddr1 + uint32(wordStart),
				bytes: inputBytes[wordStart:end],
			})
		}
	}

	for ix := 0; ix < len(inputBytes); ix++ {
		chr := inputBytes[ix]
		switch {
		case chr == ' ': // a delimiter but never a token
			flushWord(ix)
			wordStart = ix + 1
		case dict.IsSeparator(chr): // a delimiter and a token of its own
			flushWord(ix)
			tokens = append(tokens, token{
				start: textStart - baddr1 + uint32(ix),
				bytes: inputBytes[ix : ix+1],
			})
			wordStart = ix + 1
		}
	}
	flushWord(len(inputBytes))

	maxTokens := int(z.Core.ReadByte(baddr2))
	if len(tokens) > maxTokens {
		z.warn("Warning: parse buffer overflow, dropping %d token(s)", len(tokens)-maxTokens)
		tokens = tokens[:maxTokens]
	}

	z.Core.WriteByte(baddr2+1, uint8(len(tokens)))

	recordPtr := baddr2 + 2
	for _, tok := range tokens {
		encoded := zstring.Encode([]rune(string(tok.bytes)), &z.Core, z.Alphabets)
		dictionaryAddress := dict.Find(encoded)

		if dictionaryAddress != 0 || !leaveWordsBlank {
			z.Core.WriteHalfWord(recordPtr, dictionaryAddress)
			z.Core.WriteByte(recordPtr+2, uint8(len(tok.bytes)))
			z.Core.WriteByte(recordPtr+3, uint8(tok.start))
		}

		recordPtr += 4
	}
}

// callInterrupt runs a routine to completion inside the current
// instruction, returning its value. The frame is ordinary except that its
// return value is diverted into the interrupt result slot.
func (z *ZMachine) callInterrupt(routineAddress uint32, sound bool) uint16 {
	if routineAddress == 0 {
		return 0
	}

	depth := z.callStack.depth()

	localVariableCount := z.Core.FetchByte(routineAddress)
	pc := routineAddress + 1
	locals := make([]uint16, localVariableCount)
	if z.Core.Version < 5 {
		for i := range locals {
			locals[i] = z.Core.FetchHalfWord(pc)
			pc += 2
		}
	}

	z.interruptResult = 0
	z.callStack.push(CallStackFrame{
		entryAddress:   routineAddress,
		pc:             pc,
		returnAddress:  z.callStack.peek().pc,
		locals:         locals,
		routineStack:   make([]uint16, 0),
		readInterrupt:  !sound,
		soundInterrupt: sound,
	})

	for z.callStack.depth() > depth && !z.stopped {
		z.StepMachine()
	}

	return z.interruptResult
}

func (z *ZMachine) runSoundInterrupt() {
	routine := z.pendingSoundRoutine
	if routine == 0 {
		return
	}
	z.pendingSoundRoutine = 0
	z.callInterrupt(z.packedAddress(uint32(routine), false), true)
}
