package zmachine

import (
	"strings"

	"github.com/davetcode/zeta/zstring"
)

// Output stream 3 redirects printed text into a memory table. Streams nest
// up to 16 deep; the most recently opened table receives all output and,
// while any is open, nothing reaches the other streams.
const maxMemoryStreams = 16

type MemoryStreamData struct {
	baseAddress uint32
	data        []uint8
}

type Streams struct {
	Screen           bool
	Transcript       bool
	Memory           bool
	MemoryStreamData []MemoryStreamData
	CommandScript    bool
}

func (z *ZMachine) appendText(s string) {
	if z.streams.Memory {
		// 7.1.2.2: while stream 3 is selected no text is sent to any other
		// selected stream.
		currentMemoryStream := &z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
		for _, r := range s {
			zscii, ok := zstring.RuneToZscii(r, &z.Core)
			if !ok {
				zscii = '?'
			}
			currentMemoryStream.data = append(currentMemoryStream.data, uint8(zscii))
		}
		return
	}

	if z.streams.Screen && z.outputChannel != nil {
		z.outputChannel <- s

		// Writing to the upper window moves the model's cursor
		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(s, "\n")
			z.screenModel.UpperWindowCursorY += len(lines) - 1
			if len(lines) > 1 {
				z.screenModel.UpperWindowCursorX = 1
			}
			z.screenModel.UpperWindowCursorX += len(lines[len(lines)-1])
			z.outputChannel <- z.screenModel
		}
	}

	if z.streams.Transcript && z.outputChannel != nil {
		z.outputChannel <- TranscriptText(s)
	}
}

func (z *ZMachine) openMemoryStream(tableAddress uint32) {
	if len(z.streams.MemoryStreamData) >= maxMemoryStreams {
		z.warn("Warning: output_stream 3 nested more than %d deep, ignoring", maxMemoryStreams)
		return
	}

	z.streams.Memory = true
	z.streams.MemoryStreamData = append(z.streams.MemoryStreamData, MemoryStreamData{
		baseAddress: tableAddress,
	})
}

// closeMemoryStream writes the buffered ZSCII back to the table as a length
// word followed by the bytes, then reactivates the next stream down.
func (z *ZMachine) closeMemoryStream() {
	if !z.streams.Memory {
		z.warn("Warning: output_stream -3 with no memory stream open")
		return
	}

	stream := z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
	z.Core.WriteHalfWord(stream.baseAddress, uint16(len(stream.data)))
	for i, b := range stream.data {
		z.Core.WriteByte(stream.baseAddress+2+uint32(i), b)
	}

	z.streams.MemoryStreamData = z.streams.MemoryStreamData[:len(z.streams.MemoryStreamData)-1]
	if len(z.streams.MemoryStreamData) == 0 {
		z.streams.Memory = false
	}
}

// setOutputStream handles the output_stream opcode. Streams 2 and 4 live in
// the front-end; stream 2 additionally mirrors into Flags2 bit 0.
func (z *ZMachine) setOutputStream(stream int16, tableAddress uint32) {
	switch stream {
	case 0:
		// selecting stream 0 does nothing
	case 1, -1:
		z.streams.Screen = stream > 0
	case 2:
		z.enableTranscript()
	case -2:
		z.disableTranscript()
	case 3:
		z.openMemoryStream(tableAddress)
	case -3:
		z.closeMemoryStream()
	case 4, -4:
		z.streams.CommandScript = stream > 0
		if z.outputChannel != nil {
			z.outputChannel <- CommandControl(stream > 0)
		}
	default:
		z.warn("Warning: output_stream %d is not a valid stream", stream)
	}
}

// enableTranscript asks the front-end to open the transcript file and, on
// success, sets Flags2 bit 0. Used both by output_stream 2 and by game
// writes to Flags2.
func (z *ZMachine) enableTranscript() {
	if z.streams.Transcript {
		return
	}
	if z.requestTranscript(true) {
		z.streams.Transcript = true
		z.Core.SetTranscriptBit(true)
	}
}

func (z *ZMachine) disableTranscript() {
	if !z.streams.Transcript {
		return
	}
	z.requestTranscript(false)
	z.streams.Transcript = false
	z.Core.SetTranscriptBit(false)
}

func (z *ZMachine) requestTranscript(enable bool) bool {
	if z.outputChannel == nil {
		return true
	}
	z.outputChannel <- TranscriptControl(enable)
	response := <-z.saveRestoreChannel
	saveResponse, ok := response.(SaveResponse)
	return ok && saveResponse.Success
}

// transcriptToggled is the Flags2 write hook: the game flipped bit 0 itself
// and the stream state must follow. Returns false if the transcript file
// could not be opened, leaving the bit unchanged.
func (z *ZMachine) transcriptToggled(enable bool) bool {
	if enable == z.streams.Transcript {
		return true
	}
	if enable {
		if !z.requestTranscript(true) {
			return false
		}
		z.streams.Transcript = true
		return true
	}
	z.requestTranscript(false)
	z.streams.Transcript = false
	return true
}
