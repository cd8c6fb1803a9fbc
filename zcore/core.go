package zcore

import (
	"encoding/binary"
	"fmt"
)

// FaultKind identifies the fatal memory faults raised by this package.
type FaultKind int

const (
	IllegalAccess FaultKind = iota
	UnsupportedVersion
)

// Fault is raised (via panic) on any illegal memory operation. The machine
// recovers it at the top of the run loop and reports it as a runtime error.
type Fault struct {
	Kind   FaultKind
	Detail string
}

func (f Fault) Error() string {
	switch f.Kind {
	case IllegalAccess:
		return "illegal access: " + f.Detail
	case UnsupportedVersion:
		return "unsupported version: " + f.Detail
	default:
		return f.Detail
	}
}

type Core struct {
	bytes    []uint8
	pristine []uint8 // verbatim story file, never mutated

	// Called when a write to Flags2 toggles bit 0 (transcript stream).
	// Returning false refuses the toggle and the bit is left unchanged.
	OnTranscriptToggle func(enable bool) bool

	Version                          uint8
	FlagByte1                        uint8
	StatusBarTimeBased               bool
	ReleaseNumber                    uint16
	PagedMemoryBase                  uint16
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	AbbreviationTableBase            uint16
	FileChecksum                     uint16
	InterpreterNumber                uint8
	InterpreterVersion               uint8
	ScreenHeightLines                uint8
	ScreenWidthChars                 uint8
	ScreenWidthUnits                 uint16
	ScreenHeightUnits                uint16
	FontHeight                       uint8
	FontWidth                        uint8
	RoutinesOffset                   uint16
	StringOffset                     uint16
	TerminatingCharTableBase         uint16
	OutputStream3Width               uint16
	StandardRevisionNumber           uint16
	AlternativeCharSetBaseAddress    uint16
	ExtensionTableBaseAddress        uint16
	UnicodeExtensionTableBaseAddress uint16
}

// LoadCore takes ownership of the story file bytes. A pristine copy is kept
// for restart, verify and the compressed save diff before the interpreter
// identity bytes are stamped into the header.
func LoadCore(storyFile []uint8) Core {
	version := storyFile[0]
	if version < 3 || version == 6 || version > 8 {
		panic(Fault{Kind: UnsupportedVersion, Detail: fmt.Sprintf("story file version %d", version)})
	}

	pristine := make([]uint8, len(storyFile))
	copy(pristine, storyFile)

	core := Core{
		bytes:    storyFile,
		pristine: pristine,
	}
	core.stampHeader()
	core.parseHeader()

	return core
}

// stampHeader writes the interpreter identity into the header. Front-ends
// may overwrite the screen metrics afterwards via UpdateScreenSize.
func (core *Core) stampHeader() {
	bytes := core.bytes

	bytes[0x1e] = 0x6 // Interpreter number - IBM PC chosen as closest match
	bytes[0x1f] = 0x1 // Interpreter version - nobody cares

	bytes[0x20] = 25 // Screen height (lines)
	bytes[0x21] = 80 // Screen width (characters)
	binary.BigEndian.PutUint16(bytes[0x22:0x24], 80)
	binary.BigEndian.PutUint16(bytes[0x24:0x26], 25)
	bytes[0x26] = 1 // Font width/height are 1x1 units on a character display
	bytes[0x27] = 1

	// Claim that this interpreter supports v1.1 of the spec
	bytes[0x32] = 0x1
	bytes[0x33] = 0x1

	// Flags1 capability bits
	if bytes[0] <= 3 {
		bytes[1] |= 0b0010_0000 // split screen available
		bytes[1] &= 0b1011_1111 // variable pitch font is not the default
	} else {
		// colours (0x01), bold (0x04), italic (0x08), fixed pitch (0x10), timed input (0x80)
		bytes[1] |= 0b1001_1101
		bytes[1] &= 0b1111_1101 // no pictures
	}
}

func (core *Core) parseHeader() {
	bytes := core.bytes

	extensionTableBaseAddress := binary.BigEndian.Uint16(bytes[0x36:0x38])
	unicodeExtensionTableBaseAddress := uint16(0)
	if extensionTableBaseAddress != 0 && binary.BigEndian.Uint16(bytes[extensionTableBaseAddress:extensionTableBaseAddress+2]) >= 3 {
		unicodeExtensionTableBaseAddress = binary.BigEndian.Uint16(bytes[extensionTableBaseAddress+6 : extensionTableBaseAddress+8])
	}

	core.Version = bytes[0x00]
	core.FlagByte1 = bytes[0x01]
	core.StatusBarTimeBased = bytes[0x01]&0b0000_0010 == 0b0000_0010
	core.ReleaseNumber = binary.BigEndian.Uint16(bytes[0x02:0x04])
	core.PagedMemoryBase = binary.BigEndian.Uint16(bytes[0x04:0x06])
	core.FirstInstruction = binary.BigEndian.Uint16(bytes[0x06:0x08])
	core.DictionaryBase = binary.BigEndian.Uint16(bytes[0x08:0x0a])
	core.ObjectTableBase = binary.BigEndian.Uint16(bytes[0x0a:0x0c])
	core.GlobalVariableBase = binary.BigEndian.Uint16(bytes[0x0c:0x0e])
	core.StaticMemoryBase = binary.BigEndian.Uint16(bytes[0x0e:0x10])
	core.AbbreviationTableBase = binary.BigEndian.Uint16(bytes[0x18:0x1a])
	core.FileChecksum = binary.BigEndian.Uint16(bytes[0x1c:0x1e])
	core.InterpreterNumber = bytes[0x1e]
	core.InterpreterVersion = bytes[0x1f]
	core.ScreenHeightLines = bytes[0x20]
	core.ScreenWidthChars = bytes[0x21]
	core.ScreenWidthUnits = binary.BigEndian.Uint16(bytes[0x22:0x24])
	core.ScreenHeightUnits = binary.BigEndian.Uint16(bytes[0x24:0x26])
	core.FontHeight = bytes[0x26]
	core.FontWidth = bytes[0x27]
	core.RoutinesOffset = binary.BigEndian.Uint16(bytes[0x28:0x2a])
	core.StringOffset = binary.BigEndian.Uint16(bytes[0x2a:0x2c])
	core.TerminatingCharTableBase = binary.BigEndian.Uint16(bytes[0x2e:0x30])
	core.OutputStream3Width = binary.BigEndian.Uint16(bytes[0x30:0x32])
	core.StandardRevisionNumber = binary.BigEndian.Uint16(bytes[0x32:0x34])
	core.AlternativeCharSetBaseAddress = binary.BigEndian.Uint16(bytes[0x34:0x36])
	core.ExtensionTableBaseAddress = extensionTableBaseAddress
	core.UnicodeExtensionTableBaseAddress = unicodeExtensionTableBaseAddress
}

// Serial returns the 6 byte serial code from the header.
func (core *Core) Serial() []uint8 {
	return core.bytes[0x12:0x18]
}

// FileLength returns the story length declared in the header, scaled by the
// per-version size factor.
func (core *Core) FileLength() uint32 {
	var factor uint32
	switch {
	case core.Version <= 3:
		factor = 2
	case core.Version <= 5:
		factor = 4
	default:
		factor = 8
	}
	length := uint32(binary.BigEndian.Uint16(core.bytes[0x1a:0x1c])) * factor
	if length == 0 || length > uint32(len(core.bytes)) {
		length = uint32(len(core.bytes))
	}
	return length
}

// Checksum sums the pristine image from 0x40 to the declared file length,
// modulo 2^16. The pristine copy is used so that a game scribbling over its
// own dynamic memory cannot fail a later verify.
func (core *Core) Checksum() uint16 {
	sum := uint16(0)
	for _, b := range core.pristine[0x40:core.FileLength()] {
		sum += uint16(b)
	}
	return sum
}

// dataTop is the first address not readable as data. Static memory cannot
// extend past 0xFFFF; anything above is only reachable through instruction
// or string fetches.
func (core *Core) dataTop() uint32 {
	if len(core.bytes) < 0x10000 {
		return uint32(len(core.bytes))
	}
	return 0x10000
}

func (core *Core) ReadByte(address uint32) uint8 {
	if address >= core.dataTop() {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("data read of high memory at %#x", address)})
	}
	return core.bytes[address]
}

func (core *Core) ReadHalfWord(address uint32) uint16 {
	if address+1 >= core.dataTop() {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("data read of high memory at %#x", address)})
	}
	return binary.BigEndian.Uint16(core.bytes[address : address+2])
}

// FetchByte reads without the static/high distinction. Used for instruction
// and z-string fetches, which may legally sit above 0xFFFF.
func (core *Core) FetchByte(address uint32) uint8 {
	if address >= uint32(len(core.bytes)) {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("fetch past end of story at %#x", address)})
	}
	return core.bytes[address]
}

func (core *Core) FetchHalfWord(address uint32) uint16 {
	if address+1 >= uint32(len(core.bytes)) {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("fetch past end of story at %#x", address)})
	}
	return binary.BigEndian.Uint16(core.bytes[address : address+2])
}

// ReadSlice returns a view of memory. Callers must not write through it.
func (core *Core) ReadSlice(startAddress uint32, endAddress uint32) []uint8 {
	if endAddress > uint32(len(core.bytes)) || startAddress > endAddress {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("slice read %#x..%#x out of range", startAddress, endAddress)})
	}
	return core.bytes[startAddress:endAddress]
}

func (core *Core) WriteByte(address uint32, value uint8) {
	if address >= uint32(core.StaticMemoryBase) {
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("write to static memory at %#x", address)})
	}

	if address < 0x40 {
		core.writeHeaderByte(address, value)
		return
	}

	core.bytes[address] = value
}

// WriteHalfWord is two byte writes, so header side effects apply per byte.
func (core *Core) WriteHalfWord(address uint32, value uint16) {
	core.WriteByte(address, uint8(value>>8))
	core.WriteByte(address+1, uint8(value))
}

// Only Flags1 and the low byte of Flags2 are writable after initialisation.
// A change to Flags2 bit 0 toggles the transcript stream; if the front-end
// fails to open the transcript the bit stays unchanged.
func (core *Core) writeHeaderByte(address uint32, value uint8) {
	switch address {
	case 0x01:
		core.bytes[0x01] = value
		core.FlagByte1 = value
	case 0x10:
		// High byte of Flags2 is reserved; the write is tolerated but the
		// stored bits stay as they were.
	case 0x11:
		oldBit := core.bytes[0x11] & 1
		newBit := value & 1
		if oldBit != newBit && core.OnTranscriptToggle != nil {
			if !core.OnTranscriptToggle(newBit == 1) {
				value = (value &^ 1) | oldBit
			}
		}
		core.bytes[0x11] = value
	default:
		panic(Fault{Kind: IllegalAccess, Detail: fmt.Sprintf("write to read-only header byte %#x", address)})
	}
}

// PutHeaderByte writes a header byte without the protection rules. Used for
// interpreter-owned fields (screen metrics, default colours, Flags2
// restoration across restart/restore).
func (core *Core) PutHeaderByte(address uint32, value uint8) {
	core.bytes[address] = value
}

func (core *Core) SetDefaultBackgroundColorNumber(color uint8) {
	core.bytes[0x2c] = color
}

func (core *Core) SetDefaultForegroundColorNumber(color uint8) {
	core.bytes[0x2d] = color
}

func (core *Core) DefaultBackgroundColorNumber() uint8 {
	return core.bytes[0x2c]
}

func (core *Core) DefaultForegroundColorNumber() uint8 {
	return core.bytes[0x2d]
}

// UpdateScreenSize restamps the screen metric header fields, e.g. after a
// terminal resize.
func (core *Core) UpdateScreenSize(rows uint8, columns uint8) {
	core.bytes[0x20] = rows
	core.bytes[0x21] = columns
	binary.BigEndian.PutUint16(core.bytes[0x22:0x24], uint16(columns))
	binary.BigEndian.PutUint16(core.bytes[0x24:0x26], uint16(rows))
	core.ScreenHeightLines = rows
	core.ScreenWidthChars = columns
	core.ScreenWidthUnits = uint16(columns)
	core.ScreenHeightUnits = uint16(rows)
}

// Flags2 returns the full Flags2 word.
func (core *Core) Flags2() uint16 {
	return binary.BigEndian.Uint16(core.bytes[0x10:0x12])
}

// TranscriptBit reports Flags2 bit 0.
func (core *Core) TranscriptBit() bool {
	return core.bytes[0x11]&1 == 1
}

// SetTranscriptBit flips Flags2 bit 0 without invoking the toggle hook.
// Used when the stream change originates from output_stream rather than a
// game write.
func (core *Core) SetTranscriptBit(on bool) {
	if on {
		core.bytes[0x11] |= 1
	} else {
		core.bytes[0x11] &^= 1
	}
}

// Restart reloads memory from the pristine image, preserving the transcript
// and fixed-pitch bits of Flags2, and restamps the interpreter identity.
func (core *Core) Restart() {
	preserved := core.bytes[0x11] & 0b11
	copy(core.bytes, core.pristine)
	core.stampHeader()
	core.bytes[0x11] = (core.bytes[0x11] &^ 0b11) | preserved
	core.parseHeader()
}

// DynamicMemory returns a copy of the dynamic region.
func (core *Core) DynamicMemory() []uint8 {
	dynamic := make([]uint8, core.StaticMemoryBase)
	copy(dynamic, core.bytes[:core.StaticMemoryBase])
	return dynamic
}

// SetDynamicMemory replaces the dynamic region, e.g. from a UMem chunk.
func (core *Core) SetDynamicMemory(raw []uint8) bool {
	if len(raw) != int(core.StaticMemoryBase) {
		return false
	}
	copy(core.bytes[:core.StaticMemoryBase], raw)
	return true
}

func (core *Core) MemoryLength() uint32 {
	return uint32(len(core.bytes))
}
