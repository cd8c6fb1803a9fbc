package zmachine

// The machine talks to its front-end over channels: typed messages go out
// on the output channel; input and save/restore results come back on their
// own channels. The machine blocks while it waits, which is what makes
// read/read_char/save/restore the only suspension points.

type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

type Quit bool

type Restart bool

type EraseWindowRequest int

type EraseLineRequest bool

// TranscriptText is printed text bound for the stream 2 transcript file,
// which the front-end owns.
type TranscriptText string

// TranscriptControl opens (true) or closes the transcript file. The
// front-end replies on the save/restore channel with a SaveResponse whose
// Success reports whether the file could be opened.
type TranscriptControl bool

// CommandText is a completed input line bound for the stream 4 command
// file.
type CommandText string

// CommandControl opens or closes the command file.
type CommandControl bool

// InputRequest asks the front-end to collect input. For SingleCharacter
// requests the response carries one keypress; otherwise a line is
// collected until one of ValidTerminators is typed. A non-zero
// TimeoutMillis asks the front-end to give up after that long and reply
// with TimedOut set and any partial text.
type InputRequest struct {
	SingleCharacter  bool
	MaxChars         uint8
	Preload          string
	ValidTerminators []uint8
	TimeoutMillis    int
}

type InputResponse struct {
	Text           string
	TerminatingKey uint8
	TimedOut       bool
	// SoundFinished reports that the pending sound-effect finish routine
	// should run; the input request is then re-issued.
	SoundFinished bool
}

// Save asks the front-end to persist Data (a Quetzal blob for full saves,
// raw bytes for auxiliary saves). The reply is a SaveResponse.
type Save struct {
	Prompt   bool
	Filename string
	Data     []uint8
	// Auxiliary saves (save with table operands) set NumBytes non-zero.
	NumBytes uint32
}

// Restore asks the front-end for a previously saved blob.
type Restore struct {
	Prompt   bool
	Filename string
	NumBytes uint32
}

type SaveRestoreResponse interface {
	isSaveRestoreResponse()
}

type SaveResponse struct {
	Success bool
}

func (SaveResponse) isSaveRestoreResponse() {}

type RestoreResponse struct {
	Success bool
	Data    []uint8
}

func (RestoreResponse) isSaveRestoreResponse() {}

type SoundEffectRequest struct {
	SoundNumber uint16
	Effect      uint16
	Volume      uint8
	Repeats     uint8
	// Routine is non-zero when the game wants a callback on completion;
	// the front-end signals it with InputResponse.SoundFinished.
	Routine uint16
}
