package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davetcode/zeta/config"
	"github.com/davetcode/zeta/selectstoryui"
	"github.com/davetcode/zeta/zmachine"
	"github.com/muesli/reflow/wordwrap"
)

var (
	romFilePath    string
	configFilePath string
	baseAppStyle   lipgloss.Style
)

type textUpdateMessage string
type eraseLineRequest zmachine.EraseLineRequest
type eraseWindowRequest zmachine.EraseWindowRequest
type statusBarMessage zmachine.StatusBar
type screenModelMessage zmachine.ScreenModel
type inputRequestMessage zmachine.InputRequest
type saveRequestMessage zmachine.Save
type restoreRequestMessage zmachine.Restore
type transcriptControlMessage zmachine.TranscriptControl
type transcriptTextMessage zmachine.TranscriptText
type commandControlMessage zmachine.CommandControl
type commandTextMessage zmachine.CommandText
type restartRequest bool
type runtimeErrorMessage zmachine.RuntimeError
type warningMessage zmachine.Warning
type soundEffectRequest zmachine.SoundEffectRequest

// inputTimeoutMsg fires when a timed input request expires; the payload is
// the deadline id so stale timers from superseded requests are ignored.
type inputTimeoutMsg int

// keyToZChar maps Bubble Tea key messages to Z-machine character codes.
// Function keys are mapped according to the Z-machine spec section 10.5.2.1:
//   - 129-132: Cursor keys (up, down, left, right)
//   - 133-144: Function keys F1-F12
//
// Escape, Enter and Delete map to 27, 13 and 8. The keypad codes (145-154)
// and the menu/mouse codes (252-254) are never produced; any other key
// maps to 0.
func keyToZChar(msg tea.KeyMsg) uint8 {
	switch msg.Type {
	case tea.KeyUp:
		return 129
	case tea.KeyDown:
		return 130
	case tea.KeyLeft:
		return 131
	case tea.KeyRight:
		return 132
	case tea.KeyF1:
		return 133
	case tea.KeyF2:
		return 134
	case tea.KeyF3:
		return 135
	case tea.KeyF4:
		return 136
	case tea.KeyF5:
		return 137
	case tea.KeyF6:
		return 138
	case tea.KeyF7:
		return 139
	case tea.KeyF8:
		return 140
	case tea.KeyF9:
		return 141
	case tea.KeyF10:
		return 142
	case tea.KeyF11:
		return 143
	case tea.KeyF12:
		return 144
	case tea.KeyEscape:
		return 27 // ESC character
	case tea.KeyEnter:
		return 13 // Carriage return
	case tea.KeyDelete:
		return 8 // Delete/backspace
	default:
		return 0
	}
}

// isValidTerminator checks if a key code is in the list of valid terminators
func isValidTerminator(keyCode uint8, validTerminators []uint8) bool {
	if keyCode == 0 {
		return false
	}
	for _, t := range validTerminators {
		if t == keyCode {
			return true
		}
	}
	return false
}

type runningStoryState int

const (
	appRunning             runningStoryState = iota
	appWaitingForInput     runningStoryState = iota
	appWaitingForCharacter runningStoryState = iota
)

type runStoryModel struct {
	outputChannel            <-chan any
	sendChannel              chan<- zmachine.InputResponse
	saveRestoreChannel       chan<- zmachine.SaveRestoreResponse
	zMachine                 *zmachine.ZMachine
	cfg                      *config.Config
	romFilePath              string
	statusBar                zmachine.StatusBar
	screenModel              zmachine.ScreenModel
	lowerWindowTextPreStyled string
	lowerWindowText          string
	upperWindowText          []string
	upperWindowStyle         [][]lipgloss.Style
	appState                 runningStoryState
	currentInputRequest      zmachine.InputRequest
	inputDeadlineID          int
	inputBox                 textinput.Model
	width                    int
	height                   int
	backgroundStyle          lipgloss.Style
	statusBarStyle           lipgloss.Style
	upperWindowStyleCurrent  lipgloss.Style
	lowerWindowStyle         lipgloss.Style
	runtimeError             string
	transcriptFile           *os.File
	commandFile              *os.File
}

func (m runStoryModel) Init() tea.Cmd {
	return tea.Batch(
		waitForInterpreter(m.outputChannel),
		runInterpreter(m.zMachine),
		tea.Sequence(
			tea.SetWindowTitle(m.romFilePath),
			tea.WindowSize(),
		),
	)
}

func runInterpreter(z *zmachine.ZMachine) tea.Cmd {
	return func() tea.Msg {
		z.Run()

		return nil
	}
}

// scheduleTimeout arms the timer for a timed input request.
func (m *runStoryModel) scheduleTimeout() tea.Cmd {
	if m.currentInputRequest.TimeoutMillis <= 0 {
		return nil
	}

	id := m.inputDeadlineID
	return tea.Tick(time.Duration(m.currentInputRequest.TimeoutMillis)*time.Millisecond, func(time.Time) tea.Msg {
		return inputTimeoutMsg(id)
	})
}

func (m runStoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg: // Handle window resize events
		m.width = msg.Width
		m.height = msg.Height

		if m.height < len(m.upperWindowText) {
			m.upperWindowText = m.upperWindowText[:m.height]
			m.upperWindowStyle = m.upperWindowStyle[:m.height]
		} else {
			for range int(math.Min(float64(m.height-len(m.upperWindowText)), float64(m.screenModel.UpperWindowHeight))) {
				m.upperWindowText = append(m.upperWindowText, strings.Repeat(" ", m.width))
				m.upperWindowStyle = append(m.upperWindowStyle, slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width))
			}
		}

		// Keep the upper window at exactly the size of the screen
		for ix, row := range m.upperWindowText {
			if m.width < len(row) {
				m.upperWindowText[ix] = row[:m.width]
				m.upperWindowStyle[ix] = m.upperWindowStyle[ix][:m.width]
			} else if m.width > len(row) {
				for ii := len(row); ii < m.width; ii++ {
					m.upperWindowText[ix] = m.upperWindowText[ix] + " "
					m.upperWindowStyle[ix] = append(m.upperWindowStyle[ix], baseAppStyle)
				}
			}
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			os.Exit(0)
		}

		switch m.appState {
		case appWaitingForCharacter:
			m.appState = appRunning
			m.inputDeadlineID++
			if len(msg.Runes) > 0 {
				m.sendChannel <- zmachine.InputResponse{Text: string(msg.Runes[0]), TerminatingKey: 0}
			} else {
				// Map special keys to Z-machine character codes
				keyCode := keyToZChar(msg)
				m.sendChannel <- zmachine.InputResponse{Text: "", TerminatingKey: keyCode}
			}
		case appWaitingForInput:
			// Check if this key is a valid terminator
			keyCode := keyToZChar(msg)
			if msg.Type == tea.KeyEnter || isValidTerminator(keyCode, m.currentInputRequest.ValidTerminators) {
				m.appState = appRunning
				m.inputDeadlineID++
				m.lowerWindowText += m.inputBox.Value() + "\n"
				terminatingKey := uint8(13) // Default to carriage return
				if msg.Type != tea.KeyEnter {
					terminatingKey = keyCode
				}
				m.sendChannel <- zmachine.InputResponse{Text: m.inputBox.Value(), TerminatingKey: terminatingKey}
				m.inputBox.SetValue("")
			}
		}

	case inputTimeoutMsg:
		// Only honour the timer for the request that armed it
		if int(msg) == m.inputDeadlineID && m.appState != appRunning {
			m.appState = appRunning
			m.inputDeadlineID++
			m.sendChannel <- zmachine.InputResponse{TimedOut: true, Text: m.inputBox.Value()}
		}

	case textUpdateMessage:
		if m.screenModel.LowerWindowActive {
			// In anything other than v6 the bottom window is append only
			m.lowerWindowText += string(msg)
		} else {
			// Upper window - handle text, splitting on newlines
			text := string(msg)
			segments := strings.Split(text, "\n")
			cursorX := m.screenModel.UpperWindowCursorX - 1
			cursorY := m.screenModel.UpperWindowCursorY - 1

			for segIdx, segment := range segments {
				if cursorY >= 0 && cursorY < len(m.upperWindowText) {
					row := m.upperWindowText[cursorY]

					// Update styles for each character being written
					if cursorY < len(m.upperWindowStyle) {
						for i := 0; i < len(segment) && cursorX+i < len(m.upperWindowStyle[cursorY]); i++ {
							m.upperWindowStyle[cursorY][cursorX+i] = m.upperWindowStyleCurrent
						}
					}

					if cursorX >= 0 && cursorX < len(row) {
						before := row[:cursorX]
						// Replace characters at cursor position (not insert)
						afterStart := cursorX + len(segment)
						after := ""
						if afterStart < len(row) {
							after = row[afterStart:]
						}
						fullText := before + segment + after
						if len(fullText) > m.width {
							fullText = fullText[:m.width]
						}
						m.upperWindowText[cursorY] = fullText
					}
				}

				// After each segment (except the last), move to next line
				if segIdx < len(segments)-1 {
					cursorY++
					cursorX = 0
				}
			}
		}

		return m, waitForInterpreter(m.outputChannel)

	case inputRequestMessage:
		m.currentInputRequest = zmachine.InputRequest(msg)
		m.inputDeadlineID++
		if msg.SingleCharacter {
			m.appState = appWaitingForCharacter
		} else {
			m.appState = appWaitingForInput
			m.inputBox.SetValue(msg.Preload)
			m.inputBox.CursorEnd()
		}
		return m, tea.Batch(waitForInterpreter(m.outputChannel), m.scheduleTimeout())

	case saveRequestMessage:
		filename := msg.Filename
		if filename == "" {
			filename = m.defaultSaveFilename()
		}
		if m.cfg.Interpreter.SaveDir != "" {
			os.MkdirAll(m.cfg.Interpreter.SaveDir, 0755) // nolint:errcheck
			filename = filepath.Join(m.cfg.Interpreter.SaveDir, filepath.Base(filename))
		}
		err := os.WriteFile(filename, msg.Data, 0644)
		m.saveRestoreChannel <- zmachine.SaveResponse{Success: err == nil}
		return m, waitForInterpreter(m.outputChannel)

	case restoreRequestMessage:
		filename := msg.Filename
		if filename == "" {
			filename = m.defaultSaveFilename()
		}
		if m.cfg.Interpreter.SaveDir != "" {
			filename = filepath.Join(m.cfg.Interpreter.SaveDir, filepath.Base(filename))
		}
		data, err := os.ReadFile(filename)
		if err != nil {
			m.saveRestoreChannel <- zmachine.RestoreResponse{Success: false}
		} else {
			m.saveRestoreChannel <- zmachine.RestoreResponse{Success: true, Data: data}
		}
		return m, waitForInterpreter(m.outputChannel)

	case transcriptControlMessage:
		if bool(msg) {
			if m.transcriptFile == nil {
				path := m.cfg.Files.TranscriptFile
				if path == "" {
					path = m.defaultStreamFilename("script")
				}
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					m.saveRestoreChannel <- zmachine.SaveResponse{Success: false}
					return m, waitForInterpreter(m.outputChannel)
				}
				m.transcriptFile = f
			}
			m.saveRestoreChannel <- zmachine.SaveResponse{Success: true}
		} else {
			if m.transcriptFile != nil {
				m.transcriptFile.Close() // nolint:errcheck
				m.transcriptFile = nil
			}
			m.saveRestoreChannel <- zmachine.SaveResponse{Success: true}
		}
		return m, waitForInterpreter(m.outputChannel)

	case transcriptTextMessage:
		if m.transcriptFile != nil {
			m.transcriptFile.WriteString(string(msg)) // nolint:errcheck
		}
		return m, waitForInterpreter(m.outputChannel)

	case commandControlMessage:
		if bool(msg) {
			if m.commandFile == nil {
				path := m.cfg.Files.CommandFile
				if path == "" {
					path = m.defaultStreamFilename("commands")
				}
				if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
					m.commandFile = f
				}
			}
		} else if m.commandFile != nil {
			m.commandFile.Close() // nolint:errcheck
			m.commandFile = nil
		}
		return m, waitForInterpreter(m.outputChannel)

	case commandTextMessage:
		if m.commandFile != nil {
			m.commandFile.WriteString(string(msg)) // nolint:errcheck
		}
		return m, waitForInterpreter(m.outputChannel)

	case statusBarMessage:
		m.statusBar = zmachine.StatusBar(msg)
		return m, waitForInterpreter(m.outputChannel)

	case screenModelMessage:
		m.screenModel = zmachine.ScreenModel(msg)
		if len(m.upperWindowText) != m.screenModel.UpperWindowHeight {
			if len(m.upperWindowText) > m.screenModel.UpperWindowHeight {
				m.upperWindowText = m.upperWindowText[:m.screenModel.UpperWindowHeight]
				m.upperWindowStyle = m.upperWindowStyle[:m.screenModel.UpperWindowHeight]
			} else {
				for range m.screenModel.UpperWindowHeight - len(m.upperWindowText) {
					m.upperWindowText = append(m.upperWindowText, strings.Repeat(" ", m.width))
					m.upperWindowStyle = append(m.upperWindowStyle, slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width))
				}
			}
		}

		// Only flush the lower window text to the prestyled buffer when there's a change to the screen
		// model to avoid performance hit by too many ascii codes
		prerenderLowerWindowText(&m)

		m.lowerWindowStyle = m.lowerWindowStyle.
			Background(lipgloss.Color(m.screenModel.LowerWindowBackground.ToHex())).
			Foreground(lipgloss.Color(m.screenModel.LowerWindowForeground.ToHex())).
			Bold(m.screenModel.LowerWindowTextStyle&zmachine.Bold == zmachine.Bold).
			Italic(m.screenModel.LowerWindowTextStyle&zmachine.Italic == zmachine.Italic).
			Reverse(m.screenModel.LowerWindowTextStyle&zmachine.ReverseVideo == zmachine.ReverseVideo).
			Inline(true)
		m.upperWindowStyleCurrent = m.upperWindowStyleCurrent.
			Background(lipgloss.Color(m.screenModel.UpperWindowBackground.ToHex())).
			Foreground(lipgloss.Color(m.screenModel.UpperWindowForeground.ToHex())).
			Bold(m.screenModel.UpperWindowTextStyle&zmachine.Bold == zmachine.Bold).
			Italic(m.screenModel.UpperWindowTextStyle&zmachine.Italic == zmachine.Italic).
			Reverse(m.screenModel.UpperWindowTextStyle&zmachine.ReverseVideo == zmachine.ReverseVideo)
		m.statusBarStyle = m.lowerWindowStyle.Reverse(true)
		m.backgroundStyle = m.backgroundStyle.
			Background(lipgloss.Color(m.screenModel.DefaultLowerWindowBackground.ToHex())).
			Foreground(lipgloss.Color(m.screenModel.DefaultLowerWindowForeground.ToHex()))

		return m, waitForInterpreter(m.outputChannel)

	case restartRequest:
		// The machine reloads its own memory; clear the rendered screen
		m.lowerWindowText = ""
		m.lowerWindowTextPreStyled = ""
		for row := range len(m.upperWindowText) {
			m.upperWindowText[row] = strings.Repeat(" ", m.width)
			m.upperWindowStyle[row] = slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width)
		}
		m.appState = appRunning
		return m, waitForInterpreter(m.outputChannel)

	case eraseLineRequest:
		// Don't think you can erase line in lower window
		if !m.screenModel.LowerWindowActive {
			line := m.screenModel.UpperWindowCursorY - 1
			start := m.screenModel.UpperWindowCursorX - 1
			if line >= 0 && line < len(m.upperWindowText) && start >= 0 && start < len(m.upperWindowText[line]) {
				row := m.upperWindowText[line]
				before := row[:start]
				after := row[start:]
				fullText := before + strings.Repeat(" ", len(after))
				if len(fullText) > m.width {
					fullText = fullText[:m.width]
				}
				m.upperWindowText[line] = fullText
			}
		}

		return m, waitForInterpreter(m.outputChannel)

	case eraseWindowRequest:
		switch int(msg) {
		case -2: // Keep split windows and clear both
			m.lowerWindowText = ""
			m.lowerWindowTextPreStyled = ""
			for row := range m.screenModel.UpperWindowHeight {
				if row < len(m.upperWindowText) {
					m.upperWindowText[row] = strings.Repeat(" ", m.width)
					m.upperWindowStyle[row] = slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width)
				}
			}
		case -1: // Unsplit the window and clear both
			m.lowerWindowText = ""
			m.lowerWindowTextPreStyled = ""
			for row := range len(m.upperWindowText) {
				m.upperWindowText[row] = strings.Repeat(" ", m.width)
				m.upperWindowStyle[row] = slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width)
			}
		case 0: // Clear lower window
			m.lowerWindowText = ""
			m.lowerWindowTextPreStyled = ""
		case 1: // Clear upper window
			for row := range m.screenModel.UpperWindowHeight {
				if row < len(m.upperWindowText) {
					m.upperWindowText[row] = strings.Repeat(" ", m.width)
					m.upperWindowStyle[row] = slices.Repeat([]lipgloss.Style{baseAppStyle}, m.width)
				}
			}
		}

		return m, waitForInterpreter(m.outputChannel)

	case runtimeErrorMessage:
		m.runtimeError = string(msg)
		return m, tea.Quit

	case warningMessage:
		// Warnings are non-fatal - print to stderr and continue
		fmt.Fprintf(os.Stderr, "%s\n", msg)
		return m, waitForInterpreter(m.outputChannel)

	case soundEffectRequest:
		switch msg.SoundNumber {
		case 1, 2: // High/low pitched bleeps
			fmt.Print("\a")
		default:
			// No sampled sound on a plain terminal; report completion
			// straight away so a finish routine still runs
			if msg.Effect == 2 && msg.Routine != 0 {
				send := m.sendChannel
				go func() { send <- zmachine.InputResponse{SoundFinished: true} }()
			}
		}

		return m, waitForInterpreter(m.outputChannel)
	}

	if m.appState == appWaitingForInput {
		m.inputBox, cmd = m.inputBox.Update(msg)
	}

	return m, cmd
}

func prerenderLowerWindowText(m *runStoryModel) {
	if m.lowerWindowText != "" {
		lines := strings.Split(m.lowerWindowText, "\n")
		for ix, line := range lines {
			lines[ix] = m.lowerWindowStyle.Render(line)
		}
		m.lowerWindowTextPreStyled += strings.Join(lines, "\n")
		m.lowerWindowText = ""
	}
}

// defaultSaveFilename derives a save filename from the ROM file path.
// It replaces the .z* extension with .sav, e.g., "zork1.z3" -> "zork1.sav"
func (m runStoryModel) defaultSaveFilename() string {
	return m.defaultStreamFilename("sav")
}

func (m runStoryModel) defaultStreamFilename(newExtension string) string {
	if m.romFilePath == "" {
		return "game." + newExtension
	}
	base := filepath.Base(m.romFilePath)
	ext := filepath.Ext(base)
	if len(ext) >= 2 && (ext[1] == 'z' || ext[1] == 'Z') {
		base = base[:len(base)-len(ext)]
	}
	return base + "." + newExtension
}

func createStatusLine(width int, placeName string, scoreOrHours int, movesOrMinutes int, isTimeBasedGame bool) string {
	rightHandSide := fmt.Sprintf("Score: %d    Moves %d", scoreOrHours, movesOrMinutes)

	if isTimeBasedGame {
		meridiem := "AM"
		hours := scoreOrHours
		if hours >= 12 {
			meridiem = "PM"
			hours -= 12
		}
		if hours == 0 {
			hours = 12
		}
		rightHandSide = fmt.Sprintf("Time: %d:%02d %s", hours, movesOrMinutes, meridiem)
	}

	// Too narrow to show properly so just show as much of the score/time/moves as we can manage
	if len(rightHandSide) >= width {
		return rightHandSide[:width]
	}

	if len(placeName)+len(rightHandSide)+1 >= width {
		return fmt.Sprintf("%s %s", placeName[:width-len(rightHandSide)-1], rightHandSide)
	}

	numberSpaces := width - len(placeName) - len(rightHandSide)

	return fmt.Sprintf("%s%s%s", placeName, strings.Repeat(" ", numberSpaces), rightHandSide)
}

func (m runStoryModel) View() string {
	// If there was a runtime error, display it
	if m.runtimeError != "" {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
		return fmt.Sprintf("\n%s\n\n%s\n", errorStyle.Render("Z-Machine Error:"), m.runtimeError)
	}

	// Wait until the screen has loaded properly to print anything
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	s := strings.Builder{}
	lowerWindowHeight := m.height

	if m.statusBar.PlaceName != "" {
		s.WriteString(m.statusBarStyle.Render(createStatusLine(m.width, m.statusBar.PlaceName, m.statusBar.Score, m.statusBar.Moves, m.statusBar.IsTimeBased)))
		s.WriteString(m.lowerWindowStyle.Render("\n"))
		lowerWindowHeight -= 2 // 2 fewer lines to work with if there's a status bar
	} else {
		lowerWindowHeight -= m.screenModel.UpperWindowHeight

		var text strings.Builder
		var currentText strings.Builder
		var currentStyle lipgloss.Style
		for row, styleRow := range m.upperWindowStyle {
			for col, chrStyle := range styleRow {
				if chrStyle.GetBackground() != currentStyle.GetBackground() ||
					chrStyle.GetForeground() != currentStyle.GetForeground() ||
					chrStyle.GetBlink() != currentStyle.GetBlink() ||
					chrStyle.GetBold() != currentStyle.GetBold() ||
					chrStyle.GetItalic() != currentStyle.GetItalic() ||
					chrStyle.GetReverse() != currentStyle.GetReverse() {
					if currentText.Len() > 0 {
						text.WriteString(currentStyle.Render(currentText.String()))
					}
					currentStyle = chrStyle
					currentText.Reset()
				}
				currentText.WriteRune([]rune(m.upperWindowText[row])[col])
			}
			currentText.WriteByte('\n')
		}
		if currentText.Len() > 0 {
			text.WriteString(currentStyle.Render(currentText.String()))
		}
		s.WriteString(text.String())
	}

	// Text must be pre-rendered in relevant style in the outputText as styles
	// can change during screen usage
	prerenderLowerWindowText(&m)
	fullLowerWindowText := m.lowerWindowTextPreStyled

	wordWrappedBody := wordwrap.String(fullLowerWindowText, m.width)

	lines := strings.Split(wordWrappedBody, "\n")

	if len(lines) > lowerWindowHeight-2 {
		lines = lines[len(lines)-lowerWindowHeight+2:]
	}
	s.WriteString(strings.Join(lines, "\n"))

	if m.appState == appWaitingForInput {
		s.WriteString(m.lowerWindowStyle.Render("\n" + m.inputBox.View()))
	}

	return m.backgroundStyle.
		Width(m.width).
		Height(m.height).
		Render(s.String())
}

func waitForInterpreter(sub <-chan any) tea.Cmd {
	return func() tea.Msg {
		msg := <-sub
		switch msg := msg.(type) {
		case zmachine.InputRequest:
			return inputRequestMessage(msg)
		case zmachine.Save:
			return saveRequestMessage(msg)
		case zmachine.Restore:
			return restoreRequestMessage(msg)
		case zmachine.TranscriptControl:
			return transcriptControlMessage(msg)
		case zmachine.TranscriptText:
			return transcriptTextMessage(msg)
		case zmachine.CommandControl:
			return commandControlMessage(msg)
		case zmachine.CommandText:
			return commandTextMessage(msg)
		case zmachine.EraseWindowRequest:
			return eraseWindowRequest(msg)
		case zmachine.EraseLineRequest:
			return eraseLineRequest(msg)
		case zmachine.StatusBar:
			return statusBarMessage(msg)
		case zmachine.ScreenModel:
			return screenModelMessage(msg)
		case string:
			return textUpdateMessage(msg)
		case zmachine.Quit:
			return tea.Quit()
		case zmachine.Restart:
			return restartRequest(true)
		case zmachine.RuntimeError:
			return runtimeErrorMessage(msg)
		case zmachine.Warning:
			return warningMessage(msg)
		case zmachine.SoundEffectRequest:
			return soundEffectRequest(msg)
		default:
			return runtimeErrorMessage(zmachine.RuntimeError("Invalid message type sent from interpreter"))
		}
	}
}

func init() {
	flag.StringVar(&romFilePath, "rom", "", "The path of a z-machine rom")
	flag.StringVar(&configFilePath, "config", "", "Path to a TOML config file")
	flag.Parse()
}

func newApplicationModel(zMachine *zmachine.ZMachine, inputChannel chan<- zmachine.InputResponse, saveRestoreChannel chan<- zmachine.SaveRestoreResponse, outputChannel <-chan any, cfg *config.Config, romPath string) tea.Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 20
	ti.Prompt = ""

	return runStoryModel{
		outputChannel:           outputChannel,
		sendChannel:             inputChannel,
		saveRestoreChannel:      saveRestoreChannel,
		zMachine:                zMachine,
		cfg:                     cfg,
		romFilePath:             romPath,
		appState:                appRunning,
		inputBox:                ti,
		upperWindowStyleCurrent: lipgloss.NewStyle(),
		lowerWindowStyle:        lipgloss.NewStyle(),
		statusBarStyle:          lipgloss.NewStyle(),
		backgroundStyle:         lipgloss.NewStyle(),
	}
}

func startMachine(romBytes []uint8, cfg *config.Config, romPath string) tea.Model {
	zMachineOutputChannel := make(chan any)
	zMachineInputChannel := make(chan zmachine.InputResponse)
	zMachineSaveRestoreChannel := make(chan zmachine.SaveRestoreResponse)
	zMachine := zmachine.LoadRom(romBytes, zMachineInputChannel, zMachineSaveRestoreChannel, zMachineOutputChannel)

	if cfg.Interpreter.RandomSeed != 0 {
		zMachine.SetRandomSeed(cfg.Interpreter.RandomSeed)
	}
	if cfg.Screen.Rows != 0 && cfg.Screen.Columns != 0 {
		zMachine.Core.UpdateScreenSize(cfg.Screen.Rows, cfg.Screen.Columns)
	}

	return newApplicationModel(zMachine, zMachineInputChannel, zMachineSaveRestoreChannel, zMachineOutputChannel, cfg, romPath)
}

func main() {
	cfg, err := config.LoadOrDefault(configFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var model tea.Model

	if romFilePath != "" {
		romFileBytes, err := os.ReadFile(romFilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read story file: %v\n", err)
			os.Exit(1)
		}

		model = startMachine(romFileBytes, cfg, romFilePath)
	} else {
		model = selectstoryui.NewUIModel(func(romBytes []uint8, name string) tea.Model {
			return startMachine(romBytes, cfg, name)
		}, cfg.Stories.CacheDir)
	}

	tui := tea.NewProgram(model)

	if _, err := tui.Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
