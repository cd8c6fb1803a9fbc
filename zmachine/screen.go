package zmachine

import "fmt"

type TextStyle int

const (
	Roman        TextStyle = 0b0000_0000
	ReverseVideo TextStyle = 0b0000_0001
	Bold         TextStyle = 0b0000_0010
	Italic       TextStyle = 0b0000_0100
	FixedPitch   TextStyle = 0b0000_1000
)

type Color struct {
	r int
	g int
	b int
}

func (c Color) ToHex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// Font represents the available Z-machine fonts
type Font uint16

const (
	FontNormal     Font = 1
	FontPicture    Font = 2
	FontCharGraphs Font = 3
	FontFixedPitch Font = 4
)

// ScreenModel - This is very deliberately a _not_ V6 screen model
type ScreenModel struct {
	LowerWindowActive bool
	CurrentFont       Font

	UpperWindowHeight            int
	UpperWindowForeground        Color
	UpperWindowBackground        Color
	DefaultUpperWindowForeground Color
	DefaultUpperWindowBackground Color
	UpperWindowCursorX           int
	UpperWindowCursorY           int
	UpperWindowTextStyle         TextStyle

	DefaultLowerWindowForeground Color
	DefaultLowerWindowBackground Color
	LowerWindowForeground        Color
	LowerWindowBackground        Color
	LowerWindowTextStyle         TextStyle

	BufferOutput bool
}

// zmachineColor resolves a standard colour number. 0 keeps the current
// colour and 1 resets to the default; out of range numbers are recoverable
// and fall back to the current colour.
func (m *ScreenModel) zmachineColor(i uint16, isForeground bool) (Color, bool) {
	switch i {
	case 0: // CURRENT
		if isForeground {
			return m.currentForeground(), true
		}
		return m.currentBackground(), true
	case 1: // DEFAULT
		if isForeground {
			if m.LowerWindowActive {
				return m.DefaultLowerWindowForeground, true
			}
			return m.DefaultUpperWindowForeground, true
		}
		if m.LowerWindowActive {
			return m.DefaultLowerWindowBackground, true
		}
		return m.DefaultUpperWindowBackground, true
	case 2:
		return Color{0, 0, 0}, true
	case 3:
		return Color{255, 0, 0}, true
	case 4:
		return Color{0, 255, 0}, true
	case 5:
		return Color{255, 255, 0}, true
	case 6:
		return Color{0, 0, 255}, true
	case 7:
		return Color{255, 0, 255}, true
	case 8:
		return Color{0, 255, 255}, true
	case 9:
		return Color{255, 255, 255}, true
	case 10:
		return Color{192, 192, 192}, true
	case 11:
		return Color{128, 128, 128}, true
	case 12:
		return Color{64, 64, 64}, true
	default:
		if isForeground {
			return m.currentForeground(), false
		}
		return m.currentBackground(), false
	}
}

func (m *ScreenModel) currentForeground() Color {
	if m.LowerWindowActive {
		return m.LowerWindowForeground
	}
	return m.UpperWindowForeground
}

func (m *ScreenModel) currentBackground() Color {
	if m.LowerWindowActive {
		return m.LowerWindowBackground
	}
	return m.UpperWindowBackground
}

func newScreenModel(foregroundColor Color, backgroundColor Color) ScreenModel {
	return ScreenModel{
		LowerWindowActive:            true,
		CurrentFont:                  FontNormal,
		UpperWindowHeight:            0,
		DefaultUpperWindowForeground: foregroundColor,
		DefaultUpperWindowBackground: backgroundColor,
		UpperWindowForeground:        foregroundColor,
		UpperWindowBackground:        backgroundColor,
		UpperWindowCursorX:           1,
		UpperWindowCursorY:           1,
		UpperWindowTextStyle:         Roman,
		DefaultLowerWindowForeground: foregroundColor,
		DefaultLowerWindowBackground: backgroundColor,
		LowerWindowForeground:        foregroundColor,
		LowerWindowBackground:        backgroundColor,
		LowerWindowTextStyle:         Roman,
		BufferOutput:                 true,
	}
}
