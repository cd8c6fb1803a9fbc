package zstring

import "github.com/davetcode/zeta/zcore"

var a0Default = [26]rune{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z'}
var a1Default = [26]rune{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z'}

// Position 0 is the ZSCII escape and never read from the table; position 1
// is carriage return in v3+.
var a2Default = [26]rune{0, '\n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')'}

type alphabet int

const (
	a0 alphabet = 0
	a1 alphabet = 1
	a2 alphabet = 2
)

type Alphabets struct {
	A0 [26]rune
	A1 [26]rune
	A2 [26]rune
}

// LoadAlphabets returns the three alphabet tables for a story, reading the
// 78 byte custom table from the header on v5+ when one is present.
func LoadAlphabets(core *zcore.Core) *Alphabets {
	alphabets := Alphabets{A0: a0Default, A1: a1Default, A2: a2Default}

	if core.Version >= 5 && core.AlternativeCharSetBaseAddress != 0 {
		base := uint32(core.AlternativeCharSetBaseAddress)
		for i := 0; i < 26; i++ {
			alphabets.A0[i] = zsciiToRune(core.FetchByte(base+uint32(i)), core)
			alphabets.A1[i] = zsciiToRune(core.FetchByte(base+26+uint32(i)), core)
			alphabets.A2[i] = zsciiToRune(core.FetchByte(base+52+uint32(i)), core)
		}

		// A2 positions 0 and 1 keep their fixed meanings regardless of the
		// custom table contents.
		alphabets.A2[0] = 0
		alphabets.A2[1] = '\n'
	}

	return &alphabets
}

func (a *Alphabets) table(which alphabet) *[26]rune {
	switch which {
	case a1:
		return &a.A1
	case a2:
		return &a.A2
	default:
		return &a.A0
	}
}
