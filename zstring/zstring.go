package zstring

import "github.com/davetcode/zeta/zcore"

// Decode reads a packed z-string starting at address and returns the
// unicode text along with the number of bytes consumed. Each 16 bit word
// packs three 5 bit z-characters; a set high bit terminates the string.
func Decode(address uint32, core *zcore.Core, alphabets *Alphabets) (string, uint32) {
	return decode(address, core, alphabets, 0)
}

func decode(address uint32, core *zcore.Core, alphabets *Alphabets, abbreviationDepth int) (string, uint32) {
	bytesRead := uint32(0)
	var zchrs []uint8

	for {
		halfWord := core.FetchHalfWord(address + bytesRead)
		bytesRead += 2

		zchrs = append(zchrs, uint8((halfWord>>10)&0b11111), uint8((halfWord>>5)&0b11111), uint8(halfWord&0b11111))

		if halfWord>>15 == 1 {
			break
		}
	}

	var out []rune
	currentAlphabet := a0

	for i := 0; i < len(zchrs); i++ {
		zchr := zchrs[i]

		switch {
		case zchr == 0:
			out = append(out, ' ')
			currentAlphabet = a0

		case zchr <= 3: // abbreviation
			if i+1 >= len(zchrs) {
				break // string ends mid-abbreviation, drop it
			}
			i++
			// Published story files never nest abbreviations; two levels is
			// a safety bound against corrupt tables.
			if abbreviationDepth < 2 {
				out = append(out, []rune(findAbbreviation(core, alphabets, zchr, zchrs[i], abbreviationDepth))...)
			}
			currentAlphabet = a0

		case zchr == 4:
			currentAlphabet = a1

		case zchr == 5:
			currentAlphabet = a2

		case currentAlphabet == a2 && zchr == 6: // ZSCII escape
			if i+2 >= len(zchrs) {
				break // string ends mid-escape, drop it
			}
			code := uint16(zchrs[i+1])<<5 | uint16(zchrs[i+2])
			i += 2
			if r, ok := ZsciiToRune(code, core); ok {
				out = append(out, r)
			}
			currentAlphabet = a0

		default:
			out = append(out, alphabets.table(currentAlphabet)[zchr-6])
			currentAlphabet = a0
		}
	}

	return string(out), bytesRead
}

// KeyLength returns the number of z-characters in a dictionary key: 6 on
// v1-3 and 9 on v4+.
func KeyLength(version uint8) int {
	if version <= 3 {
		return 6
	}
	return 9
}

// Encode packs a word into its dictionary key form: z-characters padded
// with 5 to the key length and packed three per word with the final word's
// high bit set.
func Encode(word []rune, core *zcore.Core, alphabets *Alphabets) []uint8 {
	keyLength := KeyLength(core.Version)

	var zchrs []uint8
	for _, r := range word {
		if len(zchrs) >= keyLength {
			break
		}
		zchrs = append(zchrs, encodeRune(r, core, alphabets)...)
	}

	if len(zchrs) > keyLength {
		zchrs = zchrs[:keyLength]
	}
	for len(zchrs) < keyLength {
		zchrs = append(zchrs, 5)
	}

	out := make([]uint8, 0, keyLength/3*2)
	for i := 0; i < keyLength; i += 3 {
		halfWord := uint16(zchrs[i])<<10 | uint16(zchrs[i+1])<<5 | uint16(zchrs[i+2])
		if i+3 >= keyLength {
			halfWord |= 0x8000
		}
		out = append(out, uint8(halfWord>>8), uint8(halfWord))
	}

	return out
}

func encodeRune(r rune, core *zcore.Core, alphabets *Alphabets) []uint8 {
	for ix, c := range alphabets.A0 {
		if c == r {
			return []uint8{uint8(ix + 6)}
		}
	}
	for ix, c := range alphabets.A1 {
		if c == r {
			return []uint8{4, uint8(ix + 6)}
		}
	}
	for ix, c := range alphabets.A2 {
		if ix >= 2 && c == r {
			return []uint8{5, uint8(ix + 6)}
		}
	}

	// Anything else becomes the 4 z-character ZSCII escape
	zscii, ok := RuneToZscii(r, core)
	if !ok {
		zscii = '?'
	}
	return []uint8{5, 6, uint8(zscii>>5) & 0b11111, uint8(zscii) & 0b11111}
}
