package zstring

import "github.com/davetcode/zeta/zcore"

// Extra characters 155..223 from the standard's default translation table.
var DefaultUnicodeTranslationTable = map[rune]uint8{
	'ä': 155,
	'ö': 156,
	'ü': 157,
	'Ä': 158,
	'Ö': 159,
	'Ü': 160,
	'ß': 161,
	'»': 162,
	'«': 163,
	'ë': 164,
	'ï': 165,
	'ÿ': 166,
	'Ë': 167,
	'Ï': 168,
	'á': 169,
	'é': 170,
	'í': 171,
	'ó': 172,
	'ú': 173,
	'ý': 174,
	'Á': 175,
	'É': 176,
	'Í': 177,
	'Ó': 178,
	'Ú': 179,
	'Ý': 180,
	'à': 181,
	'è': 182,
	'ì': 183,
	'ò': 184,
	'ù': 185,
	'À': 186,
	'È': 187,
	'Ì': 188,
	'Ò': 189,
	'Ù': 190,
	'â': 191,
	'ê': 192,
	'î': 193,
	'ô': 194,
	'û': 195,
	'Â': 196,
	'Ê': 197,
	'Î': 198,
	'Ô': 199,
	'Û': 200,
	'å': 201,
	'Å': 202,
	'ø': 203,
	'Ø': 204,
	'ã': 205,
	'ñ': 206,
	'õ': 207,
	'Ã': 208,
	'Ñ': 209,
	'Õ': 210,
	'æ': 211,
	'Æ': 212,
	'ç': 213,
	'Ç': 214,
	'þ': 215,
	'ð': 216,
	'Þ': 217,
	'Ð': 218,
	'£': 219,
	'œ': 220,
	'Œ': 221,
	'¡': 222,
	'¿': 223,
}

func translationTable(core *zcore.Core) map[rune]uint8 {
	if core != nil && core.UnicodeExtensionTableBaseAddress != 0 {
		return parseUnicodeTranslationTable(core)
	}
	return DefaultUnicodeTranslationTable
}

// RuneToZscii converts a unicode character into its ZSCII code, if one
// exists.
func RuneToZscii(r rune, core *zcore.Core) (uint16, bool) {
	if r == '\n' || r == '\r' {
		return 13, true
	}
	if r >= 32 && r <= 126 {
		return uint16(r), true
	}
	if zchr, ok := translationTable(core)[r]; ok {
		return uint16(zchr), true
	}
	return 0, false
}

// ZsciiToRune converts a ZSCII output code to a unicode character. Codes
// with no printable meaning return false.
func ZsciiToRune(zchr uint16, core *zcore.Core) (rune, bool) {
	switch {
	case zchr == 13:
		return '\n', true
	case zchr >= 32 && zchr <= 126:
		return rune(zchr), true
	case zchr >= 155 && zchr <= 251:
		for r, ix := range translationTable(core) {
			if uint16(ix) == zchr {
				return r, true
			}
		}
	}
	return 0, false
}

func zsciiToRune(zchr uint8, core *zcore.Core) rune {
	r, ok := ZsciiToRune(uint16(zchr), core)
	if !ok {
		return '?'
	}
	return r
}

func parseUnicodeTranslationTable(core *zcore.Core) map[rune]uint8 {
	result := make(map[rune]uint8)

	numUnicodeExtensions := core.FetchByte(uint32(core.UnicodeExtensionTableBaseAddress))
	startAddress := uint32(core.UnicodeExtensionTableBaseAddress) + 1
	for i := uint32(0); i < uint32(numUnicodeExtensions); i++ {
		result[rune(core.FetchHalfWord(startAddress+i*2))] = uint8(i + 155)
	}

	return result
}
