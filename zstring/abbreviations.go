package zstring

import "github.com/davetcode/zeta/zcore"

func findAbbreviation(core *zcore.Core, alphabets *Alphabets, z uint8, x uint8, depth int) string {
	abbrIx := 32*(uint16(z)-1) + uint16(x)
	addr := uint32(core.AbbreviationTableBase) + 2*uint32(abbrIx)

	// Abbreviation entries are word addresses
	strAddr := 2 * uint32(core.FetchHalfWord(addr))

	str, _ := decode(strAddr, core, alphabets, depth+1)
	return str
}
