package dictionary

import (
	"bytes"
	"sort"

	"github.com/davetcode/zeta/zcore"
	"github.com/davetcode/zeta/zstring"
)

type DictionaryHeader struct {
	InputCodes  []uint8 // word separator ZSCII codes
	EntryLength uint8
	// Negative means the entries are unsorted and must be scanned linearly
	// (used by game-supplied dictionaries for the tokenise opcode).
	Count int16
}

type DictionaryEntry struct {
	Address     uint16
	EncodedWord []uint8
}

type Dictionary struct {
	Header  DictionaryHeader
	entries []DictionaryEntry
}

func ParseDictionary(baseAddress uint32, core *zcore.Core, alphabets *zstring.Alphabets) *Dictionary {
	numInputCodes := uint32(core.FetchByte(baseAddress))

	header := DictionaryHeader{
		InputCodes:  core.ReadSlice(baseAddress+1, baseAddress+1+numInputCodes),
		EntryLength: core.FetchByte(baseAddress + 1 + numInputCodes),
		Count:       int16(core.FetchHalfWord(baseAddress + 2 + numInputCodes)),
	}

	count := int(header.Count)
	if count < 0 {
		count = -count
	}

	keyBytes := uint32(zstring.KeyLength(core.Version) / 3 * 2)

	entryPtr := baseAddress + 4 + numInputCodes
	entries := make([]DictionaryEntry, count)
	for ix := 0; ix < count; ix++ {
		entries[ix] = DictionaryEntry{
			Address:     uint16(entryPtr),
			EncodedWord: core.ReadSlice(entryPtr, entryPtr+keyBytes),
		}
		entryPtr += uint32(header.EntryLength)
	}

	return &Dictionary{
		Header:  header,
		entries: entries,
	}
}

// Find returns the address of the entry whose key matches the encoded word,
// or 0 when absent. Sorted dictionaries (positive count) are binary
// searched; unsorted ones are scanned.
func (d *Dictionary) Find(zstr []uint8) uint16 {
	if d.Header.Count >= 0 {
		ix := sort.Search(len(d.entries), func(i int) bool {
			return bytes.Compare(d.entries[i].EncodedWord, zstr) >= 0
		})
		if ix < len(d.entries) && bytes.Equal(d.entries[ix].EncodedWord, zstr) {
			return d.entries[ix].Address
		}
		return 0
	}

	for _, entry := range d.entries {
		if bytes.Equal(entry.EncodedWord, zstr) {
			return entry.Address
		}
	}
	return 0
}

// IsSeparator reports whether the byte is one of the dictionary's word
// separator codes.
func (d *Dictionary) IsSeparator(chr uint8) bool {
	for _, separator := range d.Header.InputCodes {
		if chr == separator {
			return true
		}
	}
	return false
}
