package zcore

// Compress produces the dynamic-memory diff used by the CMem save chunk:
// each byte is XORed with the pristine image, zero runs collapse to a zero
// byte followed by run-length minus one, and trailing zero runs are dropped
// entirely.
func (core *Core) Compress() []uint8 {
	var out []uint8
	zeroRun := 0

	flush := func() {
		for zeroRun > 0 {
			chunk := zeroRun
			if chunk > 256 {
				chunk = 256
			}
			out = append(out, 0, uint8(chunk-1))
			zeroRun -= chunk
		}
	}

	for i := uint32(0); i < uint32(core.StaticMemoryBase); i++ {
		diff := core.bytes[i] ^ core.pristine[i]
		if diff == 0 {
			zeroRun++
			continue
		}
		flush()
		out = append(out, diff)
	}

	// Trailing zero diffs are omitted
	return out
}

// RestoreCompressed rebuilds the dynamic region from a Compress-format diff.
// Returns false if the diff overruns dynamic memory.
func (core *Core) RestoreCompressed(diff []uint8) bool {
	addr := uint32(0)
	limit := uint32(core.StaticMemoryBase)

	for i := 0; i < len(diff); i++ {
		if diff[i] == 0 {
			if i+1 >= len(diff) {
				return false
			}
			i++
			run := uint32(diff[i]) + 1
			if addr+run > limit {
				return false
			}
			for j := uint32(0); j < run; j++ {
				core.bytes[addr] = core.pristine[addr]
				addr++
			}
			continue
		}

		if addr >= limit {
			return false
		}
		core.bytes[addr] = core.pristine[addr] ^ diff[i]
		addr++
	}

	// Anything past the end of the diff is an implicit zero run
	for addr < limit {
		core.bytes[addr] = core.pristine[addr]
		addr++
	}

	return true
}
