package vl805

// The SPI engine right-justifies the active bytes of each transaction window
// within its 32-bit data registers. Outgoing bytes are packed most
// significant byte first, left-justified over the window length; incoming
// bytes occupy the least significant positions and are emitted most
// significant of those first. These two functions hold the whole byte-order
// contract so the windowing loop stays pure control flow.

// packOutWord packs write into the top bytes of a window of total bytes.
// Positions past len(write) are read slots and contribute zero bits.
// Requires len(write) <= total <= 4.
func packOutWord(write []byte, total int) uint32 {
	var out uint32
	for i := 0; i < total; i++ {
		out <<= 8
		if i < len(write) {
			out |= uint32(write[i])
		}
	}
	return out
}

// unpackInWord extracts len(dst) bytes from the low end of the response
// word, most significant of those first. Requires len(dst) <= 4.
func unpackInWord(word uint32, dst []byte) {
	n := len(dst)
	for i := 0; i < n; i++ {
		dst[i] = byte(word >> (8 * (n - 1 - i)))
	}
}
