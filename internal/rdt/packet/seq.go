package packet

import "github.com/telepresenceio/rdt/internal/rdt/rdtcfg"

// SeqAdd advances a sequence number by n bytes, wrapping modulo SeqSpace.
func SeqAdd(seq uint16, n int) uint16 {
	return uint16((int(seq) + n) % rdtcfg.SeqSpace)
}

// SeqPrecedes reports whether a precedes b in modular sequence order, per
// spec §3: "a precedes b when (b - a) mod S < S/2".
func SeqPrecedes(a, b uint16) bool {
	diff := (int(b) - int(a) + rdtcfg.SeqSpace) % rdtcfg.SeqSpace
	return diff < rdtcfg.SeqSpace/2
}

// SeqLessOrEqual reports whether a precedes b or equals it.
func SeqLessOrEqual(a, b uint16) bool {
	return a == b || SeqPrecedes(a, b)
}
