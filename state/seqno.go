package state

// Sequence numbers are 32-bit millisecond clocks that wrap modulo 2^32.
// All comparisons use the half-range rule, as with Babel seqnos.

func SeqnoLt(a, b uint32) bool {
	x := b - a
	return 0 < x && x < 1<<31
}

func SeqnoLe(a, b uint32) bool {
	return a == b || SeqnoLt(a, b)
}

func SeqnoGt(a, b uint32) bool {
	return !SeqnoLe(a, b)
}

func SeqnoGe(a, b uint32) bool {
	return !SeqnoLt(a, b)
}

// SeqnoDistance is the number of sequence steps from s1 forward to s2
func SeqnoDistance(s1, s2 uint32) uint32 {
	return s2 - s1
}

// SeqnoContiguous reports whether a sighting starting at s1 continues a range ending at prevS2
func SeqnoContiguous(prevS2, s1 uint32) bool {
	return SeqnoGe(prevS2, s1-1)
}
