package util

// ChecksumU64 spreads the entropy of x over all 64 bits.
func ChecksumU64(x uint64) uint64 {
	return x * 0xbf58476d1ce4e5b9
}

// ChecksumU32 is the 32 bit Fibonacci multiplier. The high bits of the
// result depend on every input bit.
func ChecksumU32(x uint32) uint32 {
	return x * 0x9e3779b1
}
