package utils

// NextPowerOfTwo returns the smallest power of two >= x, at least 1.
// Evaluation domains and SRS sizes are padded with it.
func NextPowerOfTwo(x int) int {
	n := 1
	for n < x {
		n <<= 1
	}
	return n
}
