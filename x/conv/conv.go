package conv

// Utoa writes base-10 representation of n into buf and returns the used slice.
// buf should be length >= 20 for uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + (n % 10))
		n /= 10
	}
	return buf[i:]
}

// Itoa is Utoa with a leading '-' for negatives.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	s := Utoa(buf[1:], uint64(-n))
	i := len(buf) - len(s) - 1
	buf[i] = '-'
	return buf[i:]
}

// Hex32 writes "0x" plus 8 uppercase, zero-padded hex digits. buf needs 10 bytes.
func Hex32(buf []byte, n uint32) []byte {
	if len(buf) < 10 {
		return buf[:0]
	}
	const hexd = "0123456789ABCDEF"
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return buf[i:]
}

// Hex8 writes two lowercase hex digits, as used for GATT UUID fragments.
func Hex8(dst []byte, b byte) []byte {
	const hexd = "0123456789abcdef"
	return append(dst, hexd[b>>4], hexd[b&0xF])
}
