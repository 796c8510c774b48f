// internal/encoding/varint.go
package encoding

// PutUvarint encodes v as an unsigned LEB128 varint into buf and returns the
// number of bytes written. The buffer must have at least 10 bytes available.
// LEB128 groups a value into 7-bit chunks, least-significant chunk first; the
// high bit of each byte is set on every chunk except the last one written.
func PutUvarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// GetUvarint decodes an unsigned LEB128 varint from buf and returns the value
// and the number of bytes consumed. It returns (0, 0) if buf does not hold a
// complete varint within 10 bytes (the max width of a 64-bit LEB128 value).
func GetUvarint(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf) && i < 10; i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// UvarintLen returns the number of bytes PutUvarint would write for v.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// PutVarint LEB128-encodes a signed version number by reinterpreting its
// two's-complement bit pattern as a uint64 first, per the hashing preimage's
// versioning convention: negative versions deliberately encode as large
// magnitudes rather than being zig-zag folded.
func PutVarint(buf []byte, v int64) int {
	return PutUvarint(buf, uint64(v))
}

// GetVarint decodes a signed version number encoded by PutVarint.
func GetVarint(buf []byte) (int64, int) {
	u, n := GetUvarint(buf)
	return int64(u), n
}
