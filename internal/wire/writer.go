package wire

import (
	"encoding/binary"
	"math"
)

// Writer writes V8 serialized data to a byte buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a new Writer with an initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset clears the buffer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// WriteByte writes a single byte. Implements io.ByteWriter.
// Always returns nil error for in-memory buffer.
func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

// WriteBytes writes a slice of bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteVarint writes an unsigned integer as a base-128 varint.
func (w *Writer) WriteVarint(n uint64) {
	for n >= 0x80 {
		w.buf = append(w.buf, byte(n)|0x80)
		n >>= 7
	}
	w.buf = append(w.buf, byte(n))
}

// WriteVarint32 writes a uint32 as a varint.
func (w *Writer) WriteVarint32(n uint32) {
	w.WriteVarint(uint64(n))
}

// VarintLen returns the number of bytes WriteVarint would emit for n,
// used by callers that must decide on alignment padding before writing
// a length-prefixed field (see TwoByteString padding, ser.rs
// bytes_needed_for_varint).
func VarintLen(n uint64) int {
	l := 1
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}

// ZigZagEncode encodes a signed int64 to unsigned using ZigZag encoding.
// Maps: 0 → 0, -1 → 1, 1 → 2, -2 → 3, 2 → 4, ...
func ZigZagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// ZigZagEncode32 encodes a signed int32 to unsigned.
func ZigZagEncode32(n int32) uint32 {
	return uint32((n << 1) ^ (n >> 31))
}

// WriteZigZag writes a signed int64 as a ZigZag-encoded varint.
func (w *Writer) WriteZigZag(n int64) {
	w.WriteVarint(ZigZagEncode(n))
}

// WriteZigZag32 writes a signed int32 as a ZigZag-encoded varint.
func (w *Writer) WriteZigZag32(n int32) {
	w.WriteVarint32(ZigZagEncode32(n))
}

// WriteDouble writes an IEEE 754 double in little-endian byte order.
func (w *Writer) WriteDouble(f float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	w.buf = append(w.buf, buf[:]...)
}

// AlignTo pads with Padding (0x00) bytes until the buffer length is a
// multiple of boundary. Boundary must be a power of 2.
func (w *Writer) AlignTo(boundary int) {
	if boundary <= 0 || (boundary&(boundary-1)) != 0 {
		return
	}
	for len(w.buf)%boundary != 0 {
		w.buf = append(w.buf, 0x00)
	}
}

// WriteOneByteString writes raw Latin-1 bytes verbatim, one byte per
// character. The caller (v8value.StringValue) is responsible for having
// already projected the string into Latin-1 code points.
func (w *Writer) WriteOneByteString(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteTwoByteStringUnits writes raw UTF-16LE code units verbatim,
// without re-pairing surrogates, so unpaired surrogates round-trip
// exactly. Callers needing 2-byte alignment should call AlignTo(2) (or
// emit an explicit Padding byte) before calling this.
func (w *Writer) WriteTwoByteStringUnits(units []uint16) {
	for _, u := range units {
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], u)
		w.buf = append(w.buf, buf[:]...)
	}
}
