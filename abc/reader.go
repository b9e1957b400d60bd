package abc

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// MaxU30 is the largest value a u30 field may carry.
const MaxU30 = 1<<30 - 1

// maxVarintBytes is the longest legal variable-length integer encoding.
const maxVarintBytes = 5

// ---------------------------------------------------------------------------
// Reader: cursor over an ABC byte buffer
// ---------------------------------------------------------------------------

// Reader decodes the primitive ABC wire encodings from a byte slice.
// All reads fail with ErrTruncated when fewer bytes remain than required.
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset moves the cursor to an absolute offset.
func (r *Reader) SetOffset(offset int) error {
	if offset < 0 || offset > len(r.data) {
		return fmt.Errorf("%w: seek to %d (len=%d)", ErrTruncated, offset, len(r.data))
	}
	r.offset = offset
	return nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

// EOF reports whether every byte has been consumed.
func (r *Reader) EOF() bool {
	return r.offset >= len(r.data)
}

func (r *Reader) need(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.offset, r.Remaining())
	}
	return nil
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadU16 reads a fixed two-byte little-endian integer.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadS24 reads a fixed three-byte little-endian signed integer (branch
// offsets).
func (r *Reader) ReadS24() (int32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	b := r.data[r.offset:]
	v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	r.offset += 3
	return v, nil
}

// readVarint decodes up to five 7-bit groups, least significant first.
func (r *Reader) readVarint() (uint64, error) {
	var v uint64
	for i := 0; i < maxVarintBytes; i++ {
		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: variable-length integer longer than %d bytes at offset %d",
		ErrFormat, maxVarintBytes, r.offset-maxVarintBytes)
}

// ReadU30 reads a variable-length unsigned integer restricted to 30
// significant bits. Encodings wider than that are rejected, not truncated.
func (r *Reader) ReadU30() (uint32, error) {
	start := r.offset
	v, err := r.readVarint()
	if err != nil {
		return 0, err
	}
	if v > MaxU30 {
		return 0, fmt.Errorf("%w: u30 value %d exceeds 30 bits at offset %d", ErrFormat, v, start)
	}
	return uint32(v), nil
}

// ReadU32 reads a variable-length unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	start := r.offset
	v, err := r.readVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: u32 value exceeds 32 bits at offset %d", ErrFormat, start)
	}
	return uint32(v), nil
}

// ReadS32 reads a variable-length signed 32-bit integer: the decoded 32
// bits are reinterpreted as two's complement, so negative values always use
// the full five-byte encoding.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadDouble reads an 8-byte little-endian IEEE-754 double.
func (r *Reader) ReadDouble() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return math.Float64frombits(bits), nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.offset : r.offset+n : r.offset+n]
	r.offset += n
	return b, nil
}

// ReadUTF8 reads length bytes and returns them as a string. Invalid UTF-8
// is a format error.
func (r *Reader) ReadUTF8(length int) (string, error) {
	start := r.offset
	b, err := r.ReadBytes(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: invalid UTF-8 string at offset %d", ErrFormat, start)
	}
	return string(b), nil
}

// ReadString reads a u30 length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU30()
	if err != nil {
		return "", err
	}
	return r.ReadUTF8(int(n))
}

// ReadCString reads a NUL-terminated string.
func (r *Reader) ReadCString() (string, error) {
	for i := r.offset; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.offset:i])
			r.offset = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unterminated string at offset %d", ErrTruncated, r.offset)
}
