package consensus

import "encoding/binary"

// Variable-length and fixed-width little-endian encode/decode helpers for the
// canonical byte encoding. The CompactSize scheme (1/3/5/9-byte tags,
// rejecting non-minimal encodings) mirrors the teacher's wire format.

func appendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func appendU16le(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendU32le(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// appendCompactSize encodes n as a CompactSize integer and appends it to dst.
func appendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return appendU16le(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return appendU32le(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return appendU64le(dst, n)
	}
}

// appendBytes encodes a length-prefixed byte string.
func appendBytes(dst []byte, b []byte) []byte {
	dst = appendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

// appendString encodes a length-prefixed UTF-8 string.
func appendString(dst []byte, s string) []byte {
	return appendBytes(dst, []byte(s))
}

type byteReader struct {
	b   []byte
	off int
}

func (r *byteReader) readU8() (uint8, error) {
	if r.off+1 > len(r.b) {
		return 0, coreErr(ErrCodeInvalidEncoding, "truncated u8")
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *byteReader) readU16le() (uint16, error) {
	if r.off+2 > len(r.b) {
		return 0, coreErr(ErrCodeInvalidEncoding, "truncated u16")
	}
	v := binary.LittleEndian.Uint16(r.b[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *byteReader) readU32le() (uint32, error) {
	if r.off+4 > len(r.b) {
		return 0, coreErr(ErrCodeInvalidEncoding, "truncated u32")
	}
	v := binary.LittleEndian.Uint32(r.b[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *byteReader) readU64le() (uint64, error) {
	if r.off+8 > len(r.b) {
		return 0, coreErr(ErrCodeInvalidEncoding, "truncated u64")
	}
	v := binary.LittleEndian.Uint64(r.b[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *byteReader) readFixed(n int) ([]byte, error) {
	if r.off+n > len(r.b) {
		return nil, coreErr(ErrCodeInvalidEncoding, "truncated fixed field")
	}
	out := append([]byte(nil), r.b[r.off:r.off+n]...)
	r.off += n
	return out, nil
}

func (r *byteReader) readCompactSize() (uint64, error) {
	tag, err := r.readU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := r.readU16le()
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, coreErr(ErrCodeInvalidEncoding, "non-minimal compact size (0xfd)")
		}
		return uint64(v), nil
	case tag == 0xfe:
		v, err := r.readU32le()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff {
			return 0, coreErr(ErrCodeInvalidEncoding, "non-minimal compact size (0xfe)")
		}
		return uint64(v), nil
	default:
		v, err := r.readU64le()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff_ffff {
			return 0, coreErr(ErrCodeInvalidEncoding, "non-minimal compact size (0xff)")
		}
		return v, nil
	}
}

func (r *byteReader) readBytes(maxLen uint64) ([]byte, error) {
	n, err := r.readCompactSize()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, coreErr(ErrCodeInvalidEncoding, "field exceeds max length %d", maxLen)
	}
	return r.readFixed(int(n))
}

func (r *byteReader) readString(maxLen uint64) (string, error) {
	b, err := r.readBytes(maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
