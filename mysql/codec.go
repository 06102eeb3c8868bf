package mysql

import (
	"bytes"
	"encoding/binary"
)

// putUint writes an n-byte little-endian unsigned integer (n ∈ {1,2,3,4,6,8}).
func putUint(buf *bytes.Buffer, v uint64, n int) {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
	buf.Write(b)
}

func getUint(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// putLenEncInt appends v as a MySQL length-encoded integer: a 1-byte prefix
// if v < 251, else 0xFC+u16, 0xFD+u24, 0xFE+u64 (§4.2, §8 invariant 2).
func putLenEncInt(buf *bytes.Buffer, v uint64) {
	switch {
	case v < 251:
		buf.WriteByte(byte(v))
	case v < 1<<16:
		buf.WriteByte(0xfc)
		putUint(buf, v, 2)
	case v < 1<<24:
		buf.WriteByte(0xfd)
		putUint(buf, v, 3)
	default:
		buf.WriteByte(0xfe)
		putUint(buf, v, 8)
	}
}

func encodeLenEncInt(v uint64) []byte {
	var buf bytes.Buffer
	putLenEncInt(&buf, v)
	return buf.Bytes()
}

// getLenEncInt decodes a length-encoded integer starting at pos, returning
// the value, the new position, and whether the value was SQL NULL (0xFB,
// only meaningful in row-data context, reported via the isNull result).
func getLenEncInt(b []byte, pos int) (v uint64, newPos int, isNull bool, ok bool) {
	if pos >= len(b) {
		return 0, pos, false, false
	}
	first := b[pos]
	switch {
	case first < 0xfb:
		return uint64(first), pos + 1, false, true
	case first == 0xfb:
		return 0, pos + 1, true, true
	case first == 0xfc:
		if pos+3 > len(b) {
			return 0, pos, false, false
		}
		return getUint(b[pos+1:pos+3], 2), pos + 3, false, true
	case first == 0xfd:
		if pos+4 > len(b) {
			return 0, pos, false, false
		}
		return getUint(b[pos+1:pos+4], 3), pos + 4, false, true
	case first == 0xfe:
		if pos+9 > len(b) {
			return 0, pos, false, false
		}
		return getUint(b[pos+1:pos+9], 8), pos + 9, false, true
	default:
		return 0, pos, false, false
	}
}

// lenEncIntSize returns how many bytes encodeLenEncInt would use for v.
func lenEncIntSize(v uint64) int {
	switch {
	case v < 251:
		return 1
	case v < 1<<16:
		return 3
	case v < 1<<24:
		return 4
	default:
		return 9
	}
}

// skipLenEncInt advances pos past a length-encoded integer without
// decoding its value; used by status-flag extraction in the reply loop.
func skipLenEncInt(b []byte, pos int) int {
	if pos >= len(b) {
		return pos
	}
	switch {
	case b[pos] < 0xfb:
		return pos + 1
	case b[pos] == 0xfc:
		return pos + 3
	case b[pos] == 0xfd:
		return pos + 4
	case b[pos] == 0xfe:
		return pos + 9
	default:
		return pos + 1
	}
}

func putLenEncString(buf *bytes.Buffer, s string) {
	putLenEncInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func putLenEncBytes(buf *bytes.Buffer, b []byte) {
	putLenEncInt(buf, uint64(len(b)))
	buf.Write(b)
}

func getLenEncString(b []byte, pos int) (s string, newPos int, isNull bool, ok bool) {
	n, pos, isNull, ok := getLenEncInt(b, pos)
	if !ok || isNull {
		return "", pos, isNull, ok
	}
	if pos+int(n) > len(b) {
		return "", pos, false, false
	}
	return string(b[pos : pos+int(n)]), pos + int(n), false, true
}

// putNULString appends s followed by a NUL terminator.
func putNULString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// getNULString reads a C-string terminated by NUL starting at pos.
func getNULString(b []byte, pos int) (s string, newPos int, ok bool) {
	idx := bytes.IndexByte(b[pos:], 0)
	if idx < 0 {
		return "", pos, false
	}
	return string(b[pos : pos+idx]), pos + idx + 1, true
}

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func putLE16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putLE32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putLE64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
