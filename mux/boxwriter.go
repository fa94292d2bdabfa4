package mux

import "encoding/binary"

// boxBuilder accumulates a single ISO-BMFF box's payload, so callers can
// nest child() calls the way the boxes themselves nest, without manually
// tracking size fields.
type boxBuilder struct {
	buf []byte
}

func newBox(typ string) *boxBuilder {
	b := &boxBuilder{}
	b.buf = append(b.buf, 0, 0, 0, 0) // size placeholder
	b.buf = append(b.buf, []byte(typ)...)
	return b
}

// fullBox starts a "full box" with the given version and flags (most ISO-BMFF metadata
// boxes carry a version+flags field right after the header).
func fullBox(typ string, version byte, flags uint32) *boxBuilder {
	b := newBox(typ)
	b.u8(version)
	b.buf = append(b.buf, byte(flags>>16), byte(flags>>8), byte(flags))
	return b
}

func (b *boxBuilder) u8(v byte) *boxBuilder {
	b.buf = append(b.buf, v)
	return b
}

func (b *boxBuilder) u16(v uint16) *boxBuilder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *boxBuilder) u32(v uint32) *boxBuilder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *boxBuilder) u64(v uint64) *boxBuilder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *boxBuilder) bytes(v []byte) *boxBuilder {
	b.buf = append(b.buf, v...)
	return b
}

func (b *boxBuilder) str(v string) *boxBuilder {
	b.buf = append(b.buf, []byte(v)...)
	return b
}

// child appends an already-built child box's bytes verbatim.
func (b *boxBuilder) child(c *boxBuilder) *boxBuilder {
	b.buf = append(b.buf, c.finish()...)
	return b
}

// finish patches in the final box size and returns the complete box bytes.
// Each call writes the buffer's current length, so finishing again after
// more bytes are appended yields the updated size.
func (b *boxBuilder) finish() []byte {
	binary.BigEndian.PutUint32(b.buf[0:4], uint32(len(b.buf)))
	return b.buf
}
