package demux

import (
	"encoding/binary"
	"io"

	"github.com/nullstream/packager/status"
)

// box is one parsed ISO-BMFF box header: type, payload offset within the
// source, and payload length. Box walking in this package is shallow and
// read-ahead only; readBoxes re-parses a parent's children on demand
// rather than building a persistent tree, matching the "walk once,
// extract what's needed" style of a minimal box reader.
type box struct {
	typ    string
	offset int64 // offset of payload (after header) within the source
	size   int64 // payload length, excluding header
}

// readBoxes walks the flat sequence of boxes starting at offset within r
// and spanning totalSize bytes, returning each box's header and payload
// span without descending into children.
func readBoxes(r io.ReaderAt, offset, totalSize int64) ([]box, error) {
	var boxes []box
	pos := offset
	end := offset + totalSize
	for pos < end {
		hdr := make([]byte, 8)
		if _, err := r.ReadAt(hdr, pos); err != nil {
			return nil, status.Wrap(status.ParseError, err, "reading box header")
		}
		size := int64(binary.BigEndian.Uint32(hdr[0:4]))
		typ := string(hdr[4:8])
		headerLen := int64(8)
		if size == 1 {
			ext := make([]byte, 8)
			if _, err := r.ReadAt(ext, pos+8); err != nil {
				return nil, status.Wrap(status.ParseError, err, "reading 64-bit box size")
			}
			size = int64(binary.BigEndian.Uint64(ext))
			headerLen = 16
		} else if size == 0 {
			size = end - pos
		}
		if size < headerLen || pos+size > end {
			return nil, status.Newf(status.ParseError, "box %q has invalid size %d", typ, size)
		}
		boxes = append(boxes, box{typ: typ, offset: pos + headerLen, size: size - headerLen})
		pos += size
	}
	return boxes, nil
}

// findBox returns the first box of the given type among boxes, or false.
func findBox(boxes []box, typ string) (box, bool) {
	for _, b := range boxes {
		if b.typ == typ {
			return b, true
		}
	}
	return box{}, false
}

// readAll reads an entire box's payload into memory, for the small
// metadata boxes (stsz/stco/stts/...) this demuxer needs fully buffered;
// sample data itself (mdat) is read per-sample via ReaderAt instead.
func readAll(r io.ReaderAt, b box) ([]byte, error) {
	buf := make([]byte, b.size)
	if _, err := r.ReadAt(buf, b.offset); err != nil {
		return nil, status.Wrap(status.ParseError, err, "reading box payload")
	}
	return buf, nil
}
