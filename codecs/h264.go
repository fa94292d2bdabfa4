// Package codecs implements the bitstream walking needed to find
// encryption subsample boundaries in coded video: H.264/H.265 NALU
// splitting and AV1 OBU/tile splitting. It does not implement general
// decoding; only the structure needed to classify clear vs. cipher byte
// ranges.
package codecs

// NALUnit is one H.264 or H.265 Network Abstraction Layer Unit extracted
// from an Annex B or length-prefixed bitstream. Data excludes any start
// code or length prefix but includes the NAL header byte(s).
type NALUnit struct {
	Type byte
	Data []byte
	// PrefixLen is the number of framing bytes (Annex B start code or
	// length-prefix field) that preceded Data in the source bitstream.
	PrefixLen int
}

// H.264 NAL unit type constants (ITU-T H.264 Table 7-1).
const (
	H264NALSlice      = 1
	H264NALIDR        = 5
	H264NALSEI        = 6
	H264NALSPS        = 7
	H264NALPPS        = 8
	H264NALAUD        = 9
	H264NALFillerData = 12
)

// H264HeaderSize is the length, in bytes, of the H.264 NAL header.
const H264HeaderSize = 1

// IsH264Keyframe reports whether nalType is an IDR slice.
func IsH264Keyframe(nalType byte) bool { return nalType == H264NALIDR }

// ParseAnnexBH264 splits an Annex B byte stream into H.264 NAL units,
// recognizing both 3-byte (0x000001) and 4-byte (0x00000001) start codes.
func ParseAnnexBH264(data []byte) []NALUnit {
	return parseAnnexBGeneric(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// ParseLengthPrefixedH264 splits an AVC-style (length-prefixed) byte
// stream into H.264 NAL units, given the configured NALU length field
// size (1, 2, or 4 bytes, per the AVCDecoderConfigurationRecord).
func ParseLengthPrefixedH264(data []byte, lengthSize int) ([]NALUnit, error) {
	return parseLengthPrefixedGeneric(data, lengthSize, func(d []byte) byte { return d[0] & 0x1F })
}

// parseAnnexBGeneric walks start codes in data and classifies each NAL
// unit's type via nalTypeFunc, applied to the first minNALBytes bytes.
// Adapted from the Annex B scanning logic shared by the H.264 and H.265
// walkers: the start-code search is codec-independent, only the NAL type
// field width differs.
func parseAnnexBGeneric(data []byte, minNALBytes int, nalTypeFunc func([]byte) byte) []NALUnit {
	var units []NALUnit
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	for idx, pos := range positions {
		if pos.dataStart >= n {
			continue
		}
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if pos.dataStart >= end {
			continue
		}

		nalData := data[pos.dataStart:end]
		if len(nalData) < minNALBytes {
			continue
		}

		units = append(units, NALUnit{
			Type:      nalTypeFunc(nalData),
			Data:      nalData,
			PrefixLen: pos.dataStart - pos.scStart,
		})
	}

	return units
}

// parseLengthPrefixedGeneric walks a length-prefixed (AVC1/HVC1 style) NAL
// stream, each unit preceded by a big-endian length field of lengthSize
// bytes.
func parseLengthPrefixedGeneric(data []byte, lengthSize int, nalTypeFunc func([]byte) byte) ([]NALUnit, error) {
	if lengthSize != 1 && lengthSize != 2 && lengthSize != 4 {
		return nil, errInvalidLengthSize
	}
	var units []NALUnit
	for off := 0; off < len(data); {
		if off+lengthSize > len(data) {
			return nil, errTruncatedLength
		}
		var length int
		for i := 0; i < lengthSize; i++ {
			length = (length << 8) | int(data[off+i])
		}
		off += lengthSize
		if off+length > len(data) {
			return nil, errTruncatedNALU
		}
		nalData := data[off : off+length]
		off += length
		if length == 0 {
			continue
		}
		units = append(units, NALUnit{Type: nalTypeFunc(nalData), Data: nalData, PrefixLen: lengthSize})
	}
	return units, nil
}
