package codecs

// H.265/HEVC NAL unit type constants (ITU-T H.265 Table 7-1).
const (
	H265NALBlaWLP     = 16
	H265NALIDRWRadl   = 19
	H265NALIDRNlp     = 20
	H265NALCraNut     = 21
	H265NALVPS        = 32
	H265NALSPS        = 33
	H265NALPPS        = 34
	H265NALAUD        = 35
	H265NALFillerData = 38
	H265NALSEIPrefix  = 39
)

// H265HeaderSize is the length, in bytes, of the H.265 NAL header.
const H265HeaderSize = 2

// H265NALType extracts the NAL unit type from the first byte of the
// 2-byte HEVC NAL header: forbidden(1) | type(6) | layerID_high(1).
func H265NALType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// IsH265Keyframe reports whether nalType is a random access point (BLA,
// IDR, or CRA).
func IsH265Keyframe(nalType byte) bool {
	return nalType >= H265NALBlaWLP && nalType <= H265NALCraNut
}

// ParseAnnexBH265 splits an Annex B byte stream into H.265 NAL units.
// Start codes are identical to H.264 (00 00 01 or 00 00 00 01).
func ParseAnnexBH265(data []byte) []NALUnit {
	return parseAnnexBGeneric(data, 2, func(d []byte) byte { return H265NALType(d[0]) })
}

// ParseLengthPrefixedH265 splits an HVC1-style (length-prefixed) byte
// stream into H.265 NAL units.
func ParseLengthPrefixedH265(data []byte, lengthSize int) ([]NALUnit, error) {
	return parseLengthPrefixedGeneric(data, lengthSize, func(d []byte) byte { return H265NALType(d[0]) })
}
