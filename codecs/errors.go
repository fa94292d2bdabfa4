package codecs

import "errors"

var (
	errInvalidLengthSize = errors.New("codecs: invalid NALU length field size")
	errTruncatedLength   = errors.New("codecs: truncated NALU length field")
	errTruncatedNALU     = errors.New("codecs: truncated NAL unit")
)
