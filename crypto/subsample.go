package crypto

import (
	"github.com/nullstream/packager/codecs"
	"github.com/nullstream/packager/media"
)

// VideoBitstreamFormat tells the subsample generator how to split an
// encoded video sample's NAL units.
type VideoBitstreamFormat int

// Supported video bitstream framings.
const (
	AnnexB VideoBitstreamFormat = iota
	LengthPrefixed
)

// SubsampleParams carries the per-call configuration the subsample
// generator needs beyond the codec: the protection scheme (every scheme
// gets the same per-NALU list, but cenc/cbc1 round each cipher span down
// to whole blocks while cens/cbcs/SAMPLE-AES keep the full NALU body and
// leave the crypt/skip pattern to the cryptor), the bitstream framing, and
// NALU length size for length-prefixed video.
type SubsampleParams struct {
	Codec           media.Codec
	Scheme          media.ProtectionScheme
	Format          VideoBitstreamFormat
	NALULengthSize  int
	VP9SubsampleEnc bool
}

// Generate computes the (clear, cipher) subsample list for one coded
// sample, per the codec x scheme decision table: H.264/H.265 split at
// NALU boundaries with a clear prefix covering the start code/length
// prefix and NAL header; AV1 splits at tile boundaries; AAC/AC3/EC3/DTS
// are full-sample (empty list, caller encrypts the whole payload). The
// sum of clear+cipher bytes across the returned list always equals
// len(sample).
func Generate(sample []byte, p SubsampleParams) ([]media.SubsampleEntry, error) {
	switch p.Codec {
	case media.CodecH264, media.CodecH265:
		return generateNALUSubsamples(sample, p)
	case media.CodecAV1:
		return generateAV1Subsamples(sample)
	case media.CodecVP9:
		if !p.VP9SubsampleEnc {
			return nil, nil
		}
		// VP9 superframe splitting is not implemented: with subsample
		// encryption requested the result is still an empty list, so every
		// VP9 sample is encrypted as a whole.
		return nil, nil
	default:
		return nil, nil
	}
}

func headerSize(codec media.Codec) int {
	if codec == media.CodecH265 {
		return codecs.H265HeaderSize
	}
	return codecs.H264HeaderSize
}

// generateNALUSubsamples implements decision-table row 1/2: each NALU
// contributes one clear prefix (start-code-equivalent + NAL header byte)
// followed by a cipher span. For full-block schemes (cenc/cbc1) the
// cipher span is rounded down to a 16-byte multiple, with any sub-16-byte
// remainder added to the same entry's clear count, so the first remainder
// bytes of the NALU body stay clear and the cipher span covers the
// block-aligned bytes after them. For pattern schemes (cens/cbcs/
// SAMPLE-AES) the cipher span covers the NALU body exactly; the cryptor
// itself applies the crypt/skip block pattern within it.
func generateNALUSubsamples(sample []byte, p SubsampleParams) ([]media.SubsampleEntry, error) {
	nalus, err := splitNALUs(sample, p)
	if err != nil {
		return nil, err
	}
	if len(nalus) == 0 {
		return nil, nil
	}

	hdr := headerSize(p.Codec)

	var entries []media.SubsampleEntry
	for _, n := range nalus {
		// The clear prefix for this NALU is: the framing bytes consumed
		// ahead of it (Annex B start code or length-prefix field, as
		// recorded by the splitter) plus the NAL header.
		clear := uint32(n.PrefixLen + hdr)
		naluLen := len(n.Data)
		cipherCandidate := naluLen - hdr

		var cipher uint32
		if cipherCandidate > 0 {
			cipher = uint32(cipherCandidate)
			if !p.Scheme.IsPattern() {
				// Full-block schemes: round down to a 16-byte multiple,
				// adding the remainder to this subsample's clear count
				// (the clear run then covers the first remainder bytes of
				// the NALU body, ahead of the cipher span).
				remainder := cipher % blockSize
				cipher -= remainder
				clear += remainder
			}
		}
		entries = append(entries, media.SubsampleEntry{ClearBytes: clear, CipherBytes: cipher})
	}
	return entries, nil
}

func splitNALUs(sample []byte, p SubsampleParams) ([]codecs.NALUnit, error) {
	switch {
	case p.Codec == media.CodecH264 && p.Format == AnnexB:
		return codecs.ParseAnnexBH264(sample), nil
	case p.Codec == media.CodecH264:
		return codecs.ParseLengthPrefixedH264(sample, p.NALULengthSize)
	case p.Codec == media.CodecH265 && p.Format == AnnexB:
		return codecs.ParseAnnexBH265(sample), nil
	case p.Codec == media.CodecH265:
		return codecs.ParseLengthPrefixedH265(sample, p.NALULengthSize)
	default:
		return nil, nil
	}
}

func generateAV1Subsamples(sample []byte) ([]media.SubsampleEntry, error) {
	obus, err := codecs.ParseOBUs(sample)
	if err != nil {
		return nil, err
	}
	tiles := codecs.Tiles(obus)
	if len(tiles) == 0 {
		return nil, nil
	}
	entries := make([]media.SubsampleEntry, 0, len(tiles))
	for _, t := range tiles {
		entries = append(entries, media.SubsampleEntry{
			ClearBytes:  uint32(t.ClearPrefix),
			CipherBytes: uint32(t.PayloadSize),
		})
	}
	return entries, nil
}

// Sum returns the total clear and cipher byte counts across entries, used
// to verify the subsample decomposition invariant (clear+cipher ==
// sample length).
func Sum(entries []media.SubsampleEntry) (clear, cipher uint32) {
	for _, e := range entries {
		clear += e.ClearBytes
		cipher += e.CipherBytes
	}
	return clear, cipher
}

// PatternBlocks returns the (crypt_byte_block, skip_byte_block) pair for a
// given (scheme, isAudio) combination, per spec.md's pattern
// selection rule: pattern encryption applies to pattern schemes on video
// only; audio under a pattern scheme always uses full-sample encryption
// (0, 0).
func PatternBlocks(scheme media.ProtectionScheme, isAudio bool) (crypt, skip int) {
	if isAudio || !scheme.IsPattern() {
		return 0, 0
	}
	return 1, 9
}
