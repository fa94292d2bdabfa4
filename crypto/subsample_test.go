package crypto

import (
	"testing"

	"github.com/nullstream/packager/media"
)

// annexBSample builds a minimal Annex B stream from a list of NAL payloads
// (each payload's first byte is the NAL header), separated by 4-byte start
// codes, mirroring the framing generateNALUSubsamples expects to find.
func annexBSample(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

func TestGenerateNALUSubsamplesCencSumsToSampleLength(t *testing.T) {
	slice1 := append([]byte{0x05}, make([]byte, 40)...) // IDR slice, 41 bytes total
	slice2 := append([]byte{0x01}, make([]byte, 19)...) // non-IDR slice, 20 bytes total
	sample := annexBSample(slice1, slice2)

	entries, err := Generate(sample, SubsampleParams{
		Codec:  media.CodecH264,
		Scheme: media.SchemeCenc,
		Format: AnnexB,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d subsample entries, want 2", len(entries))
	}

	clear, cipher := Sum(entries)
	if got, want := clear+cipher, uint32(len(sample)); got != want {
		t.Fatalf("clear+cipher = %d, want sample length %d", got, want)
	}
	if cipher%blockSize != 0 {
		t.Fatalf("cenc cipher total %d is not a multiple of the block size", cipher)
	}
}

func TestGenerateNALUSubsamplesCbcsUsesFullNALUBody(t *testing.T) {
	slice1 := append([]byte{0x05}, make([]byte, 33)...) // 34 bytes, not block aligned
	sample := annexBSample(slice1)

	entries, err := Generate(sample, SubsampleParams{
		Codec:  media.CodecH264,
		Scheme: media.SchemeCbcs,
		Format: AnnexB,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	clear, cipher := Sum(entries)
	if got, want := clear+cipher, uint32(len(sample)); got != want {
		t.Fatalf("clear+cipher = %d, want sample length %d", got, want)
	}
	// Pattern schemes cipher the NALU body in full; the cryptor applies
	// the crypt/skip pattern within it, not the subsample generator.
	wantCipher := uint32(len(slice1) - H264HeaderSizeForTest)
	if cipher != wantCipher {
		t.Fatalf("cbcs cipher span = %d, want %d", cipher, wantCipher)
	}
}

func TestGenerateUnknownCodecReturnsNil(t *testing.T) {
	entries, err := Generate([]byte{0x00, 0x01, 0x02}, SubsampleParams{Codec: media.CodecAAC})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected full-sample codec to report nil subsamples, got %v", entries)
	}
}

func TestPatternBlocks(t *testing.T) {
	cases := []struct {
		scheme    media.ProtectionScheme
		isAudio   bool
		wantCrypt int
		wantSkip  int
	}{
		{media.SchemeCbcs, false, 1, 9},
		{media.SchemeCens, false, 1, 9},
		{media.SchemeCbcs, true, 0, 0},
		{media.SchemeCenc, false, 0, 0},
		{media.SchemeCbc1, false, 0, 0},
	}
	for _, c := range cases {
		crypt, skip := PatternBlocks(c.scheme, c.isAudio)
		if crypt != c.wantCrypt || skip != c.wantSkip {
			t.Errorf("PatternBlocks(%v, %v) = (%d, %d), want (%d, %d)", c.scheme, c.isAudio, crypt, skip, c.wantCrypt, c.wantSkip)
		}
	}
}

// H264HeaderSizeForTest mirrors codecs.H264HeaderSize without importing the
// codecs package twice at the call site above.
const H264HeaderSizeForTest = 1
