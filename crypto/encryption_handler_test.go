package crypto

import (
	"bytes"
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
)

// recordingSink is a minimal 1-in/1-out pipeline.Handler test double whose
// output is never connected, the way the muxers are built.
type recordingSink struct {
	pipeline.BaseHandler
	events []*media.StreamData
}

func newRecordingSink() *recordingSink {
	s := &recordingSink{BaseHandler: pipeline.NewBaseHandler(1, 1)}
	s.Impl = s
	return s
}

func (s *recordingSink) InitializeInternal() error { return nil }
func (s *recordingSink) ProcessEvent(data *media.StreamData) error {
	s.events = append(s.events, data)
	return nil
}
func (s *recordingSink) OnFlushRequest(int) error { return nil }

func videoStreamInfo() *media.StreamInfo {
	return &media.StreamInfo{
		Kind:      media.KindVideo,
		Codec:     media.CodecH264,
		TimeScale: 90000,
		Width:     1920,
		Height:    1080,
	}
}

func fixedRawKeySource(t *testing.T) *RawKeySource {
	t.Helper()
	src, err := NewRawKeySource(RawKeyParams{
		KeyMap: map[string]RawKeyInfo{
			"": {KeyID: bytes.Repeat([]byte{0xAA}, 16), Key: bytes.Repeat([]byte{0xBB}, 16)},
		},
		IV: bytes.Repeat([]byte{0x01}, 16),
	})
	if err != nil {
		t.Fatalf("NewRawKeySource: %v", err)
	}
	return src
}

func wireEncryptionHandler(t *testing.T, params EncryptionParams) (*EncryptionHandler, *recordingSink) {
	t.Helper()
	h, err := NewEncryptionHandler(1, params)
	if err != nil {
		t.Fatalf("NewEncryptionHandler: %v", err)
	}
	sink := newRecordingSink()
	if err := h.Connect(0, sink, 0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return h, sink
}

func TestEncryptionHandlerClearLeadLeavesEarlySamplesUnencrypted(t *testing.T) {
	h, sink := wireEncryptionHandler(t, EncryptionParams{
		KeySource:        fixedRawKeySource(t),
		Scheme:           media.SchemeCenc,
		ClearLeadSeconds: 2,
	})

	if err := h.Process(media.FromStreamInfo(0, videoStreamInfo())); err != nil {
		t.Fatal(err)
	}

	plain := bytes.Repeat([]byte{0x42}, 64)
	early := &media.MediaSample{StreamIndex: 0, DTS: 0, Data: append([]byte(nil), plain...)}
	if err := h.Process(media.FromMediaSample(0, early)); err != nil {
		t.Fatal(err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2 (stream info + sample)", len(sink.events))
	}
	gotSample := sink.events[1].MediaSample
	if gotSample.Decrypt != nil {
		t.Fatal("sample within the clear lead should not carry a DecryptConfig")
	}
	if !bytes.Equal(gotSample.Data, plain) {
		t.Fatal("sample within the clear lead should be byte-for-byte unchanged")
	}
}

func TestEncryptionHandlerEncryptsSamplesPastClearLead(t *testing.T) {
	h, sink := wireEncryptionHandler(t, EncryptionParams{
		KeySource:        fixedRawKeySource(t),
		Scheme:           media.SchemeCenc,
		ClearLeadSeconds: 1,
		VideoFormat:      LengthPrefixed,
		NALULengthSize:   4,
	})

	info := videoStreamInfo()
	if err := h.Process(media.FromStreamInfo(0, info)); err != nil {
		t.Fatal(err)
	}

	// One 4-byte length-prefixed NALU: 1 header byte plus a 48-byte body.
	// The length prefix and header stay clear; the body is one cipher span.
	plain := bytes.Repeat([]byte{0x55}, 48)
	nalu := append([]byte{0, 0, 0, byte(1 + len(plain)), 0x65}, plain...)
	sample := &media.MediaSample{StreamIndex: 0, DTS: 2 * 90000, Data: append([]byte(nil), nalu...)}
	if err := h.Process(media.FromMediaSample(0, sample)); err != nil {
		t.Fatal(err)
	}

	got := sink.events[1].MediaSample
	if got.Decrypt == nil {
		t.Fatal("sample past the clear lead must carry a DecryptConfig")
	}
	body := got.Data[5:]
	if bytes.Equal(body, plain) {
		t.Fatal("sample past the clear lead should have been encrypted in place")
	}

	// Recover the plaintext with a fresh CTR cryptor seeded the same way
	// EncryptionHandler seeds its own, to confirm the payload was actually
	// encrypted with the resolved key/IV rather than merely flagged.
	dec := NewCtrCryptor()
	if err := dec.InitializeWithIV(bytes.Repeat([]byte{0xBB}, 16), bytes.Repeat([]byte{0x01}, 16)); err != nil {
		t.Fatal(err)
	}
	recovered := make([]byte, len(body))
	if err := dec.Crypt(body, recovered); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, plain) {
		t.Fatal("decrypting the handler's ciphertext with the same key/IV did not recover the plaintext")
	}
}

func TestEncryptionHandlerKeyRotationChangesKeyID(t *testing.T) {
	h, sink := wireEncryptionHandler(t, EncryptionParams{
		KeySource:           fixedRawKeySource(t),
		Scheme:              media.SchemeCenc,
		CryptoPeriodSeconds: 2,
	})

	info := videoStreamInfo()
	if err := h.Process(media.FromStreamInfo(0, info)); err != nil {
		t.Fatal(err)
	}
	initialKeyID := append([]byte(nil), sink.events[0].StreamInfo.Encryption.KeyID...)

	// Segment at t=0s: still period 0, no rotation expected.
	seg0 := &media.SegmentInfo{StreamIndex: 0, StartTimestamp: 0}
	if err := h.Process(media.FromSegmentInfo(0, seg0)); err != nil {
		t.Fatal(err)
	}
	if sink.events[1].SegmentInfo.KeyRotationEncryption != nil {
		t.Fatal("segment still within period 0 should not report a key rotation")
	}

	// Segment at t=3s with a 2s crypto period: period 1, rotation expected.
	seg1 := &media.SegmentInfo{StreamIndex: 0, StartTimestamp: 3 * info.TimeScale}
	if err := h.Process(media.FromSegmentInfo(0, seg1)); err != nil {
		t.Fatal(err)
	}
	rotated := sink.events[2].SegmentInfo.KeyRotationEncryption
	if rotated == nil {
		t.Fatal("segment crossing into period 1 should report a key rotation")
	}
	if bytes.Equal(rotated.KeyID, initialKeyID) {
		t.Fatal("rotated key id should differ from the initial period's key id")
	}
}

func TestEncryptionHandlerPatternEncryptionLeavesSkipBlocksClear(t *testing.T) {
	h, sink := wireEncryptionHandler(t, EncryptionParams{
		KeySource:      fixedRawKeySource(t),
		Scheme:         media.SchemeCbcs,
		VideoFormat:    LengthPrefixed,
		NALULengthSize: 4,
	})

	info := videoStreamInfo()
	if err := h.Process(media.FromStreamInfo(0, info)); err != nil {
		t.Fatal(err)
	}

	// 10 16-byte blocks: cbcs video pattern is 1 crypt block, 9 skip blocks,
	// so with a single NALU body of 10 blocks only the first is encrypted.
	plain := bytes.Repeat([]byte{0x7A}, 160)
	// Build a length-prefixed NALU: 4-byte length + NAL header + payload.
	payload := append([]byte{0x65}, plain[1:]...) // NAL header byte then body
	lengthPrefixed := make([]byte, 4+len(payload))
	lengthPrefixed[3] = byte(len(payload))
	copy(lengthPrefixed[4:], payload)

	sample := &media.MediaSample{StreamIndex: 0, DTS: 0, Data: append([]byte(nil), lengthPrefixed...)}
	if err := h.Process(media.FromMediaSample(0, sample)); err != nil {
		t.Fatal(err)
	}

	got := sink.events[1].MediaSample
	if got.Decrypt == nil {
		t.Fatal("expected a DecryptConfig for the pattern-encrypted sample")
	}
	if got.Decrypt.CryptByteBlock != 1 || got.Decrypt.SkipByteBlock != 9 {
		t.Fatalf("pattern = (%d, %d), want (1, 9)", got.Decrypt.CryptByteBlock, got.Decrypt.SkipByteBlock)
	}
	// The cipher span starts after the 4-byte length prefix + 1-byte NAL
	// header (5 bytes of clear prefix) and only its first 16-byte crypt
	// block is actually encrypted; everything after that (the 9 skip
	// blocks) must remain byte-for-byte identical to the source plaintext.
	tailStart := 5 + 16
	if !bytes.Equal(got.Data[tailStart:], lengthPrefixed[tailStart:]) {
		t.Fatal("skip blocks of a pattern-encrypted span must remain clear")
	}
	if bytes.Equal(got.Data[5:tailStart], lengthPrefixed[5:tailStart]) {
		t.Fatal("the crypt block of a pattern-encrypted span should have been modified")
	}
}
