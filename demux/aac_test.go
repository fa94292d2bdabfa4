package demux

import "testing"

// buildADTSFrame assembles a minimal 7-byte ADTS header (no CRC) plus the
// given payload, using profile=AAC-LC and the requested sample-rate index.
func buildADTSFrame(sampleRateIdx byte, channelCfg byte, payload []byte) []byte {
	frameLen := 7 + len(payload)
	h := make([]byte, 7)
	h[0] = 0xFF
	h[1] = 0xF1
	h[2] = (1 << 6) | (sampleRateIdx << 2) | ((channelCfg >> 2) & 0x01)
	h[3] = (channelCfg&0x03)<<6 | byte((frameLen>>11)&0x03)
	h[4] = byte((frameLen >> 3) & 0xFF)
	h[5] = byte((frameLen&0x07)<<5) | 0x1F
	h[6] = 0xFC
	return append(h, payload...)
}

func TestParseADTSSingleFrame(t *testing.T) {
	t.Parallel()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE}
	frame := buildADTSFrame(3, 2, payload) // 48kHz, stereo

	frames, err := ParseADTS(frame)
	if err != nil {
		t.Fatalf("ParseADTS: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want 48000", frames[0].SampleRate)
	}
	if frames[0].Channels != 2 {
		t.Errorf("Channels = %d, want 2", frames[0].Channels)
	}
	if len(frames[0].Data) != len(frame) {
		t.Errorf("len(Data) = %d, want %d", len(frames[0].Data), len(frame))
	}
}

func TestParseADTSBackToBackFrames(t *testing.T) {
	t.Parallel()
	a := buildADTSFrame(3, 2, []byte{0x01, 0x02})
	b := buildADTSFrame(3, 1, []byte{0x03, 0x04, 0x05})

	frames, err := ParseADTS(append(a, b...))
	if err != nil {
		t.Fatalf("ParseADTS: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[1].Channels != 1 {
		t.Errorf("second frame Channels = %d, want 1", frames[1].Channels)
	}
}

func TestParseADTSEmptyAndTruncatedInput(t *testing.T) {
	t.Parallel()

	t.Run("nil input yields no frames", func(t *testing.T) {
		frames, err := ParseADTS(nil)
		if err != nil {
			t.Fatalf("ParseADTS(nil): %v", err)
		}
		if len(frames) != 0 {
			t.Errorf("got %d frames, want 0", len(frames))
		}
	})

	t.Run("header without a full payload yields no frames", func(t *testing.T) {
		data := []byte{0xFF, 0xF1, 0x50, 0x80, 0x00}
		frames, err := ParseADTS(data)
		if err != nil {
			t.Fatalf("ParseADTS(truncated): %v", err)
		}
		if len(frames) != 0 {
			t.Errorf("got %d frames, want 0", len(frames))
		}
	})
}
