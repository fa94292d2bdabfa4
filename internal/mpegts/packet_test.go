package mpegts

import "testing"

func buildTSPacket(pid uint16, cc uint8, pusi bool, tei bool, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	buf[3] = 0x10 | (cc & 0x0F)
	if pusi {
		buf[1] |= 0x40
	}
	if tei {
		buf[1] |= 0x80
	}
	copy(buf[4:], payload)
	return buf
}

func buildTSPacketWithAdaptation(pid uint16, cc uint8, afLen int, payload []byte) []byte {
	buf := make([]byte, packetSize)
	buf[0] = syncByte
	buf[1] = byte(pid>>8) & 0x1F
	buf[2] = byte(pid)
	if len(payload) > 0 {
		buf[3] = 0x30 | (cc & 0x0F)
	} else {
		buf[3] = 0x20 | (cc & 0x0F)
	}
	buf[4] = byte(afLen)
	if offset := 5 + afLen; offset < packetSize {
		copy(buf[offset:], payload)
	}
	return buf
}

func TestParsePacketHeaderFields(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	buf := buildTSPacket(0x100, 5, false, false, payload)

	p, err := parsePacket(buf)
	if err != nil {
		t.Fatalf("parsePacket: %v", err)
	}
	if p.Header.PID != 0x100 {
		t.Errorf("PID = 0x%X, want 0x100", p.Header.PID)
	}
	if p.Header.ContinuityCounter != 5 {
		t.Errorf("ContinuityCounter = %d, want 5", p.Header.ContinuityCounter)
	}
	if p.Header.PayloadUnitStartIndicator || p.Header.HasAdaptationField {
		t.Error("a plain payload-only packet should not set PUSI or HasAdaptationField")
	}
	if !p.Header.HasPayload || len(p.Payload) != 184 {
		t.Fatalf("HasPayload=%v len(Payload)=%d, want true/184", p.Header.HasPayload, len(p.Payload))
	}
	if p.Payload[0] != 0x01 || p.Payload[1] != 0x02 || p.Payload[2] != 0x03 {
		t.Error("payload bytes were not preserved")
	}
}

func TestParsePacketFlagsAndPIDRange(t *testing.T) {
	cases := []struct {
		name string
		pid  uint16
		pusi bool
		tei  bool
	}{
		{"payload unit start", 0x1E1, true, false},
		{"transport error", 0x100, false, true},
		{"maximum PID", 0x1FFF, false, false},
	}
	for _, c := range cases {
		buf := buildTSPacket(c.pid, 0, c.pusi, c.tei, nil)
		p, err := parsePacket(buf)
		if err != nil {
			t.Fatalf("%s: parsePacket: %v", c.name, err)
		}
		if p.Header.PID != c.pid {
			t.Errorf("%s: PID = 0x%X, want 0x%X", c.name, p.Header.PID, c.pid)
		}
		if p.Header.PayloadUnitStartIndicator != c.pusi {
			t.Errorf("%s: PUSI = %v, want %v", c.name, p.Header.PayloadUnitStartIndicator, c.pusi)
		}
		if p.Header.TransportErrorIndicator != c.tei {
			t.Errorf("%s: TEI = %v, want %v", c.name, p.Header.TransportErrorIndicator, c.tei)
		}
	}
}

func TestParsePacketAdaptationFieldConsumesPayload(t *testing.T) {
	cases := []struct {
		name       string
		afLen      int
		payload    []byte
		wantPayLen int
	}{
		{"small adaptation field", 1, []byte{0xAA}, 188 - 6},
		{"larger adaptation field", 10, []byte{0xBB}, 188 - 15},
		{"adaptation fills the packet", 183, nil, 0},
	}
	for _, c := range cases {
		buf := buildTSPacketWithAdaptation(0x100, 0, c.afLen, c.payload)
		p, err := parsePacket(buf)
		if err != nil {
			t.Fatalf("%s: parsePacket: %v", c.name, err)
		}
		if !p.Header.HasAdaptationField {
			t.Errorf("%s: HasAdaptationField should be true", c.name)
		}
		if c.payload != nil {
			if !p.Header.HasPayload || len(p.Payload) != c.wantPayLen {
				t.Errorf("%s: HasPayload=%v len(Payload)=%d, want true/%d", c.name, p.Header.HasPayload, len(p.Payload), c.wantPayLen)
			}
		}
	}
}

func TestParsePacketRejectsMalformedInput(t *testing.T) {
	badSync := make([]byte, packetSize)
	if _, err := parsePacket(badSync); err == nil {
		t.Error("expected an error for a zeroed sync byte")
	}
	if _, err := parsePacket([]byte{0x47, 0x00, 0x00}); err == nil {
		t.Error("expected an error for a short buffer")
	}
}
