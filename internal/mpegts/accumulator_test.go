package mpegts

import "testing"

func pkt(pid uint16, pusi, hasPayload bool, cc uint8, payload ...byte) *Packet {
	return &Packet{
		Header: PacketHeader{
			PID:                       pid,
			HasPayload:                hasPayload,
			PayloadUnitStartIndicator: pusi,
			ContinuityCounter:         cc,
		},
		Payload: payload,
	}
}

func TestPacketAccumulatorFlushesOnNextPUSI(t *testing.T) {
	acc := newPacketAccumulator(0x100, newProgramMap())

	if flushed := acc.add(pkt(0x100, true, true, 0, 0x01)); flushed != nil {
		t.Fatal("opening a group should not flush")
	}
	if flushed := acc.add(pkt(0x100, false, true, 1, 0x02)); flushed != nil {
		t.Fatal("a continuation packet should not flush")
	}
	flushed := acc.add(pkt(0x100, true, true, 2, 0x03))
	if len(flushed) != 2 {
		t.Fatalf("next PUSI should flush the prior group (2 packets), got %d", len(flushed))
	}
}

func TestPacketAccumulatorDropsOnContinuityGap(t *testing.T) {
	acc := newPacketAccumulator(0x100, newProgramMap())
	acc.add(pkt(0x100, true, true, 0, 0x01))
	acc.add(pkt(0x100, false, true, 1, 0x02))
	acc.add(pkt(0x100, false, true, 5, 0x03)) // skipped 2,3,4: buffer must reset

	flushed := acc.add(pkt(0x100, true, true, 6, 0x04))
	if len(flushed) != 1 {
		t.Fatalf("a continuity gap should discard everything before it, got %d packets", len(flushed))
	}
}

func TestPacketAccumulatorIgnoresDuplicateContinuityCounter(t *testing.T) {
	acc := newPacketAccumulator(0x100, newProgramMap())
	acc.add(pkt(0x100, true, true, 3, 0x01))
	if flushed := acc.add(pkt(0x100, false, true, 3, 0x01)); flushed != nil {
		t.Fatal("repeating the same continuity counter is a retransmit, not new data")
	}
	flushed := acc.add(pkt(0x100, true, true, 4, 0x02))
	if len(flushed) != 1 {
		t.Fatalf("duplicate packet must not be counted twice, got %d", len(flushed))
	}
}

func TestPacketAccumulatorSurvivesDeclaredDiscontinuity(t *testing.T) {
	acc := newPacketAccumulator(0x100, newProgramMap())
	acc.add(pkt(0x100, true, true, 0, 0x01))
	acc.add(pkt(0x100, false, true, 1, 0x02))

	p3 := pkt(0x100, false, true, 9, 0x03)
	p3.Header.HasAdaptationField = true
	p3.Header.DiscontinuityIndicator = true
	acc.add(p3) // CC jumps 1->9 but is flagged, so the buffer must survive

	flushed := acc.add(pkt(0x100, true, true, 10, 0x04))
	if len(flushed) != 3 {
		t.Fatalf("a declared discontinuity must not reset the buffer, got %d packets", len(flushed))
	}
}

func TestPacketPoolGroupsByPID(t *testing.T) {
	pp := newPacketPool(newProgramMap())
	pp.add(pkt(0x100, true, true, 0, 0x01))
	pp.add(pkt(0x200, true, true, 0, 0x02))

	if got := len(pp.dump()); got != 2 {
		t.Fatalf("dump() = %d groups, want one per distinct PID (2)", got)
	}
}

func TestIsPSIComplete(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{
			name:    "exact length",
			payload: []byte{0x00, 0x00, 0x80, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05},
			want:    true,
		},
		{
			name:    "truncated",
			payload: []byte{0x00, 0x00, 0x80, 0x0A, 0x01, 0x02, 0x03},
			want:    false,
		},
		{
			name:    "trailing padding ignored",
			payload: []byte{0x00, 0x00, 0x80, 0x02, 0x01, 0x02, 0xFF, 0xFF},
			want:    true,
		},
	}
	for _, c := range cases {
		got := isPSIComplete([]*Packet{{Payload: c.payload}})
		if got != c.want {
			t.Errorf("%s: isPSIComplete() = %v, want %v", c.name, got, c.want)
		}
	}
}
