package chunking

import (
	"testing"

	"github.com/nullstream/packager/media"
)

func TestTextChunkingCutsAtDuration(t *testing.T) {
	h, err := NewTextChunkingHandler(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	if err := h.Connect(0, rec, 0); err != nil {
		t.Fatal(err)
	}
	if err := h.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := h.Process(media.FromStreamInfo(0, &media.StreamInfo{Kind: media.KindText})); err != nil {
		t.Fatal(err)
	}

	cues := []struct{ start, end int64 }{
		{0, 1000}, {1500, 1900}, {2500, 3000}, {4500, 5000},
	}
	for _, c := range cues {
		err := h.Process(media.FromTextSample(0, &media.TextSample{StartTime: c.start, EndTime: c.end, Payload: "x"}))
		if err != nil {
			t.Fatal(err)
		}
	}

	segs := rec.segmentInfos()
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].StartTimestamp != 0 || segs[0].Duration != 2500 {
		t.Errorf("got %+v, want start=0 duration=2500", segs[0])
	}
}

func TestTextChunkingFlushEmitsFinal(t *testing.T) {
	h, err := NewTextChunkingHandler(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	h.Connect(0, rec, 0)
	h.Initialize()
	h.Process(media.FromStreamInfo(0, &media.StreamInfo{Kind: media.KindText}))
	h.Process(media.FromTextSample(0, &media.TextSample{StartTime: 0, EndTime: 500}))

	if err := h.FlushInput(0); err != nil {
		t.Fatal(err)
	}
	segs := rec.segmentInfos()
	if len(segs) != 1 || !segs[0].IsFinalChunk {
		t.Fatalf("got %v, want one final segment", segs)
	}
	if segs[0].Duration != 500 {
		t.Errorf("got duration %d, want 500", segs[0].Duration)
	}
}
