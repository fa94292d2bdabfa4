package chunking

import (
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
)

type recorder struct {
	events []*media.StreamData
}

func (r *recorder) NumInputStreams() int                                      { return 1 }
func (r *recorder) NumOutputStreams() int                                     { return 0 }
func (r *recorder) Connect(int, pipeline.Handler, int) error                  { return nil }
func (r *recorder) Initialize() error                                         { return nil }
func (r *recorder) FlushInput(int) error                                      { return nil }
func (r *recorder) Process(data *media.StreamData) error {
	r.events = append(r.events, data)
	return nil
}

func (r *recorder) segmentInfos() []*media.SegmentInfo {
	var out []*media.SegmentInfo
	for _, e := range r.events {
		if e.Type == media.TypeSegmentInfo {
			out = append(out, e.SegmentInfo)
		}
	}
	return out
}

func newWiredHandler(t *testing.T, params Params) (*ChunkingHandler, *recorder) {
	t.Helper()
	h, err := NewChunkingHandler(1, params)
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
	if err := h.Process(media.FromStreamInfo(0, &media.StreamInfo{TimeScale: 1000})); err != nil {
		t.Fatal(err)
	}
	return h, rec
}

func sampleAt(dts int64, keyFrame bool) *media.StreamData {
	return media.FromMediaSample(0, &media.MediaSample{DTS: dts, IsKeyFrame: keyFrame})
}

func TestRejectsInvalidSAPConfiguration(t *testing.T) {
	_, err := NewChunkingHandler(1, Params{SegmentDurationSeconds: 2, SubsegmentSAPAligned: true})
	if err == nil {
		t.Fatal("expected error for subsegment_sap_aligned without segment_sap_aligned")
	}
}

func TestCutsAtDurationWithoutSAPAlignment(t *testing.T) {
	h, rec := newWiredHandler(t, Params{SegmentDurationSeconds: 1})
	for _, dts := range []int64{0, 500, 1000, 1500} {
		if err := h.Process(sampleAt(dts, false)); err != nil {
			t.Fatal(err)
		}
	}
	segs := rec.segmentInfos()
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].StartTimestamp != 0 || segs[0].Duration != 1000 {
		t.Errorf("got %+v, want start=0 duration=1000", segs[0])
	}
}

func TestSAPAlignedWaitsForKeyFrame(t *testing.T) {
	h, rec := newWiredHandler(t, Params{SegmentDurationSeconds: 1, SegmentSAPAligned: true})

	samples := []struct {
		t  int64
		kf bool
	}{
		{0, true}, {500, false}, {1000, false}, {1200, true}, {1500, false},
	}
	for _, s := range samples {
		if err := h.Process(sampleAt(s.t, s.kf)); err != nil {
			t.Fatal(err)
		}
	}
	segs := rec.segmentInfos()
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].StartTimestamp != 0 || segs[0].Duration != 1200 {
		t.Errorf("got %+v, want start=0 duration=1200 (cut waited for keyframe at 1200)", segs[0])
	}
}

func TestFlushEmitsFinalSegment(t *testing.T) {
	h, rec := newWiredHandler(t, Params{SegmentDurationSeconds: 10})
	if err := h.Process(sampleAt(0, true)); err != nil {
		t.Fatal(err)
	}
	if err := h.Process(sampleAt(200, true)); err != nil {
		t.Fatal(err)
	}
	if err := h.FlushInput(0); err != nil {
		t.Fatal(err)
	}
	segs := rec.segmentInfos()
	if len(segs) != 1 || !segs[0].IsFinalChunk {
		t.Fatalf("got %v, want one final segment", segs)
	}
	if segs[0].Duration != 200 {
		t.Errorf("got duration %d, want 200 (tail covering the last sample seen)", segs[0].Duration)
	}
}

func TestCueEventForcesImmediateBoundary(t *testing.T) {
	h, rec := newWiredHandler(t, Params{SegmentDurationSeconds: 10})
	if err := h.Process(sampleAt(0, true)); err != nil {
		t.Fatal(err)
	}
	if err := h.Process(sampleAt(300, true)); err != nil {
		t.Fatal(err)
	}
	if err := h.Process(media.FromCueEvent(0, &media.CueEvent{Type: media.CueOut, TimeSeconds: 0.5})); err != nil {
		t.Fatal(err)
	}
	if err := h.Process(sampleAt(500, true)); err != nil {
		t.Fatal(err)
	}

	var sawCue bool
	var segs []*media.SegmentInfo
	for _, e := range rec.events {
		switch e.Type {
		case media.TypeCueEvent:
			sawCue = true
		case media.TypeSegmentInfo:
			segs = append(segs, e.SegmentInfo)
		}
	}
	if !sawCue {
		t.Error("expected cue event to be forwarded")
	}
	if len(segs) != 1 || segs[0].Duration != 500 {
		t.Fatalf("got %v, want one segment of duration 500 forced by the cue", segs)
	}
}

func TestSubsegmentCutsInterleaveWithinSegment(t *testing.T) {
	h, rec := newWiredHandler(t, Params{SegmentDurationSeconds: 2, SubsegmentDurationSeconds: 1})
	for _, dts := range []int64{0, 1000, 1100, 2000} {
		if err := h.Process(sampleAt(dts, true)); err != nil {
			t.Fatal(err)
		}
	}
	var subsegs, segs int
	for _, e := range rec.events {
		if e.Type == media.TypeSegmentInfo {
			if e.SegmentInfo.IsSubsegment {
				subsegs++
			} else {
				segs++
			}
		}
	}
	if subsegs == 0 {
		t.Error("expected at least one subsegment cut before the segment boundary")
	}
}
