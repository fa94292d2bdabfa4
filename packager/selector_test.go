package packager

import (
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
)

// recordingSink is a 1-in/1-out test double, its output never connected,
// that records every event and flush it receives.
type recordingSink struct {
	pipeline.BaseHandler
	events  []*media.StreamData
	flushed bool
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

func (s *recordingSink) OnFlushRequest(int) error {
	s.flushed = true
	return nil
}

func wireSelector(t *testing.T, spec string) (*streamSelector, *recordingSink) {
	t.Helper()
	sel := newStreamSelector(spec)
	sink := newRecordingSink()
	if err := sel.Connect(0, sink, 0); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sel.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return sel, sink
}

func videoInfo() *media.StreamInfo  { return &media.StreamInfo{Kind: media.KindVideo} }
func audioInfo() *media.StreamInfo  { return &media.StreamInfo{Kind: media.KindAudio} }

func TestStreamSelectorMatchesByKind(t *testing.T) {
	sel, sink := wireSelector(t, "audio")

	if err := sel.Process(media.FromStreamInfo(0, videoInfo())); err != nil {
		t.Fatal(err)
	}
	if err := sel.Process(media.FromStreamInfo(1, audioInfo())); err != nil {
		t.Fatal(err)
	}

	if !sel.done || sel.selected != 1 {
		t.Fatalf("selector state = done=%v selected=%d, want done=true selected=1", sel.done, sel.selected)
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events at sink, want 1 (video stream should be dropped)", len(sink.events))
	}
	if sink.events[0].StreamIndex != 0 {
		t.Fatalf("forwarded event re-indexed to %d, want 0", sink.events[0].StreamIndex)
	}
}

func TestStreamSelectorMatchesByNumericIndex(t *testing.T) {
	sel, sink := wireSelector(t, "2")

	if err := sel.Process(media.FromStreamInfo(0, videoInfo())); err != nil {
		t.Fatal(err)
	}
	if err := sel.Process(media.FromStreamInfo(2, audioInfo())); err != nil {
		t.Fatal(err)
	}
	if !sel.done || sel.selected != 2 {
		t.Fatalf("selector did not select numeric stream index 2: done=%v selected=%d", sel.done, sel.selected)
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events at sink, want 1", len(sink.events))
	}
}

func TestStreamSelectorDropsUnselectedStreamsAfterMatch(t *testing.T) {
	sel, sink := wireSelector(t, "video")

	if err := sel.Process(media.FromStreamInfo(0, videoInfo())); err != nil {
		t.Fatal(err)
	}
	sample := &media.MediaSample{StreamIndex: 1, Data: []byte{1}}
	if err := sel.Process(media.FromMediaSample(1, sample)); err != nil {
		t.Fatal(err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("got %d events at sink, want 1 (sample from unselected stream 1 must be dropped)", len(sink.events))
	}
}

func TestStreamSelectorFlushOnlyForwardsSelectedInput(t *testing.T) {
	sel, sink := wireSelector(t, "video")
	if err := sel.Process(media.FromStreamInfo(0, videoInfo())); err != nil {
		t.Fatal(err)
	}

	if err := sel.FlushInput(1); err != nil {
		t.Fatal(err)
	}
	if sink.flushed {
		t.Fatal("flush from a non-selected input must not propagate")
	}

	if err := sel.FlushInput(0); err != nil {
		t.Fatal(err)
	}
	if !sink.flushed {
		t.Fatal("flush from the selected input must propagate")
	}
}

func TestStreamSelectorNeverMatching(t *testing.T) {
	sel, sink := wireSelector(t, "text")
	if err := sel.Process(media.FromStreamInfo(0, videoInfo())); err != nil {
		t.Fatal(err)
	}
	if sel.done {
		t.Fatal("selector should remain unmatched when no stream satisfies the spec")
	}
	if len(sink.events) != 0 {
		t.Fatalf("got %d events at sink, want 0", len(sink.events))
	}
}
