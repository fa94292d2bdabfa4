package pipeline

import (
	"context"
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

// sliceSource replays a fixed list of events, then reports end-of-stream.
type sliceSource struct {
	events []*media.StreamData
	pos    int
}

func (s *sliceSource) Next() (*media.StreamData, error) {
	if s.pos >= len(s.events) {
		return nil, status.ErrEndOfStream
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func TestOriginHandlerRunForwardsAllEventsThenFlushes(t *testing.T) {
	src := &sliceSource{events: []*media.StreamData{
		media.FromStreamInfo(0, &media.StreamInfo{Kind: media.KindVideo}),
		media.FromMediaSample(0, &media.MediaSample{DTS: 0}),
		media.FromMediaSample(0, &media.MediaSample{DTS: 10}),
	}}
	origin := NewOriginHandler(src)
	sink := newRecordingHandler()
	if err := origin.Connect(0, sink, 0); err != nil {
		t.Fatal(err)
	}
	if err := origin.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.events) != 3 {
		t.Fatalf("expected 3 events forwarded, got %d", len(sink.events))
	}
	if !sink.flushed {
		t.Fatal("expected sink to be flushed at end of stream")
	}
}

func TestOriginHandlerCancelStopsLoop(t *testing.T) {
	origin := NewOriginHandler(&sliceSource{})
	sink := newRecordingHandler()
	if err := origin.Connect(0, sink, 0); err != nil {
		t.Fatal(err)
	}
	origin.Cancel()
	err := origin.Run(context.Background())
	if status.CodeOf(err) != status.Cancelled {
		t.Fatalf("Run after Cancel: got %v, want Cancelled", err)
	}
	if !sink.flushed {
		t.Fatal("expected sink to be flushed on cancellation")
	}
}

func TestOriginHandlerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	origin := NewOriginHandler(&sliceSource{events: []*media.StreamData{
		media.FromMediaSample(0, &media.MediaSample{}),
	}})
	sink := newRecordingHandler()
	if err := origin.Connect(0, sink, 0); err != nil {
		t.Fatal(err)
	}
	if err := origin.Run(ctx); status.CodeOf(err) != status.Cancelled {
		t.Fatalf("Run with cancelled ctx: got %v, want Cancelled", err)
	}
}
