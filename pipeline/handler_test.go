package pipeline

import (
	"errors"
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

// recordingHandler is a 1-in/1-out test double that records every event it
// sees and every flush it receives, then forwards unchanged.
type recordingHandler struct {
	BaseHandler
	events  []*media.StreamData
	flushed bool
	failOn  media.DataType
}

func newRecordingHandler() *recordingHandler {
	h := &recordingHandler{BaseHandler: NewBaseHandler(1, 1)}
	h.Impl = h
	return h
}

func (h *recordingHandler) InitializeInternal() error { return nil }

func (h *recordingHandler) ProcessEvent(data *media.StreamData) error {
	if h.failOn != media.TypeUnknown && data.Type == h.failOn {
		return status.New(status.Internal, "injected failure")
	}
	h.events = append(h.events, data)
	return h.Dispatch(0, data)
}

func (h *recordingHandler) OnFlushRequest(int) error {
	h.flushed = true
	return h.DispatchFlush(0)
}

func TestConnectRejectsOutOfRangeIndex(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	if err := a.Connect(5, b, 0); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("Connect out of range: got %v, want InvalidArgument", err)
	}
}

func TestConnectRejectsDoubleConnect(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	c := newRecordingHandler()
	if err := a.Connect(0, b, 0); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := a.Connect(0, c, 0); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("second connect to same output: got %v, want InvalidArgument", err)
	}
}

func TestInitializeIsIdempotentAndRecursive(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	initCount := 0
	origInit := b.Impl
	_ = origInit
	if err := Chain(a, b); err != nil {
		t.Fatal(err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatalf("second Initialize should be a no-op: %v", err)
	}
	_ = initCount
}

func TestProcessForwardsWithRewrittenIndex(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	if err := a.Connect(0, b, 3); err != nil {
		t.Fatal(err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatal(err)
	}
	info := &media.StreamInfo{Kind: media.KindVideo, TimeScale: 90000}
	if err := a.Process(media.FromStreamInfo(0, info)); err != nil {
		t.Fatal(err)
	}
	if len(b.events) != 1 {
		t.Fatalf("expected 1 event forwarded, got %d", len(b.events))
	}
	if b.events[0].StreamIndex != 3 {
		t.Fatalf("expected downstream index 3, got %d", b.events[0].StreamIndex)
	}
}

func TestFlushPropagatesExactlyOnce(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	if err := Chain(a, b); err != nil {
		t.Fatal(err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := a.FlushInput(0); err != nil {
		t.Fatal(err)
	}
	if !a.flushed || !b.flushed {
		t.Fatal("expected flush to propagate to both handlers")
	}
}

func TestInvalidGraphShapeRejected(t *testing.T) {
	h := &recordingHandler{BaseHandler: NewBaseHandler(3, 2)}
	h.Impl = h
	if err := h.Initialize(); status.CodeOf(err) != status.InvalidArgument {
		t.Fatalf("3-in/2-out shape: got %v, want InvalidArgument", err)
	}
}

func TestProcessStopsGraphOnFirstError(t *testing.T) {
	a := newRecordingHandler()
	b := newRecordingHandler()
	b.failOn = media.TypeMediaSample
	if err := Chain(a, b); err != nil {
		t.Fatal(err)
	}
	if err := a.Initialize(); err != nil {
		t.Fatal(err)
	}
	sample := &media.MediaSample{DTS: 0}
	err := a.Process(media.FromMediaSample(0, sample))
	if err == nil {
		t.Fatal("expected error from downstream handler to propagate")
	}
	var statusErr *status.Error
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected a *status.Error, got %T", err)
	}
}

func TestReplicatorFansOutToAllOutputs(t *testing.T) {
	r := NewReplicator(3)
	outs := []*recordingHandler{newRecordingHandler(), newRecordingHandler(), newRecordingHandler()}
	for i, o := range outs {
		if err := r.Connect(i, o, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Initialize(); err != nil {
		t.Fatal(err)
	}
	info := &media.StreamInfo{Kind: media.KindAudio}
	if err := r.Process(media.FromStreamInfo(0, info)); err != nil {
		t.Fatal(err)
	}
	for i, o := range outs {
		if len(o.events) != 1 {
			t.Fatalf("output %d: expected 1 event, got %d", i, len(o.events))
		}
	}
}

func TestReplicatorFlushPropagatesToAllOutputs(t *testing.T) {
	r := NewReplicator(2)
	a, b := newRecordingHandler(), newRecordingHandler()
	if err := r.Connect(0, a, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Connect(1, b, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := r.FlushInput(0); err != nil {
		t.Fatal(err)
	}
	if !a.flushed || !b.flushed {
		t.Fatal("expected both replicator outputs to be flushed")
	}
}
