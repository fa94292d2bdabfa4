package packager

import (
	"strconv"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// streamSelector narrows a demuxer's discovered elementary streams down to
// the single one a StreamDescriptor asked for, re-indexing it to output 0.
// A demuxer doesn't know in advance how many streams it will discover, so
// the selector accepts an unbounded number of input indices (NumInputStreams
// == -1) and only forwards the one that matches; every other stream is
// silently dropped, the way a real packaging run's "select stream 1 from
// this multi-program input" flag works.
type streamSelector struct {
	pipeline.BaseHandler

	spec     string
	selected int // -1 until the matching stream is seen
	done     bool
}

// newStreamSelector builds a streamSelector matching spec, one of "audio",
// "video", "text", or a numeric stream index (as it appears in spec.md's
// stream_selector field).
func newStreamSelector(spec string) *streamSelector {
	s := &streamSelector{spec: spec, selected: -1}
	s.BaseHandler = pipeline.NewBaseHandler(-1, 1)
	s.Impl = s
	return s
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (s *streamSelector) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (s *streamSelector) ProcessEvent(data *media.StreamData) error {
	if s.done && data.StreamIndex != s.selected {
		return nil
	}
	if !s.done {
		if data.Type != media.TypeStreamInfo {
			// A stream we haven't classified yet sent something other than
			// its StreamInfo first; nothing to match against, drop it.
			return nil
		}
		if !s.matches(data.StreamIndex, data.StreamInfo) {
			return nil
		}
		s.selected = data.StreamIndex
		s.done = true
	}
	return s.Dispatch(0, data.WithStreamIndex(0))
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (s *streamSelector) OnFlushRequest(inputIndex int) error {
	if inputIndex != s.selected {
		return nil
	}
	return s.DispatchFlush(0)
}

func (s *streamSelector) matches(streamIndex int, info *media.StreamInfo) bool {
	switch s.spec {
	case "audio":
		return info.Kind == media.KindAudio
	case "video":
		return info.Kind == media.KindVideo
	case "text":
		return info.Kind == media.KindText
	default:
		n, err := strconv.Atoi(s.spec)
		return err == nil && n == streamIndex
	}
}

// errNoStreamSelected reports that a pipeline ran to completion without its
// selector ever matching a stream, which means the input had no stream
// satisfying the descriptor's stream_selector.
func errNoStreamSelected(spec string) error {
	return status.Newf(status.InvalidArgument, "no stream matched stream_selector %q", spec)
}
