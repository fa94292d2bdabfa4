package packager

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
)

// trickPlayFilter thins a video track down to an I-frame-only trick-play
// rendition: every non-keyframe sample is dropped, and only every Nth
// keyframe survives, where N is the configured trick_play_factor. A
// factor of 1 (or below) keeps every keyframe and drops nothing else.
type trickPlayFilter struct {
	pipeline.BaseHandler

	factor        int
	keyframeCount int
}

// newTrickPlayFilter builds a trickPlayFilter for the given
// trick_play_factor.
func newTrickPlayFilter(factor int) *trickPlayFilter {
	if factor < 1 {
		factor = 1
	}
	f := &trickPlayFilter{factor: factor}
	f.BaseHandler = pipeline.NewBaseHandler(1, 1)
	f.Impl = f
	return f
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (f *trickPlayFilter) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (f *trickPlayFilter) ProcessEvent(data *media.StreamData) error {
	if data.Type != media.TypeMediaSample {
		return f.Dispatch(0, data)
	}
	sample := data.MediaSample
	if !sample.IsKeyFrame {
		return nil
	}
	f.keyframeCount++
	if (f.keyframeCount-1)%f.factor != 0 {
		return nil
	}
	return f.Dispatch(0, data)
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (f *trickPlayFilter) OnFlushRequest(inputIndex int) error {
	return f.DispatchFlush(0)
}
