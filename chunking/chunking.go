// Package chunking implements the ChunkingHandler: it inserts SegmentInfo
// boundary markers into a stream of MediaSample events so that segments
// (and, optionally, subsegments) are approximately a configured duration,
// aligned to stream access points on request.
package chunking

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// Params configures a ChunkingHandler.
type Params struct {
	SegmentDurationSeconds    float64
	SubsegmentDurationSeconds float64 // 0 disables subsegments
	SegmentSAPAligned         bool
	SubsegmentSAPAligned      bool
}

func (p Params) validate() error {
	if p.SegmentDurationSeconds <= 0 {
		return status.New(status.InvalidArgument, "segment_duration_seconds must be positive")
	}
	if p.SubsegmentSAPAligned && !p.SegmentSAPAligned {
		return status.New(status.InvalidArgument, "subsegment_sap_aligned requires segment_sap_aligned")
	}
	return nil
}

// trackState tracks the current segment/subsegment cut points for one
// input stream, in that stream's own time scale.
type trackState struct {
	timeScale int64
	seeded    bool

	segmentStart    int64
	segmentTargetEnd int64

	subsegmentStart    int64
	subsegmentTargetEnd int64

	lastDTS int64

	pendingCue *media.CueEvent
}

// ChunkingHandler is an N-in/N-out pipeline.Handler implementing the
// segment/subsegment cutting algorithm described in the packaging
// pipeline's chunking design: a SAP-aligned (or duration-only) cut is
// inserted into the MediaSample stream whenever the running DTS reaches
// the next segment's target end, and a CueEvent forces an immediate cut
// regardless of duration or SAP alignment.
type ChunkingHandler struct {
	pipeline.BaseHandler

	params Params
	tracks []*trackState
}

// NewChunkingHandler builds a ChunkingHandler with numStreams input/
// output pairs. It returns an error if subsegment SAP alignment is
// requested without segment SAP alignment.
func NewChunkingHandler(numStreams int, params Params) (*ChunkingHandler, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	h := &ChunkingHandler{params: params, tracks: make([]*trackState, numStreams)}
	h.BaseHandler = pipeline.NewBaseHandler(numStreams, numStreams)
	h.Impl = h
	return h, nil
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (h *ChunkingHandler) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (h *ChunkingHandler) ProcessEvent(data *media.StreamData) error {
	idx := data.StreamIndex
	if idx < 0 || idx >= len(h.tracks) {
		return status.Newf(status.Internal, "chunking handler: stream index %d out of range", idx)
	}

	switch data.Type {
	case media.TypeStreamInfo:
		h.tracks[idx] = &trackState{timeScale: data.StreamInfo.TimeScale}
		return h.Dispatch(idx, data)
	case media.TypeMediaSample:
		return h.onMediaSample(idx, data)
	case media.TypeCueEvent:
		return h.onCueEvent(idx, data)
	default:
		return h.Dispatch(idx, data)
	}
}

// OnFlushRequest implements the BaseHandler.Impl contract: emit a final
// SegmentInfo covering the tail of the current segment, even if shorter
// than the configured target, then propagate the flush.
func (h *ChunkingHandler) OnFlushRequest(inputIndex int) error {
	track := h.tracks[inputIndex]
	if track != nil && track.seeded {
		if err := h.emitSegment(inputIndex, track, track.lastDTS, true); err != nil {
			return err
		}
	}
	return h.DispatchFlush(inputIndex)
}

func (h *ChunkingHandler) onCueEvent(idx int, data *media.StreamData) error {
	track := h.tracks[idx]
	if track == nil || !track.seeded {
		return h.Dispatch(idx, data)
	}
	// A CueEvent forces a boundary immediately before the next sample: it
	// is queued here and applied as soon as that sample arrives, so the
	// emitted SegmentInfo's duration reflects the samples actually seen so
	// far rather than an estimate.
	cue := *data.CueEvent
	track.pendingCue = &cue
	return nil
}

func (h *ChunkingHandler) onMediaSample(idx int, data *media.StreamData) error {
	track := h.tracks[idx]
	if track == nil {
		return status.Newf(status.Internal, "chunking handler: media sample on stream %d before StreamInfo", idx)
	}
	sample := data.MediaSample
	track.lastDTS = sample.DTS

	if !track.seeded {
		h.seed(track, sample.DTS)
	}

	if track.pendingCue != nil {
		if err := h.emitSegment(idx, track, sample.DTS, false); err != nil {
			return err
		}
		if err := h.Dispatch(idx, media.FromCueEvent(idx, track.pendingCue)); err != nil {
			return err
		}
		track.pendingCue = nil
		h.seed(track, sample.DTS)
		return h.Dispatch(idx, data)
	}

	if h.shouldCutSegment(track, sample) {
		if err := h.emitSegment(idx, track, sample.DTS, false); err != nil {
			return err
		}
		h.seed(track, sample.DTS)
	} else if h.shouldCutSubsegment(track, sample) {
		if err := h.emitSubsegment(idx, track, sample.DTS); err != nil {
			return err
		}
	}

	return h.Dispatch(idx, data)
}

func (h *ChunkingHandler) seed(track *trackState, dts int64) {
	track.seeded = true
	track.segmentStart = dts
	track.segmentTargetEnd = dts + int64(h.params.SegmentDurationSeconds*float64(track.timeScale))
	if h.params.SubsegmentDurationSeconds > 0 {
		track.subsegmentStart = dts
		track.subsegmentTargetEnd = dts + int64(h.params.SubsegmentDurationSeconds*float64(track.timeScale))
	}
}

func (h *ChunkingHandler) shouldCutSegment(track *trackState, sample *media.MediaSample) bool {
	if sample.DTS < track.segmentTargetEnd {
		return false
	}
	if h.params.SegmentSAPAligned {
		return sample.IsKeyFrame
	}
	return true
}

func (h *ChunkingHandler) shouldCutSubsegment(track *trackState, sample *media.MediaSample) bool {
	if h.params.SubsegmentDurationSeconds <= 0 || sample.DTS < track.subsegmentTargetEnd {
		return false
	}
	if h.params.SubsegmentSAPAligned {
		return sample.IsKeyFrame
	}
	return true
}

func (h *ChunkingHandler) emitSegment(idx int, track *trackState, endDTS int64, isFinal bool) error {
	seg := &media.SegmentInfo{
		StreamIndex:    idx,
		StartTimestamp: track.segmentStart,
		Duration:       endDTS - track.segmentStart,
		IsFinalChunk:   isFinal,
	}
	if err := h.Dispatch(idx, media.FromSegmentInfo(idx, seg)); err != nil {
		return err
	}
	track.segmentStart = endDTS
	track.segmentTargetEnd = endDTS + int64(h.params.SegmentDurationSeconds*float64(track.timeScale))
	if h.params.SubsegmentDurationSeconds > 0 {
		track.subsegmentStart = endDTS
		track.subsegmentTargetEnd = endDTS + int64(h.params.SubsegmentDurationSeconds*float64(track.timeScale))
	}
	return nil
}

func (h *ChunkingHandler) emitSubsegment(idx int, track *trackState, endDTS int64) error {
	seg := &media.SegmentInfo{
		StreamIndex:    idx,
		StartTimestamp: track.subsegmentStart,
		Duration:       endDTS - track.subsegmentStart,
		IsSubsegment:   true,
	}
	if err := h.Dispatch(idx, media.FromSegmentInfo(idx, seg)); err != nil {
		return err
	}
	track.subsegmentStart = endDTS
	track.subsegmentTargetEnd = endDTS + int64(h.params.SubsegmentDurationSeconds*float64(track.timeScale))
	return nil
}
