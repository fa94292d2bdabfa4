package chunking

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// textTrackState tracks segment cut points for one text stream, in
// milliseconds (TextSample start/end times are not tied to a container
// time scale the way MediaSample DTS is).
type textTrackState struct {
	seeded          bool
	segmentStart    int64
	segmentTargetEnd int64
	lastEnd         int64
}

// TextChunkingHandler applies the same duration-based segment cutting
// algorithm as ChunkingHandler to a stream of TextSample cues instead of
// MediaSamples. Text streams have no access points to align to, so SAP
// alignment never applies: a cue whose start time reaches the target end
// forces the cut, same as the non-SAP-aligned case for media.
type TextChunkingHandler struct {
	pipeline.BaseHandler

	segmentDurationMillis int64
	tracks                []*textTrackState
}

// NewTextChunkingHandler builds a TextChunkingHandler with numStreams
// input/output pairs and the given segment duration in seconds.
func NewTextChunkingHandler(numStreams int, segmentDurationSeconds float64) (*TextChunkingHandler, error) {
	if segmentDurationSeconds <= 0 {
		return nil, status.New(status.InvalidArgument, "segment_duration_seconds must be positive")
	}
	h := &TextChunkingHandler{
		segmentDurationMillis: int64(segmentDurationSeconds * 1000),
		tracks:                make([]*textTrackState, numStreams),
	}
	h.BaseHandler = pipeline.NewBaseHandler(numStreams, numStreams)
	h.Impl = h
	return h, nil
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (h *TextChunkingHandler) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (h *TextChunkingHandler) ProcessEvent(data *media.StreamData) error {
	idx := data.StreamIndex
	if idx < 0 || idx >= len(h.tracks) {
		return status.Newf(status.Internal, "text chunking handler: stream index %d out of range", idx)
	}

	switch data.Type {
	case media.TypeStreamInfo:
		h.tracks[idx] = &textTrackState{}
		return h.Dispatch(idx, data)
	case media.TypeTextSample:
		return h.onTextSample(idx, data)
	default:
		return h.Dispatch(idx, data)
	}
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (h *TextChunkingHandler) OnFlushRequest(inputIndex int) error {
	track := h.tracks[inputIndex]
	if track != nil && track.seeded {
		if err := h.Dispatch(inputIndex, media.FromSegmentInfo(inputIndex, &media.SegmentInfo{
			StreamIndex:    inputIndex,
			StartTimestamp: track.segmentStart,
			Duration:       track.lastEnd - track.segmentStart,
			IsFinalChunk:   true,
		})); err != nil {
			return err
		}
	}
	return h.DispatchFlush(inputIndex)
}

func (h *TextChunkingHandler) onTextSample(idx int, data *media.StreamData) error {
	track := h.tracks[idx]
	if track == nil {
		return status.Newf(status.Internal, "text chunking handler: text sample on stream %d before StreamInfo", idx)
	}
	sample := data.TextSample
	track.lastEnd = sample.EndTime

	if !track.seeded {
		track.seeded = true
		track.segmentStart = sample.StartTime
		track.segmentTargetEnd = sample.StartTime + h.segmentDurationMillis
	}

	if sample.StartTime >= track.segmentTargetEnd {
		if err := h.Dispatch(idx, media.FromSegmentInfo(idx, &media.SegmentInfo{
			StreamIndex:    idx,
			StartTimestamp: track.segmentStart,
			Duration:       sample.StartTime - track.segmentStart,
		})); err != nil {
			return err
		}
		track.segmentStart = sample.StartTime
		track.segmentTargetEnd = sample.StartTime + h.segmentDurationMillis
	}

	return h.Dispatch(idx, data)
}
