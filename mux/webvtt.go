package mux

import (
	"fmt"
	"io"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// WebVTTMuxer writes one text track as a sequence of standalone WebVTT
// segment files: a "WEBVTT" header plus one cue block per TextSample,
// split at SegmentInfo boundaries. WebVTT cue text is a real wire format
// this module owns end to end; only DASH/HLS manifest text (the playlist
// that references these segments) is out of scope.
type WebVTTMuxer struct {
	pipeline.BaseHandler

	w        io.Writer
	listener Listener
	timeScale int64

	pending []*media.TextSample
	segIdx  int
}

// NewWebVTTMuxer builds a WebVTTMuxer writing segments to w. timeScale
// converts TextSample.StartTime/EndTime ticks to seconds for cue
// timestamps; pass 1000 for millisecond-denominated cues (the convention
// chunking.TextChunkingHandler uses). demux.CaptionExtractor stamps cues
// with the video sample's PTS, so its cues need that stream's timescale.
func NewWebVTTMuxer(w io.Writer, timeScale int64, listener Listener) *WebVTTMuxer {
	if listener == nil {
		listener = NopListener{}
	}
	if timeScale <= 0 {
		timeScale = 1000
	}
	m := &WebVTTMuxer{w: w, listener: listener, timeScale: timeScale}
	m.BaseHandler = pipeline.NewBaseHandler(1, 1)
	m.Impl = m
	return m
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (m *WebVTTMuxer) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (m *WebVTTMuxer) ProcessEvent(data *media.StreamData) error {
	switch data.Type {
	case media.TypeStreamInfo:
		if data.StreamInfo.Kind != media.KindText {
			return status.New(status.InvalidArgument, "webvtt muxer requires a text stream")
		}
		return nil
	case media.TypeTextSample:
		m.pending = append(m.pending, data.TextSample)
		return nil
	case media.TypeSegmentInfo:
		return m.onSegmentInfo(data.SegmentInfo)
	default:
		return nil
	}
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (m *WebVTTMuxer) OnFlushRequest(inputIndex int) error {
	return m.DispatchFlush(0)
}

func (m *WebVTTMuxer) onSegmentInfo(seg *media.SegmentInfo) error {
	cues := m.pending
	m.pending = nil

	body := "WEBVTT\n\n"
	for _, c := range cues {
		body += fmt.Sprintf("%s --> %s\n%s\n\n",
			formatVTTTimestamp(c.StartTime, m.timeScale),
			formatVTTTimestamp(c.EndTime, m.timeScale),
			c.Payload)
	}

	n, err := io.WriteString(m.w, body)
	if err != nil {
		return status.Wrap(status.Internal, err, "writing webvtt segment")
	}
	m.segIdx++

	return m.listener.OnNewSegment(SegmentNotification{
		StreamIndex:    seg.StreamIndex,
		StartTimestamp: seg.StartTimestamp,
		Duration:       seg.Duration,
		TimeScale:      m.timeScale,
		IsSubsegment:   seg.IsSubsegment,
		SizeBytes:      int64(n),
	})
}

// formatVTTTimestamp renders ticks (at timeScale ticks/second) as WebVTT's
// HH:MM:SS.mmm timestamp format.
func formatVTTTimestamp(ticks, timeScale int64) string {
	millis := ticks * 1000 / timeScale
	h := millis / 3600000
	millis %= 3600000
	m := millis / 60000
	millis %= 60000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
