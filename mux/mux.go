// Package mux implements the muxing side of the packaging pipeline: the
// Muxer contract every concrete container writer satisfies, a fragmented
// MP4 (CMAF-style) muxer, and a WebVTT segment muxer. Manifest text
// serialization (M3U8/MPD) is out of scope; the hls and mpd subpackages
// define the Notifier interfaces a real serializer would implement,
// driven by the same SegmentNotification events the muxers here emit.
package mux

import "github.com/nullstream/packager/pipeline"

// Muxer is the pipeline.Handler role a container writer plays: it
// consumes StreamInfo/MediaSample/TextSample/SegmentInfo events on its
// inputs and produces no downstream StreamData (its outputs, if any, are
// never connected); its real output is bytes written to an io.Writer
// supplied at construction, plus Listener notifications.
type Muxer interface {
	pipeline.Handler
}

// Mp4OutputParams configures fragmented-MP4 muxing, matching spec.md §6's
// mp4_output_params.
type Mp4OutputParams struct {
	GenerateSidxInMediaSegments bool
	IncludePsshInStream         bool
	LowLatencyDashMode          bool
	InitialSequenceNumber       uint32
}

// SegmentNotification describes one segment a Muxer has finished writing.
type SegmentNotification struct {
	StreamIndex    int
	StartTimestamp int64
	Duration       int64
	TimeScale      int64
	IsSubsegment   bool
	IsKeyFrame     bool
	SizeBytes      int64
	Encrypted      bool
}

// Listener receives notifications as a Muxer completes init segments and
// media segments. A real HLS/DASH packaging run wires an hls.Notifier
// and/or mpd.Notifier (or an adapter to one) as a Muxer's Listener.
type Listener interface {
	OnInitSegment(streamIndex int, data []byte) error
	OnNewSegment(n SegmentNotification) error
}

// NopListener discards every notification; the zero value of Listener
// fields in a Muxer falls back to it so callers that only care about the
// bytes written need not implement Listener themselves.
type NopListener struct{}

// OnInitSegment implements Listener.
func (NopListener) OnInitSegment(int, []byte) error { return nil }

// OnNewSegment implements Listener.
func (NopListener) OnNewSegment(SegmentNotification) error { return nil }
