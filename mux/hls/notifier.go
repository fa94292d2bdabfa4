// Package hls defines the state a live or VOD HLS playlist generator
// needs to track as segments arrive, without serializing M3U8 text
// itself (that stays out of scope). A Notifier is driven by a mux.Muxer
// listener adapter, one NotifyNewSegment call per completed segment.
package hls

import (
	"sync"

	"github.com/nullstream/packager/status"
)

// PlaylistType controls media-sequence/eviction behavior, per spec.md
// §6's hls_params.playlist_type.
type PlaylistType int

// Supported playlist types.
const (
	PlaylistVOD PlaylistType = iota
	PlaylistEvent
	PlaylistLive
)

// Params configures a Notifier, matching spec.md §6's hls_params.
type Params struct {
	PlaylistType         PlaylistType
	MasterPlaylistOutput string
	BaseURL              string
	KeyURI               string
	TimeShiftBufferDepth float64
	DefaultLanguage      string
}

// StreamParams names one rendition, matching the hls_* fields of spec.md
// §6's stream descriptor.
type StreamParams struct {
	Name                string
	GroupID             string
	PlaylistName        string
	IFramePlaylistName  string
	Characteristics     []string
	Bandwidth           int
	Language            string
}

// Segment describes one media segment to add to a rendition's playlist.
type Segment struct {
	StartTimestamp int64
	Duration       int64
	TimeScale      int64
	URI            string
	IsSubsegment   bool
}

// Notifier is the interface a real M3U8 text serializer implements. This
// package's DefaultNotifier implements the segment-list and
// media-sequence bookkeeping such a serializer is driven from; it never
// produces M3U8 bytes.
type Notifier interface {
	NotifyNewStream(streamIndex int, params StreamParams) error
	NotifyNewSegment(streamIndex int, seg Segment) error
	NotifyEncryptionInfo(streamIndex int, keyURI string, iv []byte) error
	Flush() error
}

type streamState struct {
	params                 StreamParams
	segments               []Segment
	mediaSequence          int
	discontinuitySequence  int
	keyURI                 string
	keyIV                  []byte
}

// DefaultNotifier implements Notifier, maintaining per-rendition segment
// windows (evicting the oldest segment once TimeShiftBufferDepth seconds
// of LIVE content have accumulated, incrementing the media sequence
// number each time) the way a real playlist writer is driven.
type DefaultNotifier struct {
	params Params

	mu      sync.Mutex
	streams map[int]*streamState
}

// NewDefaultNotifier builds a DefaultNotifier.
func NewDefaultNotifier(params Params) *DefaultNotifier {
	return &DefaultNotifier{params: params, streams: make(map[int]*streamState)}
}

// NotifyNewStream implements Notifier.
func (n *DefaultNotifier) NotifyNewStream(streamIndex int, params StreamParams) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.streams[streamIndex]; exists {
		return status.Newf(status.InvalidArgument, "hls: stream %d already registered", streamIndex)
	}
	n.streams[streamIndex] = &streamState{params: params}
	return nil
}

// NotifyNewSegment implements Notifier.
func (n *DefaultNotifier) NotifyNewSegment(streamIndex int, seg Segment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.streams[streamIndex]
	if !ok {
		return status.Newf(status.InvalidArgument, "hls: unknown stream %d", streamIndex)
	}
	st.segments = append(st.segments, seg)

	if n.params.PlaylistType == PlaylistLive && n.params.TimeShiftBufferDepth > 0 {
		n.evictExpired(st)
	}
	return nil
}

// evictExpired drops segments from the front of the window once their
// combined duration exceeds TimeShiftBufferDepth, advancing the media
// sequence number by the number evicted.
func (n *DefaultNotifier) evictExpired(st *streamState) {
	var total float64
	for _, s := range st.segments {
		if s.TimeScale > 0 {
			total += float64(s.Duration) / float64(s.TimeScale)
		}
	}
	for total > n.params.TimeShiftBufferDepth && len(st.segments) > 1 {
		evicted := st.segments[0]
		st.segments = st.segments[1:]
		st.mediaSequence++
		if evicted.TimeScale > 0 {
			total -= float64(evicted.Duration) / float64(evicted.TimeScale)
		}
	}
}

// NotifyEncryptionInfo implements Notifier.
func (n *DefaultNotifier) NotifyEncryptionInfo(streamIndex int, keyURI string, iv []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.streams[streamIndex]
	if !ok {
		return status.Newf(status.InvalidArgument, "hls: unknown stream %d", streamIndex)
	}
	st.discontinuitySequence++
	st.keyURI = keyURI
	st.keyIV = iv
	return nil
}

// Flush implements Notifier. DefaultNotifier holds no buffered I/O, so
// Flush is a no-op; a real serializer would write the final playlist
// here.
func (n *DefaultNotifier) Flush() error { return nil }
