// Package mpd defines the state a DASH manifest generator needs to track
// as segments arrive, without serializing MPD XML itself (that stays out
// of scope). A Notifier is driven by a mux.Muxer listener adapter, one
// NotifyNewSegment call per completed segment, mirroring package hls's
// role for HLS.
package mpd

import (
	"sync"

	"github.com/nullstream/packager/status"
)

// Params configures a Notifier, matching spec.md §6's mpd_params.
type Params struct {
	MPDOutput                      string
	BaseURLs                       []string
	MinBufferTime                  float64
	TimeShiftBufferDepth           float64
	SuggestedPresentationDelay     float64
	MinimumUpdatePeriod            float64
	DefaultLanguage                string
	GenerateStaticLiveMPD          bool
	GenerateDashIfIOPCompliantMPD  bool
}

// AdaptationSetParams describes one adaptation set (a group of
// representations for the same content, e.g. all video renditions),
// matching the dash_* fields of spec.md §6's stream descriptor.
type AdaptationSetParams struct {
	Label           string
	Language        string
	Accessibilities []string
	Roles           []string
}

// RepresentationParams describes one representation (bitrate variant)
// within an adaptation set.
type RepresentationParams struct {
	Bandwidth int
	Codecs    string
	Width     int
	Height    int
}

// SegmentTimelineEntry is one <S> entry a real MPD serializer would
// accumulate into a SegmentTimeline.
type SegmentTimelineEntry struct {
	StartTimestamp int64
	Duration       int64
	TimeScale      int64
	Repeat         int
}

// Notifier is the interface a real MPD XML serializer implements. This
// package's DefaultNotifier implements the adaptation-set/representation
// registry and segment-timeline bookkeeping such a serializer is driven
// from; it never produces XML.
type Notifier interface {
	NotifyNewAdaptationSet(adaptationSetID int, params AdaptationSetParams) error
	NotifyNewRepresentation(adaptationSetID, representationID int, params RepresentationParams) error
	NotifySegment(representationID int, entry SegmentTimelineEntry) error
	Flush() error
}

type adaptationSetState struct {
	params          AdaptationSetParams
	representations map[int]*representationState
}

type representationState struct {
	params   RepresentationParams
	timeline []SegmentTimelineEntry
}

// DefaultNotifier implements Notifier, maintaining the adaptation-set and
// per-representation segment-timeline state a real MPD writer needs,
// including run-length-encoding consecutive equal-duration segments into
// a single SegmentTimelineEntry with Repeat>0, the way DASH's
// SegmentTimeline compresses regular segment durations.
type DefaultNotifier struct {
	params Params

	mu             sync.Mutex
	adaptationSets map[int]*adaptationSetState
}

// NewDefaultNotifier builds a DefaultNotifier.
func NewDefaultNotifier(params Params) *DefaultNotifier {
	return &DefaultNotifier{params: params, adaptationSets: make(map[int]*adaptationSetState)}
}

// NotifyNewAdaptationSet implements Notifier.
func (n *DefaultNotifier) NotifyNewAdaptationSet(adaptationSetID int, params AdaptationSetParams) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.adaptationSets[adaptationSetID]; exists {
		return status.Newf(status.InvalidArgument, "mpd: adaptation set %d already registered", adaptationSetID)
	}
	n.adaptationSets[adaptationSetID] = &adaptationSetState{
		params:          params,
		representations: make(map[int]*representationState),
	}
	return nil
}

// NotifyNewRepresentation implements Notifier.
func (n *DefaultNotifier) NotifyNewRepresentation(adaptationSetID, representationID int, params RepresentationParams) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	as, ok := n.adaptationSets[adaptationSetID]
	if !ok {
		return status.Newf(status.InvalidArgument, "mpd: unknown adaptation set %d", adaptationSetID)
	}
	as.representations[representationID] = &representationState{params: params}
	return nil
}

// NotifySegment implements Notifier. It appends entry to the owning
// representation's timeline, merging it into the previous entry via
// Repeat when the duration matches and the entry is contiguous.
func (n *DefaultNotifier) NotifySegment(representationID int, entry SegmentTimelineEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	rep := n.findRepresentation(representationID)
	if rep == nil {
		return status.Newf(status.InvalidArgument, "mpd: unknown representation %d", representationID)
	}

	if len(rep.timeline) > 0 {
		last := &rep.timeline[len(rep.timeline)-1]
		lastEnd := last.StartTimestamp + last.Duration*int64(last.Repeat+1)
		if last.Duration == entry.Duration && last.TimeScale == entry.TimeScale && lastEnd == entry.StartTimestamp {
			last.Repeat++
			return nil
		}
	}
	rep.timeline = append(rep.timeline, entry)
	return nil
}

func (n *DefaultNotifier) findRepresentation(representationID int) *representationState {
	for _, as := range n.adaptationSets {
		if rep, ok := as.representations[representationID]; ok {
			return rep
		}
	}
	return nil
}

// Flush implements Notifier. DefaultNotifier holds no buffered I/O, so
// Flush is a no-op; a real serializer would write the final MPD here,
// honoring GenerateStaticLiveMPD to freeze an otherwise-live manifest.
func (n *DefaultNotifier) Flush() error { return nil }
