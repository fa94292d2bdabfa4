package packager

import (
	"github.com/nullstream/packager/mux"
	"github.com/nullstream/packager/mux/hls"
	"github.com/nullstream/packager/mux/mpd"
)

// manifestBridge adapts one StreamDescriptor's mux.Listener callbacks to
// the hls.Notifier/mpd.Notifier registered on the owning Packager, so a
// single packaging run's manifest state is shared across every
// descriptor's independently-running pipeline. id is the stable
// stream/adaptation-set/representation identifier assigned by the
// Packager for this descriptor; every muxer in this package writes a
// single track per output, so a descriptor's init segment always
// registers exactly one stream/representation.
type manifestBridge struct {
	id int

	hlsNotifier hls.Notifier
	mpdNotifier mpd.Notifier

	streamParams hls.StreamParams
	asParams     mpd.AdaptationSetParams
	repParams    mpd.RepresentationParams

	registered bool
}

// OnInitSegment implements mux.Listener: the first init segment for a
// descriptor registers its HLS rendition and DASH adaptation
// set/representation; repeated init segments (a muxer may re-emit one on
// key rotation) are ignored, since the registries key by id.
func (b *manifestBridge) OnInitSegment(streamIndex int, data []byte) error {
	if b.registered {
		return nil
	}
	b.registered = true
	if b.hlsNotifier != nil {
		if err := b.hlsNotifier.NotifyNewStream(b.id, b.streamParams); err != nil {
			return err
		}
	}
	if b.mpdNotifier != nil {
		if err := b.mpdNotifier.NotifyNewAdaptationSet(b.id, b.asParams); err != nil {
			return err
		}
		if err := b.mpdNotifier.NotifyNewRepresentation(b.id, b.id, b.repParams); err != nil {
			return err
		}
	}
	return nil
}

// OnNewSegment implements mux.Listener, translating one SegmentNotification
// into the HLS and/or DASH notifier calls it implies.
func (b *manifestBridge) OnNewSegment(n mux.SegmentNotification) error {
	if b.hlsNotifier != nil {
		if err := b.hlsNotifier.NotifyNewSegment(b.id, hls.Segment{
			StartTimestamp: n.StartTimestamp,
			Duration:       n.Duration,
			TimeScale:      n.TimeScale,
			IsSubsegment:   n.IsSubsegment,
		}); err != nil {
			return err
		}
	}
	if b.mpdNotifier != nil {
		if err := b.mpdNotifier.NotifySegment(b.id, mpd.SegmentTimelineEntry{
			StartTimestamp: n.StartTimestamp,
			Duration:       n.Duration,
			TimeScale:      n.TimeScale,
		}); err != nil {
			return err
		}
	}
	return nil
}

// newManifestBridge builds a manifestBridge for descriptor d, identified
// by id, forwarding to whichever of hlsNotifier/mpdNotifier the run has
// wired (either may be nil, e.g. dash_only/hls_only descriptors).
func newManifestBridge(id int, d StreamDescriptor, hlsNotifier hls.Notifier, mpdNotifier mpd.Notifier) *manifestBridge {
	if d.HLSOnly {
		mpdNotifier = nil
	}
	if d.DASHOnly {
		hlsNotifier = nil
	}
	return &manifestBridge{
		id:          id,
		hlsNotifier: hlsNotifier,
		mpdNotifier: mpdNotifier,
		streamParams: hls.StreamParams{
			Name:               d.HLSName,
			GroupID:            d.HLSGroupID,
			PlaylistName:       d.HLSPlaylistName,
			IFramePlaylistName: d.HLSIFramePlaylistName,
			Characteristics:    d.HLSCharacteristics,
			Bandwidth:          d.Bandwidth,
			Language:           d.Language,
		},
		asParams: mpd.AdaptationSetParams{
			Label:           d.DASHLabel,
			Language:        d.Language,
			Accessibilities: d.DASHAccessibilities,
			Roles:           d.DASHRoles,
		},
		repParams: mpd.RepresentationParams{
			Bandwidth: d.Bandwidth,
		},
	}
}
