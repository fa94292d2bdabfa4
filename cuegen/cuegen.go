// Package cuegen turns upstream SCTE-35 splice markers into the CueEvent
// boundaries the chunking handler treats as forced segment cuts. It is
// the only package that understands SCTE-35 segmentation type semantics;
// everything downstream only ever sees a CueEvent.
package cuegen

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/scte35"
)

// adBreakStartTypes are the segmentation type ids that open an ad break
// (CueOut): the splice point where regular content yields to inserted
// content.
var adBreakStartTypes = map[uint32]bool{
	scte35.SegmentationTypeProviderAdStart:        true,
	scte35.SegmentationTypeDistributorAdStart:     true,
	scte35.SegmentationTypeProviderPOStart:        true,
	scte35.SegmentationTypeDistributorPOStart:     true,
	scte35.SegmentationTypeProviderAdBlockStart:   true,
	scte35.SegmentationTypeDistributorAdBlockStart: true,
	scte35.SegmentationTypeBreakStart:             true,
}

// adBreakEndTypes are the segmentation type ids that close an ad break
// (CueIn): the splice point where inserted content returns to regular
// content.
var adBreakEndTypes = map[uint32]bool{
	scte35.SegmentationTypeProviderAdEnd:        true,
	scte35.SegmentationTypeDistributorAdEnd:     true,
	scte35.SegmentationTypeProviderPOEnd:        true,
	scte35.SegmentationTypeDistributorPOEnd:     true,
	scte35.SegmentationTypeProviderAdBlockEnd:   true,
	scte35.SegmentationTypeDistributorAdBlockEnd: true,
	scte35.SegmentationTypeBreakEnd:             true,
}

// AdCueGenerator is an N-in/N-out pipeline.Handler: for each input stream
// it classifies every incoming Scte35Event by segmentation type id and
// forwards a matching CueEvent, dropping segmentation types that carry no
// ad-insertion meaning (e.g. program/chapter markers) rather than
// surfacing them as forced cuts.
type AdCueGenerator struct {
	pipeline.BaseHandler
}

// NewAdCueGenerator builds an AdCueGenerator with numStreams input/output
// pairs.
func NewAdCueGenerator(numStreams int) *AdCueGenerator {
	g := &AdCueGenerator{}
	g.BaseHandler = pipeline.NewBaseHandler(numStreams, numStreams)
	g.Impl = g
	return g
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (g *AdCueGenerator) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (g *AdCueGenerator) ProcessEvent(data *media.StreamData) error {
	if data.Type != media.TypeScte35Event {
		return g.Dispatch(data.StreamIndex, data)
	}

	cue, ok := classify(data.Scte35Event)
	if !ok {
		return nil
	}
	return g.Dispatch(data.StreamIndex, media.FromCueEvent(data.StreamIndex, cue))
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (g *AdCueGenerator) OnFlushRequest(inputIndex int) error {
	return g.DispatchFlush(inputIndex)
}

// classify maps a Scte35Event's segmentation type id to a CueEvent, or
// reports ok=false if the segmentation type carries no ad-insertion
// meaning this packager acts on.
func classify(event *media.Scte35Event) (*media.CueEvent, bool) {
	var eventType media.CueEventType
	switch {
	case adBreakStartTypes[uint32(event.SegmentationTypeID)]:
		eventType = media.CueOut
	case adBreakEndTypes[uint32(event.SegmentationTypeID)]:
		eventType = media.CueIn
	default:
		return nil, false
	}
	return &media.CueEvent{
		StreamIndex: event.StreamIndex,
		TimeSeconds: event.StartTimeSeconds,
		Type:        eventType,
		CueData:     event.CueData,
	}, true
}

// DecodeSegmentationTypeID extracts the segmentation_type_id from a raw
// SCTE-35 splice_info_section, for demuxers that only have the encoded
// splice command and need to populate Scte35Event.SegmentationTypeID
// before handing it to this package.
func DecodeSegmentationTypeID(spliceInfoSection []byte) (int, bool) {
	sis, err := scte35.DecodeBytes(spliceInfoSection)
	if err != nil {
		return 0, false
	}
	for _, d := range sis.SpliceDescriptors {
		if sd, ok := d.(*scte35.SegmentationDescriptor); ok {
			return int(sd.SegmentationTypeID), true
		}
	}
	return 0, false
}
