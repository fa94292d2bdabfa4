package demux

import (
	"context"
	"io"

	"github.com/nullstream/packager/codecs"
	"github.com/nullstream/packager/internal/mpegts"
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// MPEG-TS stream_type values this demuxer recognizes (ISO/IEC 13818-1
// Table 2-34, plus the ATSC/ETSI private values in common use).
const (
	streamTypeMPEG2Video = 0x02
	streamTypeAAC        = 0x0f // ADTS
	streamTypeH264       = 0x1b
	streamTypeH265       = 0x24
	streamTypeAC3        = 0x81
	streamTypeEC3        = 0x87
)

// tsTrackState tracks one elementary stream discovered via the PMT.
type tsTrackState struct {
	outputIndex int
	kind        media.Kind
	codec       media.Codec
	streamType  uint8
	started     bool
}

// TSDemuxer adapts the transport-stream packet parser to the Demuxer
// contract: it discovers elementary streams from the PAT/PMT, emits a
// StreamInfo the first time each is seen, and turns each reassembled PES
// packet into MediaSamples. Video PES packets (H.264/H.265, Annex B
// framed) are passed through as one sample per PES; AAC PES packets are
// split into one sample per ADTS frame, since encoders routinely batch
// several AAC frames into a single PES packet.
type TSDemuxer struct {
	r io.Reader
}

// NewTSDemuxer builds a TSDemuxer reading transport-stream packets from r.
func NewTSDemuxer(r io.Reader) *TSDemuxer {
	return &TSDemuxer{r: r}
}

// Run implements Demuxer.
func (d *TSDemuxer) Run(ctx context.Context, out pipeline.Handler) error {
	demux := mpegts.NewDemuxer(ctx, d.r)

	tracks := map[uint16]*tsTrackState{}
	nextOutput := 0

	for {
		if err := ctx.Err(); err != nil {
			for _, t := range tracks {
				if t.started {
					if ferr := out.FlushInput(t.outputIndex); ferr != nil {
						return ferr
					}
				}
			}
			return status.Wrap(status.Cancelled, err, "ts demux cancelled")
		}
		data, err := demux.NextData()
		if err != nil {
			if err == io.EOF {
				for _, t := range tracks {
					if t.started {
						if ferr := out.FlushInput(t.outputIndex); ferr != nil {
							return ferr
						}
					}
				}
				return status.ErrEndOfStream
			}
			return status.Wrap(status.ParseError, err, "reading ts packet")
		}

		switch {
		case data.PMT != nil:
			for _, es := range data.PMT.ElementaryStreams {
				if _, known := tracks[es.ElementaryPID]; known {
					continue
				}
				kind, codec := classifyStreamType(es.StreamType)
				if kind == media.KindUnknown {
					continue // unsupported elementary stream, ignore
				}
				tracks[es.ElementaryPID] = &tsTrackState{
					outputIndex: nextOutput,
					kind:        kind,
					codec:       codec,
					streamType:  es.StreamType,
				}
				nextOutput++
			}

		case data.PES != nil && data.FirstPacket != nil:
			track, ok := tracks[data.FirstPacket.Header.PID]
			if !ok {
				continue // PES on a PID we didn't map from the PMT
			}
			if !track.started {
				info := &media.StreamInfo{
					Kind:      track.kind,
					Codec:     track.codec,
					TimeScale: 90000,
				}
				if track.kind == media.KindVideo {
					info.NaluLengthSize = 0 // Annex B framing over TS, not length-prefixed
				}
				if track.codec == media.CodecAAC {
					if frames, err := ParseADTS(data.PES.Data); err == nil && len(frames) > 0 {
						info.SamplingRate = frames[0].SampleRate
						info.NumChannels = frames[0].Channels
					}
				}
				if err := out.Process(media.FromStreamInfo(track.outputIndex, info)); err != nil {
					return err
				}
				track.started = true
			}

			pts, dts := pesTimestamps(data.PES.Header)

			if track.codec == media.CodecAAC {
				if err := d.emitAACFrames(out, track, data.PES.Data, pts, dts); err != nil {
					return err
				}
				continue
			}

			sample := &media.MediaSample{
				StreamIndex: track.outputIndex,
				PTS:         pts,
				DTS:         dts,
				Data:        data.PES.Data,
				IsKeyFrame:  isKeyFrame(track, data.PES.Data),
			}
			if err := out.Process(media.FromMediaSample(track.outputIndex, sample)); err != nil {
				return err
			}
		}
	}
}

// emitAACFrames splits a PES payload carrying one or more back-to-back
// ADTS frames into individual MediaSamples. The track's sample rate and
// channel count are filled in by Run, from the first PES, before this is
// called.
func (d *TSDemuxer) emitAACFrames(out pipeline.Handler, track *tsTrackState, payload []byte, pts, dts int64) error {
	frames, err := ParseADTS(payload)
	if err != nil {
		return status.Wrap(status.ParseError, err, "parsing ADTS frames")
	}
	for _, f := range frames {
		sample := &media.MediaSample{
			StreamIndex: track.outputIndex,
			PTS:         pts,
			DTS:         dts,
			Data:        f.Data,
			IsKeyFrame:  true,
		}
		if err := out.Process(media.FromMediaSample(track.outputIndex, sample)); err != nil {
			return err
		}
	}
	return nil
}

// pesTimestamps extracts PTS/DTS (90kHz ticks) from a PES header, falling
// back to PTS for DTS when no decode timestamp was carried.
func pesTimestamps(header *mpegts.PESHeader) (pts, dts int64) {
	if header == nil || header.OptionalHeader == nil {
		return 0, 0
	}
	opt := header.OptionalHeader
	if opt.PTS != nil {
		pts = opt.PTS.Base
		dts = pts
	}
	if opt.DTS != nil {
		dts = opt.DTS.Base
	}
	return pts, dts
}

func classifyStreamType(streamType uint8) (media.Kind, media.Codec) {
	switch streamType {
	case streamTypeH264:
		return media.KindVideo, media.CodecH264
	case streamTypeH265:
		return media.KindVideo, media.CodecH265
	case streamTypeAAC:
		return media.KindAudio, media.CodecAAC
	case streamTypeAC3:
		return media.KindAudio, media.CodecAC3
	case streamTypeEC3:
		return media.KindAudio, media.CodecEC3
	default:
		return media.KindUnknown, media.CodecUnknown
	}
}

// isKeyFrame reports whether an Annex B access unit contains an IDR (H.264)
// or IRAP (H.265) NAL unit. Non-video tracks are always treated as
// keyframes, matching every audio sample being independently decodable.
func isKeyFrame(track *tsTrackState, data []byte) bool {
	switch track.codec {
	case media.CodecH264:
		for _, nalu := range codecs.ParseAnnexBH264(data) {
			if codecs.IsH264Keyframe(nalu.Type) {
				return true
			}
		}
		return false
	case media.CodecH265:
		for _, nalu := range codecs.ParseAnnexBH265(data) {
			if codecs.IsH265Keyframe(nalu.Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
