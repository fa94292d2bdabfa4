package demux

import (
	"github.com/zsiec/ccx"

	"github.com/nullstream/packager/codecs"
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// CaptionExtractor taps a video elementary stream's SEI-embedded CEA-608/
// 708 captions and turns them into TextSample events, one output stream
// per caption channel. It is a 1-in/N-out fan-out handler: input 0 carries
// the video MediaSamples (Annex B framed), and each configured channel
// gets its own output index in the order passed to NewCaptionExtractor.
//
// Each caption is buffered until the next one on the same channel arrives
// (or flush), since a caption's on-screen duration isn't known until
// either event; this mirrors how the chunking handlers only know a
// segment's true duration once they see what follows it.
type CaptionExtractor struct {
	pipeline.BaseHandler

	codec          media.Codec
	channelOutputs map[int]int
	cea608Decs     map[int]*ccx.CEA608Decoder
	cea708Svcs     map[int]*ccx.CEA708Service
	dtvccBuf       []byte
	pending        map[int]*media.TextSample
}

// NewCaptionExtractor builds a CaptionExtractor for the given video codec
// (H264 or H265), with one output per CEA-608 channel (1-4) or CEA-708
// service (given as channel+6, per the convention the channel numbering
// already follows) listed in channels.
func NewCaptionExtractor(codec media.Codec, channels []int) (*CaptionExtractor, error) {
	if codec != media.CodecH264 && codec != media.CodecH265 {
		return nil, status.New(status.InvalidArgument, "caption extractor requires H264 or H265 video")
	}
	if len(channels) == 0 {
		return nil, status.New(status.InvalidArgument, "caption extractor requires at least one channel")
	}
	h := &CaptionExtractor{
		codec:          codec,
		channelOutputs: make(map[int]int, len(channels)),
		cea608Decs:     make(map[int]*ccx.CEA608Decoder),
		cea708Svcs:     make(map[int]*ccx.CEA708Service),
		pending:        make(map[int]*media.TextSample),
	}
	for i, ch := range channels {
		h.channelOutputs[ch] = i
		if ch <= 4 {
			h.cea608Decs[ch] = ccx.NewCEA608Decoder()
		} else {
			h.cea708Svcs[ch-6] = ccx.NewCEA708Service()
		}
	}
	h.BaseHandler = pipeline.NewBaseHandler(1, len(channels))
	h.Impl = h
	return h, nil
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (h *CaptionExtractor) InitializeInternal() error {
	for _, idx := range h.channelOutputs {
		info := &media.StreamInfo{Kind: media.KindText}
		if err := h.Dispatch(idx, media.FromStreamInfo(idx, info)); err != nil {
			return err
		}
	}
	return nil
}

// ProcessEvent implements the BaseHandler.Impl contract.
func (h *CaptionExtractor) ProcessEvent(data *media.StreamData) error {
	if data.Type != media.TypeMediaSample {
		return nil
	}
	return h.onMediaSample(data.MediaSample)
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (h *CaptionExtractor) OnFlushRequest(inputIndex int) error {
	for ch, idx := range h.channelOutputs {
		if p := h.pending[ch]; p != nil {
			p.EndTime = p.StartTime
			if err := h.Dispatch(idx, media.FromTextSample(idx, p)); err != nil {
				return err
			}
			delete(h.pending, ch)
		}
	}
	for _, idx := range h.channelOutputs {
		if err := h.DispatchFlush(idx); err != nil {
			return err
		}
	}
	return nil
}

func (h *CaptionExtractor) onMediaSample(sample *media.MediaSample) error {
	var nalus []codecs.NALUnit
	switch h.codec {
	case media.CodecH264:
		nalus = codecs.ParseAnnexBH264(sample.Data)
	case media.CodecH265:
		nalus = codecs.ParseAnnexBH265(sample.Data)
	}

	for _, nalu := range nalus {
		if !isSEI(h.codec, nalu.Type) {
			continue
		}
		if err := h.handleSEI(nalu.Data, sample.PTS); err != nil {
			return err
		}
	}
	return nil
}

func isSEI(codec media.Codec, nalType byte) bool {
	switch codec {
	case media.CodecH264:
		return nalType == codecs.H264NALSEI
	case media.CodecH265:
		return nalType == codecs.H265NALSEIPrefix
	default:
		return false
	}
}

func (h *CaptionExtractor) handleSEI(seiData []byte, pts int64) error {
	cd := ccx.ExtractCaptions(seiData)
	if cd == nil {
		return nil
	}

	for _, pair := range cd.CC608Pairs {
		dec := h.cea608Decs[pair.Channel]
		if dec == nil {
			continue
		}
		text := dec.Decode(pair.Data[0], pair.Data[1])
		if text == "" {
			continue
		}
		if err := h.emitCue(pair.Channel, pts, text); err != nil {
			return err
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			if err := h.drainDTVCC(pts); err != nil {
				return err
			}
			h.dtvccBuf = h.dtvccBuf[:0]
		}
		h.dtvccBuf = append(h.dtvccBuf, t.Data[0], t.Data[1])
	}
	return nil
}

func (h *CaptionExtractor) drainDTVCC(pts int64) error {
	if len(h.dtvccBuf) < 1 {
		return nil
	}
	packetSize := ccx.DTVCCPacketSize(h.dtvccBuf[0])
	if len(h.dtvccBuf) < packetSize {
		return nil
	}
	for _, block := range ccx.ParseDTVCCPacket(h.dtvccBuf[:packetSize]) {
		svc := h.cea708Svcs[block.ServiceNum]
		if svc == nil {
			continue
		}
		if !svc.ProcessBlock(block.Data) {
			continue
		}
		text := svc.DisplayText()
		if text == "" {
			continue
		}
		if err := h.emitCue(block.ServiceNum+6, pts, text); err != nil {
			return err
		}
	}
	return nil
}

func (h *CaptionExtractor) emitCue(channel int, pts int64, text string) error {
	idx, ok := h.channelOutputs[channel]
	if !ok {
		return nil
	}
	if prev := h.pending[channel]; prev != nil {
		prev.EndTime = pts
		if err := h.Dispatch(idx, media.FromTextSample(idx, prev)); err != nil {
			return err
		}
	}
	h.pending[channel] = &media.TextSample{StreamIndex: idx, StartTime: pts, Payload: text}
	return nil
}
