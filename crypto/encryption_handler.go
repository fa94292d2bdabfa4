package crypto

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// EncryptionParams configures an EncryptionHandler.
type EncryptionParams struct {
	KeySource KeySource
	Scheme    media.ProtectionScheme
	Systems   []media.ProtectionSystem

	// ClearLeadSeconds is the duration, from the start of the stream, left
	// unencrypted. Each sample whose DTS lies before ClearLeadSeconds passes
	// through unencrypted and every later sample is encrypted. The decision
	// is made per sample, not per segment: a segment straddling the boundary
	// has its leading samples clear and the rest encrypted.
	ClearLeadSeconds float64

	// CryptoPeriodSeconds, when greater than zero, enables key rotation: a
	// new crypto period (and therefore a new key and key id) begins every
	// CryptoPeriodSeconds of stream time, queued to take effect at the next
	// segment boundary.
	CryptoPeriodSeconds float64

	LabelFunc LabelFunc

	// VideoFormat and NALULengthSize describe how to split coded video
	// samples into subsamples; ignored for audio/text streams.
	VideoFormat    VideoBitstreamFormat
	NALULengthSize int
}

// trackState is the per-input-stream encryption state the handler
// threads across StreamInfo/MediaSample/SegmentInfo events: the resolved
// key, crypto-period index, pattern block configuration, and the
// cryptor(s) used to advance the running CTR/CBC position sample by
// sample.
type trackState struct {
	info   *media.StreamInfo
	label  string
	isText bool

	period int
	key    *media.EncryptionKey

	ctr *CtrCryptor
	cbc *CbcCryptor

	cryptBlock, skipBlock int
}

// EncryptionHandler is the N-in/N-out pipeline.Handler that applies
// sample and subsample encryption to every encrypted track: it resolves
// keys from a KeySource, derives per-sample IVs, computes subsample
// layouts for video, and emits encryption metadata on the StreamInfo
// (initial key) and SegmentInfo (rotated key) events a muxer needs to
// build a protected track box and to signal DRM system records.
type EncryptionHandler struct {
	pipeline.BaseHandler

	params EncryptionParams
	tracks []*trackState
}

// NewEncryptionHandler builds an EncryptionHandler with numStreams
// input/output pairs, one per elementary stream passed through
// unencrypted or encrypted in place.
func NewEncryptionHandler(numStreams int, params EncryptionParams) (*EncryptionHandler, error) {
	if params.KeySource == nil {
		return nil, status.New(status.InvalidArgument, "encryption handler requires a key source")
	}
	if params.LabelFunc == nil {
		params.LabelFunc = DefaultLabelFunc
	}
	h := &EncryptionHandler{
		params: params,
		tracks: make([]*trackState, numStreams),
	}
	h.BaseHandler = pipeline.NewBaseHandler(numStreams, numStreams)
	h.Impl = h
	return h, nil
}

// InitializeInternal implements the BaseHandler.Impl contract.
func (h *EncryptionHandler) InitializeInternal() error { return nil }

// ProcessEvent implements the BaseHandler.Impl contract, dispatching on
// the wire event's type to the matching step of spec.md's three-step
// per-stream encryption algorithm.
func (h *EncryptionHandler) ProcessEvent(data *media.StreamData) error {
	idx := data.StreamIndex
	if idx < 0 || idx >= len(h.tracks) {
		return status.Newf(status.Internal, "encryption handler: stream index %d out of range", idx)
	}

	switch data.Type {
	case media.TypeStreamInfo:
		return h.onStreamInfo(idx, data)
	case media.TypeMediaSample:
		return h.onMediaSample(idx, data)
	case media.TypeSegmentInfo:
		return h.onSegmentInfo(idx, data)
	default:
		return h.Dispatch(idx, data)
	}
}

// OnFlushRequest implements the BaseHandler.Impl contract: encryption
// state is entirely sample-local (no buffered output), so flush is a
// pure pass-through.
func (h *EncryptionHandler) OnFlushRequest(inputIndex int) error {
	return h.DispatchFlush(inputIndex)
}

// onStreamInfo implements step 1: resolve the initial key for the
// stream's label and attach an EncryptionConfig before forwarding.
func (h *EncryptionHandler) onStreamInfo(idx int, data *media.StreamData) error {
	info := data.StreamInfo
	track := &trackState{info: info, isText: info.Kind == media.KindText}
	h.tracks[idx] = track

	if track.isText || info.Kind == media.KindUnknown {
		return h.Dispatch(idx, data)
	}

	track.label = h.params.LabelFunc(streamAttributesOf(info))
	track.cryptBlock, track.skipBlock = PatternBlocks(h.params.Scheme, info.Kind == media.KindAudio)

	key, err := h.resolveInitialKey(track)
	if err != nil {
		return err
	}
	track.key = key

	out := info.Clone()
	out.IsEncrypted = h.params.ClearLeadSeconds <= 0
	out.Encryption = h.buildConfig(track, key)
	if err := h.initCryptors(track, key); err != nil {
		return err
	}

	return h.Dispatch(idx, media.FromStreamInfo(idx, out))
}

// onMediaSample implements step 2: apply clear-lead gating, then encrypt
// the sample payload in place (CTR) or into a fresh buffer (CBC),
// attaching a DecryptConfig describing the layout a downstream muxer (or
// a decrypting reader) needs.
func (h *EncryptionHandler) onMediaSample(idx int, data *media.StreamData) error {
	track := h.tracks[idx]
	sample := data.MediaSample
	if track == nil || track.isText || track.key == nil {
		return h.Dispatch(idx, data)
	}

	startSeconds := float64(sample.DTS) / float64(track.info.TimeScale)
	if startSeconds < h.params.ClearLeadSeconds {
		return h.Dispatch(idx, data)
	}

	subsamples, err := h.subsamplesFor(track, sample.Data)
	if err != nil {
		return status.Wrap(status.EncryptionError, err, "computing subsample layout")
	}

	sampleIV := currentIV(track)
	cipherSpans := cipherOnly(sample.Data, subsamples)
	if err := h.cryptSpans(track, cipherSpans); err != nil {
		return status.Wrap(status.EncryptionError, err, "encrypting sample")
	}

	out := *sample
	out.Decrypt = &media.DecryptConfig{
		KeyID:          track.key.KeyID,
		IV:             sampleIV,
		Subsamples:     subsamples,
		Scheme:         h.params.Scheme,
		CryptByteBlock: track.cryptBlock,
		SkipByteBlock:  track.skipBlock,
	}
	return h.Dispatch(idx, media.FromMediaSample(idx, &out))
}

// onSegmentInfo implements step 3: at a segment boundary, if crypto
// period rotation is enabled and the new segment's start falls in the
// next period, resolve and install the next period's key, attaching it
// to the forwarded SegmentInfo so the muxer can signal a key rotation
// event in the manifest/fragment.
func (h *EncryptionHandler) onSegmentInfo(idx int, data *media.StreamData) error {
	track := h.tracks[idx]
	seg := data.SegmentInfo
	if track == nil || track.isText || track.key == nil || h.params.CryptoPeriodSeconds <= 0 {
		return h.Dispatch(idx, data)
	}

	startSeconds := float64(seg.StartTimestamp) / float64(track.info.TimeScale)
	period := int(startSeconds / h.params.CryptoPeriodSeconds)
	out := *seg

	if period != track.period {
		key, err := h.params.KeySource.GetCryptoPeriodKey(period, h.params.CryptoPeriodSeconds, track.label)
		if err != nil {
			return status.Wrap(status.EncryptionError, err, "resolving crypto period key")
		}
		track.period = period
		track.key = key
		if err := h.initCryptors(track, key); err != nil {
			return err
		}
		out.IsEncrypted = true
		out.KeyRotationEncryption = h.buildConfig(track, key)
	}

	return h.Dispatch(idx, media.FromSegmentInfo(idx, &out))
}

func (h *EncryptionHandler) resolveInitialKey(track *trackState) (*media.EncryptionKey, error) {
	if h.params.CryptoPeriodSeconds > 0 {
		key, err := h.params.KeySource.GetCryptoPeriodKey(0, h.params.CryptoPeriodSeconds, track.label)
		if err != nil {
			return nil, status.Wrap(status.EncryptionError, err, "resolving initial crypto period key")
		}
		return key, nil
	}
	key, err := h.params.KeySource.GetKey(track.label)
	if err != nil {
		return nil, status.Wrap(status.EncryptionError, err, "resolving key")
	}
	return key, nil
}

func (h *EncryptionHandler) buildConfig(track *trackState, key *media.EncryptionKey) *media.EncryptionConfig {
	ivSize := len(key.IV)
	cfg := &media.EncryptionConfig{
		Scheme:          h.params.Scheme,
		KeyID:           key.KeyID,
		IV:              key.IV,
		CryptByteBlock:  track.cryptBlock,
		SkipByteBlock:   track.skipBlock,
		PerSampleIVSize: ivSize,
		KeySystemInfo:   GeneratePSSH(key, h.params.Systems),
	}
	if h.params.Scheme.IsPattern() {
		cfg.ConstantIV = key.IV
	}
	return cfg
}

func (h *EncryptionHandler) initCryptors(track *trackState, key *media.EncryptionKey) error {
	if h.params.Scheme.IsCTR() {
		ctr := NewCtrCryptor()
		if err := ctr.InitializeWithIV(key.Key, key.IV); err != nil {
			return status.Wrap(status.EncryptionError, err, "initializing ctr cryptor")
		}
		track.ctr, track.cbc = ctr, nil
		return nil
	}
	cbc := NewCbcCryptor(NoPadding, UseConstantIV)
	if err := cbc.InitializeWithIV(key.Key, key.IV); err != nil {
		return status.Wrap(status.EncryptionError, err, "initializing cbc cryptor")
	}
	track.ctr, track.cbc = nil, cbc
	return nil
}

func (h *EncryptionHandler) subsamplesFor(track *trackState, sample []byte) ([]media.SubsampleEntry, error) {
	if track.info.Kind != media.KindVideo {
		return nil, nil
	}
	return Generate(sample, SubsampleParams{
		Codec:          track.info.Codec,
		Scheme:         h.params.Scheme,
		Format:         h.params.VideoFormat,
		NALULengthSize: firstNonZero(track.info.NaluLengthSize, h.params.NALULengthSize),
	})
}

func (h *EncryptionHandler) cryptSpans(track *trackState, spans [][]byte) error {
	for _, span := range spans {
		if len(span) == 0 {
			continue
		}
		if track.cryptBlock > 0 {
			if err := h.cryptPattern(track, span); err != nil {
				return err
			}
			continue
		}
		if track.ctr != nil {
			if err := track.ctr.Crypt(span, span); err != nil {
				return err
			}
			continue
		}
		out, err := track.cbc.Encrypt(span)
		if err != nil {
			return err
		}
		copy(span, out)
	}
	return nil
}

// cryptPattern applies pattern encryption (cens/cbcs/SAMPLE-AES) to span:
// groups of (cryptBlock+skipBlock) 16-byte blocks have only the first
// cryptBlock blocks encrypted, with skipBlock blocks left clear, repeating
// across the span; any trailing partial block shorter than 16 bytes is
// left clear, per CENC's pattern encryption rule.
func (h *EncryptionHandler) cryptPattern(track *trackState, span []byte) error {
	groupBlocks := track.cryptBlock + track.skipBlock
	groupBytes := groupBlocks * blockSize
	cryptBytes := track.cryptBlock * blockSize

	for pos := 0; pos+blockSize <= len(span); pos += groupBytes {
		end := pos + cryptBytes
		if end > len(span) {
			end = len(span) - (len(span)-pos)%blockSize
		}
		chunk := span[pos:end]
		if len(chunk) == 0 {
			break
		}
		if track.ctr != nil {
			if err := track.ctr.Crypt(chunk, chunk); err != nil {
				return err
			}
			continue
		}
		out, err := track.cbc.Encrypt(chunk)
		if err != nil {
			return err
		}
		copy(chunk, out)
	}
	return nil
}

func currentIV(track *trackState) []byte {
	if track.ctr != nil {
		return track.ctr.IV()
	}
	return track.key.IV
}

// cipherOnly walks sample with the given subsample layout and returns the
// byte spans (as slices into sample, not copies) that should actually be
// encrypted. With no subsample entries, the whole sample is one cipher
// span (full-sample encryption, e.g. audio).
func cipherOnly(sample []byte, entries []media.SubsampleEntry) [][]byte {
	if len(entries) == 0 {
		return [][]byte{sample}
	}
	var spans [][]byte
	pos := 0
	for _, e := range entries {
		pos += int(e.ClearBytes)
		end := pos + int(e.CipherBytes)
		if end > len(sample) {
			end = len(sample)
		}
		if end > pos {
			spans = append(spans, sample[pos:end])
		}
		pos = end
	}
	return spans
}

func streamAttributesOf(info *media.StreamInfo) StreamAttributes {
	attrs := StreamAttributes{Width: info.Width, Height: info.Height, NumberOfChannels: info.NumChannels}
	switch info.Kind {
	case media.KindAudio:
		attrs.Type = StreamTypeAudio
	case media.KindVideo:
		attrs.Type = StreamTypeVideo
	default:
		attrs.Type = StreamTypeUnknown
	}
	return attrs
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
