// Package media defines the data model that flows through the packaging
// pipeline: stream descriptions, coded samples, segment boundaries, and the
// cue/encryption metadata attached to them as they pass from demuxer to
// muxer.
package media

// Kind identifies the media type of a stream.
type Kind int

// Supported stream kinds.
const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Codec identifies the elementary stream codec.
type Codec int

// Supported codecs.
const (
	CodecUnknown Codec = iota
	CodecH264
	CodecH265
	CodecAV1
	CodecVP9
	CodecAAC
	CodecAC3
	CodecEC3
	CodecDTS
	CodecOpus
	CodecWebVTT
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	case CodecVP9:
		return "vp9"
	case CodecAAC:
		return "aac"
	case CodecAC3:
		return "ac3"
	case CodecEC3:
		return "ec3"
	case CodecDTS:
		return "dts"
	case CodecOpus:
		return "opus"
	case CodecWebVTT:
		return "webvtt"
	default:
		return "unknown"
	}
}

// ProtectionScheme is one of the ISO/IEC 23001-7 four-character codes, or
// Apple's SAMPLE-AES variant of cbcs.
type ProtectionScheme uint32

// Protection scheme 4CC values.
const (
	SchemeNone      ProtectionScheme = 0
	SchemeCenc      ProtectionScheme = 0x63656e63 // "cenc"
	SchemeCbc1      ProtectionScheme = 0x63626331 // "cbc1"
	SchemeCens      ProtectionScheme = 0x63656e73 // "cens"
	SchemeCbcs      ProtectionScheme = 0x63626373 // "cbcs"
	SchemeSampleAES ProtectionScheme = 0x73616573 // "saes", Apple SAMPLE-AES over cbcs framing
)

func (s ProtectionScheme) String() string {
	if s == SchemeNone {
		return "none"
	}
	b := []byte{byte(s >> 24), byte(s >> 16), byte(s >> 8), byte(s)}
	return string(b)
}

// IsPattern reports whether the scheme uses pattern (subset) encryption,
// as opposed to full-block encryption of the whole cipher span.
func (s ProtectionScheme) IsPattern() bool {
	return s == SchemeCens || s == SchemeCbcs || s == SchemeSampleAES
}

// IsCTR reports whether the scheme uses AES-CTR (true) or AES-CBC (false).
func (s ProtectionScheme) IsCTR() bool {
	return s == SchemeCenc || s == SchemeCens
}

// ProtectionSystem identifies a DRM system whose PSSH (or equivalent) should
// be generated for a protected stream.
type ProtectionSystem int

// Supported protection systems.
const (
	ProtectionSystemCommon ProtectionSystem = iota
	ProtectionSystemWidevine
	ProtectionSystemPlayReady
	ProtectionSystemFairPlay
	ProtectionSystemMarlin
)

// KeySystemInfo is an opaque DRM-system-specific initialization record
// (typically a PSSH box for ISO-BMFF outputs).
type KeySystemInfo struct {
	System ProtectionSystem
	Data   []byte
}

// EncryptionConfig carries the per-track crypto parameters attached to a
// StreamInfo (or, during key rotation, to a SegmentInfo) once encryption is
// applied.
type EncryptionConfig struct {
	Scheme            ProtectionScheme
	KeyID             []byte
	IV                []byte
	CryptByteBlock    int
	SkipByteBlock     int
	PerSampleIVSize   int
	ConstantIV        []byte
	KeySystemInfo     []KeySystemInfo
}

// StreamInfo describes one elementary stream. It is immutable after
// creation except via an explicit replacement emitted by a handler (the
// only sanctioned mutation is flipping IsEncrypted and attaching an
// EncryptionConfig when encryption is applied).
type StreamInfo struct {
	Kind          Kind
	Codec         Codec
	CodecString   string
	TimeScale     int64
	Duration      int64
	CodecConfig   []byte
	IsEncrypted   bool
	Encryption    *EncryptionConfig
	Language      string

	// Video-only fields.
	Width                 int
	Height                int
	PixelAspectWidth      int
	PixelAspectHeight     int
	TransferCharacteristics int
	NaluLengthSize        int

	// Audio-only fields.
	SamplingRate int
	NumChannels  int
	SampleBits   int
}

// Clone returns a shallow copy of info suitable for the one sanctioned
// StreamInfo mutation (attaching encryption). Byte slices are shared, not
// copied, matching the package's move/share-by-reference ownership model.
func (s *StreamInfo) Clone() *StreamInfo {
	c := *s
	return &c
}

// DecryptConfig carries the per-sample decryption metadata needed to
// reverse the encryption applied to a MediaSample's payload.
type DecryptConfig struct {
	KeyID          []byte
	IV             []byte
	Subsamples     []SubsampleEntry
	Scheme         ProtectionScheme
	CryptByteBlock int
	SkipByteBlock  int
}

// SubsampleEntry is one (clear, cipher) byte-range pair describing the
// encryption layout of part of a sample's payload.
type SubsampleEntry struct {
	ClearBytes  uint32
	CipherBytes uint32
}

// MediaSample is one coded media access unit.
type MediaSample struct {
	StreamIndex int
	DTS         int64
	PTS         int64
	Duration    int64
	IsKeyFrame  bool
	Data        []byte
	Decrypt     *DecryptConfig
	SideData    []byte
}

// TextSample is one cue of timed text (e.g. a WebVTT cue or a caption
// extracted from embedded CEA-608/708 data).
type TextSample struct {
	StreamIndex int
	StartTime   int64
	EndTime     int64
	Payload     string
	Settings    string
}

// SegmentInfo marks a segment (or subsegment) boundary on a stream.
type SegmentInfo struct {
	StreamIndex            int
	StartTimestamp         int64
	Duration               int64
	IsSubsegment           bool
	IsFinalChunk           bool
	IsEncrypted            bool
	KeyRotationEncryption  *EncryptionConfig
}

// CueEventType classifies a CueEvent.
type CueEventType int

// Supported cue event types.
const (
	CueIn CueEventType = iota
	CueOut
	CuePoint
)

// CueEvent marks an ad/insertion boundary forced into the sample stream.
type CueEvent struct {
	StreamIndex int
	TimeSeconds float64
	Type        CueEventType
	CueData     []byte
}

// Scte35Event is an upstream SCTE-35 marker, already classified by a
// splice-command decoder, waiting to be turned into a CueEvent by the
// cuegen package.
type Scte35Event struct {
	StreamIndex        int
	ID                 string
	SegmentationTypeID int
	StartTimeSeconds   float64
	DurationSeconds    float64
	CueData            []byte
}

// EncryptionKey is a resolved content key: raw key bytes plus any
// protection-system-specific records supplied by the key source.
type EncryptionKey struct {
	KeyID         []byte
	Key           []byte
	IV            []byte
	KeySystemInfo []KeySystemInfo
}

// DataType tags the single sum type carried on the pipeline wire.
type DataType int

// Supported wire event tags.
const (
	TypeUnknown DataType = iota
	TypeStreamInfo
	TypeMediaSample
	TypeTextSample
	TypeSegmentInfo
	TypeScte35Event
	TypeCueEvent
)

func (t DataType) String() string {
	switch t {
	case TypeStreamInfo:
		return "StreamInfo"
	case TypeMediaSample:
		return "MediaSample"
	case TypeTextSample:
		return "TextSample"
	case TypeSegmentInfo:
		return "SegmentInfo"
	case TypeScte35Event:
		return "Scte35Event"
	case TypeCueEvent:
		return "CueEvent"
	default:
		return "Unknown"
	}
}

// StreamData is the only message type carried between handlers: a tagged
// union over the event types above, scoped to an input/output stream index
// by StreamIndex. Exactly one of the typed fields is populated, matching
// the Type tag.
type StreamData struct {
	StreamIndex int
	Type        DataType

	StreamInfo  *StreamInfo
	MediaSample *MediaSample
	TextSample  *TextSample
	SegmentInfo *SegmentInfo
	Scte35Event *Scte35Event
	CueEvent    *CueEvent
}

// WithStreamIndex returns a copy of d addressed to a different stream
// index. Used when forwarding an event to a downstream handler whose input
// numbering differs from this handler's input numbering; the event payload
// itself is never copied, only the small StreamData wrapper.
func (d *StreamData) WithStreamIndex(index int) *StreamData {
	c := *d
	c.StreamIndex = index
	return &c
}

// FromStreamInfo builds a StreamData wrapping a StreamInfo event.
func FromStreamInfo(streamIndex int, info *StreamInfo) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeStreamInfo, StreamInfo: info}
}

// FromMediaSample builds a StreamData wrapping a MediaSample event.
func FromMediaSample(streamIndex int, sample *MediaSample) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeMediaSample, MediaSample: sample}
}

// FromTextSample builds a StreamData wrapping a TextSample event.
func FromTextSample(streamIndex int, sample *TextSample) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeTextSample, TextSample: sample}
}

// FromSegmentInfo builds a StreamData wrapping a SegmentInfo event.
func FromSegmentInfo(streamIndex int, info *SegmentInfo) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeSegmentInfo, SegmentInfo: info}
}

// FromScte35Event builds a StreamData wrapping a Scte35Event.
func FromScte35Event(streamIndex int, event *Scte35Event) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeScte35Event, Scte35Event: event}
}

// FromCueEvent builds a StreamData wrapping a CueEvent.
func FromCueEvent(streamIndex int, event *CueEvent) *StreamData {
	return &StreamData{StreamIndex: streamIndex, Type: TypeCueEvent, CueEvent: event}
}
