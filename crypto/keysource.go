package crypto

import "github.com/nullstream/packager/media"

// StreamType classifies a stream for stream-label purposes.
type StreamType int

// Supported stream types for labeling.
const (
	StreamTypeUnknown StreamType = iota
	StreamTypeVideo
	StreamTypeAudio
)

// StreamAttributes carries the subset of a StreamInfo needed to compute a
// stream label.
type StreamAttributes struct {
	Type            StreamType
	Width           int
	Height          int
	FrameRate       float64
	BitDepth        int
	NumberOfChannels int
}

// LabelFunc assigns a stream label to a stream about to be encrypted.
// Streams sharing a label always share a key.
type LabelFunc func(StreamAttributes) string

// DefaultLabelFunc assigns "SD"/"HD"/"UHD1"/"UHD2" for video by height and
// "AUDIO" for audio, matching the common default packaging convention.
func DefaultLabelFunc(attrs StreamAttributes) string {
	if attrs.Type == StreamTypeAudio {
		return "AUDIO"
	}
	switch {
	case attrs.Height >= 2160:
		return "UHD2"
	case attrs.Height >= 1080:
		return "UHD1"
	case attrs.Height >= 720:
		return "HD"
	default:
		return "SD"
	}
}

// KeySource resolves content keys for a stream label, either statically
// or per crypto period when key rotation is enabled. Implementations must
// be safe for concurrent use: a single KeySource may be shared across
// multiple concurrently-running pipelines.
type KeySource interface {
	// GetKey returns the static key for label.
	GetKey(label string) (*media.EncryptionKey, error)

	// GetCryptoPeriodKey returns the key for the given crypto period index
	// and label. durationSeconds is the configured crypto period length,
	// passed through for key sources that derive keys from period
	// boundaries rather than caching by index.
	GetCryptoPeriodKey(period int, durationSeconds float64, label string) (*media.EncryptionKey, error)
}
