package packager

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/nullstream/packager/chunking"
	"github.com/nullstream/packager/crypto"
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/mux"
	"github.com/nullstream/packager/mux/hls"
	"github.com/nullstream/packager/mux/mpd"
)

// Clock abstracts wall-clock time; production callers use SystemClock.
// PackagingParams carries one and NewPackager fills in SystemClock when it
// is nil, but no handler reads it: crypto-period rollover follows stream
// time, not the Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// RNG abstracts randomness; production callers use SystemRNG, which reads
// crypto/rand.Reader. PackagingParams carries one and NewPackager fills in
// SystemRNG when it is nil, but no handler reads it: crypto.GenerateRandomIV
// reads crypto/rand.Reader directly.
type RNG interface {
	Read(p []byte) (int, error)
}

// SystemRNG is the RNG backed by crypto/rand.Reader.
type SystemRNG struct{}

// Read implements RNG.
func (SystemRNG) Read(p []byte) (int, error) { return rand.Read(p) }

// OutputFormat selects the container a StreamDescriptor's pipeline writes.
type OutputFormat int

// Supported output formats, per spec.md §6's output_format.
const (
	OutputFormatMP4 OutputFormat = iota
	OutputFormatWebVTT
)

// KeyProviderKind selects how a PackagingParams' EncryptionParams resolves
// keys, per spec.md §6's key_provider.
type KeyProviderKind int

// Supported key providers.
const (
	KeyProviderNone KeyProviderKind = iota
	KeyProviderRawKey
	KeyProviderWidevine
)

// EncryptionConfig configures encryption across every descriptor that
// doesn't set SkipEncryption, matching spec.md §6's encryption_params.
type EncryptionConfig struct {
	Provider            KeyProviderKind
	RawKeys             crypto.RawKeyParams
	Scheme              media.ProtectionScheme
	Systems             []media.ProtectionSystem
	ClearLeadSeconds    float64
	CryptoPeriodSeconds float64
}

// PackagingParams configures one packaging run across every stream
// descriptor it contains, matching spec.md §6's PackagingParams.
type PackagingParams struct {
	ChunkingParams   chunking.Params
	EncryptionParams EncryptionConfig
	Mp4OutputParams  mux.Mp4OutputParams
	HLSParams        hls.Params
	MPDParams        mpd.Params

	Clock Clock
	RNG   RNG
}

// StreamDescriptor is one input/output pairing within a packaging run,
// matching spec.md §6's stream descriptor.
type StreamDescriptor struct {
	Input          string
	StreamSelector string // "audio", "video", "text", or a numeric index
	Output         string
	OutputFormat   OutputFormat
	SkipEncryption bool
	DRMLabel       string
	TrickPlayFactor int
	Bandwidth      int
	Language       string

	HLSName               string
	HLSGroupID            string
	HLSPlaylistName       string
	HLSIFramePlaylistName string
	HLSCharacteristics    []string

	DASHAccessibilities []string
	DASHRoles           []string
	DASHLabel           string

	DASHOnly bool
	HLSOnly  bool
}

// openOutput opens the descriptor's output path for writing.
func (d StreamDescriptor) openOutput() (io.WriteCloser, error) {
	return defaultOpenFile(d.Output)
}
