// Package demux defines the Demuxer contract every container reader in
// the packaging pipeline implements, plus concrete demuxers sufficient to
// drive that contract end to end: a minimal ISO-BMFF (MP4) box-walking
// reader, and an MPEG-TS adapter built on the transport-stream parser the
// teacher codebase already carries. Full container support (every box
// type, every stream type) is out of scope; the sample-output contract
// each Demuxer must honor is what's implemented.
package demux

import (
	"context"

	"github.com/nullstream/packager/pipeline"
)

// Demuxer reads a container and pushes StreamInfo, MediaSample, and
// TextSample events into out, in the same StreamData wire format every
// other pipeline.Handler speaks. Run blocks until the input is exhausted
// or ctx is cancelled, then flushes every output stream exactly once.
type Demuxer interface {
	// Run demuxes the input, dispatching events to out via out.Process,
	// addressed by the zero-based stream index the demuxer assigns each
	// elementary stream in discovery order. It returns status.ErrEndOfStream
	// wrapped or nil on clean exhaustion, status.ErrCancelled on ctx
	// cancellation, or a ParseError/UnsupportedStream status on malformed
	// input.
	Run(ctx context.Context, out pipeline.Handler) error
}
