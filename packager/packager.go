// Package packager wires the demux/chunking/encryption/mux handlers into
// one running pipeline per stream descriptor and fans the descriptors of a
// packaging run out across concurrent goroutines, the way cmd/prism's
// top-level App runs its independently-failing components under a single
// errgroup.
package packager

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nullstream/packager/chunking"
	"github.com/nullstream/packager/crypto"
	"github.com/nullstream/packager/demux"
	"github.com/nullstream/packager/mux"
	"github.com/nullstream/packager/mux/hls"
	"github.com/nullstream/packager/mux/mpd"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

var defaultOpenFile = func(path string) (*os.File, error) { return os.Create(path) }

// Packager runs a packaging job: one pipeline per StreamDescriptor, sharing
// a single KeySource and a single pair of manifest notifiers across the
// whole run.
type Packager struct {
	params PackagingParams
	log    *slog.Logger

	hlsNotifier hls.Notifier
	mpdNotifier mpd.Notifier

	keySource crypto.KeySource
}

// Option configures a Packager beyond PackagingParams.
type Option func(*Packager)

// WithLogger overrides the Packager's logger. A nil logger (or omitting
// this option) falls back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Packager) {
		if log != nil {
			p.log = log
		}
	}
}

// WithHLSNotifier wires an hls.Notifier that every descriptor not marked
// dash_only registers its rendition and segments with.
func WithHLSNotifier(n hls.Notifier) Option {
	return func(p *Packager) { p.hlsNotifier = n }
}

// WithMPDNotifier wires an mpd.Notifier that every descriptor not marked
// hls_only registers its adaptation set, representation, and segments
// with.
func WithMPDNotifier(n mpd.Notifier) Option {
	return func(p *Packager) { p.mpdNotifier = n }
}

// NewPackager builds a Packager, resolving the shared KeySource from
// params.EncryptionParams.Provider. It fails if Provider is set to a key
// source that requires configuration (raw_key) with none supplied.
func NewPackager(params PackagingParams, opts ...Option) (*Packager, error) {
	if params.Clock == nil {
		params.Clock = SystemClock{}
	}
	if params.RNG == nil {
		params.RNG = SystemRNG{}
	}
	p := &Packager{params: params, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.hlsNotifier == nil {
		p.hlsNotifier = hls.NewDefaultNotifier(params.HLSParams)
	}
	if p.mpdNotifier == nil {
		p.mpdNotifier = mpd.NewDefaultNotifier(params.MPDParams)
	}

	switch params.EncryptionParams.Provider {
	case KeyProviderNone:
	case KeyProviderRawKey:
		src, err := crypto.NewRawKeySource(params.EncryptionParams.RawKeys)
		if err != nil {
			return nil, err
		}
		p.keySource = src
	case KeyProviderWidevine:
		p.keySource = crypto.NewWidevineKeySource()
	default:
		return nil, status.Newf(status.InvalidArgument, "unknown key provider %d", params.EncryptionParams.Provider)
	}
	return p, nil
}

// Run packages every descriptor concurrently, returning the first error
// from any descriptor's pipeline (every other pipeline's context is
// cancelled once one fails, via errgroup.WithContext). A nil return means
// every descriptor packaged its input to completion.
func (p *Packager) Run(ctx context.Context, descriptors []StreamDescriptor) error {
	if len(descriptors) == 0 {
		return status.New(status.InvalidArgument, "no stream descriptors")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, d := range descriptors {
		i, d := i, d
		g.Go(func() error {
			log := p.log.With("input", d.Input, "selector", d.StreamSelector)
			if err := p.runDescriptor(ctx, i, d, log); err != nil {
				log.Error("descriptor packaging failed", "error", err)
				return err
			}
			log.Info("descriptor packaged successfully")
			return nil
		})
	}
	return g.Wait()
}

// runDescriptor builds and drives the single pipeline
// (selector -> [trick-play] -> chunking -> [encryption] -> muxer) for one
// StreamDescriptor.
func (p *Packager) runDescriptor(ctx context.Context, id int, d StreamDescriptor, log *slog.Logger) (err error) {
	in, err := os.Open(d.Input)
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, "opening input")
	}
	defer in.Close()

	out, err := d.openOutput()
	if err != nil {
		return status.Wrap(status.InvalidArgument, err, "opening output")
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	demuxer := newDemuxer(in, d.Input)
	selector := newStreamSelector(d.StreamSelector)

	chunker, err := chunking.NewChunkingHandler(1, p.params.ChunkingParams)
	if err != nil {
		return err
	}

	handlers := []pipeline.Handler{selector}
	if d.TrickPlayFactor > 0 {
		handlers = append(handlers, newTrickPlayFilter(d.TrickPlayFactor))
	}
	handlers = append(handlers, chunker)

	if !d.SkipEncryption && p.params.EncryptionParams.Provider != KeyProviderNone {
		labelFunc := crypto.DefaultLabelFunc
		if d.DRMLabel != "" {
			labelFunc = func(crypto.StreamAttributes) string { return d.DRMLabel }
		}
		encParams := crypto.EncryptionParams{
			KeySource:           p.keySource,
			Scheme:              p.params.EncryptionParams.Scheme,
			Systems:             p.params.EncryptionParams.Systems,
			ClearLeadSeconds:    p.params.EncryptionParams.ClearLeadSeconds,
			CryptoPeriodSeconds: p.params.EncryptionParams.CryptoPeriodSeconds,
			LabelFunc:           labelFunc,
			VideoFormat:         crypto.LengthPrefixed,
		}
		enc, err := crypto.NewEncryptionHandler(1, encParams)
		if err != nil {
			return err
		}
		handlers = append(handlers, enc)
	}

	bridge := newManifestBridge(id, d, p.hlsNotifier, p.mpdNotifier)
	handlers = append(handlers, newMuxer(d, out, p.params, bridge))

	if err := pipeline.Chain(handlers...); err != nil {
		return err
	}
	if err := handlers[0].Initialize(); err != nil {
		return err
	}

	runErr := demuxer.Run(ctx, handlers[0])
	if status.IsEndOfStream(runErr) {
		if !selector.done {
			return errNoStreamSelected(d.StreamSelector)
		}
		return nil
	}
	return runErr
}

// newDemuxer picks a Demuxer for path by extension: ".ts"/".m2ts" select
// the MPEG-TS demuxer, anything else (".mp4", ".m4v", ".m4a", ...) selects
// the ISO-BMFF demuxer, matching the container most packaging inputs
// actually arrive in.
func newDemuxer(f *os.File, path string) demux.Demuxer {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".m2ts":
		return demux.NewTSDemuxer(f)
	default:
		return demux.NewMP4Demuxer(f)
	}
}

// newMuxer picks a mux.Muxer for the descriptor's requested output format.
func newMuxer(d StreamDescriptor, out io.Writer, params PackagingParams, listener mux.Listener) pipeline.Handler {
	if d.OutputFormat == OutputFormatWebVTT {
		return mux.NewWebVTTMuxer(out, 1000, listener)
	}
	return mux.NewFMP4Muxer(out, params.Mp4OutputParams, listener)
}
