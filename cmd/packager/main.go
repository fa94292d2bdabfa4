// Command packager reads one or more media inputs, optionally re-chunks
// and encrypts their streams, and muxes them into fragmented MP4 or
// WebVTT outputs, notifying HLS/DASH manifest state as it goes.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nullstream/packager/chunking"
	"github.com/nullstream/packager/crypto"
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/mux"
	"github.com/nullstream/packager/mux/hls"
	"github.com/nullstream/packager/mux/mpd"
	"github.com/nullstream/packager/packager"
	"github.com/nullstream/packager/status"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	params, descriptors, err := parseFlags(os.Args[1:])
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(packager.ExitCode(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	p, err := packager.NewPackager(params)
	if err != nil {
		slog.Error("failed to construct packager", "error", err)
		os.Exit(packager.ExitCode(err))
	}

	if err := p.Run(ctx, descriptors); err != nil {
		slog.Error("packaging failed", "error", err)
		os.Exit(packager.ExitCode(err))
	}

	slog.Info("packaging completed successfully.")
}

// flagSet's fields mirror the original command-line tool's top-level
// flags: chunking, encryption, and manifest output configuration shared
// across every stream descriptor passed as a positional argument.
type flagSet struct {
	segmentDuration    float64
	subsegmentDuration float64
	sapAligned         bool

	enableRawKeyEncryption bool
	keys                   string
	protectionScheme       string
	protectionSystems      string
	clearLeadSeconds       float64
	cryptoPeriodSeconds    float64

	hlsPlaylistType  string
	hlsMasterOutput  string
	hlsBaseURL       string
	hlsKeyURI        string
	hlsTSBD          float64

	mpdOutput       string
	mpdBaseURLs     string
	mpdMinBuffer    float64
	mpdTSBD         float64
	mpdSuggestedPD  float64
	mpdMinUpdatePer float64
}

func parseFlags(args []string) (packager.PackagingParams, []packager.StreamDescriptor, error) {
	fs := flag.NewFlagSet("packager", flag.ContinueOnError)
	f := flagSet{}
	fs.Float64Var(&f.segmentDuration, "segment_duration", 6, "segment duration in seconds")
	fs.Float64Var(&f.subsegmentDuration, "subsegment_duration", 0, "subsegment duration in seconds, 0 disables subsegments")
	fs.BoolVar(&f.sapAligned, "sap_aligned", true, "align segments to stream access points")

	fs.BoolVar(&f.enableRawKeyEncryption, "enable_raw_key_encryption", false, "enable encryption using keys specified with --keys")
	fs.StringVar(&f.keys, "keys", "", "label=keyid:key[;label=keyid:key...] hex-encoded key map")
	fs.StringVar(&f.protectionScheme, "protection_scheme", "cenc", "cenc, cbc1, cens, or cbcs")
	fs.StringVar(&f.protectionSystems, "protection_systems", "", "comma separated: common,widevine,playready")
	fs.Float64Var(&f.clearLeadSeconds, "clear_lead", 0, "seconds of unencrypted content at the start of the stream")
	fs.Float64Var(&f.cryptoPeriodSeconds, "crypto_period_duration", 0, "seconds per crypto period, 0 disables key rotation")

	fs.StringVar(&f.hlsPlaylistType, "hls_playlist_type", "vod", "vod, event, or live")
	fs.StringVar(&f.hlsMasterOutput, "hls_master_playlist_output", "", "HLS master playlist output path")
	fs.StringVar(&f.hlsBaseURL, "hls_base_url", "", "base URL prepended to HLS segment URIs")
	fs.StringVar(&f.hlsKeyURI, "hls_key_uri", "", "key URI for HLS SAMPLE-AES/AES-128 segments")
	fs.Float64Var(&f.hlsTSBD, "hls_time_shift_buffer_depth", 0, "seconds of HLS live window to retain")

	fs.StringVar(&f.mpdOutput, "mpd_output", "", "DASH MPD output path")
	fs.StringVar(&f.mpdBaseURLs, "base_urls", "", "comma separated base URLs for the MPD")
	fs.Float64Var(&f.mpdMinBuffer, "min_buffer_time", 2, "MPD minBufferTime in seconds")
	fs.Float64Var(&f.mpdTSBD, "time_shift_buffer_depth", 0, "seconds of DASH live window to retain")
	fs.Float64Var(&f.mpdSuggestedPD, "suggested_presentation_delay", 0, "MPD suggestedPresentationDelay in seconds")
	fs.Float64Var(&f.mpdMinUpdatePer, "minimum_update_period", 0, "MPD minimumUpdatePeriod in seconds")

	if err := fs.Parse(args); err != nil {
		return packager.PackagingParams{}, nil, status.Wrap(status.InvalidArgument, err, "parsing flags")
	}

	var descriptors []packager.StreamDescriptor
	for _, arg := range fs.Args() {
		d, err := parseStreamDescriptor(arg)
		if err != nil {
			return packager.PackagingParams{}, nil, err
		}
		descriptors = append(descriptors, d)
	}
	if len(descriptors) == 0 {
		return packager.PackagingParams{}, nil, status.New(status.InvalidArgument, "no stream descriptors given")
	}

	params, err := buildPackagingParams(f)
	if err != nil {
		return packager.PackagingParams{}, nil, err
	}
	return params, descriptors, nil
}

func buildPackagingParams(f flagSet) (packager.PackagingParams, error) {
	chunkingParams := chunking.Params{
		SegmentDurationSeconds:    f.segmentDuration,
		SubsegmentDurationSeconds: f.subsegmentDuration,
		SegmentSAPAligned:         f.sapAligned,
		SubsegmentSAPAligned:      f.sapAligned && f.subsegmentDuration > 0,
	}

	encParams, err := buildEncryptionConfig(f)
	if err != nil {
		return packager.PackagingParams{}, err
	}

	hlsType, err := parseHLSPlaylistType(f.hlsPlaylistType)
	if err != nil {
		return packager.PackagingParams{}, err
	}

	return packager.PackagingParams{
		ChunkingParams:   chunkingParams,
		EncryptionParams: encParams,
		Mp4OutputParams:  mux.Mp4OutputParams{},
		HLSParams: hls.Params{
			PlaylistType:         hlsType,
			MasterPlaylistOutput: f.hlsMasterOutput,
			BaseURL:              f.hlsBaseURL,
			KeyURI:               f.hlsKeyURI,
			TimeShiftBufferDepth: f.hlsTSBD,
		},
		MPDParams: mpd.Params{
			MPDOutput:                  f.mpdOutput,
			BaseURLs:                   splitNonEmpty(f.mpdBaseURLs, ","),
			MinBufferTime:              f.mpdMinBuffer,
			TimeShiftBufferDepth:       f.mpdTSBD,
			SuggestedPresentationDelay: f.mpdSuggestedPD,
			MinimumUpdatePeriod:        f.mpdMinUpdatePer,
		},
	}, nil
}

func parseHLSPlaylistType(s string) (hls.PlaylistType, error) {
	switch s {
	case "vod":
		return hls.PlaylistVOD, nil
	case "event":
		return hls.PlaylistEvent, nil
	case "live":
		return hls.PlaylistLive, nil
	default:
		return 0, status.Newf(status.InvalidArgument, "unknown hls_playlist_type %q", s)
	}
}

func buildEncryptionConfig(f flagSet) (packager.EncryptionConfig, error) {
	if !f.enableRawKeyEncryption {
		return packager.EncryptionConfig{}, nil
	}

	keyMap, err := parseKeyMap(f.keys)
	if err != nil {
		return packager.EncryptionConfig{}, err
	}

	scheme, err := parseProtectionScheme(f.protectionScheme)
	if err != nil {
		return packager.EncryptionConfig{}, err
	}

	systems, err := parseProtectionSystems(f.protectionSystems)
	if err != nil {
		return packager.EncryptionConfig{}, err
	}

	return packager.EncryptionConfig{
		Provider:            packager.KeyProviderRawKey,
		RawKeys:             crypto.RawKeyParams{KeyMap: keyMap},
		Scheme:              scheme,
		Systems:             systems,
		ClearLeadSeconds:    f.clearLeadSeconds,
		CryptoPeriodSeconds: f.cryptoPeriodSeconds,
	}, nil
}

// parseKeyMap parses "label=keyid:key;label=keyid:key" into a RawKeyInfo
// map, keyid/key given as hex strings, matching the original tool's
// --keys syntax.
func parseKeyMap(s string) (map[string]crypto.RawKeyInfo, error) {
	keyMap := make(map[string]crypto.RawKeyInfo)
	for _, entry := range splitNonEmpty(s, ";") {
		labelAndRest := strings.SplitN(entry, "=", 2)
		if len(labelAndRest) != 2 {
			return nil, status.Newf(status.InvalidArgument, "malformed --keys entry %q", entry)
		}
		idAndKey := strings.SplitN(labelAndRest[1], ":", 2)
		if len(idAndKey) != 2 {
			return nil, status.Newf(status.InvalidArgument, "malformed --keys entry %q", entry)
		}
		keyID, err := hex.DecodeString(idAndKey[0])
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "decoding key id")
		}
		key, err := hex.DecodeString(idAndKey[1])
		if err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "decoding key")
		}
		keyMap[labelAndRest[0]] = crypto.RawKeyInfo{KeyID: keyID, Key: key}
	}
	if len(keyMap) == 0 {
		return nil, status.New(status.InvalidArgument, "--enable_raw_key_encryption requires --keys")
	}
	return keyMap, nil
}

func parseProtectionScheme(s string) (media.ProtectionScheme, error) {
	switch s {
	case "cenc":
		return media.SchemeCenc, nil
	case "cbc1":
		return media.SchemeCbc1, nil
	case "cens":
		return media.SchemeCens, nil
	case "cbcs":
		return media.SchemeCbcs, nil
	default:
		return 0, status.Newf(status.InvalidArgument, "unrecognized protection_scheme %q", s)
	}
}

func parseProtectionSystems(s string) ([]media.ProtectionSystem, error) {
	var systems []media.ProtectionSystem
	for _, name := range splitNonEmpty(s, ",") {
		switch name {
		case "common":
			systems = append(systems, media.ProtectionSystemCommon)
		case "widevine":
			systems = append(systems, media.ProtectionSystemWidevine)
		case "playready":
			systems = append(systems, media.ProtectionSystemPlayReady)
		default:
			return nil, status.Newf(status.InvalidArgument, "unrecognized protection system %q", name)
		}
	}
	return systems, nil
}
