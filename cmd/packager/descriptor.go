package main

import (
	"strconv"
	"strings"

	"github.com/nullstream/packager/packager"
	"github.com/nullstream/packager/status"
)

// parseStreamDescriptor parses one comma-separated key=value descriptor
// string, e.g. "input=in.mp4,stream=audio,output=audio.mp4,drm_label=AUDIO",
// matching the original command-line tool's stream descriptor syntax.
func parseStreamDescriptor(s string) (packager.StreamDescriptor, error) {
	var d packager.StreamDescriptor
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return d, status.Newf(status.InvalidArgument, "malformed stream descriptor field %q", pair)
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if err := applyDescriptorField(&d, key, val); err != nil {
			return d, err
		}
	}
	if d.Input == "" {
		return d, status.New(status.InvalidArgument, "stream descriptor missing input")
	}
	if d.StreamSelector == "" {
		return d, status.New(status.InvalidArgument, "stream descriptor missing stream selector")
	}
	if d.Output == "" {
		return d, status.New(status.InvalidArgument, "stream descriptor missing output")
	}
	return d, nil
}

func applyDescriptorField(d *packager.StreamDescriptor, key, val string) error {
	switch key {
	case "input", "in":
		d.Input = val
	case "stream", "stream_selector":
		d.StreamSelector = val
	case "output", "out":
		d.Output = val
	case "output_format", "format":
		switch val {
		case "mp4":
			d.OutputFormat = packager.OutputFormatMP4
		case "vtt", "webvtt":
			d.OutputFormat = packager.OutputFormatWebVTT
		default:
			return status.Newf(status.InvalidArgument, "unknown output_format %q", val)
		}
	case "skip_encryption":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "skip_encryption")
		}
		d.SkipEncryption = b
	case "drm_label":
		d.DRMLabel = val
	case "trick_play_factor":
		n, err := strconv.Atoi(val)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "trick_play_factor")
		}
		d.TrickPlayFactor = n
	case "bandwidth":
		n, err := strconv.Atoi(val)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "bandwidth")
		}
		d.Bandwidth = n
	case "language":
		d.Language = val
	case "hls_name":
		d.HLSName = val
	case "hls_group_id":
		d.HLSGroupID = val
	case "hls_playlist_name":
		d.HLSPlaylistName = val
	case "hls_iframe_playlist_name":
		d.HLSIFramePlaylistName = val
	case "hls_characteristics":
		d.HLSCharacteristics = splitNonEmpty(val, ";")
	case "dash_accessibilities":
		d.DASHAccessibilities = splitNonEmpty(val, ";")
	case "dash_roles":
		d.DASHRoles = splitNonEmpty(val, ";")
	case "dash_label":
		d.DASHLabel = val
	case "dash_only":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "dash_only")
		}
		d.DASHOnly = b
	case "hls_only":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return status.Wrap(status.InvalidArgument, err, "hls_only")
		}
		d.HLSOnly = b
	default:
		return status.Newf(status.InvalidArgument, "unknown stream descriptor field %q", key)
	}
	return nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
