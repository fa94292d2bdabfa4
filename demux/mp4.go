package demux

import (
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/pipeline"
	"github.com/nullstream/packager/status"
)

// MP4Demuxer reads a non-fragmented ISO-BMFF file (ftyp/moov/mdat) and
// emits one StreamInfo and its MediaSamples per track found in moov.
// Fragmented MP4 (moof/mdat sequences) and multi-mdat files are not
// supported; the scope here is the "moov describes every sample's
// offset/size/duration via stbl" case, sufficient to feed the rest of
// the pipeline with real samples.
type MP4Demuxer struct {
	r io.ReaderAt
}

// NewMP4Demuxer builds an MP4Demuxer reading from r.
func NewMP4Demuxer(r io.ReaderAt) *MP4Demuxer {
	return &MP4Demuxer{r: r}
}

// Run implements Demuxer.
func (d *MP4Demuxer) Run(ctx context.Context, out pipeline.Handler) error {
	size, err := sizeOf(d.r)
	if err != nil {
		return err
	}
	top, err := readBoxes(d.r, 0, size)
	if err != nil {
		return err
	}
	moov, ok := findBox(top, "moov")
	if !ok {
		return status.New(status.ParseError, "mp4: no moov box found")
	}
	moovChildren, err := readBoxes(d.r, moov.offset, moov.size)
	if err != nil {
		return err
	}

	streamIndex := 0
	for _, child := range moovChildren {
		if child.typ != "trak" {
			continue
		}
		trak, err := readBoxes(d.r, child.offset, child.size)
		if err != nil {
			return err
		}
		track, err := parseTrack(d.r, trak)
		if err != nil {
			return err
		}
		if track == nil {
			continue // unsupported handler type, skip silently
		}

		if err := ctx.Err(); err != nil {
			return status.Wrap(status.Cancelled, err, "mp4 demux cancelled")
		}
		if err := out.Process(media.FromStreamInfo(streamIndex, track.info)); err != nil {
			return err
		}
		for _, s := range track.samples {
			if err := ctx.Err(); err != nil {
				if ferr := out.FlushInput(streamIndex); ferr != nil {
					return ferr
				}
				return status.Wrap(status.Cancelled, err, "mp4 demux cancelled")
			}
			data, err := readAll(d.r, box{offset: s.offset, size: int64(s.size)})
			if err != nil {
				return err
			}
			sample := &media.MediaSample{
				StreamIndex: streamIndex,
				DTS:         s.dts,
				PTS:         s.dts,
				Duration:    s.duration,
				IsKeyFrame:  s.keyFrame,
				Data:        data,
			}
			if err := out.Process(media.FromMediaSample(streamIndex, sample)); err != nil {
				return err
			}
		}
		if err := out.FlushInput(streamIndex); err != nil {
			return err
		}
		streamIndex++
	}
	return status.ErrEndOfStream
}

// sizeOf reports the total byte length backing r, needed up front to walk
// top-level boxes. *os.File and *bytes.Reader (via Size()) are the two
// inputs this demuxer is expected to see in practice.
func sizeOf(r io.ReaderAt) (int64, error) {
	switch v := r.(type) {
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return 0, status.Wrap(status.ParseError, err, "stat mp4 source")
		}
		return info.Size(), nil
	case interface{ Size() int64 }:
		return v.Size(), nil
	default:
		return 0, status.New(status.InvalidArgument, "mp4: reader must be *os.File or report Size()")
	}
}

type trackInfo struct {
	info    *media.StreamInfo
	samples []sampleEntry
}

type sampleEntry struct {
	offset   int64
	size     uint32
	dts      int64
	duration int64
	keyFrame bool
}

func parseTrack(r io.ReaderAt, trak []box) (*trackInfo, error) {
	mdia, ok := findBox(trak, "mdia")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: trak missing mdia")
	}
	mdiaChildren, err := readBoxes(r, mdia.offset, mdia.size)
	if err != nil {
		return nil, err
	}

	mdhdBox, ok := findBox(mdiaChildren, "mdhd")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: mdia missing mdhd")
	}
	mdhd, err := readAll(r, mdhdBox)
	if err != nil {
		return nil, err
	}
	timeScale, duration := parseMdhd(mdhd)

	hdlrBox, ok := findBox(mdiaChildren, "hdlr")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: mdia missing hdlr")
	}
	hdlr, err := readAll(r, hdlrBox)
	if err != nil {
		return nil, err
	}
	kind := parseHandlerKind(hdlr)
	if kind == media.KindUnknown {
		return nil, nil
	}

	minf, ok := findBox(mdiaChildren, "minf")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: mdia missing minf")
	}
	minfChildren, err := readBoxes(r, minf.offset, minf.size)
	if err != nil {
		return nil, err
	}
	stbl, ok := findBox(minfChildren, "stbl")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: minf missing stbl")
	}
	stblChildren, err := readBoxes(r, stbl.offset, stbl.size)
	if err != nil {
		return nil, err
	}

	codec, codecString, codecConfig, videoDims, err := parseSampleDescription(r, stblChildren, kind)
	if err != nil {
		return nil, err
	}

	samples, err := buildSampleTable(r, stblChildren, timeScale)
	if err != nil {
		return nil, err
	}

	info := &media.StreamInfo{
		Kind:        kind,
		Codec:       codec,
		CodecString: codecString,
		TimeScale:   timeScale,
		Duration:    duration,
		CodecConfig: codecConfig,
	}
	if kind == media.KindVideo {
		info.Width = videoDims[0]
		info.Height = videoDims[1]
		info.NaluLengthSize = 4
	}

	return &trackInfo{info: info, samples: samples}, nil
}

func parseMdhd(data []byte) (timeScale int64, duration int64) {
	if len(data) < 4 {
		return 0, 0
	}
	version := data[0]
	if version == 1 {
		if len(data) < 32 {
			return 0, 0
		}
		timeScale = int64(binary.BigEndian.Uint32(data[20:24]))
		duration = int64(binary.BigEndian.Uint64(data[24:32]))
	} else {
		if len(data) < 20 {
			return 0, 0
		}
		timeScale = int64(binary.BigEndian.Uint32(data[12:16]))
		duration = int64(binary.BigEndian.Uint32(data[16:20]))
	}
	return timeScale, duration
}

func parseHandlerKind(data []byte) media.Kind {
	if len(data) < 12 {
		return media.KindUnknown
	}
	switch string(data[8:12]) {
	case "vide":
		return media.KindVideo
	case "soun":
		return media.KindAudio
	case "text", "sbtl", "subt":
		return media.KindText
	default:
		return media.KindUnknown
	}
}

// parseSampleDescription reads stsd for the track's codec fourcc and its
// decoder-configuration box (avcC/hvcC/esds), and for video the
// width/height carried in the sample entry itself.
func parseSampleDescription(r io.ReaderAt, stbl []box, kind media.Kind) (media.Codec, string, []byte, [2]int, error) {
	stsdBox, ok := findBox(stbl, "stsd")
	if !ok {
		return media.CodecUnknown, "", nil, [2]int{}, status.New(status.ParseError, "mp4: stbl missing stsd")
	}
	stsd, err := readAll(r, stsdBox)
	if err != nil {
		return media.CodecUnknown, "", nil, [2]int{}, err
	}
	if len(stsd) < 16 {
		return media.CodecUnknown, "", nil, [2]int{}, status.New(status.ParseError, "mp4: stsd too short")
	}
	entrySize := binary.BigEndian.Uint32(stsd[8:12])
	fourcc := string(stsd[12:16])
	entry := stsd[8:]
	if int(entrySize) > len(entry) {
		entrySize = uint32(len(entry))
	}
	entry = entry[:entrySize]

	codec := codecFromFourCC(fourcc)
	var dims [2]int
	var config []byte

	if kind == media.KindVideo && len(entry) >= 8+78 {
		body := entry[8:]
		if len(body) >= 32 {
			dims[0] = int(binary.BigEndian.Uint16(body[24:26]))
			dims[1] = int(binary.BigEndian.Uint16(body[26:28]))
		}
		if len(body) > 78 {
			children, err := readBoxes(newByteReaderAt(body[78:]), 0, int64(len(body)-78))
			if err == nil {
				if avcC, ok := findBox(children, "avcC"); ok {
					config, _ = readAll(newByteReaderAt(body[78:]), avcC)
				} else if hvcC, ok := findBox(children, "hvcC"); ok {
					config, _ = readAll(newByteReaderAt(body[78:]), hvcC)
				}
			}
		}
	} else if kind == media.KindAudio && len(entry) >= 8+36 {
		body := entry[8:]
		if len(body) > 28 {
			children, err := readBoxes(newByteReaderAt(body[28:]), 0, int64(len(body)-28))
			if err == nil {
				if esds, ok := findBox(children, "esds"); ok {
					config, _ = readAll(newByteReaderAt(body[28:]), esds)
				}
			}
		}
	}

	return codec, fourcc, config, dims, nil
}

func codecFromFourCC(fourcc string) media.Codec {
	switch fourcc {
	case "avc1", "avc3":
		return media.CodecH264
	case "hvc1", "hev1":
		return media.CodecH265
	case "av01":
		return media.CodecAV1
	case "vp09":
		return media.CodecVP9
	case "mp4a":
		return media.CodecAAC
	case "ac-3":
		return media.CodecAC3
	case "ec-3":
		return media.CodecEC3
	case "Opus":
		return media.CodecOpus
	default:
		return media.CodecUnknown
	}
}

// buildSampleTable reconstructs the per-sample offset/size/duration/
// keyframe table from stts (time-to-sample), stsz (sample sizes), stsc
// (sample-to-chunk), stco/co64 (chunk offsets), and stss (sync samples,
// if present; absence means every sample is a keyframe, e.g. audio).
func buildSampleTable(r io.ReaderAt, stbl []box, timeScale int64) ([]sampleEntry, error) {
	sttsBox, ok := findBox(stbl, "stts")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: stbl missing stts")
	}
	stts, err := readAll(r, sttsBox)
	if err != nil {
		return nil, err
	}
	durations := parseSTTS(stts)

	stszBox, ok := findBox(stbl, "stsz")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: stbl missing stsz")
	}
	stsz, err := readAll(r, stszBox)
	if err != nil {
		return nil, err
	}
	sizes := parseSTSZ(stsz)

	stscBox, ok := findBox(stbl, "stsc")
	if !ok {
		return nil, status.New(status.ParseError, "mp4: stbl missing stsc")
	}
	stsc, err := readAll(r, stscBox)
	if err != nil {
		return nil, err
	}
	chunkMap := parseSTSC(stsc)

	var offsets []int64
	if co64Box, ok := findBox(stbl, "co64"); ok {
		buf, err := readAll(r, co64Box)
		if err != nil {
			return nil, err
		}
		offsets = parseCO64(buf)
	} else if stcoBox, ok := findBox(stbl, "stco"); ok {
		buf, err := readAll(r, stcoBox)
		if err != nil {
			return nil, err
		}
		offsets = parseSTCO(buf)
	} else {
		return nil, status.New(status.ParseError, "mp4: stbl missing stco/co64")
	}

	syncSamples := map[int]bool{}
	if stssBox, ok := findBox(stbl, "stss"); ok {
		buf, err := readAll(r, stssBox)
		if err == nil {
			for _, n := range parseSTSS(buf) {
				syncSamples[n] = true
			}
		}
	}
	allSync := len(syncSamples) == 0

	samples := make([]sampleEntry, 0, len(sizes))
	var dts int64
	sampleIdx := 0
	for chunkIdx, chunkOffset := range offsets {
		samplesInChunk := chunkMap.samplesForChunk(chunkIdx + 1)
		pos := chunkOffset
		for i := 0; i < samplesInChunk && sampleIdx < len(sizes); i++ {
			size := sizes[sampleIdx]
			dur := durationAt(durations, sampleIdx)
			samples = append(samples, sampleEntry{
				offset:   pos,
				size:     size,
				dts:      dts,
				duration: dur,
				keyFrame: allSync || syncSamples[sampleIdx+1],
			})
			pos += int64(size)
			dts += dur
			sampleIdx++
		}
	}
	return samples, nil
}

type sttsEntry struct {
	count int
	delta int64
}

func parseSTTS(data []byte) []sttsEntry {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	entries := make([]sttsEntry, 0, count)
	pos := 8
	for i := uint32(0); i < count && pos+8 <= len(data); i++ {
		entries = append(entries, sttsEntry{
			count: int(binary.BigEndian.Uint32(data[pos : pos+4])),
			delta: int64(binary.BigEndian.Uint32(data[pos+4 : pos+8])),
		})
		pos += 8
	}
	return entries
}

func durationAt(entries []sttsEntry, sampleIdx int) int64 {
	remaining := sampleIdx
	for _, e := range entries {
		if remaining < e.count {
			return e.delta
		}
		remaining -= e.count
	}
	if len(entries) > 0 {
		return entries[len(entries)-1].delta
	}
	return 0
}

func parseSTSZ(data []byte) []uint32 {
	if len(data) < 12 {
		return nil
	}
	sampleSize := binary.BigEndian.Uint32(data[4:8])
	count := binary.BigEndian.Uint32(data[8:12])
	sizes := make([]uint32, count)
	if sampleSize != 0 {
		for i := range sizes {
			sizes[i] = sampleSize
		}
		return sizes
	}
	pos := 12
	for i := uint32(0); i < count && pos+4 <= len(data); i++ {
		sizes[i] = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}
	return sizes
}

type stscTable []stscEntry

type stscEntry struct {
	firstChunk      int
	samplesPerChunk int
}

func (t stscTable) samplesForChunk(chunkNumber int) int {
	result := 0
	for i, e := range t {
		if chunkNumber < e.firstChunk {
			break
		}
		if i+1 < len(t) && chunkNumber >= t[i+1].firstChunk {
			continue
		}
		result = e.samplesPerChunk
	}
	return result
}

func parseSTSC(data []byte) stscTable {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	table := make(stscTable, 0, count)
	pos := 8
	for i := uint32(0); i < count && pos+12 <= len(data); i++ {
		table = append(table, stscEntry{
			firstChunk:      int(binary.BigEndian.Uint32(data[pos : pos+4])),
			samplesPerChunk: int(binary.BigEndian.Uint32(data[pos+4 : pos+8])),
		})
		pos += 12
	}
	return table
}

func parseSTCO(data []byte) []int64 {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	offsets := make([]int64, 0, count)
	pos := 8
	for i := uint32(0); i < count && pos+4 <= len(data); i++ {
		offsets = append(offsets, int64(binary.BigEndian.Uint32(data[pos:pos+4])))
		pos += 4
	}
	return offsets
}

func parseCO64(data []byte) []int64 {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	offsets := make([]int64, 0, count)
	pos := 8
	for i := uint32(0); i < count && pos+8 <= len(data); i++ {
		offsets = append(offsets, int64(binary.BigEndian.Uint64(data[pos:pos+8])))
		pos += 8
	}
	return offsets
}

func parseSTSS(data []byte) []int {
	if len(data) < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(data[4:8])
	nums := make([]int, 0, count)
	pos := 8
	for i := uint32(0); i < count && pos+4 <= len(data); i++ {
		nums = append(nums, int(binary.BigEndian.Uint32(data[pos:pos+4])))
		pos += 4
	}
	return nums
}

// byteReaderAt adapts an in-memory slice to io.ReaderAt, used to re-walk
// boxes nested inside an already-buffered parent payload (sample entry
// bodies, sinfo/avcC children) without re-reading from the source.
type byteReaderAt struct {
	data []byte
}

func newByteReaderAt(data []byte) *byteReaderAt { return &byteReaderAt{data: data} }

func (b *byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
