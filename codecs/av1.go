package codecs

import "errors"

// AV1 OBU types (av1 bitstream specification §6.2.2).
const (
	AV1ObuSequenceHeader = 1
	AV1ObuTemporalDelim  = 2
	AV1ObuFrameHeader    = 3
	AV1ObuTileGroup      = 4
	AV1ObuMetadata       = 5
	AV1ObuFrame          = 6
	AV1ObuRedundantFH    = 7
	AV1ObuPadding        = 15
)

var errTruncatedOBU = errors.New("av1: truncated OBU")

// OBU is one Open Bitstream Unit extracted from an AV1 temporal unit.
// HeaderSize is the size, in bytes, of the obu_header plus (when present)
// the leb128 obu_size field; Payload follows immediately.
type OBU struct {
	Type       int
	HeaderSize int
	Payload    []byte
}

// Tile describes one tile's encrypted payload span within an OBU.Payload,
// with ClearPrefix bytes (OBU header + tile group metadata) preceding it.
type Tile struct {
	ClearPrefix int
	PayloadSize int
}

// ParseOBUs splits an AV1 sample (a sequence of OBUs forming one temporal
// unit, Low Overhead Bitstream Format) into its constituent OBUs.
func ParseOBUs(data []byte) ([]OBU, error) {
	var obus []OBU
	for off := 0; off < len(data); {
		if off >= len(data) {
			break
		}
		b0 := data[off]
		obuType := int((b0 >> 3) & 0xF)
		extensionFlag := (b0>>2)&1 == 1
		hasSizeField := (b0>>1)&1 == 1

		headerLen := 1
		if extensionFlag {
			headerLen++
		}
		if off+headerLen > len(data) {
			return nil, errTruncatedOBU
		}

		payloadLen := 0
		sizeFieldLen := 0
		if hasSizeField {
			v, n, err := readLEB128(data[off+headerLen:])
			if err != nil {
				return nil, err
			}
			payloadLen = int(v)
			sizeFieldLen = n
		} else {
			payloadLen = len(data) - off - headerLen
		}

		totalHeader := headerLen + sizeFieldLen
		if off+totalHeader+payloadLen > len(data) {
			return nil, errTruncatedOBU
		}

		obus = append(obus, OBU{
			Type:       obuType,
			HeaderSize: totalHeader,
			Payload:    data[off+totalHeader : off+totalHeader+payloadLen],
		})
		off += totalHeader + payloadLen
	}
	return obus, nil
}

// readLEB128 reads an AV1 unsigned LEB128 value, returning the decoded
// value and the number of bytes consumed.
func readLEB128(data []byte) (uint64, int, error) {
	var value uint64
	for i := 0; i < 8; i++ {
		if i >= len(data) {
			return 0, 0, errTruncatedOBU
		}
		b := data[i]
		value |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, errTruncatedOBU
}

// Tiles computes the subsample tile split for a sample's OBUs: every
// frame or tile-group OBU contributes one tile whose payload is the
// encrypted span and whose clear prefix covers the OBU header plus a
// fixed tile-metadata allowance, per the per-tile clear-prefix /
// encrypted-payload split described for AV1 encryption. Non-frame OBUs
// (sequence header, temporal delimiter, metadata) are entirely clear and
// contribute no tile.
func Tiles(obus []OBU) []Tile {
	const tileMetadataAllowance = 0 // frame/tile-group OBUs carry no extra clear metadata beyond the header in this simplified split
	var tiles []Tile
	for _, o := range obus {
		switch o.Type {
		case AV1ObuFrame, AV1ObuTileGroup:
			tiles = append(tiles, Tile{
				ClearPrefix: o.HeaderSize + tileMetadataAllowance,
				PayloadSize: len(o.Payload) - tileMetadataAllowance,
			})
		}
	}
	return tiles
}
