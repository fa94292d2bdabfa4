package crypto

import (
	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

// RawKeyParams configures a RawKeySource: a map from stream label to
// key/key-id, an optional fixed IV (normally only used in tests, since a
// fixed IV defeats per-title key security in production), and optional
// injected PSSH bytes.
type RawKeyParams struct {
	KeyMap map[string]RawKeyInfo
	IV     []byte
	PSSH   []byte
}

// RawKeyInfo is one stream label's key id and key.
type RawKeyInfo struct {
	KeyID []byte
	Key   []byte
}

// RawKeySource is a KeySource backed by a static, in-memory key map
// supplied up front; it never performs network I/O and so needs no retry
// wrapper. An empty stream label ("") is the default KeyInfo applied to
// any label not explicitly present in the map. Key rotation is simulated
// by deriving a new key id per crypto period from the configured key id,
// since a raw key source has no external rotation schedule of its own.
type RawKeySource struct {
	params RawKeyParams
}

// NewRawKeySource builds a RawKeySource. It fails only if the key map is
// empty; a later request for a label that is neither in the map nor
// covered by a default ("") entry fails at that request.
func NewRawKeySource(params RawKeyParams) (*RawKeySource, error) {
	if len(params.KeyMap) == 0 {
		return nil, status.New(status.InvalidArgument, "raw key source requires at least one key")
	}
	return &RawKeySource{params: params}, nil
}

func (s *RawKeySource) lookup(label string) (RawKeyInfo, error) {
	if info, ok := s.params.KeyMap[label]; ok {
		return info, nil
	}
	if info, ok := s.params.KeyMap[""]; ok {
		return info, nil
	}
	return RawKeyInfo{}, status.Newf(status.EncryptionError, "no raw key configured for label %q", label)
}

// GetKey implements KeySource.
func (s *RawKeySource) GetKey(label string) (*media.EncryptionKey, error) {
	info, err := s.lookup(label)
	if err != nil {
		return nil, err
	}
	iv := s.params.IV
	if iv == nil {
		var genErr error
		iv, genErr = GenerateRandomIV(media.SchemeCenc)
		if genErr != nil {
			return nil, genErr
		}
	}
	return &media.EncryptionKey{KeyID: info.KeyID, Key: info.Key, IV: iv}, nil
}

// GetCryptoPeriodKey implements KeySource by deriving a per-period key id
// (key id XORed with the big-endian period index) from the configured
// static key, so that distinct periods always produce distinct key ids
// while the underlying key material can still be verified against a
// fixed test vector.
func (s *RawKeySource) GetCryptoPeriodKey(period int, _ float64, label string) (*media.EncryptionKey, error) {
	info, err := s.lookup(label)
	if err != nil {
		return nil, err
	}
	derivedID := make([]byte, len(info.KeyID))
	copy(derivedID, info.KeyID)
	for i := 0; i < 4 && i < len(derivedID); i++ {
		derivedID[len(derivedID)-1-i] ^= byte(period >> (8 * i))
	}
	iv, err := GenerateRandomIV(media.SchemeCenc)
	if err != nil {
		return nil, err
	}
	return &media.EncryptionKey{KeyID: derivedID, Key: info.Key, IV: iv}, nil
}
