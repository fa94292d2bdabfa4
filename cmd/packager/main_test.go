package main

import (
	"testing"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/packager"
)

func TestParseFlagsRequiresAtLeastOneDescriptor(t *testing.T) {
	if _, _, err := parseFlags([]string{"-segment_duration=6"}); err == nil {
		t.Fatal("expected error with no stream descriptors")
	}
}

func TestParseFlagsBuildsDescriptorsAndParams(t *testing.T) {
	params, descriptors, err := parseFlags([]string{
		"-segment_duration=4",
		"input=in.mp4,stream=video,output=video.mp4",
		"input=in.mp4,stream=audio,output=audio.mp4",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descriptors))
	}
	if params.ChunkingParams.SegmentDurationSeconds != 4 {
		t.Fatalf("SegmentDurationSeconds = %v, want 4", params.ChunkingParams.SegmentDurationSeconds)
	}
	if params.EncryptionParams.Provider != packager.KeyProviderNone {
		t.Fatalf("default EncryptionParams.Provider = %v, want KeyProviderNone", params.EncryptionParams.Provider)
	}
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	if _, _, err := parseFlags([]string{"-not_a_real_flag=1", "input=in.mp4,stream=audio,output=out.mp4"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestBuildEncryptionConfigRequiresKeys(t *testing.T) {
	f := flagSet{enableRawKeyEncryption: true, protectionScheme: "cenc"}
	if _, err := buildEncryptionConfig(f); err == nil {
		t.Fatal("expected error when --enable_raw_key_encryption is set without --keys")
	}
}

func TestBuildEncryptionConfigParsesKeysAndScheme(t *testing.T) {
	f := flagSet{
		enableRawKeyEncryption: true,
		keys:                   "AUDIO=0102030405060708090a0b0c0d0e0f10:100102030405060708090a0b0c0d0e0f",
		protectionScheme:       "cbcs",
		protectionSystems:      "common,widevine",
		clearLeadSeconds:       5,
	}
	cfg, err := buildEncryptionConfig(f)
	if err != nil {
		t.Fatalf("buildEncryptionConfig: %v", err)
	}
	if cfg.Provider != packager.KeyProviderRawKey {
		t.Fatalf("Provider = %v, want KeyProviderRawKey", cfg.Provider)
	}
	if cfg.Scheme != media.SchemeCbcs {
		t.Fatalf("Scheme = %v, want cbcs", cfg.Scheme)
	}
	if len(cfg.RawKeys.KeyMap) != 1 {
		t.Fatalf("got %d keys, want 1", len(cfg.RawKeys.KeyMap))
	}
	if len(cfg.Systems) != 2 {
		t.Fatalf("got %d protection systems, want 2", len(cfg.Systems))
	}
	if cfg.ClearLeadSeconds != 5 {
		t.Fatalf("ClearLeadSeconds = %v, want 5", cfg.ClearLeadSeconds)
	}
}

func TestParseKeyMapRejectsMalformedEntries(t *testing.T) {
	cases := []string{
		"AUDIO-0102:0304",
		"AUDIO=0102",
		"AUDIO=zz:0304",
	}
	for _, s := range cases {
		if _, err := parseKeyMap(s); err == nil {
			t.Errorf("parseKeyMap(%q): expected error", s)
		}
	}
}

func TestParseProtectionScheme(t *testing.T) {
	cases := map[string]media.ProtectionScheme{
		"cenc": media.SchemeCenc,
		"cbc1": media.SchemeCbc1,
		"cens": media.SchemeCens,
		"cbcs": media.SchemeCbcs,
	}
	for s, want := range cases {
		got, err := parseProtectionScheme(s)
		if err != nil {
			t.Errorf("parseProtectionScheme(%q): %v", s, err)
			continue
		}
		if got != want {
			t.Errorf("parseProtectionScheme(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := parseProtectionScheme("bogus"); err == nil {
		t.Error("expected error for unknown protection scheme")
	}
}

func TestParseHLSPlaylistType(t *testing.T) {
	if _, err := parseHLSPlaylistType("bogus"); err == nil {
		t.Error("expected error for unknown playlist type")
	}
	if _, err := parseHLSPlaylistType("live"); err != nil {
		t.Errorf("parseHLSPlaylistType(live): %v", err)
	}
}
