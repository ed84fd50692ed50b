package encfsgo

import (
	"testing"
)

func codecPair(t *testing.T, filenameAlg FilenameAlgorithm, chained bool) *filenameCodec {
	t.Helper()
	cfg := DefaultVolumeConfig()
	cfg.FilenameAlgorithm = filenameAlg
	cfg.ChainedNameIV = chained
	vk, err := GenerateVolumeKey(cfg.KeySize)
	if err != nil {
		t.Fatalf("GenerateVolumeKey: %v", err)
	}
	return newFilenameCodec(vk, cfg)
}

func TestFilenameCodecSegmentRoundTrip(t *testing.T) {
	for _, alg := range []FilenameAlgorithm{FilenameStream, FilenameBlock} {
		t.Run(alg.String(), func(t *testing.T) {
			fc := codecPair(t, alg, true)

			names := []string{"test.txt", "a", "very-long-filename-with-many-characters.doc", "文件名.txt"}
			for _, name := range names {
				var chain [8]byte
				encoded, err := fc.encryptSegment(name, chain)
				if err != nil {
					t.Fatalf("encryptSegment(%q): %v", name, err)
				}
				if encoded == name {
					t.Errorf("encrypted name should differ from plaintext for %q", name)
				}
				decoded, err := fc.decryptSegment(encoded, chain)
				if err != nil {
					t.Fatalf("decryptSegment(%q): %v", encoded, err)
				}
				if decoded != name {
					t.Errorf("round-trip failed:\ngot:  %q\nwant: %q", decoded, name)
				}
			}
		})
	}
}

func TestFilenameCodecNullAlgorithmPassesThrough(t *testing.T) {
	fc := codecPair(t, FilenameNull, true)
	plain, err := fc.EncryptPath("/some/path/file.txt")
	if err != nil {
		t.Fatalf("EncryptPath: %v", err)
	}
	if plain != "/some/path/file.txt" {
		t.Fatalf("null algorithm should pass through unchanged, got %q", plain)
	}
	back, err := fc.DecryptPath(plain)
	if err != nil {
		t.Fatalf("DecryptPath: %v", err)
	}
	if back != plain {
		t.Fatalf("null algorithm decrypt should pass through, got %q", back)
	}
}

func TestFilenameCodecPathRoundTrip(t *testing.T) {
	for _, alg := range []FilenameAlgorithm{FilenameStream, FilenameBlock} {
		t.Run(alg.String(), func(t *testing.T) {
			fc := codecPair(t, alg, true)
			paths := []string{
				"/home/user/file.txt",
				"/a/b/c/d/e.txt",
				"/file.txt",
			}
			for _, p := range paths {
				cipherPath, err := fc.EncryptPath(p)
				if err != nil {
					t.Fatalf("EncryptPath(%q): %v", p, err)
				}
				if cipherPath == p {
					t.Errorf("encrypted path should differ from plaintext for %q", p)
				}
				plainPath, err := fc.DecryptPath(cipherPath)
				if err != nil {
					t.Fatalf("DecryptPath(%q): %v", cipherPath, err)
				}
				if plainPath != p {
					t.Errorf("round-trip failed:\ngot:  %q\nwant: %q", plainPath, p)
				}
			}
		})
	}
}

func TestFilenameCodecChainedIVChangesCiphertext(t *testing.T) {
	fcChained := codecPair(t, FilenameBlock, true)
	fcUnchained := codecPair(t, FilenameBlock, false)

	// Same key material isn't guaranteed across two codecs built from two
	// different generated keys, so compare same-codec same-name encrypted
	// under two different ancestor chains instead.
	fc := fcChained
	chainA := fc.chainIVForAncestors([]string{"dirA"})
	chainB := fc.chainIVForAncestors([]string{"dirB"})
	if chainA == chainB {
		t.Fatal("different ancestor names should produce different chain IVs")
	}

	encA, err := fc.encryptSegment("same.txt", chainA)
	if err != nil {
		t.Fatalf("encryptSegment: %v", err)
	}
	encB, err := fc.encryptSegment("same.txt", chainB)
	if err != nil {
		t.Fatalf("encryptSegment: %v", err)
	}
	if encA == encB {
		t.Fatal("the same name under different chain IVs should encrypt differently")
	}

	_ = fcUnchained
}

func TestFilenameCodecRejectsTamperedSegment(t *testing.T) {
	fc := codecPair(t, FilenameBlock, true)
	var chain [8]byte
	encoded, err := fc.encryptSegment("secret.txt", chain)
	if err != nil {
		t.Fatalf("encryptSegment: %v", err)
	}

	raw, err := decodeFilename(encoded)
	if err != nil {
		t.Fatalf("decodeFilename: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	tampered := encodeFilename(raw)

	if _, err := fc.decryptSegment(tampered, chain); err == nil {
		t.Fatal("expected a checksum mismatch for a tampered filename")
	} else if !IsChecksumMismatchError(err) {
		t.Fatalf("expected ChecksumMismatchError, got %T", err)
	}
}

func TestSplitPathJoinPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/", nil},
		{"", nil},
		{"/a", []string{"a"}},
		{"/a/b/c", []string{"a", "b", "c"}},
		{"a/b/", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := splitPath(tt.path)
		if len(got) != len(tt.want) {
			t.Errorf("splitPath(%q) = %v, want %v", tt.path, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitPath(%q) = %v, want %v", tt.path, got, tt.want)
				break
			}
		}
	}
}
