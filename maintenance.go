package encfsgo

import (
	"fmt"
	"io"
)

// ChangePassword rewraps a volume's key under a freshly derived KEK and
// rewrites the config sidecar. Grounded on the teacher's key_rotation.go,
// but narrowed to match real EncFS "passwd" semantics (SPEC_FULL.md §12):
// the volume key itself never changes, so file contents and filenames are
// untouched — only the wrapped-key blob and salt in the config change.
func ChangePassword(provider FileProvider, oldPassword, newPassword string) error {
	raw, err := readWholeFile(provider, "/"+configFileName)
	if err != nil {
		return err
	}
	config, err := ParseVolumeConfig(raw)
	if err != nil {
		return err
	}

	oldKEK := DerivePasswordKEK(config, oldPassword)
	key, err := UnwrapVolumeKey(config, oldKEK)
	if err != nil {
		return err
	}
	defer key.Zero()

	newSalt, err := GenerateSalt(len(config.Salt))
	if err != nil {
		return err
	}
	config.Salt = newSalt

	newKEK := DerivePasswordKEK(config, newPassword)
	wrapped, err := WrapVolumeKey(config, newKEK, key)
	if err != nil {
		return err
	}
	config.EncodedKeyData = wrapped
	config.EncodedKeySize = len(wrapped)

	encoded, err := config.Encode()
	if err != nil {
		return err
	}
	return writeWholeFile(provider, "/"+configFileName, encoded)
}

// VerifyOptions configures VerifyVolume.
type VerifyOptions struct {
	Verbose bool
}

// VerifyVolume walks every file in the volume and fully reads it, confirming
// every block and filename decrypts cleanly end to end. Grounded on the
// teacher's VerifyAllEncryption/EncryptedFileWalker, adapted to the chain-IV
// based directory walk this facade uses instead of per-file multi-key
// fallback. No structured logging library is introduced for progress output
// (SPEC_FULL.md §10 "Logging / diagnostics") — matching the teacher, which
// only ever prints progress behind a Verbose flag.
func VerifyVolume(v *Volume, opts VerifyOptions) error {
	return verifyDir(v, "/", opts)
}

func verifyDir(v *Volume, dir string, opts VerifyOptions) error {
	entries, err := v.List(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir {
			if err := verifyDir(v, entry.Path, opts); err != nil {
				return err
			}
			continue
		}
		if opts.Verbose {
			fmt.Printf("verifying %s\n", entry.Path)
		}
		r, err := v.OpenRead(entry.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", entry.Path, err)
		}
		_, err = io.Copy(io.Discard, r)
		closeErr := r.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("close %s: %w", entry.Path, closeErr)
		}
	}
	return nil
}
