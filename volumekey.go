package encfsgo

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
)

const (
	volumeIVSize    = 16 // base IV carried alongside the AES key
	wrapChecksumLen = 4  // stored prefix used to detect a wrong password
)

// VolumeKey is the unwrapped secret material for an open volume: the AES
// key used for content/filename encryption and a base IV. It lives for the
// volume's lifetime and is zeroed on close (see Volume.Close).
type VolumeKey struct {
	Key []byte // KeySize/8 bytes
	IV  []byte // volumeIVSize bytes
}

// Zero overwrites the key material in place.
func (k *VolumeKey) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	for i := range k.IV {
		k.IV[i] = 0
	}
}

func rawKeyAndIV(vk *VolumeKey) []byte {
	return append(append([]byte(nil), vk.Key...), vk.IV...)
}

func splitRawKeyAndIV(raw []byte, keySizeBytes int) (*VolumeKey, error) {
	if err := validateKeySize(raw, keySizeBytes+volumeIVSize); err != nil {
		return nil, newCorruptDataError("", -1, "unwrapped key material has the wrong length", err)
	}
	return &VolumeKey{
		Key: append([]byte(nil), raw[:keySizeBytes]...),
		IV:  append([]byte(nil), raw[keySizeBytes:]...),
	}, nil
}

// ivSeedFromChecksum derives the stream cipher's IV seed from the wrapped
// key blob's own 4-byte checksum prefix (SPEC_FULL.md §4.C3: "iv_seed = MAC
// of the ciphertext tail"). The checksum is itself a MAC of the raw key+IV
// material and travels in the blob ahead of the encrypted tail, so it is
// available identically on both the wrap side (just computed) and the
// unwrap side (just read off the stored blob) without ever needing the
// decrypted plaintext first.
func (c *cipherContext) ivSeedFromChecksum(checksum []byte) uint64 {
	sum := c.mac64(checksum, [8]byte{})
	return binary.BigEndian.Uint64(sum[:8])
}

// DerivePasswordKEK runs PBKDF2 over the password and the config's salt to
// produce a key-encrypting-key the same size as the volume key plus IV.
func DerivePasswordKEK(config *VolumeConfig, password string) []byte {
	keyLen := config.KeySize/8 + volumeIVSize
	return derivePasswordKey(password, config.Salt, config.KDFIterations, keyLen)
}

// UnwrapVolumeKey recovers the volume key from a config's wrapped blob,
// given a password-derived KEK. A wrong password always surfaces as
// InvalidPasswordError (checksum mismatch), never CorruptDataError, since
// the stream cipher has no failure mode of its own to report (SPEC_FULL.md
// §8 property 5).
func UnwrapVolumeKey(config *VolumeConfig, kek []byte) (*VolumeKey, error) {
	if len(kek) < aesBlockSize {
		return nil, newInvalidPasswordError("derived key too short", nil)
	}
	if len(config.EncodedKeyData) < wrapChecksumLen {
		return nil, newInvalidPasswordError("wrapped key blob too short", nil)
	}
	ctx := newCipherContext(kek[:len(kek)-volumeIVSize])

	storedChecksum := config.EncodedKeyData[:wrapChecksumLen]
	cipherTail := config.EncodedKeyData[wrapChecksumLen:]
	seed := ctx.ivSeedFromChecksum(storedChecksum)

	raw, err := ctx.streamDecrypt(seed, cipherTail)
	if err != nil {
		return nil, err
	}

	gotChecksum := ctx.mac64(raw, [8]byte{})
	if !bytes.Equal(storedChecksum, gotChecksum[:wrapChecksumLen]) {
		return nil, newInvalidPasswordError("key checksum mismatch", nil)
	}

	return splitRawKeyAndIV(raw, config.KeySize/8)
}

// WrapVolumeKey produces the EncodedKeyData blob for a newly created volume.
func WrapVolumeKey(config *VolumeConfig, kek []byte, vk *VolumeKey) ([]byte, error) {
	if len(kek) < aesBlockSize {
		return nil, newInvalidPasswordError("derived key too short", nil)
	}
	ctx := newCipherContext(kek[:len(kek)-volumeIVSize])

	raw := rawKeyAndIV(vk)
	checksum := ctx.mac64(raw, [8]byte{})
	seed := ctx.ivSeedFromChecksum(checksum[:wrapChecksumLen])

	cipherTail, err := ctx.streamEncrypt(seed, raw)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, wrapChecksumLen+len(cipherTail))
	blob = append(blob, checksum[:wrapChecksumLen]...)
	blob = append(blob, cipherTail...)
	return blob, nil
}

// GenerateVolumeKey creates fresh, random key material for a new volume.
func GenerateVolumeKey(keySizeBits int) (*VolumeKey, error) {
	if err := validateSize(keySizeBits, "keySizeBits", 128, 256); err != nil {
		return nil, err
	}
	vk := &VolumeKey{
		Key: make([]byte, keySizeBits/8),
		IV:  make([]byte, volumeIVSize),
	}
	if _, err := rand.Read(vk.Key); err != nil {
		return nil, wrapIOError("generate", "volume-key", err)
	}
	if _, err := rand.Read(vk.IV); err != nil {
		return nil, wrapIOError("generate", "volume-key", err)
	}
	return vk, nil
}

// GenerateSalt creates a fresh salt for a new volume's KDF.
func GenerateSalt(n int) ([]byte, error) {
	if err := validateSize(n, "saltLen", 8, 64); err != nil {
		return nil, err
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, wrapIOError("generate", "salt", err)
	}
	return salt, nil
}
