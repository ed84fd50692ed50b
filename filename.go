package encfsgo

import (
	"encoding/binary"
	"strings"
)

// filenameCodec implements SPEC_FULL.md §4.C4: per-path-component
// encryption with a chain IV threaded through ancestor directories, a
// MAC-16 checksum prefix, and the stream/block/null algorithm variants.
type filenameCodec struct {
	ctx           *cipherContext
	algorithm     FilenameAlgorithm
	chainedNameIV bool
}

func newFilenameCodec(vk *VolumeKey, cfg *VolumeConfig) *filenameCodec {
	return &filenameCodec{
		ctx:           newCipherContext(vk.Key),
		algorithm:     cfg.FilenameAlgorithm,
		chainedNameIV: cfg.ChainedNameIV,
	}
}

// splitPath breaks a "/"-separated virtual path into its nonempty
// components. "/" and "" both yield an empty slice.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func joinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// padName applies each algorithm's pre-encryption padding: the stream
// algorithm is the identity (AES-CFB needs no block alignment); the block
// algorithm pads to the cipher block size.
func (fc *filenameCodec) padName(name []byte) []byte {
	if fc.algorithm == FilenameBlock {
		return pkcs7Pad(name)
	}
	return name
}

func (fc *filenameCodec) unpadName(padded []byte) ([]byte, error) {
	if fc.algorithm == FilenameBlock {
		return pkcs7Unpad(padded)
	}
	return padded, nil
}

// chainIVForAncestors folds the plaintext names of a path's ancestor
// directories into a chain IV, per SPEC_FULL.md §4.C4. When chainedNameIV
// is off, every directory level starts fresh from zero (§4.C4).
func (fc *filenameCodec) chainIVForAncestors(ancestors []string) [8]byte {
	var chainIV [8]byte
	if !fc.chainedNameIV {
		return chainIV
	}
	for _, seg := range ancestors {
		encoded := fc.padName([]byte(seg))
		chainIV = fc.ctx.mac64(encoded, chainIV)
	}
	return chainIV
}

// fileIVSeedFromMAC expands a 2-byte filename MAC into the 8-byte IV seed
// used to encrypt/decrypt that one segment, XORing it into the chain IV.
func fileIVSeedFromMAC(mac [2]byte, chainIV [8]byte) uint64 {
	var ext [8]byte
	ext[0] = mac[0]
	ext[1] = mac[1]
	var seedBytes [8]byte
	for i := range seedBytes {
		seedBytes[i] = chainIV[i] ^ ext[i]
	}
	return binary.BigEndian.Uint64(seedBytes[:])
}

// encryptSegment encrypts a single plaintext path component (no "/") under
// the given chain IV and returns its ASCII ciphertext form.
func (fc *filenameCodec) encryptSegment(name string, chainIV [8]byte) (string, error) {
	padded := fc.padName([]byte(name))
	mac := fc.ctx.mac16(padded, chainIV)
	ivSeed := fileIVSeedFromMAC(mac, chainIV)

	var cipherBytes []byte
	var err error
	switch fc.algorithm {
	case FilenameStream:
		cipherBytes, err = fc.ctx.streamEncrypt(ivSeed, padded)
	case FilenameBlock:
		cipherBytes, err = fc.ctx.blockEncryptAligned(ivSeed, padded)
	default:
		return name, nil
	}
	if err != nil {
		return "", err
	}

	result := make([]byte, 0, 2+len(cipherBytes))
	result = append(result, mac[0], mac[1])
	result = append(result, cipherBytes...)
	return encodeFilename(result), nil
}

// decryptSegment inverts encryptSegment, verifying the MAC-16 checksum.
func (fc *filenameCodec) decryptSegment(encoded string, chainIV [8]byte) (string, error) {
	if fc.algorithm == FilenameNull {
		return encoded, nil
	}

	raw, err := decodeFilename(encoded)
	if err != nil {
		return "", err
	}
	if len(raw) < 2 {
		return "", newCorruptDataError(encoded, -1, "encoded filename too short", nil)
	}
	var mac [2]byte
	mac[0], mac[1] = raw[0], raw[1]
	cipherBytes := raw[2:]
	ivSeed := fileIVSeedFromMAC(mac, chainIV)

	var padded []byte
	switch fc.algorithm {
	case FilenameStream:
		padded, err = fc.ctx.streamDecrypt(ivSeed, cipherBytes)
	case FilenameBlock:
		padded, err = fc.ctx.blockDecryptAligned(ivSeed, cipherBytes)
	}
	if err != nil {
		return "", err
	}

	gotMAC := fc.ctx.mac16(padded, chainIV)
	if gotMAC != mac {
		return "", newChecksumMismatchError(encoded, -1, "filename checksum mismatch")
	}

	plain, err := fc.unpadName(padded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptPath translates a plaintext virtual path into its on-disk
// ciphertext path, encrypting each component under the chain IV formed by
// its ancestors.
func (fc *filenameCodec) EncryptPath(plainPath string) (string, error) {
	if fc.algorithm == FilenameNull {
		return plainPath, nil
	}
	segments := splitPath(plainPath)
	out := make([]string, len(segments))
	for i, seg := range segments {
		chainIV := fc.chainIVForAncestors(segments[:i])
		enc, err := fc.encryptSegment(seg, chainIV)
		if err != nil {
			return "", err
		}
		out[i] = enc
	}
	return joinPath(out), nil
}

// DecryptPath inverts EncryptPath. Segments are decoded root-to-leaf so
// each level's chain IV can be folded from the already-recovered plaintext
// of its ancestors.
func (fc *filenameCodec) DecryptPath(cipherPath string) (string, error) {
	if fc.algorithm == FilenameNull {
		return cipherPath, nil
	}
	segments := splitPath(cipherPath)
	plainSegs := make([]string, 0, len(segments))
	for _, encSeg := range segments {
		chainIV := fc.chainIVForAncestors(plainSegs)
		plain, err := fc.decryptSegment(encSeg, chainIV)
		if err != nil {
			return "", err
		}
		plainSegs = append(plainSegs, plain)
	}
	return joinPath(plainSegs), nil
}
