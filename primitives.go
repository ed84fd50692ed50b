package encfsgo

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"
)

const aesBlockSize = aes.BlockSize

// cipherContext binds a volume's AES key to the three primitive operations
// the content and filename codecs need: stream (CFB+shuffle/flip) encoding,
// block (CBC+padding) encoding, and MAC folding. A cipherContext is built
// fresh (cheaply) per call site rather than shared and locked, matching the
// "per-operation cipher instances" guidance in SPEC_FULL.md's design notes.
type cipherContext struct {
	key []byte // AES key, also used as the HMAC-SHA1 MAC key
}

func newCipherContext(key []byte) *cipherContext {
	return &cipherContext{key: key}
}

// deriveIV produces the 16-byte AES IV for a given 64-bit IV seed, per
// SPEC_FULL.md §4.C1: HMAC-SHA1(key, seed)[:16].
func (c *cipherContext) deriveIV(seed uint64) []byte {
	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], seed)
	mac := hmac.New(sha1.New, c.key)
	mac.Write(seedBytes[:])
	sum := mac.Sum(nil)
	return sum[:aesBlockSize]
}

// shuffleBytes applies EncFS's forward diffusion pass in place.
func shuffleBytes(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i+1] ^= buf[i]
	}
}

// unshuffleBytes inverts shuffleBytes in place.
func unshuffleBytes(buf []byte) {
	for i := len(buf) - 1; i > 0; i-- {
		buf[i] ^= buf[i-1]
	}
}

// flipBytes reverses a buffer in place.
func flipBytes(buf []byte) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

func (c *cipherContext) cfbXOR(seed uint64, buf []byte) error {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return newCorruptDataError("", -1, "aes key setup failed", err)
	}
	stream := cipher.NewCFBEncrypter(block, c.deriveIV(seed))
	stream.XORKeyStream(buf, buf)
	return nil
}

// streamEncrypt implements SPEC_FULL.md §4.C1's two-pass AES-CFB transform
// with shuffle/flip. It mutates a copy of data and returns the ciphertext.
func (c *cipherContext) streamEncrypt(ivSeed uint64, data []byte) ([]byte, error) {
	buf := append([]byte(nil), data...)
	if len(buf) == 0 {
		return buf, nil
	}
	shuffleBytes(buf)
	if err := c.cfbXOR(ivSeed, buf); err != nil {
		return nil, err
	}
	flipBytes(buf)
	shuffleBytes(buf)
	if err := c.cfbXOR(ivSeed+1, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// streamDecrypt inverts streamEncrypt.
func (c *cipherContext) streamDecrypt(ivSeed uint64, data []byte) ([]byte, error) {
	buf := append([]byte(nil), data...)
	if len(buf) == 0 {
		return buf, nil
	}
	if err := c.cfbXOR(ivSeed+1, buf); err != nil {
		return nil, err
	}
	unshuffleBytes(buf)
	flipBytes(buf)
	if err := c.cfbXOR(ivSeed, buf); err != nil {
		return nil, err
	}
	unshuffleBytes(buf)
	return buf, nil
}

// pkcs7Pad pads data to a multiple of aesBlockSize using PKCS#7-style
// padding (the pad value equals the pad length, always added even when the
// input is already block-aligned, so the pad is always removable).
func pkcs7Pad(data []byte) []byte {
	padLen := aesBlockSize - len(data)%aesBlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aesBlockSize != 0 {
		return nil, newCorruptDataError("", -1, "padded data is not block-aligned", nil)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aesBlockSize || padLen > len(data) {
		return nil, newCorruptDataError("", -1, "invalid padding", nil)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, newCorruptDataError("", -1, "invalid padding bytes", nil)
		}
	}
	return data[:len(data)-padLen], nil
}

// cbcCryptAligned runs raw AES-CBC (no padding) over data that is already a
// multiple of the AES block size, used by the content codec's full blocks
// (SPEC_FULL.md §4.C5), where the EncFS block size is itself always a
// multiple of the cipher block size and needs no PKCS padding.
func (c *cipherContext) cbcCryptAligned(ivSeed uint64, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, newCorruptDataError("", -1, "aes key setup failed", err)
	}
	out := make([]byte, len(data))
	iv := c.deriveIV(ivSeed)
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

// blockEncrypt implements SPEC_FULL.md §4.C1's AES-CBC codec: PKCS-style pad
// then encrypt under an IV derived from ivSeed.
func (c *cipherContext) blockEncrypt(ivSeed uint64, data []byte) ([]byte, error) {
	padded := pkcs7Pad(data)
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, newCorruptDataError("", -1, "aes key setup failed", err)
	}
	cbc := cipher.NewCBCEncrypter(block, c.deriveIV(ivSeed))
	out := make([]byte, len(padded))
	cbc.CryptBlocks(out, padded)
	return out, nil
}

// blockDecrypt inverts blockEncrypt.
func (c *cipherContext) blockDecrypt(ivSeed uint64, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aesBlockSize != 0 {
		return nil, newCorruptDataError("", -1, "ciphertext is not block-aligned", nil)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, newCorruptDataError("", -1, "aes key setup failed", err)
	}
	cbc := cipher.NewCBCDecrypter(block, c.deriveIV(ivSeed))
	out := make([]byte, len(data))
	cbc.CryptBlocks(out, data)
	return pkcs7Unpad(out)
}

// mac64 computes SPEC_FULL.md §4.C1's chain-IV update: HMAC-SHA1 over
// data||chainIV, folded down to 8 bytes by XOR of successive chunks.
func (c *cipherContext) mac64(data []byte, chainIV [8]byte) [8]byte {
	mac := hmac.New(sha1.New, c.key)
	mac.Write(data)
	mac.Write(chainIV[:])
	digest := mac.Sum(nil) // 20 bytes

	var out [8]byte
	copy(out[:], digest[0:8])
	for i := 0; i < 8; i++ {
		out[i] ^= digest[8+i]
	}
	for i := 0; i < 4; i++ {
		out[i] ^= digest[16+i]
	}
	return out
}

// mac16FromMac64 folds an 8-byte mac64 result further down to 2 bytes.
func mac16FromMac64(m [8]byte) [2]byte {
	var out [2]byte
	out[0] = m[0] ^ m[2] ^ m[4] ^ m[6]
	out[1] = m[1] ^ m[3] ^ m[5] ^ m[7]
	return out
}

// mac16 computes the 2-byte filename checksum directly from data and an
// optional chaining IV (zero IV when chainedNameIV is not set).
func (c *cipherContext) mac16(data []byte, chainIV [8]byte) [2]byte {
	return mac16FromMac64(c.mac64(data, chainIV))
}

// derivePasswordKey runs PBKDF2-HMAC-SHA1, the KDF the EncFS wire format is
// pinned to (SPEC_FULL.md §4.C3, §8 S6).
func derivePasswordKey(password string, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha1.New)
}
