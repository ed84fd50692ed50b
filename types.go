package encfsgo

import "fmt"

// ContentAlgorithm selects the cipher mode used to encrypt file contents.
type ContentAlgorithm uint8

const (
	// ContentStreamCFB encrypts file contents with AES-CFB plus the
	// EncFS shuffle/flip pre- and post-processing.
	ContentStreamCFB ContentAlgorithm = iota
	// ContentBlockCBC encrypts file contents with unpadded AES-CBC
	// (full blocks are already cipher-block aligned), except for a file's
	// final partial block,
	// which always uses ContentStreamCFB (see DESIGN.md "last-block").
	ContentBlockCBC
)

func (c ContentAlgorithm) String() string {
	switch c {
	case ContentStreamCFB:
		return "stream"
	case ContentBlockCBC:
		return "block"
	default:
		return "unknown"
	}
}

// FilenameAlgorithm selects how path components are encrypted.
type FilenameAlgorithm uint8

const (
	// FilenameStream encrypts names with AES-CFB, no block padding.
	FilenameStream FilenameAlgorithm = iota
	// FilenameBlock encrypts names with AES-CBC, PKCS-style padded.
	FilenameBlock
	// FilenameNull passes names through unencrypted.
	FilenameNull
)

func (f FilenameAlgorithm) String() string {
	switch f {
	case FilenameStream:
		return "stream"
	case FilenameBlock:
		return "block"
	case FilenameNull:
		return "null"
	default:
		return "unknown"
	}
}

// VolumeConfig is the decoded form of the XML sidecar (see config.go). It is
// immutable after a volume is opened or created.
type VolumeConfig struct {
	VersionMajor int
	VersionMinor int
	Creator      string

	ContentAlgorithm  ContentAlgorithm
	FilenameAlgorithm FilenameAlgorithm

	KeySize   int // bits: 128, 192, or 256
	BlockSize int // bytes, multiple of aes.BlockSize

	UniqueIV           bool
	ChainedNameIV      bool
	ExternalIVChaining bool // must be false; rejected at parse/validate
	AllowHoles         bool

	BlockMACBytes     int // 0..8
	BlockMACRandBytes int // 0..8

	KDFIterations int
	Salt          []byte

	EncodedKeySize int
	EncodedKeyData []byte // password-wrapped [checksum(4)][key+iv]
}

// DefaultVolumeConfig returns the configuration used when creating a new
// volume, matching the reference EncFS defaults (SPEC_FULL.md §6).
func DefaultVolumeConfig() *VolumeConfig {
	return &VolumeConfig{
		VersionMajor:      6,
		VersionMinor:      0,
		Creator:           "encfsgo",
		ContentAlgorithm:  ContentBlockCBC,
		FilenameAlgorithm: FilenameBlock,
		KeySize:           192,
		BlockSize:         1024,
		UniqueIV:          true,
		ChainedNameIV:     true,
		AllowHoles:        true,
		BlockMACBytes:     0,
		BlockMACRandBytes: 0,
		KDFIterations:     5000,
	}
}

// Validate checks the structural invariants of a volume config, independent
// of whether it round-trips through XML.
func (c *VolumeConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.ExternalIVChaining {
		return newUnsupportedError("externalIVChaining", "external IV chaining is not implemented")
	}
	switch c.KeySize {
	case 128, 192, 256:
	default:
		return newInvalidConfigError("keySize", c.KeySize, "must be 128, 192, or 256")
	}
	if c.BlockSize < aesBlockSize || c.BlockSize%aesBlockSize != 0 {
		return newInvalidConfigError("blockSize", c.BlockSize, fmt.Sprintf("must be a positive multiple of %d", aesBlockSize))
	}
	if c.BlockMACBytes < 0 || c.BlockMACBytes > 8 {
		return newInvalidConfigError("blockMACBytes", c.BlockMACBytes, "must be between 0 and 8")
	}
	if c.BlockMACRandBytes < 0 || c.BlockMACRandBytes > 8 {
		return newInvalidConfigError("blockMACRandBytes", c.BlockMACRandBytes, "must be between 0 and 8")
	}
	if c.KDFIterations <= 0 {
		return newInvalidConfigError("kdfIterations", c.KDFIterations, "must be positive")
	}
	switch c.ContentAlgorithm {
	case ContentStreamCFB, ContentBlockCBC:
	default:
		return newUnsupportedError("cipherAlg", fmt.Sprintf("unknown content algorithm %d", c.ContentAlgorithm))
	}
	switch c.FilenameAlgorithm {
	case FilenameStream, FilenameBlock, FilenameNull:
	default:
		return newUnsupportedError("nameAlg", fmt.Sprintf("unknown filename algorithm %d", c.FilenameAlgorithm))
	}
	return nil
}

// OpenOptions configures Open (see volume.go).
type OpenOptions struct {
	Password string
}

// CreateOptions configures Create (see volume.go).
type CreateOptions struct {
	Password string
	Config   *VolumeConfig // nil selects DefaultVolumeConfig()
}
