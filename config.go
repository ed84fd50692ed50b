package encfsgo

import (
	"encoding/base64"
	"encoding/xml"
)

// The XML sidecar schema below mirrors the boost_serialization layout
// described in SPEC_FULL.md §6/§4.C2: a fixed tag order that must round-trip
// unchanged so a volume written by this package stays compatible with any
// reader that expects that exact layout.

type xmlAlgorithm struct {
	Name  string `xml:"name"`
	Major int    `xml:"major"`
	Minor int    `xml:"minor"`
}

type xmlVolumeConfig struct {
	XMLName xml.Name `xml:"encfsConfig"`

	VersionMajor int    `xml:"version>major"`
	VersionMinor int    `xml:"version>minor"`
	Creator      string `xml:"creator"`

	CipherAlg xmlAlgorithm `xml:"cipherAlg"`
	NameAlg   xmlAlgorithm `xml:"nameAlg"`

	KeySize   int `xml:"keySize"`
	BlockSize int `xml:"blockSize"`

	UniqueIV           boolFlag `xml:"uniqueIV"`
	ChainedNameIV      boolFlag `xml:"chainedNameIV"`
	ExternalIVChaining boolFlag `xml:"externalIVChaining"`

	BlockMACBytes     int      `xml:"blockMACBytes"`
	BlockMACRandBytes int      `xml:"blockMACRandBytes"`
	AllowHoles        boolFlag `xml:"allowHoles"`

	EncodedKeySize int    `xml:"encodedKeySize"`
	EncodedKeyData string `xml:"encodedKeyData"`

	SaltLen  int    `xml:"saltLen"`
	SaltData string `xml:"saltData"`

	KDFIterations      int `xml:"kdfIterations"`
	DesiredKDFDuration int `xml:"desiredKDFDuration"`
}

// boolFlag marshals as "0"/"1" the way the reference XML does, rather than
// Go's default "false"/"true".
type boolFlag bool

func (b boolFlag) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	v := "0"
	if b {
		v = "1"
	}
	return e.EncodeElement(v, start)
}

func (b *boolFlag) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	*b = s == "1" || s == "true"
	return nil
}

const (
	contentAlgName = "ssl/aes"
	streamAlgName  = "stream"
	blockAlgName   = "block"
	nullAlgName    = "null"
)

// ParseVolumeConfig decodes the XML sidecar into a VolumeConfig. It rejects
// externalIVChaining and unrecognized algorithm names with UnsupportedError,
// matching the reject-only policy for that legacy flag.
func ParseVolumeConfig(data []byte) (*VolumeConfig, error) {
	var x xmlVolumeConfig
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, newInvalidConfigError("xml", nil, "malformed config XML")
	}

	cfg := &VolumeConfig{
		VersionMajor:       x.VersionMajor,
		VersionMinor:       x.VersionMinor,
		Creator:            x.Creator,
		KeySize:            x.KeySize,
		BlockSize:          x.BlockSize,
		UniqueIV:           bool(x.UniqueIV),
		ChainedNameIV:      bool(x.ChainedNameIV),
		ExternalIVChaining: bool(x.ExternalIVChaining),
		AllowHoles:         bool(x.AllowHoles),
		BlockMACBytes:      x.BlockMACBytes,
		BlockMACRandBytes:  x.BlockMACRandBytes,
		KDFIterations:      x.KDFIterations,
		EncodedKeySize:     x.EncodedKeySize,
	}

	switch x.NameAlg.Name {
	case streamAlgName:
		cfg.FilenameAlgorithm = FilenameStream
	case blockAlgName:
		cfg.FilenameAlgorithm = FilenameBlock
	case nullAlgName:
		cfg.FilenameAlgorithm = FilenameNull
	default:
		return nil, newUnsupportedError("nameAlg", "unrecognized filename algorithm: "+x.NameAlg.Name)
	}

	switch x.CipherAlg.Name {
	case contentAlgName + "-cfb", streamAlgName:
		cfg.ContentAlgorithm = ContentStreamCFB
	case contentAlgName + "-cbc", blockAlgName:
		cfg.ContentAlgorithm = ContentBlockCBC
	default:
		return nil, newUnsupportedError("cipherAlg", "unrecognized content algorithm: "+x.CipherAlg.Name)
	}

	var err error
	if cfg.Salt, err = base64.StdEncoding.DecodeString(x.SaltData); err != nil {
		return nil, newInvalidConfigError("saltData", nil, "malformed base64")
	}
	if cfg.EncodedKeyData, err = base64.StdEncoding.DecodeString(x.EncodedKeyData); err != nil {
		return nil, newInvalidConfigError("encodedKeyData", nil, "malformed base64")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode re-emits the XML sidecar in the fixed tag order above.
func (c *VolumeConfig) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	x := xmlVolumeConfig{
		VersionMajor:       c.VersionMajor,
		VersionMinor:       c.VersionMinor,
		Creator:            c.Creator,
		KeySize:            c.KeySize,
		BlockSize:          c.BlockSize,
		UniqueIV:           boolFlag(c.UniqueIV),
		ChainedNameIV:      boolFlag(c.ChainedNameIV),
		ExternalIVChaining: boolFlag(c.ExternalIVChaining),
		AllowHoles:         boolFlag(c.AllowHoles),
		BlockMACBytes:      c.BlockMACBytes,
		BlockMACRandBytes:  c.BlockMACRandBytes,
		EncodedKeySize:     c.EncodedKeySize,
		EncodedKeyData:     base64.StdEncoding.EncodeToString(c.EncodedKeyData),
		SaltLen:            len(c.Salt),
		SaltData:           base64.StdEncoding.EncodeToString(c.Salt),
		KDFIterations:      c.KDFIterations,
		DesiredKDFDuration: 0,
	}

	switch c.FilenameAlgorithm {
	case FilenameStream:
		x.NameAlg = xmlAlgorithm{Name: streamAlgName, Major: 2, Minor: 0}
	case FilenameBlock:
		x.NameAlg = xmlAlgorithm{Name: blockAlgName, Major: 4, Minor: 0}
	case FilenameNull:
		x.NameAlg = xmlAlgorithm{Name: nullAlgName, Major: 1, Minor: 0}
	}
	switch c.ContentAlgorithm {
	case ContentStreamCFB:
		x.CipherAlg = xmlAlgorithm{Name: contentAlgName + "-cfb", Major: 2, Minor: 0}
	case ContentBlockCBC:
		x.CipherAlg = xmlAlgorithm{Name: contentAlgName + "-cbc", Major: 3, Minor: 0}
	}

	out, err := xml.MarshalIndent(x, "", "\t")
	if err != nil {
		return nil, newInvalidConfigError("xml", nil, "failed to marshal config")
	}
	out = append([]byte(xml.Header), out...)
	out = append(out, '\n')
	return out, nil
}

// configFileName is the sidecar's fixed name at a volume's root. This is an
// interop contract with the reference EncFS format (SPEC_FULL.md §6), not a
// branding choice, so it must match exactly.
const configFileName = ".encfs6.xml"
