package encfsgo

import (
	"io"
	"os"
	"path"
)

// Volume is the facade component (SPEC_FULL.md §4.C6): it mounts a
// FileProvider, config, and volume key into the object applications use to
// list, read, write, rename, and delete plaintext paths. Grounded on the
// teacher's EncryptFS, which plays the same role over absfs.FileSystem.
type Volume struct {
	provider FileProvider
	config   *VolumeConfig
	key      *VolumeKey
	names    *filenameCodec
	content  *ContentCodec
}

// EncFile describes one entry in a volume's plaintext namespace.
type EncFile struct {
	Path   string // plaintext path
	Size   int64  // plaintext size (files only)
	IsDir  bool
	ModRaw os.FileInfo // underlying provider info, for attributes this facade doesn't model
}

// Open mounts an existing volume: it loads and parses the config sidecar
// from the provider, derives the password KEK, and unwraps the volume key.
func Open(provider FileProvider, opts OpenOptions) (*Volume, error) {
	if provider == nil {
		return nil, ErrNilConfig
	}
	raw, err := readWholeFile(provider, "/"+configFileName)
	if err != nil {
		return nil, err
	}
	config, err := ParseVolumeConfig(raw)
	if err != nil {
		return nil, err
	}
	kek := DerivePasswordKEK(config, opts.Password)
	key, err := UnwrapVolumeKey(config, kek)
	if err != nil {
		return nil, err
	}
	return newVolume(provider, config, key), nil
}

// Create initializes a brand-new volume: generates a fresh key, wraps it
// under the password-derived KEK, and writes the config sidecar.
func Create(provider FileProvider, opts CreateOptions) (*Volume, error) {
	if provider == nil {
		return nil, ErrNilConfig
	}
	if opts.Password == "" {
		return nil, ErrEmptyPassword
	}
	config := opts.Config
	if config == nil {
		config = DefaultVolumeConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	salt, err := GenerateSalt(20)
	if err != nil {
		return nil, err
	}
	config.Salt = salt

	key, err := GenerateVolumeKey(config.KeySize)
	if err != nil {
		return nil, err
	}

	kek := DerivePasswordKEK(config, opts.Password)
	wrapped, err := WrapVolumeKey(config, kek, key)
	if err != nil {
		return nil, err
	}
	config.EncodedKeyData = wrapped
	config.EncodedKeySize = len(wrapped)

	encoded, err := config.Encode()
	if err != nil {
		return nil, err
	}
	if err := writeWholeFile(provider, "/"+configFileName, encoded); err != nil {
		return nil, err
	}

	return newVolume(provider, config, key), nil
}

func newVolume(provider FileProvider, config *VolumeConfig, key *VolumeKey) *Volume {
	return &Volume{
		provider: provider,
		config:   config,
		key:      key,
		names:    newFilenameCodec(key, config),
		content:  newContentCodec(key, config),
	}
}

// Close zeroes the volume's key material. The Volume must not be used
// afterward.
func (v *Volume) Close() error {
	v.key.Zero()
	return nil
}

func (v *Volume) cipherPath(plainPath string) (string, error) {
	return v.names.EncryptPath(plainPath)
}

// List enumerates the plaintext entries of a directory.
func (v *Volume) List(dir string) ([]EncFile, error) {
	if err := validatePath(dir); err != nil {
		return nil, err
	}
	cipherDir, err := v.cipherPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := v.provider.ListFiles(cipherDir)
	if err != nil {
		return nil, err
	}
	out := make([]EncFile, 0, len(entries))
	for _, info := range entries {
		if dir == "/" && info.Name() == configFileName {
			continue
		}
		plainName, err := v.names.decryptSegment(info.Name(), v.names.chainIVForAncestors(splitPath(dir)))
		if err != nil {
			return nil, err
		}
		childPlain := path.Join(dir, plainName)
		ef := EncFile{Path: childPlain, IsDir: info.IsDir(), ModRaw: info}
		if !info.IsDir() {
			ef.Size = v.content.plainSizeFromCipherSize(info.Size() - int64(v.content.headerSize()))
		}
		out = append(out, ef)
	}
	return out, nil
}

// OpenRead opens a plaintext file for forward-only streaming reads.
func (v *Volume) OpenRead(plainPath string) (io.ReadCloser, error) {
	if err := validatePath(plainPath); err != nil {
		return nil, err
	}
	cipherPath, err := v.cipherPath(plainPath)
	if err != nil {
		return nil, err
	}
	info, err := v.provider.GetFileInfo(cipherPath)
	if err != nil {
		return nil, err
	}
	in, err := v.provider.OpenInputStream(cipherPath)
	if err != nil {
		return nil, err
	}
	reader, err := newContentReader(v.content, plainPath, in, info.Size())
	if err != nil {
		in.Close()
		return nil, err
	}
	return &readCloser{ContentReader: reader, underlying: in}, nil
}

type readCloser struct {
	*ContentReader
	underlying InputStream
}

func (r *readCloser) Close() error {
	return r.underlying.Close()
}

// OpenWrite creates (or truncates) a plaintext file for streaming writes.
// This also fulfills SPEC_FULL.md §4.C6's create_file(path) operation: a
// freshly opened, immediately closed writer creates an empty plaintext
// file, so no separate CreateFile method exists.
//
// An optional plainLength hint (SPEC_FULL.md §4.C6's open_write(path,
// length?)) lets the provider learn the total ciphertext size before any
// bytes are written, for providers that need a length up front. At most one
// value may be passed.
func (v *Volume) OpenWrite(plainPath string, plainLength ...int64) (io.WriteCloser, error) {
	if err := validatePath(plainPath); err != nil {
		return nil, err
	}
	if len(plainLength) > 1 {
		return nil, newInvalidConfigError("plainLength", len(plainLength), "OpenWrite accepts at most one length hint")
	}
	cipherPath, err := v.cipherPath(plainPath)
	if err != nil {
		return nil, err
	}
	cipherLength := int64(-1)
	if len(plainLength) == 1 && plainLength[0] >= 0 {
		cipherLength = int64(v.content.headerSize()) + v.content.cipherSizeFromPlainSize(plainLength[0])
	}
	out, err := v.provider.OpenOutputStream(cipherPath, cipherLength)
	if err != nil {
		return nil, err
	}
	writer, err := newContentWriter(v.content, plainPath, out)
	if err != nil {
		out.Close()
		return nil, err
	}
	return &writeCloser{ContentWriter: writer, underlying: out}, nil
}

type writeCloser struct {
	*ContentWriter
	underlying OutputStream
}

func (w *writeCloser) Close() error {
	if err := w.ContentWriter.Close(); err != nil {
		w.underlying.Close()
		return err
	}
	return w.underlying.Close()
}

// CreateDir creates a plaintext directory.
func (v *Volume) CreateDir(plainPath string) error {
	cipherPath, err := v.cipherPath(plainPath)
	if err != nil {
		return err
	}
	return v.provider.CreateDirectory(cipherPath)
}

// Rename moves a plaintext path to a new plaintext path. File contents are
// not re-encrypted: their IV is file-local, not path-dependent
// (SPEC_FULL.md §4.C6).
func (v *Volume) Rename(oldPath, newPath string) error {
	cipherOld, err := v.cipherPath(oldPath)
	if err != nil {
		return err
	}
	cipherNew, err := v.cipherPath(newPath)
	if err != nil {
		return err
	}
	return v.provider.Rename(cipherOld, cipherNew)
}

// Delete removes a plaintext file or directory.
func (v *Volume) Delete(plainPath string) error {
	cipherPath, err := v.cipherPath(plainPath)
	if err != nil {
		return err
	}
	return v.provider.Delete(cipherPath)
}

// Exists reports whether a plaintext path is present in the volume.
func (v *Volume) Exists(plainPath string) (bool, error) {
	cipherPath, err := v.cipherPath(plainPath)
	if err != nil {
		return false, err
	}
	return v.provider.Exists(cipherPath)
}

func readWholeFile(provider FileProvider, path string) ([]byte, error) {
	in, err := provider.OpenInputStream(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}

func writeWholeFile(provider FileProvider, path string, data []byte) error {
	if err := validateBuffer(data, "data", 0); err != nil {
		return err
	}
	out, err := provider.OpenOutputStream(path, int64(len(data)))
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		return wrapIOError("write", path, err)
	}
	return out.Close()
}
