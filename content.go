package encfsgo

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
)

// maxBlockIndex bounds a single file to 2^48 blocks, far beyond any
// realistic file size, as a sanity check against corrupt headers driving an
// unbounded seek.
const maxBlockIndex = 1 << 48

// ContentCodec implements SPEC_FULL.md §4.C5: block-framed file content
// encryption with an optional per-file encrypted IV header, per-block MAC,
// and sparse-hole handling.
type ContentCodec struct {
	ctx        *cipherContext
	algorithm  ContentAlgorithm
	blockSize  int
	macBytes   int
	randBytes  int
	allowHoles bool
	uniqueIV   bool
}

func newContentCodec(vk *VolumeKey, cfg *VolumeConfig) *ContentCodec {
	return &ContentCodec{
		ctx:        newCipherContext(vk.Key),
		algorithm:  cfg.ContentAlgorithm,
		blockSize:  cfg.BlockSize,
		macBytes:   cfg.BlockMACBytes,
		randBytes:  cfg.BlockMACRandBytes,
		allowHoles: cfg.AllowHoles,
		uniqueIV:   cfg.UniqueIV,
	}
}

func (cc *ContentCodec) overhead() int {
	return cc.macBytes + cc.randBytes
}

func (cc *ContentCodec) headerSize() int {
	if cc.uniqueIV {
		return 8
	}
	return 0
}

// headerIVSeed derives the IV seed used to encrypt/decrypt a file's header
// from the file's plaintext name.
func (cc *ContentCodec) headerIVSeed(name string) uint64 {
	mac := cc.ctx.mac64([]byte(name), [8]byte{})
	return binary.BigEndian.Uint64(mac[:8])
}

// encodeHeader produces the encrypted per-file IV-seed header.
func (cc *ContentCodec) encodeHeader(name string, fileIVBase uint64) ([]byte, error) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], fileIVBase)
	return cc.ctx.streamEncrypt(cc.headerIVSeed(name), raw[:])
}

// decodeHeader recovers the per-file IV-seed base from an encrypted header.
func (cc *ContentCodec) decodeHeader(name string, header []byte) (uint64, error) {
	raw, err := cc.ctx.streamDecrypt(cc.headerIVSeed(name), header)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, newCorruptDataError(name, -1, "malformed file header", nil)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// generateFileIVBase produces a fresh random per-file IV-seed base for a
// newly written file when uniqueIV is enabled.
func generateFileIVBase() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, wrapIOError("generate", "file-iv", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// blockMAC computes the stored MAC for a block from its random salt and
// plaintext, truncated to the configured number of MAC bytes.
func (cc *ContentCodec) blockMAC(randSalt, plain []byte) []byte {
	if cc.macBytes == 0 {
		return nil
	}
	buf := make([]byte, 0, len(randSalt)+len(plain))
	buf = append(buf, randSalt...)
	buf = append(buf, plain...)
	full := cc.ctx.mac64(buf, [8]byte{})
	return full[:cc.macBytes]
}

// encodeBlock produces the on-disk bytes for one block: SPEC_FULL.md §4.C5
// layout [mac][rand][cipher]. isLast must be true only for a file's final,
// short (< blockSize) block — per the resolved "last block uses stream
// mode" design note (SPEC_FULL.md §9) — a full-length final block still
// uses the configured content algorithm.
func (cc *ContentCodec) encodeBlock(fileIVBase uint64, blockIdx uint64, plain []byte, isLast bool) ([]byte, error) {
	if cc.allowHoles && allZero(plain) {
		return make([]byte, cc.overhead()+len(plain)), nil
	}

	randSalt := make([]byte, cc.randBytes)
	if cc.randBytes > 0 {
		if _, err := rand.Read(randSalt); err != nil {
			return nil, wrapIOError("generate", "block-rand", err)
		}
	}
	mac := cc.blockMAC(randSalt, plain)

	ivSeed := fileIVBase ^ blockIdx
	var cipherBytes []byte
	var err error
	if isLast || cc.algorithm == ContentStreamCFB {
		cipherBytes, err = cc.ctx.streamEncrypt(ivSeed, plain)
	} else {
		cipherBytes, err = cc.ctx.blockEncryptAligned(ivSeed, plain)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, cc.overhead()+len(cipherBytes))
	out = append(out, mac...)
	out = append(out, randSalt...)
	out = append(out, cipherBytes...)
	return out, nil
}

// decodeBlock inverts encodeBlock, verifying the block MAC when configured.
func (cc *ContentCodec) decodeBlock(path string, fileIVBase uint64, blockIdx uint64, onDisk []byte, isLast bool) ([]byte, error) {
	if err := validateBlockIndex(blockIdx, maxBlockIndex, path); err != nil {
		return nil, err
	}
	if cc.allowHoles && allZero(onDisk) {
		return make([]byte, len(onDisk)-cc.overhead()), nil
	}
	if len(onDisk) < cc.overhead() {
		return nil, newCorruptDataError(path, int64(blockIdx), "block shorter than its header", nil)
	}
	mac := onDisk[:cc.macBytes]
	randSalt := onDisk[cc.macBytes : cc.macBytes+cc.randBytes]
	cipherBytes := onDisk[cc.macBytes+cc.randBytes:]

	ivSeed := fileIVBase ^ blockIdx
	var plain []byte
	var err error
	if isLast || cc.algorithm == ContentStreamCFB {
		plain, err = cc.ctx.streamDecrypt(ivSeed, cipherBytes)
	} else {
		plain, err = cc.ctx.blockDecryptAligned(ivSeed, cipherBytes)
	}
	if err != nil {
		return nil, err
	}

	if cc.macBytes > 0 {
		want := cc.blockMAC(randSalt, plain)
		if !bytes.Equal(want, mac) {
			return nil, newChecksumMismatchError(path, int64(blockIdx), "block MAC mismatch")
		}
	}
	return plain, nil
}

// blockBounds returns the plaintext byte range [start,end) of block index
// idx within a file of total plaintext size plainSize. isLast is true only
// when the block is short (end-start < blockSize): a file whose size is an
// exact multiple of blockSize has no short final block, and its last block
// uses the codec's configured algorithm like every other full block.
func (cc *ContentCodec) blockBounds(idx uint64, plainSize int64) (start, end int64, isLast bool) {
	start = int64(idx) * int64(cc.blockSize)
	end = start + int64(cc.blockSize)
	if end >= plainSize {
		end = plainSize
	}
	isLast = end-start < int64(cc.blockSize)
	return start, end, isLast
}

func numBlocksForPlainSize(p int64, blockSize int) int64 {
	if p <= 0 {
		return 0
	}
	n := p / int64(blockSize)
	if p%int64(blockSize) != 0 {
		n++
	}
	return n
}

// plainSizeFromCipherSize inverts the on-disk expansion caused by
// per-block MAC/rand overhead (there is no expansion from the ciphers
// themselves: stream mode preserves length and aligned block mode is only
// ever used on already block-size-aligned plaintext).
func (cc *ContentCodec) plainSizeFromCipherSize(cipherSize int64) int64 {
	overhead := int64(cc.overhead())
	if overhead == 0 {
		return cipherSize
	}
	p := cipherSize
	for i := 0; i < 8; i++ {
		n := numBlocksForPlainSize(p, cc.blockSize)
		next := cipherSize - n*overhead
		if next < 0 {
			next = 0
		}
		if next == p {
			break
		}
		p = next
	}
	return p
}

// cipherSizeFromPlainSize computes a new file's total on-disk content size
// (excluding the header), used by providers that need a length up front.
func (cc *ContentCodec) cipherSizeFromPlainSize(plainSize int64) int64 {
	n := numBlocksForPlainSize(plainSize, cc.blockSize)
	return plainSize + n*int64(cc.overhead())
}

// blockEncryptAligned/blockDecryptAligned operate on plaintext that is
// already a multiple of the AES block size (a guarantee the content codec
// maintains for every non-final block, and filenameCodec.padName provides
// for block-mode names), so no PKCS padding is applied here — unlike
// cipherContext.blockEncrypt/blockDecrypt, which pad arbitrary-length input.
func (c *cipherContext) blockEncryptAligned(ivSeed uint64, data []byte) ([]byte, error) {
	if len(data)%aesBlockSize != 0 {
		return nil, newCorruptDataError("", -1, "block codec requires aligned input", nil)
	}
	return c.cbcCryptAligned(ivSeed, data, true)
}

func (c *cipherContext) blockDecryptAligned(ivSeed uint64, data []byte) ([]byte, error) {
	if len(data)%aesBlockSize != 0 {
		return nil, newCorruptDataError("", -1, "block codec requires aligned input", nil)
	}
	return c.cbcCryptAligned(ivSeed, data, false)
}

// ContentReader exposes forward-only streaming reads over an encrypted
// file, per SPEC_FULL.md §4.C5's streaming-read note.
type ContentReader struct {
	codec      *ContentCodec
	stream     io.Reader
	name       string
	fileIVBase uint64
	plainSize  int64
	pos        int64
	curBlock   []byte
	curIdx     int64
	haveBlock  bool
}

// newContentReader wraps a ciphertext stream (already positioned at the
// start of the header, if any) for streaming plaintext reads.
func newContentReader(codec *ContentCodec, name string, stream io.Reader, cipherContentSize int64) (*ContentReader, error) {
	r := &ContentReader{codec: codec, stream: stream, name: name, curIdx: -1}

	if codec.headerSize() > 0 {
		header := make([]byte, codec.headerSize())
		if _, err := io.ReadFull(stream, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				r.fileIVBase = 0
				r.plainSize = 0
				return r, nil
			}
			return nil, wrapIOError("read", name, err)
		}
		base, err := codec.decodeHeader(name, header)
		if err != nil {
			return nil, err
		}
		r.fileIVBase = base
		cipherContentSize -= int64(codec.headerSize())
	}
	r.plainSize = codec.plainSizeFromCipherSize(cipherContentSize)
	return r, nil
}

func (r *ContentReader) loadBlock(idx int64) error {
	if r.haveBlock && r.curIdx == idx {
		return nil
	}
	start, end, isLast := r.codec.blockBounds(uint64(idx), r.plainSize)
	if start >= end {
		r.curBlock = nil
		r.curIdx = idx
		r.haveBlock = true
		return nil
	}
	onDiskLen := r.codec.overhead() + int(end-start)
	onDisk := make([]byte, onDiskLen)
	if _, err := io.ReadFull(r.stream, onDisk); err != nil {
		return wrapIOError("read", r.name, err)
	}
	plain, err := r.codec.decodeBlock(r.name, r.fileIVBase, uint64(idx), onDisk, isLast)
	if err != nil {
		return err
	}
	r.curBlock = plain
	r.curIdx = idx
	r.haveBlock = true
	return nil
}

// Read implements io.Reader. Reads are serviced block-by-block and do not
// support seeking backwards; open a fresh reader to restart from zero.
func (r *ContentReader) Read(p []byte) (int, error) {
	if r.pos >= r.plainSize {
		return 0, io.EOF
	}
	idx := r.pos / int64(r.codec.blockSize)
	if err := r.loadBlock(idx); err != nil {
		return 0, err
	}
	offsetInBlock := r.pos - idx*int64(r.codec.blockSize)
	if offsetInBlock >= int64(len(r.curBlock)) {
		return 0, io.EOF
	}
	n := copy(p, r.curBlock[offsetInBlock:])
	r.pos += int64(n)
	return n, nil
}

// ContentWriter buffers plaintext into fixed-size blocks and flushes each
// full block to the underlying ciphertext stream as it fills, per
// SPEC_FULL.md §4.C5's streaming-write note.
type ContentWriter struct {
	codec       *ContentCodec
	stream      io.Writer
	name        string
	fileIVBase  uint64
	blockIdx    uint64
	buf         []byte
	headerDone  bool
	totalWritten int64
}

func newContentWriter(codec *ContentCodec, name string, stream io.Writer) (*ContentWriter, error) {
	w := &ContentWriter{codec: codec, stream: stream, name: name}
	if codec.uniqueIV {
		base, err := generateFileIVBase()
		if err != nil {
			return nil, err
		}
		w.fileIVBase = base
	}
	return w, nil
}

func (w *ContentWriter) writeHeader() error {
	if w.headerDone || w.codec.headerSize() == 0 {
		w.headerDone = true
		return nil
	}
	header, err := w.codec.encodeHeader(w.name, w.fileIVBase)
	if err != nil {
		return err
	}
	if _, err := w.stream.Write(header); err != nil {
		return wrapIOError("write", w.name, err)
	}
	w.headerDone = true
	return nil
}

func (w *ContentWriter) flushFullBlock() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	onDisk, err := w.codec.encodeBlock(w.fileIVBase, w.blockIdx, w.buf, false)
	if err != nil {
		return err
	}
	if _, err := w.stream.Write(onDisk); err != nil {
		return wrapIOError("write", w.name, err)
	}
	w.blockIdx++
	w.buf = w.buf[:0]
	return nil
}

// Write implements io.Writer, flushing full blocks as they accumulate.
func (w *ContentWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		need := w.codec.blockSize - len(w.buf)
		n := len(p)
		if n > need {
			n = need
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		written += n
		w.totalWritten += int64(n)
		if len(w.buf) == w.codec.blockSize {
			if err := w.flushFullBlock(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close flushes any buffered partial final block using stream mode.
func (w *ContentWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if len(w.buf) == 0 {
		return nil
	}
	onDisk, err := w.codec.encodeBlock(w.fileIVBase, w.blockIdx, w.buf, true)
	if err != nil {
		return err
	}
	if _, err := w.stream.Write(onDisk); err != nil {
		return wrapIOError("write", w.name, err)
	}
	return nil
}

// blockCache is a small LRU cache of decoded plaintext blocks, grounded on
// the teacher's chunkCache (chunked_file.go), used by RandomAccessReader to
// avoid re-decrypting the same block on repeated random-access reads.
type blockCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64][]byte
	order    []uint64
}

func newBlockCache(capacity int) *blockCache {
	return &blockCache{capacity: capacity, entries: make(map[uint64][]byte)}
}

func (c *blockCache) get(idx uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[idx]
	if !ok {
		return nil, false
	}
	for i, v := range c.order {
		if v == idx {
			copy(c.order[i:], c.order[i+1:])
			c.order[len(c.order)-1] = idx
			break
		}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (c *blockCache) put(idx uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[idx]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, idx)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	c.entries[idx] = stored
}

// RandomAccessReader serves block-indexed random-access reads over an
// encrypted file, as opposed to ContentReader's forward-only stream. It
// requires a seekable underlying ciphertext stream.
type RandomAccessReader struct {
	codec      *ContentCodec
	stream     io.ReadSeeker
	name       string
	fileIVBase uint64
	plainSize  int64
	cache      *blockCache
}

// NewRandomAccessReader opens a random-access reader positioned at the
// start of a ciphertext stream (including any header).
func NewRandomAccessReader(codec *ContentCodec, name string, stream io.ReadSeeker, cipherTotalSize int64) (*RandomAccessReader, error) {
	r := &RandomAccessReader{codec: codec, stream: stream, name: name, cache: newBlockCache(16)}
	contentSize := cipherTotalSize
	if codec.headerSize() > 0 {
		header := make([]byte, codec.headerSize())
		if _, err := io.ReadFull(stream, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return r, nil
			}
			return nil, wrapIOError("read", name, err)
		}
		base, err := codec.decodeHeader(name, header)
		if err != nil {
			return nil, err
		}
		r.fileIVBase = base
		contentSize -= int64(codec.headerSize())
	}
	r.plainSize = codec.plainSizeFromCipherSize(contentSize)
	return r, nil
}

// ReadAt implements io.ReaderAt semantics over the decrypted plaintext.
func (r *RandomAccessReader) ReadAt(p []byte, off int64) (int, error) {
	if err := validateReadWrite(p, off); err != nil {
		return 0, err
	}
	if off >= r.plainSize {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		pos := off + int64(total)
		if pos >= r.plainSize {
			break
		}
		idx := uint64(pos / int64(r.codec.blockSize))
		block, err := r.loadBlock(idx)
		if err != nil {
			return total, err
		}
		offsetInBlock := pos - int64(idx)*int64(r.codec.blockSize)
		if offsetInBlock >= int64(len(block)) {
			break
		}
		n := copy(p[total:], block[offsetInBlock:])
		total += n
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (r *RandomAccessReader) loadBlock(idx uint64) ([]byte, error) {
	if block, ok := r.cache.get(idx); ok {
		return block, nil
	}
	start, end, isLast := r.codec.blockBounds(idx, r.plainSize)
	if start >= end {
		return nil, nil
	}
	onDiskLen := r.codec.overhead() + int(end-start)
	headerOffset := int64(0)
	if r.codec.headerSize() > 0 {
		headerOffset = int64(r.codec.headerSize())
	}
	strideFull := int64(r.codec.overhead() + r.codec.blockSize)
	diskOffset := headerOffset + int64(idx)*strideFull
	if err := validateOffset(diskOffset, "diskOffset"); err != nil {
		return nil, err
	}
	if _, err := r.stream.Seek(diskOffset, io.SeekStart); err != nil {
		return nil, wrapIOError("seek", r.name, err)
	}
	onDisk := make([]byte, onDiskLen)
	if _, err := io.ReadFull(r.stream, onDisk); err != nil {
		return nil, wrapIOError("read", r.name, err)
	}
	plain, err := r.codec.decodeBlock(r.name, r.fileIVBase, idx, onDisk, isLast)
	if err != nil {
		return nil, err
	}
	r.cache.put(idx, plain)
	return plain, nil
}
