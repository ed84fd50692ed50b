package encfsgo

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func newTestContentCodec(t *testing.T, mutate func(*VolumeConfig)) *ContentCodec {
	t.Helper()
	cfg := DefaultVolumeConfig()
	cfg.BlockSize = 64
	if mutate != nil {
		mutate(cfg)
	}
	vk, err := GenerateVolumeKey(cfg.KeySize)
	if err != nil {
		t.Fatalf("GenerateVolumeKey: %v", err)
	}
	return newContentCodec(vk, cfg)
}

// memBuffer implements io.ReadWriteSeeker over an in-memory byte slice, used
// to drive the content reader/writer pair the way an in-memory file would.
type memBuffer struct {
	data []byte
	pos  int64
}

func (m *memBuffer) Write(p []byte) (int, error) {
	m.data = append(m.data[:m.pos], p...)
	m.pos += int64(len(p))
	return len(p), nil
}

func (m *memBuffer) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func writeAndReadBack(t *testing.T, cc *ContentCodec, name string, plain []byte) []byte {
	t.Helper()
	buf := &memBuffer{}
	w, err := newContentWriter(cc, name, buf)
	if err != nil {
		t.Fatalf("newContentWriter: %v", err)
	}
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf.pos = 0
	r, err := newContentReader(cc, name, buf, int64(len(buf.data)))
	if err != nil {
		t.Fatalf("newContentReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return got
}

func TestContentCodecRoundTripSizes(t *testing.T) {
	for _, alg := range []ContentAlgorithm{ContentStreamCFB, ContentBlockCBC} {
		t.Run(alg.String(), func(t *testing.T) {
			cc := newTestContentCodec(t, func(c *VolumeConfig) { c.ContentAlgorithm = alg })

			for _, size := range []int{0, 1, 10, 63, 64, 65, 128, 200} {
				plain := make([]byte, size)
				rand.Read(plain)
				got := writeAndReadBack(t, cc, "/file.txt", plain)
				if !bytes.Equal(got, plain) {
					t.Errorf("size %d: round-trip failed (got %d bytes, want %d)", size, len(got), len(plain))
				}
			}
		})
	}
}

func TestContentCodecWithBlockMAC(t *testing.T) {
	cc := newTestContentCodec(t, func(c *VolumeConfig) {
		c.BlockMACBytes = 8
		c.BlockMACRandBytes = 4
	})
	plain := bytes.Repeat([]byte("x"), 200)
	got := writeAndReadBack(t, cc, "/mac.txt", plain)
	if !bytes.Equal(got, plain) {
		t.Fatal("round-trip with block MAC failed")
	}
}

func TestContentCodecTamperDetection(t *testing.T) {
	cc := newTestContentCodec(t, func(c *VolumeConfig) {
		c.BlockMACBytes = 8
	})
	buf := &memBuffer{}
	w, err := newContentWriter(cc, "/tamper.txt", buf)
	if err != nil {
		t.Fatalf("newContentWriter: %v", err)
	}
	plain := bytes.Repeat([]byte("y"), 100)
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Flip the file's last byte, inside the second (final, short) block's
	// ciphertext.
	buf.data[len(buf.data)-1] ^= 0xFF

	buf.pos = 0
	r, err := newContentReader(cc, "/tamper.txt", buf, int64(len(buf.data)))
	if err != nil {
		t.Fatalf("newContentReader: %v", err)
	}
	_, err = io.ReadAll(r)
	if err == nil {
		t.Fatal("expected an error reading tampered content")
	}
	if !IsChecksumMismatchError(err) {
		t.Fatalf("expected ChecksumMismatchError, got %T: %v", err, err)
	}
}

func TestContentCodecHolePreservation(t *testing.T) {
	cc := newTestContentCodec(t, func(c *VolumeConfig) {
		c.AllowHoles = true
	})
	plain := make([]byte, 64*3)
	// Middle block all zero, first and last blocks non-zero.
	copy(plain[0:64], bytes.Repeat([]byte{0x11}, 64))
	copy(plain[128:192], bytes.Repeat([]byte{0x22}, 64))

	got := writeAndReadBack(t, cc, "/sparse.bin", plain)
	if !bytes.Equal(got, plain) {
		t.Fatal("hole preservation round-trip failed")
	}
}

func TestContentCodecRandomAccessRead(t *testing.T) {
	cc := newTestContentCodec(t, nil)
	plain := make([]byte, 64*5+10)
	rand.Read(plain)

	buf := &memBuffer{}
	w, err := newContentWriter(cc, "/random.bin", buf)
	if err != nil {
		t.Fatalf("newContentWriter: %v", err)
	}
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf.pos = 0
	ra, err := NewRandomAccessReader(cc, "/random.bin", buf, int64(len(buf.data)))
	if err != nil {
		t.Fatalf("NewRandomAccessReader: %v", err)
	}

	offsets := []int64{0, 10, 63, 64, 65, 200, int64(len(plain) - 5)}
	for _, off := range offsets {
		want := plain[off:]
		if len(want) > 16 {
			want = want[:16]
		}
		got := make([]byte, len(want))
		n, err := ra.ReadAt(got, off)
		if err != nil && err != io.EOF {
			t.Fatalf("ReadAt(off=%d): %v", off, err)
		}
		if !bytes.Equal(got[:n], want) {
			t.Errorf("ReadAt(off=%d): got %x, want %x", off, got[:n], want)
		}
	}

	// Re-reading the same block should hit the cache and still agree.
	got := make([]byte, 16)
	if _, err := ra.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt cached: %v", err)
	}
	if !bytes.Equal(got, plain[:16]) {
		t.Fatal("cached read disagreed with freshly decoded data")
	}
}

func TestCipherSizePlainSizeInverses(t *testing.T) {
	cc := newTestContentCodec(t, func(c *VolumeConfig) {
		c.BlockMACBytes = 8
		c.BlockMACRandBytes = 4
	})
	for _, size := range []int64{0, 1, 63, 64, 65, 1000} {
		cipherSize := cc.cipherSizeFromPlainSize(size)
		back := cc.plainSizeFromCipherSize(cipherSize)
		if back != size {
			t.Errorf("size %d: cipherSizeFromPlainSize/plainSizeFromCipherSize not inverse (got %d)", size, back)
		}
	}
}

func TestRunBlockJobsSequentialAndParallelAgree(t *testing.T) {
	cc := newTestContentCodec(t, nil)
	fileIVBase, err := generateFileIVBase()
	if err != nil {
		t.Fatalf("generateFileIVBase: %v", err)
	}

	jobs := make([]blockJob, 10)
	for i := range jobs {
		plain := make([]byte, 64)
		rand.Read(plain)
		jobs[i] = blockJob{index: uint64(i), plain: plain}
	}

	sequentialCfg := ParallelConfig{Enabled: false}
	parallelCfg := DefaultParallelConfig()

	jobsA := append([]blockJob(nil), jobs...)
	jobsB := append([]blockJob(nil), jobs...)

	if err := cc.EncryptBlocksBulk(fileIVBase, jobsA, sequentialCfg); err != nil {
		t.Fatalf("EncryptBlocksBulk sequential: %v", err)
	}
	if err := cc.EncryptBlocksBulk(fileIVBase, jobsB, parallelCfg); err != nil {
		t.Fatalf("EncryptBlocksBulk parallel: %v", err)
	}
	for i := range jobsA {
		if !bytes.Equal(jobsA[i].onDisk, jobsB[i].onDisk) {
			t.Fatalf("block %d: sequential and parallel encoding disagree", i)
		}
	}
}
