package encfsgo

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeFilenameRoundTrip(t *testing.T) {
	tests := [][]byte{
		{},
		{0x00},
		[]byte("hello"),
		bytes.Repeat([]byte{0xFF}, 17),
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	for _, data := range tests {
		encoded := encodeFilename(data)
		if strings.ContainsAny(encoded, "/=+") {
			t.Fatalf("encoded filename %q contains a path-hostile character", encoded)
		}
		decoded, err := decodeFilename(encoded)
		if err != nil {
			t.Fatalf("decodeFilename(%q): %v", encoded, err)
		}
		if !bytes.Equal(decoded, data) {
			t.Fatalf("round-trip failed:\ngot:  %x\nwant: %x", decoded, data)
		}
	}
}

func TestDecodeFilenameRejectsGarbage(t *testing.T) {
	if _, err := decodeFilename("not valid base64!!"); err == nil {
		t.Fatal("expected an error for invalid encoded filename")
	} else if !IsCorruptDataError(err) {
		t.Fatalf("expected CorruptDataError, got %T", err)
	}
}
