package encfsgo

import "encoding/base64"

// encFSEncoding is the ASCII alphabet EncFS uses for encrypted filenames:
// standard RFC 4648 base-64 with '+' replaced by ',' and '/' replaced by '-',
// so the result never contains a path-hostile '/' or '=' and stays a single
// path component.
var encFSEncoding = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789,-",
).WithPadding(base64.NoPadding)

// encodeFilename base-256-encodes raw bytes into the EncFS filename alphabet.
func encodeFilename(data []byte) string {
	return encFSEncoding.EncodeToString(data)
}

// decodeFilename inverts encodeFilename.
func decodeFilename(s string) ([]byte, error) {
	data, err := encFSEncoding.DecodeString(s)
	if err != nil {
		return nil, newCorruptDataError(s, -1, "invalid filename encoding", err)
	}
	return data, nil
}
