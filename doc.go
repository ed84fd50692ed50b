// Package encfsgo implements an EncFS-compatible encrypted volume: a
// directory tree whose file names and contents are transparently encrypted
// on a backing FileProvider, with an XML sidecar config carrying the cipher
// suite and a password-wrapped volume key.
//
// # Overview
//
// encfsgo does not implement a kernel mount. It is an in-process API: open
// or create a Volume over a FileProvider (the local disk via
// NewAbsFSProvider, or any other github.com/absfs/absfs.FileSystem, such as
// github.com/absfs/memfs for tests), then list, read, and write plaintext
// paths while the library handles path translation and block encryption.
//
// # Cipher Suites
//
// File contents use either of two EncFS content algorithms:
//   - Stream (AES-CFB with EncFS's shuffle/flip pre- and post-processing)
//   - Block (AES-CBC, with a file's final short block always falling back
//     to the stream codec)
//
// Filenames use one of three algorithms (stream, block, or null/plaintext),
// each threading an 8-byte chain IV down the directory path so the same
// plaintext name encrypts differently in different directories.
//
// # Basic Usage
//
//	base, err := memfs.NewFS() // or any absfs.FileSystem
//	if err != nil {
//	    panic(err)
//	}
//	provider := encfsgo.NewAbsFSProvider(base, "/")
//
//	vol, err := encfsgo.Create(provider, encfsgo.CreateOptions{
//	    Password: "my-secure-password",
//	})
//	if err != nil {
//	    panic(err)
//	}
//	defer vol.Close()
//
//	w, _ := vol.OpenWrite("/secret.txt")
//	w.Write([]byte("This will be encrypted on disk"))
//	w.Close()
//
// # Security Considerations
//
// Protected against:
//   - Unauthorized access to encrypted files and names at rest
//   - Data tampering when blockMACBytes > 0 (checksum-mismatch errors)
//   - Offline brute-force attacks on the password (PBKDF2 iteration count)
//
// Not protected against:
//   - Memory dumps while files are decrypted in memory
//   - Metadata leakage (directory structure, file sizes, modification times)
//   - A wrong iteration count chosen at volume creation (not renegotiated)
//
// # Key Derivation
//
// The volume key is wrapped under a PBKDF2-HMAC-SHA1-derived
// key-encrypting-key. This is the one KDF EncFS's wire format is pinned to;
// see DESIGN.md for why a memory-hard KDF (Argon2id) was not wired in here.
//
// # File Format
//
// An encrypted file on disk is:
//
//	[optional 8-byte encrypted IV-seed header][block0][block1]...[blockN]
//
// where each block is [MAC (0-8 bytes)][random salt (0-8 bytes)][ciphertext].
// See SPEC_FULL.md §3 and §4.C5 for the full layout and hole-preservation
// rules, and DESIGN.md for which teacher/example files each piece is
// grounded on.
package encfsgo
