package encfsgo

import "fmt"

// Input validation helpers for defensive programming.

// validateBuffer checks that a buffer is non-nil and at least minSize bytes.
func validateBuffer(buf []byte, name string, minSize int) error {
	if buf == nil {
		return newInvalidConfigError(name, nil, "buffer cannot be nil")
	}
	if minSize > 0 && len(buf) < minSize {
		return newInvalidConfigError(name, len(buf), fmt.Sprintf("buffer too small: got %d bytes, need at least %d", len(buf), minSize))
	}
	return nil
}

// validateOffset checks that a file offset is non-negative.
func validateOffset(offset int64, name string) error {
	if offset < 0 {
		return newInvalidConfigError(name, offset, "offset cannot be negative")
	}
	return nil
}

// validateSize checks that a size parameter falls within [minSize, maxSize]
// (maxSize <= 0 means unbounded).
func validateSize(size int, name string, minSize, maxSize int) error {
	if size < 0 {
		return newInvalidConfigError(name, size, "size cannot be negative")
	}
	if minSize >= 0 && size < minSize {
		return newInvalidConfigError(name, size, fmt.Sprintf("size too small: got %d, minimum is %d", size, minSize))
	}
	if maxSize > 0 && size > maxSize {
		return newInvalidConfigError(name, size, fmt.Sprintf("size too large: got %d, maximum is %d", size, maxSize))
	}
	return nil
}

// validateKeySize checks that a key has exactly the expected byte length.
func validateKeySize(key []byte, expectedSize int) error {
	if key == nil {
		return newInvalidConfigError("key", nil, "key cannot be nil")
	}
	if len(key) != expectedSize {
		return newInvalidConfigError("key", len(key), fmt.Sprintf("invalid key size: got %d bytes, expected %d", len(key), expectedSize))
	}
	return nil
}

// validateBlockIndex checks that a block index is within a file's bounds.
func validateBlockIndex(index, maxIndex uint64, context string) error {
	if index > maxIndex {
		return newInvalidConfigError("block_index", index, fmt.Sprintf("%s: block index %d exceeds maximum %d", context, index, maxIndex))
	}
	return nil
}

// validatePath checks that a virtual path is non-empty.
func validatePath(path string) error {
	if path == "" {
		return newInvalidConfigError("path", nil, "path cannot be empty")
	}
	return nil
}

// validateReadWrite checks common preconditions for read/write operations.
func validateReadWrite(buf []byte, position int64) error {
	if buf == nil {
		return ErrNilBuffer
	}
	if position < 0 {
		return ErrNegativeOffset
	}
	return nil
}
