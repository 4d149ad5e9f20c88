package sdk

import (
	"errors"
	"fmt"

	"github.com/d4v1d03/akavesdk/internal/encryption"
)

const (
	// BlockSize is the fixed payload size blocks are split to; the final
	// block of a chunk may be shorter.
	BlockSize = 1 << 20
	// MaxBlocksInChunk bounds how many blocks one chunk carries, so a chunk
	// payload is at most MaxBlocksInChunk*BlockSize before encoding.
	MaxBlocksInChunk = 32
	// BlocksInChunkLimit is the hard upper bound on blocks per chunk: block
	// indices travel as uint8 in storage commitments.
	BlocksInChunkLimit = 255
	// MinBucketNameLength is the shortest accepted bucket name.
	MinBucketNameLength = 3
	// MinFileSize is the smallest uploadable file.
	MinFileSize = 127
	// EncryptionOverhead is the per-chunk ciphertext expansion when an
	// encryption key is configured.
	EncryptionOverhead = encryption.Overhead
)

var (
	// ErrEmptyInput means a build was attempted over zero bytes, blocks or
	// links.
	ErrEmptyInput = errors.New("empty input")
	// ErrEncodingError means DAG node serialization failed.
	ErrEncodingError = errors.New("encoding error")
	// ErrErasureUndecodable means a shard set has more erasures than the
	// parity budget covers.
	ErrErasureUndecodable = errors.New("erasure data undecodable")
	// ErrInvalidBucketName means the bucket name is shorter than
	// MinBucketNameLength.
	ErrInvalidBucketName = errors.New("invalid bucket name")
)

func validateBucketName(name string) error {
	if len(name) < MinBucketNameLength {
		return fmt.Errorf("%w: %q must be at least %d characters", ErrInvalidBucketName, name, MinBucketNameLength)
	}
	return nil
}
