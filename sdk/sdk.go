package sdk

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/d4v1d03/akavesdk/internal/cids"
	"github.com/d4v1d03/akavesdk/internal/encryption"
	"github.com/d4v1d03/akavesdk/internal/ipc"
	"github.com/d4v1d03/akavesdk/internal/retry"
)

const (
	defaultMaxConcurrency = 8
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
	defaultPermitDuration = time.Hour
)

// Chain is the on-chain settlement boundary: it derives identifiers, signs
// block commitments, submits storage transactions and tracks receipts.
type Chain interface {
	Address() common.Address
	BucketID(name string) ([32]byte, error)
	SignBlock(data ipc.StorageData) ([]byte, error)
	CreateBucket(ctx context.Context, name string) (common.Hash, error)
	SubmitChunk(ctx context.Context, commit ipc.ChunkCommit) (common.Hash, error)
	CommitFile(ctx context.Context, bucketID [32]byte, fileName string, encodedFileSize, actualFileSize uint64, rootCID []byte) (common.Hash, error)
	WaitForTx(ctx context.Context, hash common.Hash) error
}

// BlockStore is the storage-node boundary blocks are pushed to and pulled
// from.
type BlockStore interface {
	PutBlock(ctx context.Context, upload BlockUploadRequest) error
	GetBlock(ctx context.Context, blockCID string) ([]byte, error)
	NodeInfo(ctx context.Context) ([32]byte, string, error)
}

// SDK drives the content-addressing, chunking and signed-commitment
// pipeline against a chain and a storage node.
type SDK struct {
	chain Chain
	store BlockStore

	encryptionKey    []byte
	erasure          *ErasureCode
	dataBlocks       int
	parityBlocks     int
	maxConcurrency   int
	maxBlocksInChunk int
	retries          retry.WithRetry
	permitDuration   time.Duration
}

// Option adjusts SDK behavior.
type Option func(*SDK)

// WithEncryptionKey enables client-side encryption. Every chunk is sealed
// under a key derived from key, the bucket, the file and the chunk index.
func WithEncryptionKey(key []byte) Option {
	return func(s *SDK) { s.encryptionKey = key }
}

// WithErasureCoding shards every chunk into dataBlocks+parityBlocks erasure
// shards instead of a plain block split.
func WithErasureCoding(dataBlocks, parityBlocks int) Option {
	return func(s *SDK) {
		s.dataBlocks = dataBlocks
		s.parityBlocks = parityBlocks
	}
}

// WithMaxConcurrency bounds how many chunks upload in parallel.
func WithMaxConcurrency(n int) Option {
	return func(s *SDK) { s.maxConcurrency = n }
}

// WithMaxBlocksInChunk overrides how many blocks one chunk carries.
func WithMaxBlocksInChunk(n int) Option {
	return func(s *SDK) { s.maxBlocksInChunk = n }
}

// WithoutRetry disables retries: every chain and node call runs exactly once.
func WithoutRetry() Option {
	return func(s *SDK) { s.retries.MaxAttempts = 0 }
}

// New wires an SDK against its chain and storage-node collaborators.
func New(chain Chain, store BlockStore, opts ...Option) (*SDK, error) {
	s := &SDK{
		chain:            chain,
		store:            store,
		maxConcurrency:   defaultMaxConcurrency,
		maxBlocksInChunk: MaxBlocksInChunk,
		retries:          retry.New(defaultRetryAttempts, defaultRetryBaseDelay),
		permitDuration:   defaultPermitDuration,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.maxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", s.maxConcurrency)
	}
	if s.maxBlocksInChunk <= 0 {
		return nil, fmt.Errorf("max blocks in chunk must be positive, got %d", s.maxBlocksInChunk)
	}
	if s.maxBlocksInChunk > BlocksInChunkLimit {
		return nil, fmt.Errorf("max blocks in chunk %d exceeds the block index limit %d", s.maxBlocksInChunk, BlocksInChunkLimit)
	}
	if s.dataBlocks != 0 || s.parityBlocks != 0 {
		if s.dataBlocks+s.parityBlocks > s.maxBlocksInChunk {
			return nil, fmt.Errorf("erasure shards (%d+%d) exceed max blocks in chunk (%d)",
				s.dataBlocks, s.parityBlocks, s.maxBlocksInChunk)
		}
		ec, err := NewErasureCode(s.dataBlocks, s.parityBlocks)
		if err != nil {
			return nil, err
		}
		s.erasure = ec
	}
	return s, nil
}

// CreateBucket registers a bucket on chain and waits for the transaction to
// confirm. The returned id is the deterministic bucket identifier.
func (s *SDK) CreateBucket(ctx context.Context, name string) ([32]byte, error) {
	if err := validateBucketName(name); err != nil {
		return [32]byte{}, err
	}
	tx, err := s.chain.CreateBucket(ctx, name)
	if err != nil {
		return [32]byte{}, err
	}
	if err := s.chain.WaitForTx(ctx, tx); err != nil {
		return [32]byte{}, err
	}
	log.Printf("[SDK] - Bucket %s created", name)
	return s.chain.BucketID(name)
}

// DownloadChunk fetches every block of chunk, verifies each against its CID,
// undoes erasure coding and decrypts, returning the original chunk payload.
func (s *SDK) DownloadChunk(ctx context.Context, bucketName, fileName string, chunk Chunk) ([]byte, error) {
	chunkKey, err := s.chunkKey(bucketName, fileName, chunk.Index)
	if err != nil {
		return nil, err
	}

	encodedSize := chunk.RawDataSize
	if chunkKey != nil {
		encodedSize += EncryptionOverhead
	}

	var payload []byte
	if s.erasure != nil {
		shards := make([][]byte, len(chunk.Blocks))
		available := 0
		for i, block := range chunk.Blocks {
			data, err := s.fetchBlock(ctx, block.CID)
			if err != nil {
				log.Printf("[SDK] - Block %s unavailable: %v", block.CID, err)
				continue
			}
			shards[i] = data
			available++
		}
		if available == 0 {
			return nil, fmt.Errorf("%w: no blocks of chunk %d available", ErrErasureUndecodable, chunk.Index)
		}
		payload, err = s.erasure.ExtractData(shards, int(encodedSize))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunk.Index, err)
		}
	} else {
		for _, block := range chunk.Blocks {
			data, err := s.fetchBlock(ctx, block.CID)
			if err != nil {
				return nil, err
			}
			payload = append(payload, data...)
		}
	}

	if chunkKey != nil {
		payload, err = encryption.Decrypt(chunkKey, payload, []byte("dag_encryption"))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt chunk %d: %v", chunk.Index, err)
		}
	}
	return payload, nil
}

// Download reassembles a file from its chunks in index order and writes it
// to w.
func (s *SDK) Download(ctx context.Context, bucketName, fileName string, chunks []Chunk, w io.Writer) error {
	ordered := make([]Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for _, chunk := range ordered {
		payload, err := s.DownloadChunk(ctx, bucketName, fileName, chunk)
		if err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("failed to write chunk %d: %v", chunk.Index, err)
		}
	}
	return nil
}

func (s *SDK) fetchBlock(ctx context.Context, blockCID string) ([]byte, error) {
	var data []byte
	err := s.retries.DoCtx(ctx, func() (bool, error) {
		fetched, err := s.store.GetBlock(ctx, blockCID)
		if err != nil {
			return true, err
		}
		data = fetched
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if err := cids.VerifyRaw(blockCID, data); err != nil {
		return nil, err
	}
	return data, nil
}

// chunkKey derives the per-chunk encryption key, or nil when encryption is
// off.
func (s *SDK) chunkKey(bucketName, fileName string, index uint64) ([]byte, error) {
	if len(s.encryptionKey) == 0 {
		return nil, nil
	}
	fileKey, err := encryption.DeriveKey(s.encryptionKey, []byte(bucketName+"/"+fileName))
	if err != nil {
		return nil, err
	}
	return encryption.DeriveKey(fileKey, []byte(fmt.Sprintf("chunk/%d", index)))
}
