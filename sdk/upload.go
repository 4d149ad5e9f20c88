package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/d4v1d03/akavesdk/internal/encryption"
	"github.com/d4v1d03/akavesdk/internal/ipc"
)

// Upload streams reader into the network: the payload is cut into chunks,
// each chunk is erasure-coded/encrypted per configuration, registered on
// chain, and its blocks are pushed to the storage node under signed
// commitments. Once every chunk confirms, the root CID is sealed and the
// file committed on chain.
func (s *SDK) Upload(ctx context.Context, bucketName, fileName string, reader io.Reader) (FileUpload, error) {
	if err := validateBucketName(bucketName); err != nil {
		return FileUpload{}, err
	}
	bucketID, err := s.chain.BucketID(bucketName)
	if err != nil {
		return FileUpload{}, err
	}
	nodeID, nodeAddress, err := s.store.NodeInfo(ctx)
	if err != nil {
		return FileUpload{}, fmt.Errorf("failed to get node info: %w", err)
	}

	streamID := uuid.New()
	state := NewUploadState()
	log.Printf("[Upload] - Starting upload of %s/%s (stream %s)", bucketName, fileName, streamID)

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	sem := make(chan struct{}, s.maxConcurrency)
	chunkPayloadSize := s.chunkPayloadSize()
	buf := make([]byte, chunkPayloadSize)
	var fileSize uint64

	for index := uint64(0); ; index++ {
		n, err := io.ReadFull(reader, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil {
			fail(fmt.Errorf("failed to read file data: %w", err))
			break
		}
		fileSize += uint64(n)

		data := make([]byte, n)
		copy(data, buf[:n])

		sem <- struct{}{}
		wg.Add(1)
		go func(index uint64, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			if uploadCtx.Err() != nil {
				return
			}
			if err := s.uploadChunk(uploadCtx, state, bucketName, bucketID, fileName, nodeID, nodeAddress, index, data); err != nil {
				fail(fmt.Errorf("chunk %d: %w", index, err))
			}
		}(index, data)

		if n < chunkPayloadSize {
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return FileUpload{}, firstErr
	}
	if fileSize < MinFileSize {
		return FileUpload{}, fmt.Errorf("file too small: %d bytes, minimum is %d", fileSize, MinFileSize)
	}

	rootCID, err := state.SealRoot()
	if err != nil {
		return FileUpload{}, err
	}

	tx, err := s.chain.CommitFile(ctx, bucketID, fileName, state.EncodedSize(), fileSize, rootCID.Bytes())
	if err != nil {
		return FileUpload{}, err
	}
	if err := s.chain.WaitForTx(ctx, tx); err != nil {
		return FileUpload{}, err
	}
	log.Printf("[Upload] - Committed %s/%s, root %s, %d chunks, %d bytes",
		bucketName, fileName, rootCID, state.ChunkCount(), fileSize)

	return FileUpload{
		StreamID:     streamID,
		BucketName:   bucketName,
		FileName:     fileName,
		RootCID:      rootCID.String(),
		FileSize:     fileSize,
		DataBlocks:   s.dataBlocks,
		ParityBlocks: s.parityBlocks,
		Chunks:       state.Chunks(),
	}, nil
}

func (s *SDK) chunkPayloadSize() int {
	if s.erasure != nil {
		return s.dataBlocks * BlockSize
	}
	size := s.maxBlocksInChunk * BlockSize
	if len(s.encryptionKey) > 0 {
		// The sealed payload grows by the AEAD overhead; shrink the read so
		// the block count stays within the chunk budget.
		size -= EncryptionOverhead
	}
	return size
}

// uploadChunk runs one chunk through the pipeline: build its DAG, register
// it on chain, push every block with a signed commitment, then wait for the
// chain confirmation.
func (s *SDK) uploadChunk(ctx context.Context, state *UploadState, bucketName string, bucketID [32]byte, fileName string, nodeID [32]byte, nodeAddress string, index uint64, data []byte) error {
	chunkKey, err := s.chunkKey(bucketName, fileName, index)
	if err != nil {
		return err
	}

	dag, err := s.buildChunk(ctx, index, data, chunkKey)
	if err != nil {
		return err
	}
	for i := range dag.Blocks {
		dag.Blocks[i].NodeID = nodeID
		dag.Blocks[i].NodeAddress = nodeAddress
	}

	blockCIDs := make([][32]byte, 0, len(dag.Blocks))
	blockSizes := make([]uint64, 0, len(dag.Blocks))
	for _, block := range dag.Blocks {
		digest, err := blockDigest(block.CID)
		if err != nil {
			return err
		}
		blockCIDs = append(blockCIDs, digest)
		blockSizes = append(blockSizes, uint64(len(block.Data)))
	}

	var tx common.Hash
	err = s.retries.DoCtx(ctx, func() (bool, error) {
		hash, err := s.chain.SubmitChunk(ctx, ipc.ChunkCommit{
			BucketID:         bucketID,
			FileName:         fileName,
			Index:            index,
			ChunkCID:         dag.CID.Bytes(),
			BlockCIDs:        blockCIDs,
			BlockSizes:       blockSizes,
			EncodedChunkSize: dag.ProtoNodeSize,
		})
		if err != nil {
			return ipc.IsRetryableTxError(err), err
		}
		tx = hash
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("failed to submit chunk: %w", err)
	}

	chunk := Chunk{
		Index:         index,
		CID:           dag.CID.String(),
		RawDataSize:   dag.RawDataSize,
		ProtoNodeSize: dag.ProtoNodeSize,
		Blocks:        dag.Blocks,
	}
	if err := state.PreCreateChunk(chunk, tx); err != nil {
		return err
	}

	for i := range dag.Blocks {
		if err := s.uploadBlock(ctx, dag, bucketID, nodeID, index, uint8(i), blockCIDs[i]); err != nil {
			return err
		}
	}

	if err := s.chain.WaitForTx(ctx, tx); err != nil {
		return err
	}
	state.ChunkConfirmed(index)
	log.Printf("[Upload] - Chunk %d (%s) confirmed", index, dag.CID)
	return nil
}

// uploadBlock pushes one block under a signed commitment. Every attempt,
// including retries, signs with a fresh nonce so a commitment is never
// replayed.
func (s *SDK) uploadBlock(ctx context.Context, dag ChunkDAG, bucketID, nodeID [32]byte, chunkIndex uint64, blockIndex uint8, blockCID [32]byte) error {
	block := &dag.Blocks[blockIndex]
	return s.retries.DoCtx(ctx, func() (bool, error) {
		nonce, err := ipc.GenerateNonce()
		if err != nil {
			return false, err
		}
		deadline := big.NewInt(time.Now().Add(s.permitDuration).Unix())

		permit, err := s.chain.SignBlock(ipc.StorageData{
			ChunkCID:   dag.CID.Bytes(),
			BlockCID:   blockCID,
			ChunkIndex: new(big.Int).SetUint64(chunkIndex),
			BlockIndex: blockIndex,
			NodeID:     nodeID,
			Nonce:      nonce,
			Deadline:   deadline,
			BucketID:   bucketID,
		})
		if err != nil {
			return false, fmt.Errorf("failed to sign block commitment: %w", err)
		}
		block.Permit = permit

		err = s.store.PutBlock(ctx, BlockUploadRequest{
			BlockCID:   block.CID,
			Data:       block.Data,
			Permit:     permit,
			ChunkCID:   dag.CID.String(),
			ChunkIndex: chunkIndex,
			BlockIndex: blockIndex,
			NodeID:     common.Hash(nodeID),
			Nonce:      nonce,
			Deadline:   deadline,
			BucketID:   common.Hash(bucketID),
		})
		if err != nil {
			return true, err
		}
		return false, nil
	})
}

// buildChunk turns one chunk payload into its content-addressed form,
// applying encryption and erasure coding per configuration.
func (s *SDK) buildChunk(ctx context.Context, index uint64, data []byte, chunkKey []byte) (ChunkDAG, error) {
	if s.erasure == nil {
		return BuildDAG(ctx, bytes.NewReader(data), BlockSize, chunkKey)
	}

	payload := data
	if chunkKey != nil {
		encrypted, err := encryption.Encrypt(chunkKey, data, []byte("dag_encryption"))
		if err != nil {
			return ChunkDAG{}, fmt.Errorf("failed to encrypt chunk: %v", err)
		}
		payload = encrypted
	}
	shards, err := s.erasure.Encode(payload)
	if err != nil {
		return ChunkDAG{}, err
	}
	return BuildChunkFromShards(shards, uint64(len(data)))
}

// blockDigest extracts the 32-byte hash digest a block CID carries, the form
// the contract stores block identifiers in.
func blockDigest(blockCID string) ([32]byte, error) {
	c, err := cid.Decode(blockCID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	if len(decoded.Digest) != 32 {
		return [32]byte{}, fmt.Errorf("%w: block digest is %d bytes, want 32", ErrEncodingError, len(decoded.Digest))
	}
	var out [32]byte
	copy(out[:], decoded.Digest)
	return out, nil
}
