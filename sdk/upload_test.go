package sdk

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"

	"github.com/d4v1d03/akavesdk/internal/ipc"
	"github.com/d4v1d03/akavesdk/internal/retry"
)

var testStorageAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

type fakeChain struct {
	mu          sync.Mutex
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	chunks      []ipc.ChunkCommit
	committed   bool
	rootCID     []byte
	failSubmits int
	txCounter   uint64
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &fakeChain{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(31337),
	}
}

func (f *fakeChain) Address() common.Address {
	return f.address
}

func (f *fakeChain) BucketID(name string) ([32]byte, error) {
	return ipc.CalculateBucketID(name, f.address.Hex())
}

func (f *fakeChain) SignBlock(data ipc.StorageData) ([]byte, error) {
	return ipc.SignBlock(f.key, testStorageAddress, f.chainID, data)
}

func (f *fakeChain) CreateBucket(ctx context.Context, name string) (common.Hash, error) {
	return f.nextTx(), nil
}

func (f *fakeChain) SubmitChunk(ctx context.Context, commit ipc.ChunkCommit) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmits > 0 {
		f.failSubmits--
		return common.Hash{}, errors.New("nonce too low")
	}
	f.chunks = append(f.chunks, commit)
	f.txCounter++
	return common.BigToHash(new(big.Int).SetUint64(f.txCounter)), nil
}

func (f *fakeChain) CommitFile(ctx context.Context, bucketID [32]byte, fileName string, encodedFileSize, actualFileSize uint64, rootCID []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = true
	f.rootCID = rootCID
	f.txCounter++
	return common.BigToHash(new(big.Int).SetUint64(f.txCounter)), nil
}

func (f *fakeChain) WaitForTx(ctx context.Context, hash common.Hash) error {
	return nil
}

func (f *fakeChain) nextTx() common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCounter++
	return common.BigToHash(new(big.Int).SetUint64(f.txCounter))
}

type fakeStore struct {
	mu      sync.Mutex
	nodeID  [32]byte
	blocks  map[string][]byte
	permits []BlockUploadRequest
	drop    map[string]bool
}

func newFakeStore() *fakeStore {
	store := &fakeStore{
		blocks: make(map[string][]byte),
		drop:   make(map[string]bool),
	}
	copy(store.nodeID[:], []byte("test-node-identity-0123456789abc"))
	return store
}

func (f *fakeStore) PutBlock(ctx context.Context, upload BlockUploadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[upload.BlockCID] = upload.Data
	f.permits = append(f.permits, upload)
	return nil
}

func (f *fakeStore) GetBlock(ctx context.Context, blockCID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drop[blockCID] {
		return nil, fmt.Errorf("block %s gone", blockCID)
	}
	data, ok := f.blocks[blockCID]
	if !ok {
		return nil, fmt.Errorf("block %s not found", blockCID)
	}
	return data, nil
}

func (f *fakeStore) NodeInfo(ctx context.Context) ([32]byte, string, error) {
	return f.nodeID, "node.test:5500", nil
}

func newTestSDK(t *testing.T, chain *fakeChain, store *fakeStore, opts ...Option) *SDK {
	t.Helper()
	s, err := New(chain, store, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.retries = retry.New(2, time.Millisecond)
	return s
}

func randomPayload(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return data
}

// chunksFromCommits rebuilds the chunk list a download would derive from
// chain state, using the recorded submissions and the uploaded blocks.
// rawSizes maps chunk index to the plaintext payload size of that chunk.
func chunksFromCommits(t *testing.T, chain *fakeChain, store *fakeStore, rawSizes map[uint64]uint64) []Chunk {
	t.Helper()
	blockCIDByDigest := make(map[[32]byte]string)
	for _, permit := range store.permits {
		digest, err := blockDigest(permit.BlockCID)
		if err != nil {
			t.Fatalf("blockDigest: %v", err)
		}
		blockCIDByDigest[digest] = permit.BlockCID
	}

	chunks := make([]Chunk, 0, len(chain.chunks))
	for _, commit := range chain.chunks {
		chunk := Chunk{
			Index:         commit.Index,
			RawDataSize:   rawSizes[commit.Index],
			ProtoNodeSize: commit.EncodedChunkSize,
		}
		for _, digest := range commit.BlockCIDs {
			blockCID, ok := blockCIDByDigest[digest]
			if !ok {
				t.Fatalf("no uploaded block for digest %x", digest)
			}
			chunk.Blocks = append(chunk.Blocks, FileBlockUpload{CID: blockCID})
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store, WithMaxBlocksInChunk(4))

	// One full chunk plus a partial tail chunk.
	payload := randomPayload(t, 4*BlockSize+BlockSize/2)
	upload, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if upload.FileSize != uint64(len(payload)) {
		t.Errorf("file size = %d, want %d", upload.FileSize, len(payload))
	}
	if !chain.committed {
		t.Fatal("file was never committed on chain")
	}
	if len(chain.chunks) != 2 {
		t.Fatalf("expected 2 chunk submissions, got %d", len(chain.chunks))
	}

	chunks := chunksFromCommits(t, chain, store, map[uint64]uint64{
		0: 4 * BlockSize,
		1: BlockSize / 2,
	})
	var out bytes.Buffer
	if err := s.Download(context.Background(), "bucket1", "file1", chunks, &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatal("downloaded payload differs from uploaded")
	}
}

func TestUploadEncryptedRoundtrip(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	key := randomPayload(t, 32)
	s := newTestSDK(t, chain, store, WithEncryptionKey(key), WithMaxBlocksInChunk(4))

	payload := randomPayload(t, 2*BlockSize+777)
	if _, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	for _, stored := range store.blocks {
		if len(stored) > 64 && bytes.Contains(payload, stored) {
			t.Fatal("stored block contains plaintext")
		}
	}

	chunks := chunksFromCommits(t, chain, store, map[uint64]uint64{
		0: 2*BlockSize + 777,
	})
	var out bytes.Buffer
	if err := s.Download(context.Background(), "bucket1", "file1", chunks, &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatal("decrypted payload differs from original")
	}
}

func TestUploadErasureSurvivesBlockLoss(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store, WithErasureCoding(4, 2))

	payload := randomPayload(t, 2*BlockSize)
	if _, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(chain.chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chain.chunks))
	}

	chunks := chunksFromCommits(t, chain, store, map[uint64]uint64{
		0: 2 * BlockSize,
	})
	if len(chunks[0].Blocks) != 6 {
		t.Fatalf("expected 6 shards, got %d", len(chunks[0].Blocks))
	}

	// Lose two shards, inside the parity budget.
	store.drop[chunks[0].Blocks[1].CID] = true
	store.drop[chunks[0].Blocks[4].CID] = true

	var out bytes.Buffer
	if err := s.Download(context.Background(), "bucket1", "file1", chunks, &out); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatal("payload not recovered after shard loss")
	}
}

func TestUploadCommitmentsVerify(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store, WithMaxBlocksInChunk(4))

	payload := randomPayload(t, BlockSize+129)
	if _, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	bucketID, err := chain.BucketID("bucket1")
	if err != nil {
		t.Fatalf("BucketID: %v", err)
	}
	seenNonces := make(map[string]bool)
	for _, permit := range store.permits {
		if permit.BucketID != common.Hash(bucketID) {
			t.Errorf("permit carries wrong bucket id %x", permit.BucketID)
		}
		nonce := permit.Nonce.String()
		if seenNonces[nonce] {
			t.Error("nonce reused across commitments")
		}
		seenNonces[nonce] = true

		blockCID, err := blockDigest(permit.BlockCID)
		if err != nil {
			t.Fatalf("blockDigest: %v", err)
		}
		chunkCID, err := cid.Decode(permit.ChunkCID)
		if err != nil {
			t.Fatalf("decode chunk CID: %v", err)
		}
		signer, err := ipc.RecoverBlockSigner(permit.Permit, testStorageAddress, chain.chainID, ipc.StorageData{
			ChunkCID:   chunkCID.Bytes(),
			BlockCID:   blockCID,
			ChunkIndex: new(big.Int).SetUint64(permit.ChunkIndex),
			BlockIndex: permit.BlockIndex,
			NodeID:     [32]byte(permit.NodeID),
			Nonce:      permit.Nonce,
			Deadline:   permit.Deadline,
			BucketID:   [32]byte(permit.BucketID),
		})
		if err != nil {
			t.Fatalf("RecoverBlockSigner: %v", err)
		}
		if signer != chain.address {
			t.Errorf("permit signer = %s, want %s", signer, chain.address)
		}
	}
}

func TestUploadRetriesTransientSubmitFailure(t *testing.T) {
	chain := newFakeChain(t)
	chain.failSubmits = 1
	store := newFakeStore()
	s := newTestSDK(t, chain, store, WithMaxBlocksInChunk(4))

	payload := randomPayload(t, BlockSize)
	if _, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Upload after transient failure: %v", err)
	}
	if len(chain.chunks) != 1 {
		t.Fatalf("expected 1 chunk after retry, got %d", len(chain.chunks))
	}
}

func TestUploadWithoutRetryFailsFast(t *testing.T) {
	chain := newFakeChain(t)
	chain.failSubmits = 1
	store := newFakeStore()
	s := newTestSDK(t, chain, store, WithoutRetry())
	s.retries = retry.New(0, time.Millisecond)

	payload := randomPayload(t, BlockSize)
	if _, err := s.Upload(context.Background(), "bucket1", "file1", bytes.NewReader(payload)); err == nil {
		t.Fatal("expected submit failure to propagate without retry")
	}
	if chain.committed {
		t.Fatal("failed upload must not commit the file")
	}
}

func TestUploadRejectsTooSmallFile(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store)

	if _, err := s.Upload(context.Background(), "bucket1", "file1", strings.NewReader("tiny")); err == nil {
		t.Fatal("file below minimum size must be rejected")
	}
	if chain.committed {
		t.Fatal("too-small file must not be committed")
	}
}

func TestUploadRejectsBadBucketName(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store)

	if _, err := s.Upload(context.Background(), "ab", "file1", strings.NewReader("data")); !errors.Is(err, ErrInvalidBucketName) {
		t.Fatalf("expected ErrInvalidBucketName, got %v", err)
	}
}

func TestCreateBucket(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()
	s := newTestSDK(t, chain, store)

	id, err := s.CreateBucket(context.Background(), "bucket1")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	expected, err := ipc.CalculateBucketID("bucket1", chain.address.Hex())
	if err != nil {
		t.Fatalf("CalculateBucketID: %v", err)
	}
	if id != expected {
		t.Fatalf("bucket id = %x, want %x", id, expected)
	}
	if _, err := s.CreateBucket(context.Background(), "x"); !errors.Is(err, ErrInvalidBucketName) {
		t.Fatalf("expected ErrInvalidBucketName, got %v", err)
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	chain := newFakeChain(t)
	store := newFakeStore()

	if _, err := New(chain, store, WithMaxConcurrency(0)); err == nil {
		t.Fatal("zero concurrency must be rejected")
	}
	if _, err := New(chain, store, WithMaxBlocksInChunk(-1)); err == nil {
		t.Fatal("negative blocks per chunk must be rejected")
	}
	if _, err := New(chain, store, WithErasureCoding(30, 10)); err == nil {
		t.Fatal("erasure shards beyond chunk capacity must be rejected")
	}
	if _, err := New(chain, store, WithErasureCoding(0, 2)); err == nil {
		t.Fatal("zero data shards must be rejected")
	}
	// Block indices travel as uint8 in commitments, so a chunk wider than
	// BlocksInChunkLimit would wrap indices and re-sign the wrong blocks.
	if _, err := New(chain, store, WithMaxBlocksInChunk(BlocksInChunkLimit+2)); err == nil {
		t.Fatal("blocks per chunk beyond the block index limit must be rejected")
	}
	if _, err := New(chain, store, WithMaxBlocksInChunk(BlocksInChunkLimit+2), WithErasureCoding(200, 57)); err == nil {
		t.Fatal("erasure shards beyond the block index limit must be rejected")
	}
	if _, err := New(chain, store, WithMaxBlocksInChunk(BlocksInChunkLimit)); err != nil {
		t.Fatalf("blocks per chunk at the limit must be accepted: %v", err)
	}
}
