package sdk

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
)

// ErrStateCommitted means a mutation was attempted after the root was sealed.
var ErrStateCommitted = errors.New("upload state already committed")

// FileBlockUpload is one block destined for a storage node, with the signed
// commitment that authorizes storing it there.
type FileBlockUpload struct {
	CID         string
	Data        []byte
	Permit      []byte
	NodeAddress string
	NodeID      [32]byte
}

// Chunk is a chunk at a known position in its file, ready for submission.
type Chunk struct {
	Index         uint64
	CID           string
	RawDataSize   uint64
	ProtoNodeSize uint64
	Blocks        []FileBlockUpload
}

// IPCFileChunkUpload pairs a chunk with the chain transaction that commits
// it, for retry and confirmation tracking.
type IPCFileChunkUpload struct {
	Chunk Chunk
	Tx    common.Hash
}

// FileUpload describes one upload session.
type FileUpload struct {
	StreamID     uuid.UUID
	BucketName   string
	FileName     string
	RootCID      string
	FileSize     uint64
	DataBlocks   int
	ParityBlocks int
	Chunks       []Chunk
}

// UploadState tracks one file's in-flight chunks until on-chain
// confirmation. Pre-create and confirm run from concurrent upload workers,
// so every mutation is serialized through a single lock.
type UploadState struct {
	mu        sync.Mutex
	root      *DAGRoot
	pending   map[uint64]IPCFileChunkUpload
	chunks    map[uint64]Chunk
	committed bool
	rootCID   cid.Cid

	chunkCount  uint64
	rawSize     uint64
	encodedSize uint64
}

// NewUploadState returns an empty state for a fresh upload.
func NewUploadState() *UploadState {
	return &UploadState{
		root:    NewDAGRoot(),
		pending: make(map[uint64]IPCFileChunkUpload),
		chunks:  make(map[uint64]Chunk),
	}
}

// PreCreateChunk records a submitted chunk: it enters the pending set keyed
// by its index, the running totals grow, and its link joins the DAG root.
// Linking happens here, at submission time, not at confirmation time.
func (s *UploadState) PreCreateChunk(chunk Chunk, tx common.Hash) error {
	chunkCID, err := cid.Decode(chunk.CID)
	if err != nil {
		return fmt.Errorf("%w: bad chunk CID %q: %v", ErrEncodingError, chunk.CID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return ErrStateCommitted
	}

	// Re-recording an index replaces the earlier entry, mirroring how
	// AddLink overwrites the link, so the totals never drift from the root.
	if previous, ok := s.chunks[chunk.Index]; ok {
		s.chunkCount--
		s.rawSize -= previous.RawDataSize
		s.encodedSize -= previous.ProtoNodeSize
	}
	s.pending[chunk.Index] = IPCFileChunkUpload{Chunk: chunk, Tx: tx}
	s.chunks[chunk.Index] = chunk
	s.chunkCount++
	s.rawSize += chunk.RawDataSize
	s.encodedSize += chunk.ProtoNodeSize
	s.root.AddLink(chunk.Index, chunkCID, chunk.RawDataSize, chunk.ProtoNodeSize)
	return nil
}

// ChunkConfirmed removes the chunk at index from the pending set. Confirming
// an already-confirmed or unknown index is a no-op.
func (s *UploadState) ChunkConfirmed(index uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, index)
}

// ListPendingChunks returns a snapshot of chunks still awaiting on-chain
// confirmation.
func (s *UploadState) ListPendingChunks() []IPCFileChunkUpload {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]IPCFileChunkUpload, 0, len(s.pending))
	for _, entry := range s.pending {
		pending = append(pending, entry)
	}
	return pending
}

// SealRoot computes the file's root CID from all linked chunks and marks the
// state committed. Sealing with unconfirmed chunks is an error. Repeated
// calls return the already-sealed CID.
func (s *UploadState) SealRoot() (cid.Cid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return s.rootCID, nil
	}
	if len(s.pending) > 0 {
		return cid.Undef, fmt.Errorf("%d chunks still pending confirmation", len(s.pending))
	}
	rootCID, err := s.root.Build()
	if err != nil {
		return cid.Undef, err
	}
	s.committed = true
	s.rootCID = rootCID
	return rootCID, nil
}

// Chunks returns every pre-created chunk in index order.
func (s *UploadState) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := make([]Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks
}

// ChunkCount reports how many chunks were pre-created.
func (s *UploadState) ChunkCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkCount
}

// RawSize reports the total raw payload bytes across pre-created chunks.
func (s *UploadState) RawSize() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawSize
}

// EncodedSize reports the total serialized bytes across pre-created chunks.
func (s *UploadState) EncodedSize() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodedSize
}
