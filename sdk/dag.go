package sdk

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"

	"github.com/d4v1d03/akavesdk/internal/encryption"
)

// dag-pb wire tags. The node layout is byte-exact: any deviation changes
// chunk and root CIDs and breaks agreement with external verifiers.
const (
	tagNodeData = 0x0a // PBNode.Data, field 1
	tagNodeLink = 0x12 // PBNode.Links, field 2
	tagLinkHash = 0x0a // PBLink.Hash, field 1
	tagLinkSize = 0x18 // PBLink.Tsize, field 3

	unixfsTypeFile = 0x02
)

// ChunkDAG is one chunk's content-addressed form: its CID, the raw payload
// size read from the source, the serialized node size and the ordered blocks.
type ChunkDAG struct {
	CID           cid.Cid
	RawDataSize   uint64
	ProtoNodeSize uint64
	Blocks        []FileBlockUpload
}

// BuildDAG reads a chunk payload, optionally encrypts it as one unit, splits
// it into blocks of blockSize and computes the chunk CID. A single-block
// chunk collapses: its CID is the block CID and no wrapping node exists.
func BuildDAG(ctx context.Context, reader io.Reader, blockSize int64, encryptionKey []byte) (ChunkDAG, error) {
	if err := ctx.Err(); err != nil {
		return ChunkDAG{}, err
	}
	if blockSize <= 0 {
		return ChunkDAG{}, fmt.Errorf("invalid block size %d", blockSize)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return ChunkDAG{}, fmt.Errorf("failed to read chunk data: %w", err)
	}
	if len(data) == 0 {
		return ChunkDAG{}, fmt.Errorf("%w: empty chunk data", ErrEmptyInput)
	}
	rawDataSize := uint64(len(data))

	// Encryption precedes splitting: the whole chunk payload is sealed as
	// one unit, never block by block.
	if len(encryptionKey) > 0 {
		data, err = encryption.Encrypt(encryptionKey, data, []byte("dag_encryption"))
		if err != nil {
			return ChunkDAG{}, fmt.Errorf("failed to encrypt chunk: %w", err)
		}
	}

	blocks := make([]FileBlockUpload, 0, (int64(len(data))+blockSize-1)/blockSize)
	for offset := int64(0); offset < int64(len(data)); offset += blockSize {
		end := offset + blockSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		blockData := data[offset:end]
		blockCID, err := generateBlockCID(blockData)
		if err != nil {
			return ChunkDAG{}, err
		}
		blocks = append(blocks, FileBlockUpload{CID: blockCID.String(), Data: blockData})
	}

	return buildChunkFromBlocks(blocks, rawDataSize)
}

// BuildChunkFromShards assembles a chunk whose blocks are pre-computed
// erasure shards rather than a straight split of the payload.
func BuildChunkFromShards(shards [][]byte, rawDataSize uint64) (ChunkDAG, error) {
	blocks := make([]FileBlockUpload, 0, len(shards))
	for _, shard := range shards {
		blockCID, err := generateBlockCID(shard)
		if err != nil {
			return ChunkDAG{}, err
		}
		blocks = append(blocks, FileBlockUpload{CID: blockCID.String(), Data: shard})
	}
	return buildChunkFromBlocks(blocks, rawDataSize)
}

func buildChunkFromBlocks(blocks []FileBlockUpload, rawDataSize uint64) (ChunkDAG, error) {
	if len(blocks) == 0 {
		return ChunkDAG{}, fmt.Errorf("%w: no blocks created", ErrEmptyInput)
	}

	if len(blocks) == 1 {
		single, err := cid.Decode(blocks[0].CID)
		if err != nil {
			return ChunkDAG{}, fmt.Errorf("%w: %v", ErrEncodingError, err)
		}
		return ChunkDAG{
			CID:           single,
			RawDataSize:   rawDataSize,
			ProtoNodeSize: uint64(len(blocks[0].Data)),
			Blocks:        blocks,
		}, nil
	}

	node, err := createChunkDAGNode(blocks)
	if err != nil {
		return ChunkDAG{}, err
	}
	chunkCID, err := generateDAGPBCID(node)
	if err != nil {
		return ChunkDAG{}, err
	}
	return ChunkDAG{
		CID:           chunkCID,
		RawDataSize:   rawDataSize,
		ProtoNodeSize: uint64(len(node)),
		Blocks:        blocks,
	}, nil
}

// createChunkDAGNode serializes a multi-block chunk as a sequence of
// length-delimited link records, one per block, in block order.
func createChunkDAGNode(blocks []FileBlockUpload) ([]byte, error) {
	var node []byte
	for _, block := range blocks {
		c, err := cid.Decode(block.CID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad block CID %q: %v", ErrEncodingError, block.CID, err)
		}
		node = append(node, encodePBLink(c.Bytes(), uint64(len(block.Data)))...)
	}
	return node, nil
}

type rootLink struct {
	cidBytes      []byte
	rawDataSize   uint64
	protoNodeSize uint64
}

// DAGRoot accumulates chunk links for one file and seals them into the root
// CID. Links are keyed by chunk index, not call order, so the root CID is
// independent of upload scheduling; Build materializes them in ascending
// index order.
type DAGRoot struct {
	links         map[uint64]rootLink
	totalFileSize uint64
}

// NewDAGRoot returns an empty root accumulator.
func NewDAGRoot() *DAGRoot {
	return &DAGRoot{links: make(map[uint64]rootLink)}
}

// AddLink records the chunk at index with its raw payload size and its
// serialized node size. Re-adding an index overwrites the previous link.
func (r *DAGRoot) AddLink(index uint64, chunkCID cid.Cid, rawDataSize, protoNodeSize uint64) {
	if previous, ok := r.links[index]; ok {
		r.totalFileSize -= previous.rawDataSize
	}
	r.links[index] = rootLink{cidBytes: chunkCID.Bytes(), rawDataSize: rawDataSize, protoNodeSize: protoNodeSize}
	r.totalFileSize += rawDataSize
}

// Build computes the root CID. A single-chunk file collapses: the root CID
// is the chunk CID and no wrapping node is created.
func (r *DAGRoot) Build() (cid.Cid, error) {
	if len(r.links) == 0 {
		return cid.Undef, fmt.Errorf("%w: no chunks added", ErrEmptyInput)
	}

	indexes := make([]uint64, 0, len(r.links))
	for index := range r.links {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	if len(indexes) == 1 {
		c, err := cid.Cast(r.links[indexes[0]].cidBytes)
		if err != nil {
			return cid.Undef, fmt.Errorf("%w: %v", ErrEncodingError, err)
		}
		return c, nil
	}

	var node []byte
	for _, index := range indexes {
		link := r.links[index]
		node = append(node, encodePBLink(link.cidBytes, link.protoNodeSize)...)
	}

	unixfs := []byte{0x08, unixfsTypeFile}
	if r.totalFileSize > 0 {
		unixfs = append(unixfs, 0x18)
		unixfs = append(unixfs, varint.ToUvarint(r.totalFileSize)...)
	}
	node = append(node, tagNodeData)
	node = append(node, varint.ToUvarint(uint64(len(unixfs)))...)
	node = append(node, unixfs...)

	return generateDAGPBCID(node)
}

// TotalFileSize reports the aggregate raw size across all linked chunks.
func (r *DAGRoot) TotalFileSize() uint64 {
	return r.totalFileSize
}

// encodePBLink encodes one link record: the child CID bytes and, when
// non-zero, the child's logical size. The empty link name is omitted.
func encodePBLink(cidBytes []byte, size uint64) []byte {
	link := []byte{tagLinkHash}
	link = append(link, varint.ToUvarint(uint64(len(cidBytes)))...)
	link = append(link, cidBytes...)
	if size > 0 {
		link = append(link, tagLinkSize)
		link = append(link, varint.ToUvarint(size)...)
	}

	record := []byte{tagNodeLink}
	record = append(record, varint.ToUvarint(uint64(len(link)))...)
	return append(record, link...)
}

func generateBlockCID(data []byte) (cid.Cid, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}

func generateDAGPBCID(node []byte) (cid.Cid, error) {
	digest, err := mh.Sum(node, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	return cid.NewCidV1(cid.DagProtobuf, digest), nil
}

// ExtractBlockData recovers the payload carried by a downloaded block. Raw
// blocks pass through unchanged; dag-pb blocks have their UnixFS data field
// extracted.
func ExtractBlockData(cidStr string, data []byte) ([]byte, error) {
	c, err := cid.Decode(cidStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	switch c.Prefix().Codec {
	case cid.Raw:
		return data, nil
	case cid.DagProtobuf:
		return extractUnixFSData(data)
	default:
		return nil, fmt.Errorf("%w: unknown CID codec %#x", ErrEncodingError, c.Prefix().Codec)
	}
}

// BlockByCID finds a block in blocks by its CID string.
func BlockByCID(blocks []FileBlockUpload, cidStr string) (FileBlockUpload, bool) {
	for _, block := range blocks {
		if block.CID == cidStr {
			return block, true
		}
	}
	return FileBlockUpload{}, false
}

// extractUnixFSData walks a dag-pb node and returns the data payload of its
// UnixFS Data field (field 1 of the node, field 3 of the UnixFS message).
func extractUnixFSData(node []byte) ([]byte, error) {
	offset := 0
	for offset < len(node) {
		tag := node[offset]
		offset++
		fieldNum := tag >> 3
		wireType := tag & 0x07
		if wireType != 2 {
			return nil, fmt.Errorf("%w: unexpected wire type %d in dag-pb node", ErrEncodingError, wireType)
		}
		length, n, err := readUvarint(node, offset)
		if err != nil {
			return nil, err
		}
		offset += n
		if offset+int(length) > len(node) {
			return nil, fmt.Errorf("%w: truncated dag-pb field", ErrEncodingError)
		}
		field := node[offset : offset+int(length)]
		offset += int(length)

		if fieldNum == 1 {
			return extractFromUnixFS(field)
		}
	}
	return nil, fmt.Errorf("%w: dag-pb node has no data field", ErrEncodingError)
}

func extractFromUnixFS(unixfs []byte) ([]byte, error) {
	offset := 0
	for offset < len(unixfs) {
		tag := unixfs[offset]
		offset++
		fieldNum := tag >> 3
		wireType := tag & 0x07

		switch wireType {
		case 0: // varint field, skip
			_, n, err := readUvarint(unixfs, offset)
			if err != nil {
				return nil, err
			}
			offset += n
		case 2:
			length, n, err := readUvarint(unixfs, offset)
			if err != nil {
				return nil, err
			}
			offset += n
			if offset+int(length) > len(unixfs) {
				return nil, fmt.Errorf("%w: truncated UnixFS field", ErrEncodingError)
			}
			if fieldNum == 3 {
				return unixfs[offset : offset+int(length)], nil
			}
			offset += int(length)
		default:
			return nil, fmt.Errorf("%w: unexpected wire type %d in UnixFS data", ErrEncodingError, wireType)
		}
	}
	return nil, nil
}

func readUvarint(buf []byte, offset int) (uint64, int, error) {
	value, n, err := varint.FromUvarint(buf[offset:])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrEncodingError, err)
	}
	return value, n, nil
}
