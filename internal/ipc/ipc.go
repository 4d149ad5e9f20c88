package ipc

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/d4v1d03/akavesdk/internal/eip712"
)

// ErrInvalidAddress means an owner address did not decode to exactly 20 bytes.
var ErrInvalidAddress = errors.New("address must be a 20-byte hex string")

// StorageData is the signed commitment binding one block to a bucket, node,
// nonce and deadline. Field order matches the contract's StorageData schema.
type StorageData struct {
	ChunkCID   []byte
	BlockCID   [32]byte
	ChunkIndex *big.Int
	BlockIndex uint8
	NodeID     [32]byte
	Nonce      *big.Int
	Deadline   *big.Int
	BucketID   [32]byte
}

var storageDataTypes = map[string][]eip712.TypedData{
	"StorageData": {
		{Name: "chunkCID", Type: "bytes"},
		{Name: "blockCID", Type: "bytes32"},
		{Name: "chunkIndex", Type: "uint256"},
		{Name: "blockIndex", Type: "uint8"},
		{Name: "nodeId", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "bucketId", Type: "bytes32"},
	},
}

func (d StorageData) toMessage() map[string]interface{} {
	return map[string]interface{}{
		"chunkCID":   d.ChunkCID,
		"blockCID":   d.BlockCID,
		"chunkIndex": d.ChunkIndex,
		"blockIndex": uint8(d.BlockIndex),
		"nodeId":     d.NodeID,
		"nonce":      d.Nonce,
		"deadline":   d.Deadline,
		"bucketId":   d.BucketID,
	}
}

// GenerateNonce draws a fresh uniformly random 256-bit nonce. Every
// commitment must carry a nonce that is never reused, even across retries of
// the same logical block.
func GenerateNonce() (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}
	return new(big.Int).SetBytes(buf), nil
}

// CalculateBucketID derives the deterministic on-chain bucket identifier:
// keccak256(bucketName || ownerAddress).
func CalculateBucketID(bucketName, address string) ([32]byte, error) {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(addr) != 40 {
		return [32]byte{}, ErrInvalidAddress
	}
	addressBytes, err := hex.DecodeString(addr)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	var id [32]byte
	copy(id[:], crypto.Keccak256([]byte(bucketName), addressBytes))
	return id, nil
}

// CalculateFileID derives the deterministic file identifier:
// keccak256(bucketID || fileName).
func CalculateFileID(bucketID [32]byte, name string) [32]byte {
	var id [32]byte
	copy(id[:], crypto.Keccak256(bucketID[:], []byte(name)))
	return id
}

// SignBlock signs a block commitment for the Storage contract at
// storageAddress on chainID. The signature authorizes exactly one
// (block, node) pairing.
func SignBlock(key *ecdsa.PrivateKey, storageAddress common.Address, chainID *big.Int, data StorageData) ([]byte, error) {
	domain := eip712.Domain{
		Name:              "Storage",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: storageAddress,
	}
	return eip712.Sign(key, domain, "StorageData", storageDataTypes, data.toMessage())
}

// RecoverBlockSigner recovers the address that signed a block commitment.
func RecoverBlockSigner(signature []byte, storageAddress common.Address, chainID *big.Int, data StorageData) (common.Address, error) {
	domain := eip712.Domain{
		Name:              "Storage",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: storageAddress,
	}
	return eip712.RecoverSignerAddress(signature, domain, "StorageData", storageDataTypes, data.toMessage())
}
