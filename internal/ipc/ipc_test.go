package ipc

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func hex32(t *testing.T, s string) [32]byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		t.Fatalf("bad 32-byte hex %q", s)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

func TestGenerateNonce(t *testing.T) {
	a, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	b, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	if a.BitLen() > 256 || b.BitLen() > 256 {
		t.Fatal("nonce exceeds 256 bits")
	}
	if a.Cmp(b) == 0 {
		t.Fatal("two nonces are equal")
	}
}

func TestCalculateFileID(t *testing.T) {
	testCases := []struct {
		bucketID string
		name     string
		expected string
	}{
		{
			bucketID: "c10fad62c0224052065576135ed2ae4d85d34432b4fb40796eadd9a991f064b9",
			name:     "file1",
			expected: "eea1eddf9f4be315e978c6d0d25d1b870ec0162ebf0acf173f47b738ff0cb421",
		},
		{
			bucketID: "f855c5499b442e6b57ea3ec0c260d1e23a74415451ec5a4796560cc9b7d89be0",
			name:     "file2",
			expected: "f8d6d1f6e7ba4f69f00df4e4b53b3e51eb8610f0774f16ea1f02162e0034487b",
		},
		{
			bucketID: "f06eac67910341b595f1ef319ca12713a79f180b96a685430d806701dc42e9aa",
			name:     "file3",
			expected: "3eb92385cd986662e9885c47364fa5b2f154cd6fca8d99f4aed68160064991cb",
		},
	}
	for _, tc := range testCases {
		fileID := CalculateFileID(hex32(t, tc.bucketID), tc.name)
		if got := hex.EncodeToString(fileID[:]); got != tc.expected {
			t.Errorf("file id for %q: got %s, want %s", tc.name, got, tc.expected)
		}
	}
}

func TestCalculateBucketID(t *testing.T) {
	const owner = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testCases := []struct {
		bucketName string
		expected   string
	}{
		{bucketName: "test1", expected: "6e55fae8f155051d092544d6a00cac7cd995e7a66c43e483117ea31c94c70b51"},
		{bucketName: "bucket new", expected: "448e1600b19d65d40ab7f6641ba827db567df906c3e2de19e32b89a0f345ceed"},
		{bucketName: "random name", expected: "7dce79b11e88b8032dc10023b2aa70101ea6c24ce697468357870000965b4694"},
	}
	for _, tc := range testCases {
		bucketID, err := CalculateBucketID(tc.bucketName, owner)
		if err != nil {
			t.Fatalf("CalculateBucketID(%q): %v", tc.bucketName, err)
		}
		if got := hex.EncodeToString(bucketID[:]); got != tc.expected {
			t.Errorf("bucket id for %q: got %s, want %s", tc.bucketName, got, tc.expected)
		}
	}
}

func TestCalculateBucketIDInvalidAddress(t *testing.T) {
	for _, address := range []string{
		"",
		"0x1234",
		"eea1eddf9f4be315e978c6d0d25d1b870ec0162ebf0acf173f47b738ff0cb421", // 32 bytes
		"0xzz9Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	} {
		if _, err := CalculateBucketID("test", address); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("address %q: expected ErrInvalidAddress, got %v", address, err)
		}
	}
}

func TestSignBlockRoundtrip(t *testing.T) {
	key, err := crypto.HexToECDSA("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	storageAddress := common.HexToAddress("0x4e7B1E9c3214C973Ff2fc680A9789E8579a5eD9d")
	chainID := big.NewInt(31337)

	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	data := StorageData{
		ChunkCID:   []byte("chunk cid bytes"),
		BlockCID:   [32]byte{1, 2, 3},
		ChunkIndex: big.NewInt(4),
		BlockIndex: 2,
		NodeID:     [32]byte{9},
		Nonce:      nonce,
		Deadline:   big.NewInt(1759859212),
		BucketID:   [32]byte{7},
	}

	signature, err := SignBlock(key, storageAddress, chainID, data)
	if err != nil {
		t.Fatalf("SignBlock: %v", err)
	}
	if len(signature) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(signature))
	}
	recovered, err := RecoverBlockSigner(signature, storageAddress, chainID, data)
	if err != nil {
		t.Fatalf("RecoverBlockSigner: %v", err)
	}
	if expected := crypto.PubkeyToAddress(key.PublicKey); recovered != expected {
		t.Fatalf("recovered %s, expected %s", recovered, expected)
	}
}
