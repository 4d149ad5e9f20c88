package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/corvus-ch/shamir"
	"golang.org/x/crypto/hkdf"
)

// Overhead is the ciphertext expansion of Encrypt: a 12-byte nonce plus the
// 16-byte GCM tag.
const Overhead = 28

const keySize = 32

// DeriveKey derives a 32-byte subkey from parent bound to info via
// HKDF-SHA256. The same (parent, info) pair always yields the same key.
func DeriveKey(parent, info []byte) ([]byte, error) {
	if len(parent) == 0 {
		return nil, errors.New("parent key is required for key derivation")
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, parent, nil, info), key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %v", err)
	}
	return key, nil
}

// Encrypt seals data with AES-256-GCM under a subkey derived from key and
// info. The random nonce is prepended to the ciphertext.
func Encrypt(key, data, info []byte) ([]byte, error) {
	aead, err := newAEAD(key, info)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens data produced by Encrypt with the same key and info.
func Decrypt(key, data, info []byte) ([]byte, error) {
	aead, err := newAEAD(key, info)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	plain, err := aead.Open(nil, data[:aead.NonceSize()], data[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %v", err)
	}
	return plain, nil
}

// SplitKey shards an encryption key into parts shares, any threshold of
// which recombine to the key. Used to escrow a file encryption key across
// storage nodes.
func SplitKey(key []byte, parts, threshold int) (map[byte][]byte, error) {
	shares, err := shamir.Split(key, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split key: %v", err)
	}
	return shares, nil
}

// CombineKey recombines shares produced by SplitKey.
func CombineKey(shares map[byte][]byte) ([]byte, error) {
	key, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine key: %v", err)
	}
	return key, nil
}

func newAEAD(key, info []byte) (cipher.AEAD, error) {
	subkey, err := DeriveKey(key, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	return cipher.NewGCM(block)
}
