package eip712

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSignatureSchemaMismatch means the message does not satisfy the declared
// type schema (unknown field type, missing field, or bad value shape).
var ErrSignatureSchemaMismatch = errors.New("signature schema mismatch")

// Domain separates signatures between applications and chains.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// TypedData is one field of a struct schema. Field order is significant: the
// signer and the verifying contract must declare the exact same order.
type TypedData struct {
	Name string
	Type string
}

var domainSchema = []TypedData{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

// Sign hashes the typed message under the domain and signs the digest with a
// recoverable secp256k1 signature. The result is 65 bytes: r, s, and a
// recovery byte of 27 or 28.
func Sign(key *ecdsa.PrivateKey, domain Domain, primaryType string, types map[string][]TypedData, message map[string]interface{}) ([]byte, error) {
	digest, err := hashTypedData(domain, primaryType, types, message)
	if err != nil {
		return nil, err
	}
	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %v", err)
	}
	signature[64] += 27
	return signature, nil
}

// RecoverSignerAddress rebuilds the digest and recovers the address that
// produced signature. Mismatched inputs recover a different address, never an
// error: the equality check is the caller's responsibility.
func RecoverSignerAddress(signature []byte, domain Domain, primaryType string, types map[string][]TypedData, message map[string]interface{}) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("%w: signature must be 65 bytes, got %d", ErrSignatureSchemaMismatch, len(signature))
	}
	digest, err := hashTypedData(domain, primaryType, types, message)
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// hashTypedData computes keccak256(0x1901 || domainSeparator || structHash).
func hashTypedData(domain Domain, primaryType string, types map[string][]TypedData, message map[string]interface{}) ([]byte, error) {
	structHash, err := hashStruct(primaryType, types[primaryType], message)
	if err != nil {
		return nil, err
	}
	domainSeparator, err := hashStruct("EIP712Domain", domainSchema, map[string]interface{}{
		"name":              domain.Name,
		"version":           domain.Version,
		"chainId":           domain.ChainID,
		"verifyingContract": domain.VerifyingContract,
	})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, structHash), nil
}

func hashStruct(name string, schema []TypedData, message map[string]interface{}) ([]byte, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: no schema for type %q", ErrSignatureSchemaMismatch, name)
	}
	encoded := [][]byte{typeHash(name, schema)}
	for _, field := range schema {
		value, ok := message[field.Name]
		if !ok {
			return nil, fmt.Errorf("%w: message is missing field %q", ErrSignatureSchemaMismatch, field.Name)
		}
		enc, err := encodeValue(field, value)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, enc)
	}
	return crypto.Keccak256(encoded...), nil
}

// typeHash hashes the type signature string, e.g.
// "StorageData(bytes chunkCID,bytes32 blockCID,...)".
func typeHash(name string, schema []TypedData) []byte {
	parts := make([]string, 0, len(schema))
	for _, field := range schema {
		parts = append(parts, field.Type+" "+field.Name)
	}
	return crypto.Keccak256([]byte(name + "(" + strings.Join(parts, ",") + ")"))
}

// encodeValue packs one field value into its 32-byte EIP-712 representation.
func encodeValue(field TypedData, value interface{}) ([]byte, error) {
	switch field.Type {
	case "bytes":
		b, ok := value.([]byte)
		if !ok {
			return nil, schemaErr(field, value)
		}
		return crypto.Keccak256(b), nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, schemaErr(field, value)
		}
		return crypto.Keccak256([]byte(s)), nil
	case "bytes32":
		switch v := value.(type) {
		case [32]byte:
			return v[:], nil
		case common.Hash:
			return v.Bytes(), nil
		case []byte:
			if len(v) != 32 {
				return nil, schemaErr(field, value)
			}
			return v, nil
		default:
			return nil, schemaErr(field, value)
		}
	case "uint8", "uint64", "uint256":
		n, err := toBig(value)
		if err != nil {
			return nil, schemaErr(field, value)
		}
		if n.Sign() < 0 || n.BitLen() > 256 {
			return nil, schemaErr(field, value)
		}
		return common.LeftPadBytes(n.Bytes(), 32), nil
	case "address":
		switch v := value.(type) {
		case common.Address:
			return common.LeftPadBytes(v.Bytes(), 32), nil
		case string:
			if !common.IsHexAddress(v) {
				return nil, schemaErr(field, value)
			}
			return common.LeftPadBytes(common.HexToAddress(v).Bytes(), 32), nil
		default:
			return nil, schemaErr(field, value)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported field type %q", ErrSignatureSchemaMismatch, field.Type)
	}
}

func toBig(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, errors.New("nil big.Int")
		}
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, errors.New("not an integer")
	}
}

func schemaErr(field TypedData, value interface{}) error {
	return fmt.Errorf("%w: field %q declared %s, got %T", ErrSignatureSchemaMismatch, field.Name, field.Type, value)
}
