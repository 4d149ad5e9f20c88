package cids

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var (
	// ErrMalformedCID means the provided CID string could not be decoded.
	ErrMalformedCID = errors.New("malformed CID")
	// ErrCIDMismatch means the recomputed CID differs from the provided one.
	ErrCIDMismatch = errors.New("CID mismatch")
	// ErrUnsupportedVersion means the CID version is neither 0 nor 1.
	ErrUnsupportedVersion = errors.New("unsupported CID version")
)

// VerifyRaw decodes a CID string and checks it against data.
func VerifyRaw(providedCID string, data []byte) error {
	c, err := cid.Decode(providedCID)
	if err != nil {
		return fmt.Errorf("%w: failed to decode provided CID: %v", ErrMalformedCID, err)
	}
	return Verify(c, data)
}

// Verify recomputes the CID of data using the hash function, codec and
// version recorded in c and requires exact equality.
func Verify(c cid.Cid, data []byte) error {
	calculated, err := calculateStandardCID(c, data)
	if err != nil {
		return err
	}
	if !calculated.Equals(c) {
		return fmt.Errorf("%w: provided %s, calculated %s", ErrCIDMismatch, c, calculated)
	}
	return nil
}

// ComputeCID builds a CID of data for the given multihash code, codec and
// version. Version 0 CIDs are fixed to the legacy base58btc/dag-pb/sha2-256
// encoding, so mhType and codec are ignored for them.
func ComputeCID(data []byte, mhType uint64, codec uint64, version uint64) (cid.Cid, error) {
	switch version {
	case 0:
		digest, err := mh.Sum(data, mh.SHA2_256, -1)
		if err != nil {
			return cid.Undef, fmt.Errorf("failed to create multihash: %v", err)
		}
		return cid.NewCidV0(digest), nil
	case 1:
		digest, err := mh.Sum(data, mhType, -1)
		if err != nil {
			return cid.Undef, fmt.Errorf("failed to create multihash: %v", err)
		}
		return cid.NewCidV1(codec, digest), nil
	default:
		return cid.Undef, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// FromByteArrayCID wraps a raw digest (a 32-byte value read back from the
// chain) into a CIDv1 dag-pb CID without rehashing it.
func FromByteArrayCID(digest []byte) (cid.Cid, error) {
	encoded, err := mh.Encode(digest, mh.SHA2_256)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to encode multihash: %v", err)
	}
	return cid.NewCidV1(cid.DagProtobuf, mh.Multihash(encoded)), nil
}

func calculateStandardCID(c cid.Cid, data []byte) (cid.Cid, error) {
	prefix := c.Prefix()
	return ComputeCID(data, prefix.MhType, prefix.Codec, prefix.Version)
}
