package sdk

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// ErasureCode wraps a Reed-Solomon codec configured for dataBlocks data
// shards and parityBlocks parity shards. Any dataBlocks of the
// dataBlocks+parityBlocks shards recover the original payload.
type ErasureCode struct {
	DataBlocks   int
	ParityBlocks int
	enc          reedsolomon.Encoder
}

// NewErasureCode constructs a codec. Both shard counts must be positive.
func NewErasureCode(dataBlocks, parityBlocks int) (*ErasureCode, error) {
	if dataBlocks <= 0 || parityBlocks <= 0 {
		return nil, fmt.Errorf("invalid erasure configuration: %d data, %d parity", dataBlocks, parityBlocks)
	}
	enc, err := reedsolomon.New(dataBlocks, parityBlocks)
	if err != nil {
		return nil, fmt.Errorf("failed to create erasure encoder: %v", err)
	}
	return &ErasureCode{
		DataBlocks:   dataBlocks,
		ParityBlocks: parityBlocks,
		enc:          enc,
	}, nil
}

// Encode splits data into equal-sized data shards, zero-padding the last,
// and appends parity shards. The returned slice holds
// DataBlocks+ParityBlocks shards of identical length.
func (ec *ErasureCode) Encode(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: nothing to encode", ErrEmptyInput)
	}
	shards, err := ec.enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("failed to split data: %v", err)
	}
	if err := ec.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("failed to encode parity: %v", err)
	}
	return shards, nil
}

// Verify reports whether the parity shards are consistent with the data
// shards.
func (ec *ErasureCode) Verify(shards [][]byte) (bool, error) {
	ok, err := ec.enc.Verify(shards)
	if err != nil {
		return false, fmt.Errorf("failed to verify shards: %v", err)
	}
	return ok, nil
}

// Reconstruct fills in missing (nil) shards in place. With more erasures
// than parity shards the set is undecodable: missing shards are zero-filled
// to the surviving shard length so a best-effort payload can still be
// extracted, and ErrErasureUndecodable is returned.
func (ec *ErasureCode) Reconstruct(shards [][]byte) error {
	if len(shards) != ec.DataBlocks+ec.ParityBlocks {
		return fmt.Errorf("expected %d shards, got %d", ec.DataBlocks+ec.ParityBlocks, len(shards))
	}
	err := ec.enc.Reconstruct(shards)
	if err == nil {
		return nil
	}
	if !errors.Is(err, reedsolomon.ErrTooFewShards) {
		return fmt.Errorf("failed to reconstruct shards: %v", err)
	}

	shardSize := 0
	for _, shard := range shards {
		if len(shard) > 0 {
			shardSize = len(shard)
			break
		}
	}
	if shardSize == 0 {
		return fmt.Errorf("%w: no shards survived", ErrErasureUndecodable)
	}
	for i, shard := range shards {
		if len(shard) == 0 {
			shards[i] = make([]byte, shardSize)
		}
	}
	return ErrErasureUndecodable
}

// ExtractData joins the data shards back into the original payload,
// reconstructing missing shards first and truncating the zero padding to
// originalSize.
func (ec *ErasureCode) ExtractData(shards [][]byte, originalSize int) ([]byte, error) {
	if err := ec.Reconstruct(shards); err != nil && !errors.Is(err, ErrErasureUndecodable) {
		return nil, err
	} else if errors.Is(err, ErrErasureUndecodable) {
		// Undecodable sets still yield their surviving bytes; the caller
		// decides whether a corrupted payload is acceptable.
		return joinShards(shards[:ec.DataBlocks], originalSize), ErrErasureUndecodable
	}
	return joinShards(shards[:ec.DataBlocks], originalSize), nil
}

func joinShards(dataShards [][]byte, originalSize int) []byte {
	joined := make([]byte, 0, originalSize)
	for _, shard := range dataShards {
		joined = append(joined, shard...)
	}
	if originalSize < len(joined) {
		joined = joined[:originalSize]
	}
	return joined
}
