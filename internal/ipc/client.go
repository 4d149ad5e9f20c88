package ipc

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gocache "github.com/patrickmn/go-cache"
)

var (
	// ErrTxFailed means a transaction was mined with a failed status.
	ErrTxFailed = errors.New("transaction failed")
	// ErrTxTimeout means a transaction was not mined before the wait timeout.
	ErrTxTimeout = errors.New("timeout waiting for transaction")
)

const (
	txPollInterval   = 200 * time.Millisecond
	defaultTxTimeout = 2 * time.Minute
	cacheTTL         = 5 * time.Minute
)

// storageABI covers the subset of the Storage contract the upload pipeline
// calls. The contract itself is an external collaborator.
const storageABI = `[
  {"type":"function","name":"createBucket","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"addFileChunk","stateMutability":"nonpayable","inputs":[{"name":"chunkCID","type":"bytes"},{"name":"bucketId","type":"bytes32"},{"name":"fileName","type":"string"},{"name":"encodedChunkSize","type":"uint256"},{"name":"cids","type":"bytes32[]"},{"name":"sizes","type":"uint256[]"},{"name":"chunkIndex","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"commitFile","stateMutability":"nonpayable","inputs":[{"name":"bucketId","type":"bytes32"},{"name":"fileName","type":"string"},{"name":"encodedFileSize","type":"uint256"},{"name":"actualFileSize","type":"uint256"},{"name":"fileCID","type":"bytes"}],"outputs":[]}
]`

// Config holds chain connection settings.
type Config struct {
	DialURI                string
	PrivateKey             string
	StorageContractAddress string
	AccessContractAddress  string
	TxTimeout              time.Duration
}

// DefaultConfig returns a Config with the default transaction timeout.
func DefaultConfig() Config {
	return Config{TxTimeout: defaultTxTimeout}
}

// ContractsAddresses holds the deployed contract addresses.
type ContractsAddresses struct {
	Storage       common.Address
	AccessManager common.Address
}

// ChunkCommit is one chunk's on-chain registration payload.
type ChunkCommit struct {
	BucketID         [32]byte
	FileName         string
	Index            uint64
	ChunkCID         []byte
	BlockCIDs        [][32]byte
	BlockSizes       []uint64
	EncodedChunkSize uint64
}

// Client talks to the chain node: it signs commitments, submits storage
// transactions and tracks their receipts.
type Client struct {
	eth       *ethclient.Client
	key       *ecdsa.PrivateKey
	address   common.Address
	chainID   *big.Int
	abi       abi.ABI
	addresses ContractsAddresses
	txTimeout time.Duration
	cache     *gocache.Cache
}

// Dial connects to the chain node, loads the private key and records the
// chain ID and contract addresses.
func Dial(ctx context.Context, config Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, config.DialURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", config.DialURI, err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %v", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(storageABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage ABI: %v", err)
	}

	timeout := config.TxTimeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}

	client := &Client{
		eth:     eth,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		abi:     parsedABI,
		addresses: ContractsAddresses{
			Storage:       common.HexToAddress(config.StorageContractAddress),
			AccessManager: common.HexToAddress(config.AccessContractAddress),
		},
		txTimeout: timeout,
		cache:     gocache.New(cacheTTL, 2*cacheTTL),
	}
	log.Printf("[IPC] - Connected to %s, chain id %s", config.DialURI, chainID)
	return client, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID reports the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Address reports the account address derived from the configured key.
func (c *Client) Address() common.Address {
	return c.address
}

// StorageAddress reports the Storage contract address.
func (c *Client) StorageAddress() common.Address {
	return c.addresses.Storage
}

// SignBlock signs a block commitment with the client's key for the connected
// chain and Storage contract.
func (c *Client) SignBlock(data StorageData) ([]byte, error) {
	return SignBlock(c.key, c.addresses.Storage, c.chainID, data)
}

// BucketID derives the caller's bucket id for name, caching the result.
func (c *Client) BucketID(name string) ([32]byte, error) {
	if cached, ok := c.cache.Get("bucket/" + name); ok {
		return cached.([32]byte), nil
	}
	id, err := CalculateBucketID(name, c.address.Hex())
	if err != nil {
		return [32]byte{}, err
	}
	c.cache.Set("bucket/"+name, id, gocache.DefaultExpiration)
	return id, nil
}

// CreateBucket registers a bucket on chain and returns the transaction hash.
func (c *Client) CreateBucket(ctx context.Context, name string) (common.Hash, error) {
	return c.transact(ctx, "createBucket", name)
}

// SubmitChunk registers one chunk (its CID and block CIDs) under a file and
// returns the pending transaction hash.
func (c *Client) SubmitChunk(ctx context.Context, commit ChunkCommit) (common.Hash, error) {
	sizes := make([]*big.Int, 0, len(commit.BlockSizes))
	for _, size := range commit.BlockSizes {
		sizes = append(sizes, new(big.Int).SetUint64(size))
	}
	return c.transact(ctx, "addFileChunk",
		commit.ChunkCID,
		commit.BucketID,
		commit.FileName,
		new(big.Int).SetUint64(commit.EncodedChunkSize),
		commit.BlockCIDs,
		sizes,
		new(big.Int).SetUint64(commit.Index),
	)
}

// CommitFile seals a fully uploaded file under its root CID.
func (c *Client) CommitFile(ctx context.Context, bucketID [32]byte, fileName string, encodedFileSize, actualFileSize uint64, rootCID []byte) (common.Hash, error) {
	return c.transact(ctx, "commitFile",
		bucketID,
		fileName,
		new(big.Int).SetUint64(encodedFileSize),
		new(big.Int).SetUint64(actualFileSize),
		rootCID,
	)
}

// WaitForTx polls for the receipt of hash until it is mined, the timeout
// elapses or ctx is cancelled. Mined-but-failed transactions return
// ErrTxFailed.
func (c *Client) WaitForTx(ctx context.Context, hash common.Hash) error {
	if cached, ok := c.cache.Get("receipt/" + hash.Hex()); ok {
		return receiptStatus(cached.(*types.Receipt))
	}

	deadline := time.Now().Add(c.txTimeout)
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			c.cache.Set("receipt/"+hash.Hex(), receipt, gocache.DefaultExpiration)
			return receiptStatus(receipt)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("error checking transaction receipt: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrTxTimeout, hash)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for transaction %s aborted: %w", hash, ctx.Err())
		case <-time.After(txPollInterval):
		}
	}
}

// IsRetryableTxError reports whether a submission failure is a transient
// nonce/pricing race worth retrying with the generic retry primitive.
func IsRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, fragment := range []string{
		"nonce too low",
		"replacement transaction underpriced",
		"transaction underpriced",
		"already known",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s call: %v", method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get account nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	to := c.addresses.Storage
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.address,
		To:       &to,
		GasPrice: gasPrice,
		Data:     input,
	})
	if err != nil {
		return common.Hash{}, ErrorFromRevert(err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, ErrorFromRevert(err)
	}
	return signed.Hash(), nil
}

func receiptStatus(receipt *types.Receipt) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTxFailed, receipt.TxHash)
	}
	return nil
}
