package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/net/proxy"
)

const defaultNodeTimeout = 30 * time.Second

// BlockUploadRequest carries one block and the signed commitment a storage
// node verifies before accepting it.
type BlockUploadRequest struct {
	BlockCID   string        `json:"blockCid"`
	Data       []byte        `json:"data"`
	Permit     hexutil.Bytes `json:"permit"`
	ChunkCID   string        `json:"chunkCid"`
	ChunkIndex uint64        `json:"chunkIndex"`
	BlockIndex uint8         `json:"blockIndex"`
	NodeID     common.Hash   `json:"nodeId"`
	Nonce      *big.Int      `json:"nonce"`
	Deadline   *big.Int      `json:"deadline"`
	BucketID   common.Hash   `json:"bucketId"`
}

// NodeInfoResponse is a storage node's identity record.
type NodeInfoResponse struct {
	NodeID        common.Hash `json:"nodeId"`
	PublicAddress string      `json:"publicAddress"`
}

// NodeClient talks to one storage node over HTTP, optionally through a
// SOCKS5 proxy.
type NodeClient struct {
	address string
	http    *http.Client
}

// NewNodeClient creates a client for the node at address (host:port).
// A non-empty socksAddr routes all traffic through that SOCKS5 proxy.
func NewNodeClient(address, socksAddr string) (*NodeClient, error) {
	httpClient := &http.Client{Timeout: defaultNodeTimeout}
	if socksAddr != "" {
		proxyURL, err := url.Parse("socks5://" + socksAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address: %v", err)
		}
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy dialer: %v", err)
		}
		httpClient.Transport = &http.Transport{Dial: dialer.Dial}
	}
	return &NodeClient{address: address, http: httpClient}, nil
}

// Address returns the node's host:port.
func (c *NodeClient) Address() string {
	return c.address
}

// PutBlock sends a block and its signed commitment to the node.
func (c *NodeClient) PutBlock(ctx context.Context, upload BlockUploadRequest) error {
	body, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("failed to marshal block upload: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/block", c.address), bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("block upload failed with status %d: %s", resp.StatusCode, string(msg))
	}
	log.Printf("[NodeClient] - Uploaded block %s to %s", upload.BlockCID, c.address)
	return nil
}

// GetBlock fetches the raw bytes of a block by CID.
func (c *NodeClient) GetBlock(ctx context.Context, blockCID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/block?cid=%s", c.address, url.QueryEscape(blockCID)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("block download failed with status %d: %s", resp.StatusCode, string(msg))
	}
	return io.ReadAll(resp.Body)
}

// NodeInfo fetches the node's 32-byte identity and public address.
func (c *NodeClient) NodeInfo(ctx context.Context) ([32]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/info", c.address), nil)
	if err != nil {
		return [32]byte{}, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return [32]byte{}, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		msg, _ := io.ReadAll(resp.Body)
		return [32]byte{}, "", fmt.Errorf("node info failed with status %d: %s", resp.StatusCode, string(msg))
	}
	var info NodeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return [32]byte{}, "", fmt.Errorf("failed to decode node info: %v", err)
	}
	return [32]byte(info.NodeID), info.PublicAddress, nil
}

// RangeDownload fetches length bytes starting at offset from rawURL.
// Servers answering 200 instead of 206 are accepted; the caller gets
// whatever the body holds.
func (c *NodeClient) RangeDownload(ctx context.Context, rawURL string, offset, length int64) ([]byte, error) {
	if length <= 0 || offset < 0 {
		return nil, fmt.Errorf("length must be positive and offset must be non-negative")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(msg))
	}
	return io.ReadAll(resp.Body)
}
