package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/d4v1d03/akavesdk/cli/config"
	"github.com/d4v1d03/akavesdk/internal/database"
	"github.com/d4v1d03/akavesdk/internal/ipc"
	"github.com/d4v1d03/akavesdk/sdk"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "akavecli",
	Short: "Client for the Akave decentralized storage network",
	Long: `"akavecli uploads and downloads files on the Akave network: files are
	split into content-addressed blocks, optionally erasure-coded and encrypted,
	and every block is stored on a node under a signed on-chain commitment"`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the config file (default ~/.akavesdk/config.yaml)")
}

func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
		path = defaultPath
	}
	return config.Load(path)
}

// buildSDK wires the chain client, the storage-node client and the SDK from
// the loaded config. The caller closes the returned chain client.
func buildSDK(ctx context.Context, cfg config.Config) (*sdk.SDK, *ipc.Client, error) {
	chain, err := ipc.Dial(ctx, ipc.Config{
		DialURI:                cfg.DialURI,
		PrivateKey:             cfg.PrivateKey,
		StorageContractAddress: cfg.StorageContractAddress,
		AccessContractAddress:  cfg.AccessContractAddress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to the chain: %w", err)
	}

	node, err := sdk.NewNodeClient(cfg.NodeAddress, cfg.SocksProxy)
	if err != nil {
		chain.Close()
		return nil, nil, err
	}

	opts := []sdk.Option{sdk.WithMaxConcurrency(cfg.MaxConcurrency)}

	chunkSize, err := cfg.MaxChunkSizeBytes()
	if err != nil {
		chain.Close()
		return nil, nil, err
	}
	blocksInChunk := int(chunkSize / sdk.BlockSize)
	if blocksInChunk < 1 {
		blocksInChunk = 1
	}
	if blocksInChunk > sdk.BlocksInChunkLimit {
		log.Printf("[CLI] - maxChunkSize caps at %d blocks, using %d", sdk.BlocksInChunkLimit, sdk.BlocksInChunkLimit)
		blocksInChunk = sdk.BlocksInChunkLimit
	}
	opts = append(opts, sdk.WithMaxBlocksInChunk(blocksInChunk))

	if cfg.DataBlocks > 0 && cfg.ParityBlocks > 0 {
		opts = append(opts, sdk.WithErasureCoding(cfg.DataBlocks, cfg.ParityBlocks))
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		chain.Close()
		return nil, nil, err
	}
	if key != nil {
		opts = append(opts, sdk.WithEncryptionKey(key))
	}

	client, err := sdk.New(chain, node, opts...)
	if err != nil {
		chain.Close()
		return nil, nil, err
	}
	return client, chain, nil
}

func openDatabase(cfg config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Printf("[CLI] - Error opening manifest database: %v", err)
		return nil, err
	}
	return db, nil
}
