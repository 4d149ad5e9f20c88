package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"
)

// Config holds every setting the CLI needs: chain connection, storage node,
// pipeline tuning and the local manifest database.
type Config struct {
	DialURI                string
	PrivateKey             string
	StorageContractAddress string
	AccessContractAddress  string
	NodeAddress            string
	SocksProxy             string
	MaxChunkSize           string
	DataBlocks             int
	ParityBlocks           int
	MaxConcurrency         int
	EncryptionKey          string
	DatabasePath           string
}

// DefaultPath returns ~/.akavesdk/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".akavesdk", "config.yaml"), nil
}

// Load reads the config file at path, falling back to defaults for unset
// keys. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("dialUri", "http://localhost:8545")
	v.SetDefault("nodeAddress", "localhost:5500")
	v.SetDefault("maxChunkSize", "32MB")
	v.SetDefault("dataBlocks", 0)
	v.SetDefault("parityBlocks", 0)
	v.SetDefault("maxConcurrency", 8)

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	v.SetDefault("databasePath", filepath.Join(home, ".akavesdk", "manifests.db"))

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config %s: %v", path, err)
		}
	}

	cfg := Config{
		DialURI:                v.GetString("dialUri"),
		PrivateKey:             v.GetString("privateKey"),
		StorageContractAddress: v.GetString("storageContractAddress"),
		AccessContractAddress:  v.GetString("accessContractAddress"),
		NodeAddress:            v.GetString("nodeAddress"),
		SocksProxy:             v.GetString("socksProxy"),
		MaxChunkSize:           v.GetString("maxChunkSize"),
		DataBlocks:             v.GetInt("dataBlocks"),
		ParityBlocks:           v.GetInt("parityBlocks"),
		MaxConcurrency:         v.GetInt("maxConcurrency"),
		EncryptionKey:          v.GetString("encryptionKey"),
		DatabasePath:           v.GetString("databasePath"),
	}
	return cfg, nil
}

// MaxChunkSizeBytes parses the human-readable chunk size ("32MB", "512KB").
func (c Config) MaxChunkSizeBytes() (uint64, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(strings.TrimSpace(c.MaxChunkSize))); err != nil {
		return 0, fmt.Errorf("invalid maxChunkSize %q: %v", c.MaxChunkSize, err)
	}
	if size.Bytes() == 0 {
		return 0, fmt.Errorf("maxChunkSize must be positive")
	}
	return size.Bytes(), nil
}

// EncryptionKeyBytes decodes the hex encryption key, or nil when unset.
func (c Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimPrefix(c.EncryptionKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %v", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
