package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

// ErrManifestNotFound means no manifest is stored for the requested file.
var ErrManifestNotFound = errors.New("manifest not found")

const manifestBucket = "manifests"

// Manifest is the local record of one committed upload, enough to download
// the file again without re-deriving anything.
type Manifest struct {
	StreamID     string        `json:"streamId"`
	BucketName   string        `json:"bucketName"`
	FileName     string        `json:"fileName"`
	RootCID      string        `json:"rootCid"`
	FileSize     uint64        `json:"fileSize"`
	DataBlocks   int           `json:"dataBlocks"`
	ParityBlocks int           `json:"parityBlocks"`
	Encrypted    bool          `json:"encrypted"`
	UploadedAt   time.Time     `json:"uploadedAt"`
	Chunks       []ChunkRecord `json:"chunks"`
}

// ChunkRecord is one chunk's manifest entry.
type ChunkRecord struct {
	Index         uint64   `json:"index"`
	CID           string   `json:"cid"`
	RawDataSize   uint64   `json:"rawDataSize"`
	ProtoNodeSize uint64   `json:"protoNodeSize"`
	BlockCIDs     []string `json:"blockCids"`
}

// DB is a bolt-backed manifest store.
type DB struct {
	bolt *bolt.DB
}

// Open opens (or creates) the manifest database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(manifestBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[Database] - BoltDB opened in '%s'", path)
	return &DB{bolt: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// SaveManifest stores a manifest under its bucket/file key, overwriting any
// previous record for the same file.
func (d *DB) SaveManifest(m Manifest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %v", err)
	}
	return d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(manifestBucket))
		if err := b.Put([]byte(manifestKey(m.BucketName, m.FileName)), payload); err != nil {
			return err
		}
		log.Printf("[Database] - Saved manifest for %s/%s (root %s)", m.BucketName, m.FileName, m.RootCID)
		return nil
	})
}

// GetManifest loads the manifest for bucketName/fileName.
func (d *DB) GetManifest(bucketName, fileName string) (Manifest, error) {
	var m Manifest
	err := d.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(manifestBucket))
		v := b.Get([]byte(manifestKey(bucketName, fileName)))
		if v == nil {
			return fmt.Errorf("%w: %s/%s", ErrManifestNotFound, bucketName, fileName)
		}
		return json.Unmarshal(v, &m)
	})
	if err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ListManifests returns every stored manifest.
func (d *DB) ListManifests() ([]Manifest, error) {
	var manifests []Manifest
	err := d.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(manifestBucket))
		return b.ForEach(func(k, v []byte) error {
			var m Manifest
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("corrupt manifest under key '%s': %v", string(k), err)
			}
			manifests = append(manifests, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return manifests, nil
}

// DeleteManifest removes the manifest for bucketName/fileName. Deleting an
// absent manifest is not an error.
func (d *DB) DeleteManifest(bucketName, fileName string) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(manifestBucket))
		if err := b.Delete([]byte(manifestKey(bucketName, fileName))); err != nil {
			return err
		}
		log.Printf("[Database] - Deleted manifest for %s/%s", bucketName, fileName)
		return nil
	})
}

func manifestKey(bucketName, fileName string) string {
	return bucketName + "/" + fileName
}
