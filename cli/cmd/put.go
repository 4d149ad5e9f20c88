package cmd

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/d4v1d03/akavesdk/internal/database"
	"github.com/d4v1d03/akavesdk/sdk"
)

var (
	putBucket   string
	putFilePath string
	putFileName string
)

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Command to upload a file to the network",
	Long: `"Command to upload a file to the Akave network, specifying the --bucket argument (the destination bucket)
	and the --file-path argument (the local path of the file). Every chunk is registered on chain and its blocks
	are stored on the configured node under signed commitments"`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Println("Error loading config: ", err)
			return
		}

		file, err := os.Open(putFilePath)
		if err != nil {
			log.Println("Error opening file: ", err)
			return
		}
		defer file.Close()

		fileName := putFileName
		if fileName == "" {
			info, err := file.Stat()
			if err != nil {
				log.Println("Error reading file info: ", err)
				return
			}
			fileName = info.Name()
		}

		client, chain, err := buildSDK(cmd.Context(), cfg)
		if err != nil {
			log.Println("Error creating client: ", err)
			return
		}
		defer chain.Close()

		log.Printf("Uploading %s to bucket %s ...\n", putFilePath, putBucket)
		upload, err := client.Upload(cmd.Context(), putBucket, fileName, file)
		if err != nil {
			log.Println("Error uploading file: ", err)
			return
		}
		log.Printf("File %s uploaded successfully! Root CID: %s\n", fileName, upload.RootCID)

		db, err := openDatabase(cfg)
		if err != nil {
			return
		}
		defer db.Close()

		manifest := database.Manifest{
			StreamID:     upload.StreamID.String(),
			BucketName:   upload.BucketName,
			FileName:     upload.FileName,
			RootCID:      upload.RootCID,
			FileSize:     upload.FileSize,
			DataBlocks:   upload.DataBlocks,
			ParityBlocks: upload.ParityBlocks,
			Encrypted:    cfg.EncryptionKey != "",
			UploadedAt:   time.Now().UTC(),
			Chunks:       chunkRecords(upload.Chunks),
		}
		if err := db.SaveManifest(manifest); err != nil {
			log.Println("Error saving manifest: ", err)
		}
	},
}

func chunkRecords(chunks []sdk.Chunk) []database.ChunkRecord {
	records := make([]database.ChunkRecord, 0, len(chunks))
	for _, chunk := range chunks {
		record := database.ChunkRecord{
			Index:         chunk.Index,
			CID:           chunk.CID,
			RawDataSize:   chunk.RawDataSize,
			ProtoNodeSize: chunk.ProtoNodeSize,
		}
		for _, block := range chunk.Blocks {
			record.BlockCIDs = append(record.BlockCIDs, block.CID)
		}
		records = append(records, record)
	}
	return records
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVarP(&putBucket, "bucket", "b", "", "Destination bucket name")
	putCmd.Flags().StringVarP(&putFilePath, "file-path", "f", "", "Path to the file to upload")
	putCmd.Flags().StringVarP(&putFileName, "file-name", "n", "", "Name to store the file under (defaults to the local file name)")
}
