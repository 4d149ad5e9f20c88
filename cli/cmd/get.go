package cmd

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/d4v1d03/akavesdk/sdk"
)

var (
	getBucket   string
	getFileName string
	getDestDir  string
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Command to download a file from the network",
	Long: `"Command to download a previously uploaded file. The chunk layout is read from the local manifest
	database, every block is fetched from the configured node and verified against its CID, erasure coding
	is undone and the file is reassembled in the destination folder"`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Println("Error loading config: ", err)
			return
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return
		}
		defer db.Close()

		manifest, err := db.GetManifest(getBucket, getFileName)
		if err != nil {
			log.Println("Error loading manifest: ", err)
			return
		}

		client, chain, err := buildSDK(cmd.Context(), cfg)
		if err != nil {
			log.Println("Error creating client: ", err)
			return
		}
		defer chain.Close()

		chunks := make([]sdk.Chunk, 0, len(manifest.Chunks))
		for _, record := range manifest.Chunks {
			chunk := sdk.Chunk{
				Index:         record.Index,
				CID:           record.CID,
				RawDataSize:   record.RawDataSize,
				ProtoNodeSize: record.ProtoNodeSize,
			}
			for _, blockCID := range record.BlockCIDs {
				chunk.Blocks = append(chunk.Blocks, sdk.FileBlockUpload{CID: blockCID})
			}
			chunks = append(chunks, chunk)
		}

		if err := os.MkdirAll(getDestDir, 0755); err != nil {
			log.Println("Error creating destination folder: ", err)
			return
		}
		outPath := filepath.Join(getDestDir, manifest.FileName)
		out, err := os.Create(outPath)
		if err != nil {
			log.Println("Error creating output file: ", err)
			return
		}
		defer out.Close()

		log.Printf("Downloading %s/%s (root %s) ...\n", getBucket, getFileName, manifest.RootCID)
		if err := client.Download(cmd.Context(), getBucket, getFileName, chunks, out); err != nil {
			log.Println("Error downloading file: ", err)
			return
		}
		log.Printf("File %s downloaded and reassembled in %s!\n", getFileName, outPath)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getBucket, "bucket", "b", "", "Bucket the file was uploaded to")
	getCmd.Flags().StringVarP(&getFileName, "file-name", "n", "", "Name the file was stored under")
	getCmd.Flags().StringVarP(&getDestDir, "dest-dir", "d", ".", "Destination folder for the downloaded file")
}
