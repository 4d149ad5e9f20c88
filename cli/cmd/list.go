package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Command to list locally known uploads",
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

		manifests, err := db.ListManifests()
		if err != nil {
			log.Println("Error listing manifests: ", err)
			return
		}
		if len(manifests) == 0 {
			log.Println("No uploads recorded yet")
			return
		}
		for _, m := range manifests {
			log.Printf("%s/%s  root=%s  size=%d  chunks=%d  uploaded=%s\n",
				m.BucketName, m.FileName, m.RootCID, m.FileSize, len(m.Chunks), m.UploadedAt.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
