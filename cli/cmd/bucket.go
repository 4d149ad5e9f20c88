package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var bucketName string

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Commands to manage buckets",
}

var bucketCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Command to create a bucket on chain",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Println("Error loading config: ", err)
			return
		}
		client, chain, err := buildSDK(cmd.Context(), cfg)
		if err != nil {
			log.Println("Error creating client: ", err)
			return
		}
		defer chain.Close()

		id, err := client.CreateBucket(cmd.Context(), bucketName)
		if err != nil {
			log.Println("Error creating bucket: ", err)
			return
		}
		log.Printf("Bucket %s created! Id: %x\n", bucketName, id)
	},
}

var bucketViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Command to view a bucket's deterministic id",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Println("Error loading config: ", err)
			return
		}
		_, chain, err := buildSDK(cmd.Context(), cfg)
		if err != nil {
			log.Println("Error creating client: ", err)
			return
		}
		defer chain.Close()

		id, err := chain.BucketID(bucketName)
		if err != nil {
			log.Println("Error deriving bucket id: ", err)
			return
		}
		log.Printf("Bucket %s\nOwner: %s\nId: %x\n", bucketName, chain.Address(), id)
	},
}

func init() {
	rootCmd.AddCommand(bucketCmd)
	bucketCmd.AddCommand(bucketCreateCmd)
	bucketCmd.AddCommand(bucketViewCmd)
	bucketCmd.PersistentFlags().StringVarP(&bucketName, "name", "n", "", "Bucket name")
}
