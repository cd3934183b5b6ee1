package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/littlejohn-app/littlejohn/internal/config"
)

var authCmd = &cobra.Command{
	Use:   "auth <token>",
	Short: "Store the debrid API token",
	Long:  `Auth saves the debrid API token to the config directory. The ` + config.TokenEnvVar + ` environment variable takes precedence when set.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SaveToken(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Token saved.")
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
