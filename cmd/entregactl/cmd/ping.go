package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the logistics service",
	Long:  `Send a ping request to verify the logistics service is running and accessible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, resp, err := serverRequest("GET", "/ping", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if status != http.StatusOK {
			return apiError(status, resp)
		}

		if outputJSON {
			printOutput(resp)
		} else {
			fmt.Printf("Pong! Service is running: %s\n", stringField(resp, "message"))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
