package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/repodock/repodock/internal/api"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [name]",
	Short: "Force sync a repository",
	Long:  `Trigger an immediate Git sync and restart of dependent containers.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/"+name+"/sync", nil)
		if err != nil {
			return fmt.Errorf("error syncing repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data api.OperationOutcome `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		outcome := apiResp.Data
		fmt.Printf("Sync %s (changed: %v)\n", outcome.SyncStatus, outcome.Changed)
		if outcome.ErrorKind != "" {
			fmt.Printf("Error: %s: %s\n", outcome.ErrorKind, outcome.ErrorDetail)
		}
		for _, restart := range outcome.RestartResults {
			if restart.Success {
				fmt.Printf("Restarted %s\n", restart.ContainerName)
			} else {
				fmt.Printf("Failed to restart %s: %s\n", restart.ContainerName, restart.ErrorDetail)
			}
		}
		return nil
	},
}

func init() {
	reposCmd.AddCommand(syncCmd)
}
