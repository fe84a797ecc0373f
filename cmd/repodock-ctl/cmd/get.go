package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/repodock/repodock/internal/api"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Get repository details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := NewClient()
		resp, err := client.Get("/api/v1/repositories/" + name)
		if err != nil {
			return fmt.Errorf("error getting repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data api.Repository `json:"data"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		PrintJSON(apiResp.Data)
		return nil
	},
}

func init() {
	reposCmd.AddCommand(getCmd)
}
