package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		client := NewClient()
		resp, err := client.Delete("/api/v1/repositories/" + name)
		if err != nil {
			return fmt.Errorf("error deleting repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository deleted successfully.")
		return nil
	},
}

func init() {
	reposCmd.AddCommand(deleteCmd)
}
