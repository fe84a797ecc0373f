package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/repodock/repodock/internal/api"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/v1/repositories/")
		if err != nil {
			return fmt.Errorf("error fetching repositories: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data []api.Repository `json:"data"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tBRANCH\tSTATUS\tLAST SYNC\tCOMMIT")
		for _, repo := range apiResp.Data {
			lastSync := "-"
			if !repo.LastSyncTime.IsZero() {
				lastSync = repo.LastSyncTime.Format(time.RFC3339)
			}
			commit := repo.LastSyncCommit
			if len(commit) > 8 {
				commit = commit[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", repo.Name, repo.URL, repo.Branch, repo.LastSyncStatus, lastSync, commit)
		}
		w.Flush()

		return nil
	},
}

func init() {
	reposCmd.AddCommand(listCmd)
}
