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

var opsLimit int

// opsCmd represents the ops command
var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Show recent operations",
	Long:  `Show the most recent sync/restart operations, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get(fmt.Sprintf("/api/v1/operations?limit=%d", opsLimit))
		if err != nil {
			return fmt.Errorf("error fetching operations: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data []api.OperationOutcome `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STARTED\tREPO\tTRIGGER\tSYNC\tCHANGED\tRESTARTS\tERROR")
		for _, op := range apiResp.Data {
			restarts := fmt.Sprintf("%d", len(op.RestartResults))
			if !op.RestartsSucceeded() {
				failed := 0
				for _, r := range op.RestartResults {
					if !r.Success {
						failed++
					}
				}
				restarts = fmt.Sprintf("%d (%d failed)", len(op.RestartResults), failed)
			}
			errKind := op.ErrorKind
			if errKind == "" {
				errKind = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%s\n",
				op.StartedAt.Format(time.RFC3339), op.RepositoryName, op.Trigger, op.SyncStatus, op.Changed, restarts, errKind)
		}
		w.Flush()

		return nil
	},
}

func init() {
	opsCmd.Flags().IntVar(&opsLimit, "limit", 20, "Maximum number of operations to show")
	rootCmd.AddCommand(opsCmd)
}
