package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/repodock/repodock/internal/api"
)

// containersCmd represents the containers command
var containersCmd = &cobra.Command{
	Use:   "containers",
	Short: "Inspect and restart containers",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// containersListCmd represents the containers list command
var containersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers and their repository dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/v1/containers/")
		if err != nil {
			return fmt.Errorf("error fetching containers: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data []api.RestartTarget `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tIMAGE\tSTATUS\tREPOSITORIES")
		for _, target := range apiResp.Data {
			id := target.Container.ID
			if len(id) > 12 {
				id = id[:12]
			}
			repos := "-"
			if len(target.Repositories) > 0 {
				repos = strings.Join(target.Repositories, ",")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, target.Container.Name, target.Container.Image, target.Container.Status, repos)
		}
		w.Flush()

		return nil
	},
}

// containersRestartCmd represents the containers restart command
var containersRestartCmd = &cobra.Command{
	Use:   "restart [container-id]",
	Short: "Restart a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		client := NewClient()
		resp, err := client.Post("/api/v1/containers/"+id+"/restart", nil)
		if err != nil {
			return fmt.Errorf("error restarting container: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Container restarted successfully.")
		return nil
	},
}

func init() {
	containersCmd.AddCommand(containersListCmd)
	containersCmd.AddCommand(containersRestartCmd)
	rootCmd.AddCommand(containersCmd)
}
