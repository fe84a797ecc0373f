package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	addName        string
	addURL         string
	addBranch      string
	addAuthMethod  string
	addDeployKey   string
	addSkipPrompts bool
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Register a new repository",
	Long: `Register a new repository.
You can provide a JSON file, use flags, or run interactively.

Examples:
  # From JSON file
  repodock-ctl repos add my-repo.json

  # Using flags (non-interactive)
  repodock-ctl repos add --name svc-backend --repo "https://github.com/acme/svc-backend.git" --branch main --yes

  # Interactive mode (just run add)
  repodock-ctl repos add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var repoData = make(map[string]interface{})

		// 1. If file is provided, use it
		if len(args) > 0 {
			filePath := args[0]
			fileData, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("error reading file: %v", err)
			}
			if err := json.Unmarshal(fileData, &repoData); err != nil {
				return fmt.Errorf("invalid json file: %v", err)
			}
		} else {
			// 2. Otherwise, use flags or interactive mode
			if addSkipPrompts {
				if addName == "" || addURL == "" {
					return fmt.Errorf("name and repo are required when using --yes")
				}
				repoData["name"] = addName
				repoData["url"] = addURL
				if addBranch != "" {
					repoData["branch"] = addBranch
				} else {
					repoData["branch"] = "main"
				}
			} else {
				// Interactive Mode

				if addName != "" {
					repoData["name"] = addName
				} else {
					prompt := promptui.Prompt{
						Label: "Repository Name",
						Validate: func(input string) error {
							if len(input) == 0 {
								return fmt.Errorf("repository name is required")
							}
							return nil
						},
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["name"] = result
				}

				if addURL != "" {
					repoData["url"] = addURL
				} else {
					prompt := promptui.Prompt{
						Label: "Git Repository URL",
						Validate: func(input string) error {
							if len(input) == 0 {
								return fmt.Errorf("repo url is required")
							}
							return nil
						},
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["url"] = result
				}

				if addBranch != "" {
					repoData["branch"] = addBranch
				} else {
					prompt := promptui.Prompt{
						Label:   "Branch",
						Default: "main",
					}
					result, err := prompt.Run()
					if err != nil {
						return err
					}
					repoData["branch"] = result
				}
			}

			// Auth config (flags only)
			if addAuthMethod != "" {
				repoData["auth_method"] = addAuthMethod
			} else {
				repoData["auth_method"] = "public"
			}
			if addDeployKey != "" {
				keyData, err := os.ReadFile(addDeployKey)
				if err != nil {
					return fmt.Errorf("error reading deploy key file: %v", err)
				}
				repoData["deploy_key"] = string(keyData)
				repoData["auth_method"] = "deploy_key"
			}
		}

		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/", repoData)
		if err != nil {
			return fmt.Errorf("error registering repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository registered successfully.")
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addName, "name", "", "Repository name")
	addCmd.Flags().StringVar(&addURL, "repo", "", "Git repository URL")
	addCmd.Flags().StringVar(&addBranch, "branch", "", "Git branch (default: main)")
	addCmd.Flags().StringVar(&addAuthMethod, "auth-method", "", "Auth method: public or deploy_key")
	addCmd.Flags().StringVar(&addDeployKey, "deploy-key", "", "Path to SSH private key file for private repos")
	addCmd.Flags().BoolVarP(&addSkipPrompts, "yes", "y", false, "Skip interactive prompts (use defaults)")

	reposCmd.AddCommand(addCmd)
}
