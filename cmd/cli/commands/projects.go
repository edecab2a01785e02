package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/shipyard/pkg/types"
)

// Project flag names
const (
	flagName        = "name"
	flagDescription = "description"
	flagWebhookURL  = "webhook-url"
	flagCommand     = "command"
	flagTimeout     = "timeout"
)

// GetProjectsCmd returns the projects command with its subcommands
func GetProjectsCmd() *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects and their test suites",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString(flagName)
			description, _ := cmd.Flags().GetString(flagDescription)
			webhookURL, _ := cmd.Flags().GetString(flagWebhookURL)

			project, err := apiClient.CreateProject(context.Background(), types.CreateProjectRequest{
				Name:        name,
				Description: description,
				WebhookURL:  webhookURL,
			})
			if err != nil {
				return fmt.Errorf("error creating project: %w", err)
			}
			return printJSON(cmd, project)
		},
	}
	createCmd.Flags().StringP(flagName, "n", "", "Project name")
	createCmd.Flags().StringP(flagDescription, "d", "", "Project description")
	createCmd.Flags().String(flagWebhookURL, "", "URL notified when a job of the project finishes")
	markRequired(createCmd, flagName)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get a specific project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			project, err := apiClient.GetProject(context.Background(), id)
			if err != nil {
				return fmt.Errorf("error getting project: %w", err)
			}
			return printJSON(cmd, project)
		},
	}
	getCmd.Flags().Uint(flagID, 0, "Project ID")
	markRequired(getCmd, flagID)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			projects, err := apiClient.ListProjects(context.Background(), opts)
			if err != nil {
				return fmt.Errorf("error listing projects: %w", err)
			}
			return printJSON(cmd, projects)
		},
	}
	addListFlags(listCmd, false)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update the description and webhook of a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			description, _ := cmd.Flags().GetString(flagDescription)
			webhookURL, _ := cmd.Flags().GetString(flagWebhookURL)

			project, err := apiClient.UpdateProject(context.Background(), id, types.UpdateProjectRequest{
				Description: description,
				WebhookURL:  webhookURL,
			})
			if err != nil {
				return fmt.Errorf("error updating project: %w", err)
			}
			return printJSON(cmd, project)
		},
	}
	updateCmd.Flags().Uint(flagID, 0, "Project ID")
	updateCmd.Flags().StringP(flagDescription, "d", "", "Project description")
	updateCmd.Flags().String(flagWebhookURL, "", "URL notified when a job of the project finishes")
	markRequired(updateCmd, flagID)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			if err := apiClient.DeleteProject(context.Background(), id); err != nil {
				return fmt.Errorf("error deleting project: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Project %d deleted\n", id)
			return err
		},
	}
	deleteCmd.Flags().Uint(flagID, 0, "Project ID")
	markRequired(deleteCmd, flagID)

	projectsCmd.AddCommand(createCmd, getCmd, listCmd, updateCmd, deleteCmd, getSuitesCmd())
	return projectsCmd
}

func getSuitesCmd() *cobra.Command {
	suitesCmd := &cobra.Command{
		Use:   "suites",
		Short: "Manage the test suites of a project",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a test suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			name, _ := cmd.Flags().GetString(flagName)
			commands, _ := cmd.Flags().GetStringArray(flagCommand)
			timeout, _ := cmd.Flags().GetInt(flagTimeout)
			cfg, err := parseConfig(cmd)
			if err != nil {
				return err
			}

			suite, err := apiClient.CreateTestSuite(context.Background(), projectID, types.CreateTestSuiteRequest{
				Name:           name,
				Commands:       commands,
				Configuration:  cfg,
				TimeoutSeconds: timeout,
			})
			if err != nil {
				return fmt.Errorf("error creating test suite: %w", err)
			}
			return printJSON(cmd, suite)
		},
	}
	createCmd.Flags().Uint(flagProjectID, 0, "Project ID")
	createCmd.Flags().StringP(flagName, "n", "", "Test suite name")
	createCmd.Flags().StringArray(flagCommand, nil, "Command run by the suite, repeatable")
	createCmd.Flags().String(flagConfig, "", "Suite configuration as a JSON object")
	createCmd.Flags().Int(flagTimeout, 0, "Timeout in seconds, 0 for none")
	markRequired(createCmd, flagProjectID, flagName, flagCommand)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the test suites of a project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			suites, err := apiClient.ListTestSuites(context.Background(), projectID, opts)
			if err != nil {
				return fmt.Errorf("error listing test suites: %w", err)
			}
			return printJSON(cmd, suites)
		},
	}
	listCmd.Flags().Uint(flagProjectID, 0, "Project ID")
	addListFlags(listCmd, false)
	markRequired(listCmd, flagProjectID)

	suitesCmd.AddCommand(createCmd, listCmd)
	return suitesCmd
}
