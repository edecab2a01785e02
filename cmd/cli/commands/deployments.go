package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/shipyard/pkg/types"
)

const (
	flagVersion = "version"
	flagCommit  = "commit"
)

// GetDeploymentsCmd returns the deployments command with its subcommands
func GetDeploymentsCmd() *cobra.Command {
	deploymentsCmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deploy"},
		Short:   "Deploy versions, cancel deployments and roll them back",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Deploy a version to an environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			environment, _ := cmd.Flags().GetString(flagEnvironment)
			version, _ := cmd.Flags().GetString(flagVersion)
			branch, _ := cmd.Flags().GetString(flagBranch)
			commit, _ := cmd.Flags().GetString(flagCommit)
			cfg, err := parseConfig(cmd)
			if err != nil {
				return err
			}

			deployment, err := apiClient.CreateDeployment(context.Background(), types.CreateDeploymentRequest{
				ProjectID:     projectID,
				Environment:   environment,
				Version:       version,
				Branch:        branch,
				CommitHash:    commit,
				Configuration: cfg,
			})
			if err != nil {
				return fmt.Errorf("error creating deployment: %w", err)
			}
			return printJSON(cmd, deployment)
		},
	}
	createCmd.Flags().Uint(flagProjectID, 0, "Project ID")
	createCmd.Flags().StringP(flagEnvironment, "e", "", "Target environment")
	createCmd.Flags().StringP(flagVersion, "v", "", "Version to deploy")
	createCmd.Flags().StringP(flagBranch, "b", "", "Branch the version was built from")
	createCmd.Flags().String(flagCommit, "", "Commit hash of the version")
	createCmd.Flags().String(flagConfig, "", "Deployment configuration as a JSON object")
	markRequired(createCmd, flagProjectID, flagEnvironment, flagVersion)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get a deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			deployment, err := apiClient.GetDeployment(context.Background(), id)
			if err != nil {
				return fmt.Errorf("error getting deployment: %w", err)
			}
			return printJSON(cmd, deployment)
		},
	}
	getCmd.Flags().Uint(flagID, 0, "Deployment ID")
	markRequired(getCmd, flagID)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			environment, _ := cmd.Flags().GetString(flagEnvironment)
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			deployments, err := apiClient.ListDeployments(context.Background(), projectID, environment, opts)
			if err != nil {
				return fmt.Errorf("error listing deployments: %w", err)
			}
			return printJSON(cmd, deployments)
		},
	}
	listCmd.Flags().Uint(flagProjectID, 0, "Only list deployments of this project")
	listCmd.Flags().StringP(flagEnvironment, "e", "", "Only list deployments to this environment")
	addListFlags(listCmd, true)

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending or in progress deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			reason, _ := cmd.Flags().GetString(flagReason)
			deployment, err := apiClient.CancelDeployment(context.Background(), id, reason)
			if err != nil {
				return fmt.Errorf("error cancelling deployment: %w", err)
			}
			return printJSON(cmd, deployment)
		},
	}
	cancelCmd.Flags().Uint(flagID, 0, "Deployment ID")
	cancelCmd.Flags().String(flagReason, "", "Reason recorded on the deployment")
	markRequired(cancelCmd, flagID)

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll a deployment back to the version deployed before it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			reason, _ := cmd.Flags().GetString(flagReason)
			rollback, err := apiClient.RollbackDeployment(context.Background(), id, reason)
			if err != nil {
				return fmt.Errorf("error rolling back deployment: %w", err)
			}
			return printJSON(cmd, rollback)
		},
	}
	rollbackCmd.Flags().Uint(flagID, 0, "Deployment ID")
	rollbackCmd.Flags().String(flagReason, "", "Why the deployment is rolled back")
	markRequired(rollbackCmd, flagID, flagReason)

	deploymentsCmd.AddCommand(createCmd, getCmd, listCmd, cancelCmd, rollbackCmd)
	return deploymentsCmd
}
