package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/shipyard/pkg/types"
)

const flagSuiteID = "suite-id"

// GetTestRunsCmd returns the test-runs command with its subcommands
func GetTestRunsCmd() *cobra.Command {
	testRunsCmd := &cobra.Command{
		Use:     "test-runs",
		Aliases: []string{"tests"},
		Short:   "Start, inspect and cancel test runs",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a test run of a suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			suiteID, _ := cmd.Flags().GetUint(flagSuiteID)
			environment, _ := cmd.Flags().GetString(flagEnvironment)
			branch, _ := cmd.Flags().GetString(flagBranch)
			cfg, err := parseConfig(cmd)
			if err != nil {
				return err
			}

			run, err := apiClient.CreateTestRun(context.Background(), types.CreateTestRunRequest{
				ProjectID:     projectID,
				TestSuiteID:   suiteID,
				Environment:   environment,
				Branch:        branch,
				Configuration: cfg,
			})
			if err != nil {
				return fmt.Errorf("error starting test run: %w", err)
			}
			return printJSON(cmd, run)
		},
	}
	startCmd.Flags().Uint(flagProjectID, 0, "Project ID")
	startCmd.Flags().Uint(flagSuiteID, 0, "Test suite ID")
	startCmd.Flags().StringP(flagEnvironment, "e", "", "Environment the tests run against")
	startCmd.Flags().StringP(flagBranch, "b", "", "Branch under test")
	startCmd.Flags().String(flagConfig, "", "Configuration overrides as a JSON object")
	markRequired(startCmd, flagProjectID, flagSuiteID, flagEnvironment)

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get a test run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			run, err := apiClient.GetTestRun(context.Background(), id)
			if err != nil {
				return fmt.Errorf("error getting test run: %w", err)
			}
			return printJSON(cmd, run)
		},
	}
	getCmd.Flags().Uint(flagID, 0, "Test run ID")
	markRequired(getCmd, flagID)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List test runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetUint(flagProjectID)
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			runs, err := apiClient.ListTestRuns(context.Background(), projectID, opts)
			if err != nil {
				return fmt.Errorf("error listing test runs: %w", err)
			}
			return printJSON(cmd, runs)
		},
	}
	listCmd.Flags().Uint(flagProjectID, 0, "Only list runs of this project")
	addListFlags(listCmd, true)

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending or running test run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetUint(flagID)
			reason, _ := cmd.Flags().GetString(flagReason)
			run, err := apiClient.CancelTestRun(context.Background(), id, reason)
			if err != nil {
				return fmt.Errorf("error cancelling test run: %w", err)
			}
			return printJSON(cmd, run)
		},
	}
	cancelCmd.Flags().Uint(flagID, 0, "Test run ID")
	cancelCmd.Flags().String(flagReason, "", "Reason recorded on the run")
	markRequired(cancelCmd, flagID)

	testRunsCmd.AddCommand(startCmd, getCmd, listCmd, cancelCmd)
	return testRunsCmd
}
