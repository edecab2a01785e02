// Package commands implements the shipyard command line interface
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/shipyard/internal/db/models"
	"github.com/celestiaorg/shipyard/pkg/api/v1/client"
	"github.com/celestiaorg/shipyard/pkg/api/v1/routes"
)

// flag names shared by several commands
const (
	flagServerAddress = "server-address"
	flagActor         = "actor"
	flagRole          = "role"

	flagID          = "id"
	flagProjectID   = "project-id"
	flagEnvironment = "environment"
	flagBranch      = "branch"
	flagConfig      = "config"
	flagReason      = "reason"
	flagStatus      = "status"
	flagLimit       = "limit"
	flagOffset      = "offset"
)

// environment variable names
const (
	envServerAddress = "SHIPYARD_SERVER_ADDRESS"
	envActor         = "SHIPYARD_ACTOR"
	envRole          = "SHIPYARD_ROLE"
)

var (
	// apiClient is the shared API client instance
	apiClient client.Client
	// newClient builds the API client. Tests replace it.
	newClient = client.NewClient

	serverAddress string
	actor         string
	role          string
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", routes.DefaultBaseURL, "Address of the shipyard API server (env: "+envServerAddress+")")
	RootCmd.PersistentFlags().StringVarP(&actor, flagActor, "a", "", "Name sent as the acting user (env: "+envActor+")")
	RootCmd.PersistentFlags().StringVarP(&role, flagRole, "r", "", "Role sent with each request (env: "+envRole+")")

	RootCmd.AddCommand(GetProjectsCmd())
	RootCmd.AddCommand(GetTestRunsCmd())
	RootCmd.AddCommand(GetDeploymentsCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:           "shipyard",
	Short:         "shipyard CLI - run tests, deploy and roll back through the shipyard API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Flag > Env Var > Default
		fromEnv(cmd, flagServerAddress, envServerAddress, &serverAddress)
		fromEnv(cmd, flagActor, envActor, &actor)
		fromEnv(cmd, flagRole, envRole, &role)

		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		return initClient()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

func fromEnv(cmd *cobra.Command, flag, env string, target *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

// initClient initializes the API client
func initClient() error {
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress
	opts.Actor = actor
	opts.Role = role

	var err error
	apiClient, err = newClient(opts)
	return err
}

// printJSON pretty prints v on the command output
func printJSON(cmd *cobra.Command, v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(prettyJSON))
	return err
}

// parseConfig decodes the JSON object passed with --config
func parseConfig(cmd *cobra.Command) (map[string]interface{}, error) {
	raw, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("error getting config flag: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("config must be a JSON object: %w", err)
	}
	return cfg, nil
}

// listOptions reads --limit, --offset and --status
func listOptions(cmd *cobra.Command) (*models.ListOptions, error) {
	limit, err := cmd.Flags().GetInt(flagLimit)
	if err != nil {
		return nil, fmt.Errorf("error getting limit flag: %w", err)
	}
	offset, err := cmd.Flags().GetInt(flagOffset)
	if err != nil {
		return nil, fmt.Errorf("error getting offset flag: %w", err)
	}
	opts := &models.ListOptions{Limit: limit, Offset: offset}

	if cmd.Flags().Lookup(flagStatus) == nil {
		return opts, nil
	}
	raw, err := cmd.Flags().GetString(flagStatus)
	if err != nil {
		return nil, fmt.Errorf("error getting status flag: %w", err)
	}
	if raw != "" {
		status, err := models.ParseJobStatus(raw)
		if err != nil {
			return nil, err
		}
		opts.Status = &status
	}
	return opts, nil
}

func addListFlags(cmd *cobra.Command, withStatus bool) {
	cmd.Flags().Int(flagLimit, models.DefaultLimit, "Maximum number of rows to return")
	cmd.Flags().Int(flagOffset, 0, "Number of rows to skip")
	if withStatus {
		cmd.Flags().String(flagStatus, "", "Only return jobs with this status")
	}
}

func markRequired(cmd *cobra.Command, flags ...string) {
	for _, f := range flags {
		if err := cmd.MarkFlagRequired(f); err != nil {
			panic(fmt.Errorf("failed to mark %s flag as required for %s command: %w", f, cmd.Name(), err))
		}
	}
}
