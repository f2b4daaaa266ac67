package cli

import (
	"context"
	"fmt"

	"github.com/mintresearch/agent-engine/app"
	"github.com/spf13/cobra"
)

var (
	invokeInput  string
	invokePolicy string
)

func init() {
	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().StringVarP(&invokeInput, "input", "i", "", "User input to process (required)")
	invokeCmd.Flags().StringVarP(&invokePolicy, "policy", "p", "", "Path to a policy YAML file")
	_ = invokeCmd.MarkFlagRequired("input")
}

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Run one input through the interaction pipeline",
	Long: "Runs a single invocation with the configured collaborators and prints the\n" +
		"result as JSON. Exit code 1 when the invocation fails.",
	RunE: runInvoke,
}

func runInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	policy, err := loadPolicyFile(invokePolicy)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Rules.Watch = false

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() { _ = deps.Close(context.Background()) }()

	result := deps.Interaction.Invoke(ctx, invokeInput, policy)
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if result.Error != nil {
		return errReported
	}
	return nil
}
