package cli

import (
	"context"
	"fmt"

	"github.com/mintresearch/agent-engine/services/rules"
	"github.com/spf13/cobra"
)

var (
	rulesDir       string
	rulesFormat    string
	checkPolicy    string
	checkRuleFiles []string
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.PersistentFlags().StringVar(&rulesDir, "rules-dir", "", "Rules directory (overrides RULES_DIR)")
	rulesCmd.PersistentFlags().StringVarP(&rulesFormat, "format", "f", "text", "Output format (text|json)")

	rulesCmd.AddCommand(rulesListCmd, rulesCheckCmd, rulesLintCmd)
	rulesCheckCmd.Flags().StringVarP(&checkPolicy, "policy", "p", "", "Path to policy YAML (required)")
	rulesCheckCmd.Flags().StringArrayVar(&checkRuleFiles, "rule-file", nil, "Rule file to check against; repeatable, default all")
	_ = rulesCheckCmd.MarkFlagRequired("policy")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule files and validate policies",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rule files with their category",
	RunE:  runRulesList,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a policy against the rule files",
	Long: "Checks a policy document against every rule file, or only those named\n" +
		"with --rule-file, and prints the violations.\n\n" +
		"Exit code 0 if the policy is valid, 1 otherwise.",
	RunE: runRulesCheck,
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check rule files for naming and structure problems",
	Long: "Validates every rule file in the rules directory: file naming, unique\n" +
		"categories, a mapping top level and a section named after the category.\n\n" +
		"Exit code 0 if no issues are found, 1 otherwise.",
	RunE: runRulesLint,
}

// newRulesService builds a rules service over the configured directory
func newRulesService(ctx context.Context) (*rules.Service, error) {
	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	dir := cfg.Rules.Dir
	if rulesDir != "" {
		dir = rulesDir
	}

	loader := rules.NewLoader(dir, logger)
	validator := rules.NewValidator(loader, nil, logger)
	return rules.NewService(loader, validator, nil, nil, logger), nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	svc, err := newRulesService(cmd.Context())
	if err != nil {
		return err
	}

	result, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rulesFormat == "json" {
		return writeJSON(out, result)
	}
	for _, rule := range result.Rules {
		fmt.Fprintf(out, "%-14s %s\n", rule.RuleType, rule.FilePath)
	}
	fmt.Fprintf(out, "%d rule file(s)\n", result.Count)
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	policy, err := loadPolicyFile(checkPolicy)
	if err != nil {
		return err
	}

	svc, err := newRulesService(cmd.Context())
	if err != nil {
		return err
	}

	var ruleFiles []string
	if cmd.Flags().Changed("rule-file") {
		ruleFiles = checkRuleFiles
	}

	result, err := svc.Check(cmd.Context(), policy, ruleFiles)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rulesFormat == "json" {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintln(out, "Policy is valid")
	} else {
		fmt.Fprintf(out, "Policy has %d violation(s):\n", len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}

	if !result.Valid {
		return errReported
	}
	return nil
}

func runRulesLint(cmd *cobra.Command, args []string) error {
	svc, err := newRulesService(cmd.Context())
	if err != nil {
		return err
	}

	report, err := rules.Lint(svc.Loader())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rulesFormat == "json" {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "%s: %s\n", issue.Source, issue.Message)
		}
		fmt.Fprintf(out, "%d rule file(s), %d issue(s)\n", report.Sources, len(report.Issues))
	}

	if !report.OK() {
		return errReported
	}
	return nil
}
