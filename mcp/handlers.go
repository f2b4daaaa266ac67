package mcp

import (
	"context"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/interaction"
	"github.com/mintresearch/agent-engine/services/rules"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// InvokeInput defines parameters for the invoke tool.
type InvokeInput struct {
	Input  string        `json:"input" jsonschema:"user input to process"`
	Policy models.Policy `json:"policy,omitempty" jsonschema:"policy document routed with the request"`
}

// CheckPolicyInput defines parameters for the check_policy tool.
type CheckPolicyInput struct {
	Policy    models.Policy `json:"policy" jsonschema:"policy document to validate"`
	RuleFiles []string      `json:"rule_files,omitempty" jsonschema:"rule file names inside the rules directory, omit to use all"`
}

// ListRulesInput takes no parameters.
type ListRulesInput struct{}

func (s *Server) handleInvoke(ctx context.Context, req *mcpsdk.CallToolRequest, input InvokeInput) (*mcpsdk.CallToolResult, interaction.Result, error) {
	result := s.invoker.Invoke(ctx, input.Input, input.Policy)
	if result.Error != nil {
		return errorResult(*result.Error), *result, nil
	}
	return nil, *result, nil
}

func (s *Server) handleCheckPolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckPolicyInput) (*mcpsdk.CallToolResult, rules.CheckResult, error) {
	// An absent list means every source; only a non-empty list narrows it.
	var ruleFiles []string
	if len(input.RuleFiles) > 0 {
		ruleFiles = input.RuleFiles
	}

	result, err := s.rules.Check(ctx, input.Policy, ruleFiles)
	if err != nil {
		s.logger.Warn("check_policy failed", zap.Error(err))
		return errorResult(err.Error()), rules.CheckResult{Violations: []string{}}, nil
	}
	return nil, *result, nil
}

func (s *Server) handleListRules(ctx context.Context, req *mcpsdk.CallToolRequest, input ListRulesInput) (*mcpsdk.CallToolResult, rules.ListResult, error) {
	result, err := s.rules.List(ctx)
	if err != nil {
		s.logger.Warn("list_rules failed", zap.Error(err))
		return errorResult(err.Error()), rules.ListResult{Rules: []rules.RuleFile{}}, nil
	}
	return nil, *result, nil
}

func errorResult(message string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: message}},
	}
}
