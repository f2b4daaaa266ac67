package handlers

import (
	"context"
	"net/http"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/rules"
	"github.com/mintresearch/agent-engine/utils"
	"go.uber.org/zap"
)

// CheckPolicyRequest is the body of POST /mcp/rules/check. RuleFiles left
// out means every rule source; an explicit list is used as given.
type CheckPolicyRequest struct {
	Policy    models.Policy `json:"policy" validate:"required"`
	RuleFiles *[]string     `json:"rule_files,omitempty"`
}

// RulesService lists rule sources and validates policies
type RulesService interface {
	List(ctx context.Context) (*rules.ListResult, error)
	Check(ctx context.Context, policy models.Policy, ruleFiles []string) (*rules.CheckResult, error)
}

// RulesHandler handles rule listing and policy checks
type RulesHandler struct {
	service RulesService
	logger  *zap.Logger
}

// NewRulesHandler creates a new RulesHandler
func NewRulesHandler(service RulesService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{
		service: service,
		logger:  logger,
	}
}

// HandleListRules handles GET /mcp/rules
func (h *RulesHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write rules response", zap.Error(err))
	}
}

// HandleCheckPolicy handles POST /mcp/rules/check
func (h *RulesHandler) HandleCheckPolicy(w http.ResponseWriter, r *http.Request) {
	var req CheckPolicyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	var ruleFiles []string
	if req.RuleFiles != nil {
		ruleFiles = *req.RuleFiles
		if ruleFiles == nil {
			ruleFiles = []string{}
		}
	}

	result, err := h.service.Check(r.Context(), req.Policy, ruleFiles)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write policy check response", zap.Error(err))
	}
}
